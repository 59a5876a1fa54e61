// Copyright 2015 The astrogo Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fitsrs

// blockSize is the fundamental FITS block unit: every header and every data
// unit is padded to a multiple of this many bytes.
const blockSize = 2880

// alignUp2880 rounds n up to the next multiple of blockSize.
func alignUp2880(n int64) int64 {
	r := n % blockSize
	if r == 0 {
		return n
	}
	return n + (blockSize - r)
}

// padTo2880 returns the number of padding bytes needed to bring n up to the
// next multiple of blockSize.
func padTo2880(n int64) int64 {
	return alignUp2880(n) - n
}

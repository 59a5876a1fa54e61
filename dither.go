// Copyright 2015 The astrogo Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fitsrs

// nRandom is the size of the dither table (§4.6, §4.7, §9).
const nRandom = 10000

// ditherRand is the deterministic PRNG table used to reverse subtractive
// dithering of quantized floating-point tile pixels. Computed once at
// package init by the Lehmer/Park-Miller recurrence s <- 16807*s mod
// 2147483647, seed 1; rand[k] = s/2147483647. Go has no const-fn
// equivalent to the original's compile-time table, so this runs at init
// time instead (the one unavoidable divergence from the source it was
// ported from).
var ditherRand [nRandom]float32

func init() {
	const a = 16807.0
	const m = 2147483647.0
	seed := 1.0
	for i := 0; i < nRandom; i++ {
		temp := a * seed
		seed = temp - m*float64(int64(temp/m))
		ditherRand[i] = float32(seed / m)
	}
}

// Copyright 2015 The astrogo Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fitsrs

import (
	"github.com/pkg/errors"
)

// Sentinel errors identifying the six error kinds a caller may need to
// discriminate on (see ERROR HANDLING DESIGN). Use errors.Is/errors.Cause
// against these, never string-match an error message.
var (
	// ErrTruncated reports an I/O failure: the underlying reader returned an
	// unexpected EOF or read error in a place a truncated trailing block is
	// not tolerated.
	ErrTruncated = errors.New("fitsrs: truncated or unreadable input")

	// ErrMalformedCard reports a parse failure decoding a single 80-byte
	// header card.
	ErrMalformedCard = errors.New("fitsrs: malformed header card")

	// ErrMandatoryMissing reports a required keyword that is absent or has
	// the wrong type for the xtension being parsed.
	ErrMandatoryMissing = errors.New("fitsrs: mandatory keyword missing or invalid")

	// ErrValueOutOfRange reports a keyword value outside its allowed set
	// (BITPIX not in {8,16,32,64,-32,-64}, negative NAXIS, ...).
	ErrValueOutOfRange = errors.New("fitsrs: value out of range")

	// ErrUnsupported reports a recognized but unimplemented feature
	// (complex card values, HCOMPRESS/PLIO tile compression, unknown
	// XTENSION names).
	ErrUnsupported = errors.New("fitsrs: unsupported feature")

	// ErrInvariant reports an internally-inconsistent extension, such as
	// TFORM widths that do not sum to NAXIS1, or a heap descriptor that
	// overruns PCOUNT.
	ErrInvariant = errors.New("fitsrs: invariant violated")
)

// wrapf annotates err with a contextual message (errors.Wrapf), preserving
// the sentinel for errors.Is checks further up the stack.
func wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, format, args...)
}

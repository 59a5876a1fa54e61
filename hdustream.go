// Copyright 2015 The astrogo Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fitsrs

import (
	"io"
	"log"
)

// HDU is one Header-Data Unit: its header plus a cursor over its data unit.
// The data unit is not read eagerly (per §3 "Lifecycles & ownership"): call
// DataReader to obtain an io.ReadSeeker scoped to the data bytes, and match
// it against Image()/AsciiTable()/BinTable() to pick the right decoder
// (NewImageReader, NewRowDecoder, NewTileReader). Close abandons any
// unread data and advances the owning Stream to the next 2880 boundary;
// calling Close after the data has been fully consumed is a cheap no-op
// except for that boundary skip.
type HDU struct {
	Index      int
	XType      XtensionKind
	Header     *Header
	DataOffset int64 // absolute byte offset of the data unit in the stream
	DataSize   int64 // unpadded data-unit size in bytes

	image      *Image
	asciiTable *AsciiTable
	binTable   *BinTable

	cursor *dataCursor
}

// Image returns the Image descriptor, or nil if this HDU is not an Image.
func (h *HDU) Image() *Image { return h.image }

// AsciiTable returns the AsciiTable descriptor, or nil if this HDU is not a
// TABLE extension.
func (h *HDU) AsciiTable() *AsciiTable { return h.asciiTable }

// BinTable returns the BinTable descriptor, or nil if this HDU is not a
// BINTABLE extension.
func (h *HDU) BinTable() *BinTable { return h.binTable }

// DataReader returns an io.ReadSeeker scoped to exactly this HDU's data
// bytes (Seek offsets are relative to the start of the data unit). It may
// only be called once per HDU.
func (h *HDU) DataReader() io.ReadSeeker { return h.cursor }

// Close abandons whatever part of the data unit has not been read and
// advances the underlying stream to the next 2880-byte boundary.
func (h *HDU) Close() error { return h.cursor.close() }

// dataCursor bounds reads to one HDU's data unit, taking seek offsets
// relative to its start (DataSize real
// bytes, total-size padded to 2880) and tracks the current position so
// Close can always discard the remainder accurately regardless of how many
// internal seek excursions (e.g. heap jumps) the caller performed.
type dataCursor struct {
	rs       io.ReadSeeker
	startAbs int64
	size     int64 // unpadded
	total    int64 // padded to 2880
	pos      int64 // current offset relative to startAbs
	closed   bool
}

func newDataCursor(rs io.ReadSeeker, size int64) (*dataCursor, error) {
	abs, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, wrapf(err, "locating data unit start")
	}
	return &dataCursor{rs: rs, startAbs: abs, size: size, total: alignUp2880(size)}, nil
}

func (d *dataCursor) Read(p []byte) (int, error) {
	if d.pos >= d.size {
		return 0, io.EOF
	}
	if max := d.size - d.pos; int64(len(p)) > max {
		p = p[:max]
	}
	n, err := d.rs.Read(p)
	d.pos += int64(n)
	return n, err
}

func (d *dataCursor) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = d.pos + offset
	case io.SeekEnd:
		target = d.size + offset
	default:
		return 0, wrapf(ErrUnsupported, "unknown Seek whence %d", whence)
	}
	abs, err := d.rs.Seek(d.startAbs+target, io.SeekStart)
	if err != nil {
		return 0, wrapf(err, "seeking within data unit")
	}
	d.pos = abs - d.startAbs
	return d.pos, nil
}

func (d *dataCursor) close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	_, err := d.rs.Seek(d.startAbs+d.total, io.SeekStart)
	if err != nil {
		return wrapf(err, "skipping to next HDU boundary")
	}
	return nil
}

// Stream is a restartable iterator over the HDUs of a FITS byte source. Its
// state mirrors spec §4.3 exactly: started, the current HDU's cursor, and a
// latched terminal-error flag. It requires seekable input: heap access in
// binary tables and tile-compressed images is modeled as relative
// positioning (§3, §9), which needs a real Seek underneath.
type Stream struct {
	rs io.ReadSeeker

	started    bool
	cur        *dataCursor
	errLatched bool
	idx        int

	logger *log.Logger
}

// StreamOption configures a Stream at construction.
type StreamOption func(*Stream)

// WithLogger overrides the Stream's logger. The Stream itself logs nothing;
// unmatched column names are reported by SelectColumnsByName through the
// logger passed to it.
func WithLogger(l *log.Logger) StreamOption {
	return func(s *Stream) { s.logger = l }
}

// NewStream creates a Stream reading HDUs from rs.
func NewStream(rs io.ReadSeeker, opts ...StreamOption) *Stream {
	s := &Stream{rs: rs, logger: log.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Next produces the next HDU, or io.EOF once the stream is exhausted or has
// latched a terminal error. Any other returned error has also latched the
// stream: every subsequent call returns (nil, io.EOF).
func (s *Stream) Next() (*HDU, error) {
	if s.errLatched {
		return nil, io.EOF
	}

	if s.cur != nil {
		if err := s.cur.close(); err != nil {
			s.errLatched = true
			return nil, err
		}
	}

	primary := !s.started

	if s.started {
		eof, err := s.atEOF()
		if err != nil {
			s.errLatched = true
			return nil, err
		}
		if eof {
			s.errLatched = true
			return nil, io.EOF
		}
	}

	hdu, err := s.parseHDU(primary)
	if err != nil {
		s.errLatched = true
		return nil, err
	}
	s.started = true
	s.cur = hdu.cursor
	return hdu, nil
}

// atEOF reports whether the stream is positioned at end-of-input, without
// consuming any bytes: it probes with a one-byte Read and seeks back over
// any byte it got.
func (s *Stream) atEOF() (bool, error) {
	var one [1]byte
	n, err := s.rs.Read(one[:])
	if n == 0 && err == io.EOF {
		return true, nil
	}
	if err != nil && err != io.EOF {
		return false, wrapf(err, "probing for next HDU")
	}
	if n > 0 {
		if _, serr := s.rs.Seek(-int64(n), io.SeekCurrent); serr != nil {
			return false, wrapf(serr, "rewinding EOF probe")
		}
	}
	return false, nil
}

// parseHDU reads one complete header (primary or extension) and establishes
// the data-unit cursor that follows it, per §4.3 steps 2-3.
func (s *Stream) parseHDU(primary bool) (*HDU, error) {
	h, nbytes, err := readHeader(s.rs)
	if err != nil {
		return nil, err
	}
	if _, err := s.rs.Seek(padTo2880(nbytes), io.SeekCurrent); err != nil {
		return nil, wrapf(err, "aligning to data unit boundary")
	}

	var xtype XtensionKind
	if primary {
		c := h.Get("SIMPLE")
		if c == nil || c.Value.Kind != ValueLogical || !c.Value.Bool {
			return nil, wrapf(ErrMandatoryMissing, "primary HDU missing SIMPLE=T")
		}
		xtype = XtensionImage
	} else {
		xtype, err = firstXtensionKind(h)
		if err != nil {
			return nil, err
		}
	}

	hdu := &HDU{Index: s.idx, XType: xtype, Header: h}
	s.idx++

	var dataBytes int64
	switch xtype {
	case XtensionImage:
		img, err := parseImage(h)
		if err != nil {
			return nil, err
		}
		hdu.image = img
		dataBytes = img.DataUnitBytes()
	case XtensionAsciiTable:
		at, err := parseAsciiTable(h)
		if err != nil {
			return nil, err
		}
		hdu.asciiTable = at
		dataBytes = at.DataUnitBytes()
	case XtensionBinTable:
		bt, err := parseBinTable(h)
		if err != nil {
			return nil, err
		}
		hdu.binTable = bt
		dataBytes = bt.DataUnitBytes()
	}

	hdu.DataSize = dataBytes
	cursor, err := newDataCursor(s.rs, dataBytes)
	if err != nil {
		return nil, err
	}
	hdu.DataOffset = cursor.startAbs
	hdu.cursor = cursor

	return hdu, nil
}

// firstXtensionKind finds the XTENSION card that must be first in an
// extension header and returns its kind.
func firstXtensionKind(h *Header) (XtensionKind, error) {
	for _, c := range h.cards {
		if c.Kind == CardXtension {
			return c.XType, nil
		}
		if c.Kind == CardValue || c.Kind == CardHierarch {
			break
		}
	}
	return 0, wrapf(ErrMandatoryMissing, "extension HDU missing leading XTENSION card")
}

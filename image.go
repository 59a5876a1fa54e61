// Copyright 2015 The astrogo Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fitsrs

import (
	"bytes"
	"io"
)

// PixelKind is the concrete pixel type chosen once at reader construction
// from BITPIX (§9 "Typed value stream"): the reader is a monomorphic
// sequence, not a per-element dynamic dispatch.
type PixelKind int

const (
	PixelU8 PixelKind = iota
	PixelI16
	PixelI32
	PixelI64
	PixelF32
	PixelF64
)

func pixelKindFromBitpix(bitpix int) (PixelKind, error) {
	switch bitpix {
	case 8:
		return PixelU8, nil
	case 16:
		return PixelI16, nil
	case 32:
		return PixelI32, nil
	case 64:
		return PixelI64, nil
	case -32:
		return PixelF32, nil
	case -64:
		return PixelF64, nil
	default:
		return 0, wrapf(ErrValueOutOfRange, "BITPIX=%d is not a valid pixel kind", bitpix)
	}
}

// ImageReader yields NumPixels() pixels of the concrete Kind, big-endian
// decoded, from an Image data unit. It never delivers the 2880-padding
// bytes trailing the last pixel.
type ImageReader struct {
	r         io.Reader
	Kind      PixelKind
	NumPixels int64
	read      int64
}

// NewImageReader builds an ImageReader over r (positioned at the start of
// the Image's data unit) for descriptor img.
func NewImageReader(r io.Reader, img *Image) (*ImageReader, error) {
	kind, err := pixelKindFromBitpix(img.Bitpix)
	if err != nil {
		return nil, err
	}
	return &ImageReader{r: r, Kind: kind, NumPixels: img.NumPixels()}, nil
}

// Next reads the next pixel, returning it boxed in the matching field of
// the returned Pixel. io.EOF is returned once NumPixels pixels have been
// delivered, or early if the underlying reader errors (per §7, the caller
// must compare pixels consumed to NumPixels to detect early termination).
func (ir *ImageReader) Next() (Pixel, error) {
	if ir.read >= ir.NumPixels {
		return Pixel{}, io.EOF
	}
	var p Pixel
	p.Kind = ir.Kind
	var err error
	switch ir.Kind {
	case PixelU8:
		var v byte
		err = readByte(ir.r, &v)
		p.U8 = v
	case PixelI16:
		var v int16
		err = readI16(ir.r, &v)
		p.I16 = v
	case PixelI32:
		var v int32
		err = readI32(ir.r, &v)
		p.I32 = v
	case PixelI64:
		var v int64
		err = readI64(ir.r, &v)
		p.I64 = v
	case PixelF32:
		var v float32
		err = readF32(ir.r, &v)
		p.F32 = v
	case PixelF64:
		var v float64
		err = readF64(ir.r, &v)
		p.F64 = v
	}
	if err != nil {
		return Pixel{}, io.EOF
	}
	ir.read++
	return p, nil
}

// Pixel is one decoded image sample; only the field matching Kind is valid.
type Pixel struct {
	Kind PixelKind
	U8   byte
	I16  int16
	I32  int32
	I64  int64
	F32  float32
	F64  float64
}

// BorrowedU8 returns a zero-copy view of the pixel data when Kind is
// PixelU8 and data is a contiguous in-memory region (the "Borrowed" mode of
// §4.4): BITPIX=8 pixels need no endianness conversion, so the backing
// bytes can be handed back directly.
func BorrowedU8(img *Image, data []byte) ([]byte, bool) {
	if img.Bitpix != 8 {
		return nil, false
	}
	n := img.NumPixels()
	if int64(len(data)) < n {
		return nil, false
	}
	return data[:n], true
}

// NewBorrowedImageReader builds an ImageReader over an in-memory data unit,
// which is equivalent to the Iterated mode but avoids requiring an
// io.Reader that streams from elsewhere.
func NewBorrowedImageReader(img *Image, data []byte) (*ImageReader, error) {
	return NewImageReader(bytes.NewReader(data), img)
}

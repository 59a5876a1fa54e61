// Copyright 2015 The astrogo Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Port of CFITSIO's ricecomp.c (fits_rdecomp family). See
// https://github.com/HEASARC/cfitsio/blob/develop/ricecomp.c for the
// original. This is a streaming reader so that it can be driven in
// arbitrary chunk sizes, matching the tile pipeline's scratch-buffer reads.

package fitsrs

import (
	"io"
)

// riceNonzeroCount[b] is the number of bits in an 8-bit value, not counting
// leading zeros; used to find the unary-coded run length of leading zeros
// in the bit stream during normal (non-low/high-entropy) decoding.
var riceNonzeroCount = [256]int32{
	0, 1, 2, 2, 3, 3, 3, 3, 4, 4, 4, 4, 4, 4, 4, 4, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5,
	6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8,
	8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8,
	8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8,
	8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8,
}

// riceWidth constrains the three output widths RICE can decode into, each
// with its own FS parameterization.
type riceWidth interface {
	~uint8 | ~int16 | ~int32
}

func riceFSBITS[T riceWidth]() int32 {
	var z T
	switch any(z).(type) {
	case uint8:
		return 3
	case int16:
		return 4
	default:
		return 5
	}
}

func riceFSMAX[T riceWidth]() int32 {
	var z T
	switch any(z).(type) {
	case uint8:
		return 6
	case int16:
		return 14
	default:
		return 25
	}
}

func riceSizeOf[T riceWidth]() int {
	var z T
	switch any(z).(type) {
	case uint8:
		return 1
	case int16:
		return 2
	default:
		return 4
	}
}

func riceReadFirst[T riceWidth](r io.Reader) (int32, error) {
	var z T
	switch any(z).(type) {
	case uint8:
		var v byte
		if err := readByte(r, &v); err != nil {
			return 0, err
		}
		return int32(v), nil
	case int16:
		var v int16
		if err := readI16(r, &v); err != nil {
			return 0, err
		}
		return int32(v), nil
	default:
		var v int32
		if err := readI32(r, &v); err != nil {
			return 0, err
		}
		return v, nil
	}
}

func riceReadByte(r io.Reader) (uint32, error) {
	var v byte
	if err := readByte(r, &v); err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// putRicePixel writes curpix into buf at byte offset off in little-endian
// order at the output type's width, the order TileReader.extractWidth reads
// RICE scratch samples back in.
func putRicePixel[T riceWidth](buf []byte, off int, curpix int32) {
	switch any(T(0)).(type) {
	case uint8:
		buf[off] = byte(curpix)
	case int16:
		v := uint16(int16(curpix))
		buf[off], buf[off+1] = byte(v), byte(v>>8)
	default:
		v := uint32(curpix)
		buf[off] = byte(v)
		buf[off+1] = byte(v >> 8)
		buf[off+2] = byte(v >> 16)
		buf[off+3] = byte(v >> 24)
	}
}

type riceState int

const (
	riceStart riceState = iota
	riceFS
	riceLowEntropy
	riceHighEntropy
	riceDecoding
)

// RICEDecoder is an io.Reader decorator that decodes a RICE-compressed
// stream into raw samples of type T (uint8, int16, or int32), streamed so
// it can be driven with arbitrarily sized Read calls.
type RICEDecoder[T riceWidth] struct {
	r       io.Reader
	nblock  int32
	nx      int32
	state   riceState
	b       uint32
	nbits   int32
	i       int32
	imax    int32
	fs      int32
	lastpix int32
}

// NewRICEDecoder builds a decoder over r. nblock is the coding block size
// (32 in practice); nx is the number of output samples the stream carries.
func NewRICEDecoder[T riceWidth](r io.Reader, nblock, nx int32) *RICEDecoder[T] {
	return &RICEDecoder[T]{r: r, nblock: nblock, nx: nx, state: riceStart}
}

// Read implements io.Reader. len(p) must be a multiple of sizeof(T); it
// fills p with as many decoded samples as fit, returning early only on an
// underlying read error.
func (d *RICEDecoder[T]) Read(p []byte) (int, error) {
	sz := riceSizeOf[T]()
	fsbits := riceFSBITS[T]()
	fsmax := riceFSMAX[T]()
	j := 0

	for {
		switch d.state {
		case riceStart:
			lastpix, err := riceReadFirst[T](d.r)
			if err != nil {
				return j, err
			}
			b, err := riceReadByte(d.r)
			if err != nil {
				return j, err
			}
			d.lastpix = lastpix
			d.b = b
			d.nbits = 8
			d.i = 0
			d.state = riceFS

		case riceFS:
			d.nbits -= fsbits
			for d.nbits < 0 {
				nb, err := riceReadByte(d.r)
				if err != nil {
					return j, err
				}
				d.b = (d.b << 8) | nb
				d.nbits += 8
			}
			fsv := int32(d.b>>uint(d.nbits)) - 1
			d.b &= (1 << uint(d.nbits)) - 1
			d.imax = d.i + d.nblock
			if d.imax > d.nx {
				d.imax = d.nx
			}
			switch {
			case fsv < 0:
				d.state = riceLowEntropy
			case fsv == fsmax:
				d.state = riceHighEntropy
			default:
				d.fs = fsv
				d.state = riceDecoding
			}

		case riceLowEntropy:
			for j < len(p) && d.i < d.imax {
				putRicePixel[T](p, j, d.lastpix)
				j += sz
				d.i++
			}
			if d.i == d.imax {
				d.state = riceFS
			}
			if j == len(p) {
				return j, nil
			}

		case riceHighEntropy:
			bbits := int32(1) << uint(fsbits)
			for j < len(p) && d.i < d.imax {
				k := bbits - d.nbits
				diff := uint32(d.b) << uint(k)
				k -= 8
				for k >= 0 {
					nb, err := riceReadByte(d.r)
					if err != nil {
						return j, err
					}
					d.b = nb
					diff |= d.b << uint(k)
					k -= 8
				}
				if d.nbits > 0 {
					nb, err := riceReadByte(d.r)
					if err != nil {
						return j, err
					}
					d.b = nb
					diff |= d.b >> uint(-k)
					d.b &= (1 << uint(d.nbits)) - 1
				} else {
					d.b = 0
				}
				if diff&1 == 0 {
					diff >>= 1
				} else {
					diff = ^(diff >> 1)
				}
				curpix := int32(diff) + d.lastpix
				putRicePixel[T](p, j, curpix)
				d.lastpix = curpix
				d.i++
				j += sz
			}
			if d.i == d.imax {
				d.state = riceFS
			}
			if j == len(p) {
				return j, nil
			}

		case riceDecoding:
			for j < len(p) && d.i < d.imax {
				for d.b == 0 {
					d.nbits += 8
					nb, err := riceReadByte(d.r)
					if err != nil {
						return j, err
					}
					d.b = nb
				}
				nzero := d.nbits - riceNonzeroCount[d.b]
				d.nbits -= nzero + 1
				d.b ^= 1 << uint(d.nbits)
				d.nbits -= d.fs
				for d.nbits < 0 {
					nb, err := riceReadByte(d.r)
					if err != nil {
						return j, err
					}
					d.b = (d.b << 8) | nb
					d.nbits += 8
				}
				diff := (uint32(nzero) << uint(d.fs)) | (d.b >> uint(d.nbits))
				d.b &= (1 << uint(d.nbits)) - 1
				if diff&1 == 0 {
					diff >>= 1
				} else {
					diff = ^(diff >> 1)
				}
				curpix := int32(diff) + d.lastpix
				putRicePixel[T](p, j, curpix)
				d.lastpix = curpix
				d.i++
				j += sz
			}
			if d.i == d.imax {
				d.state = riceFS
			}
			if j == len(p) {
				return j, nil
			}
		}
	}
}

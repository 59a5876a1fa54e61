// Copyright 2015 The astrogo Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fitsrs

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// ZCmpType is the per-tile compression algorithm named by ZCMPTYPE.
type ZCmpType int

const (
	ZCmpGzip1 ZCmpType = iota
	ZCmpGzip2
	ZCmpRice
	ZCmpHCompress
	ZCmpPlio
	ZCmpNoCompress
)

func zCmpTypeFromName(name string) (ZCmpType, error) {
	switch name {
	case "GZIP_1":
		return ZCmpGzip1, nil
	case "GZIP_2":
		return ZCmpGzip2, nil
	case "RICE_1", "RICE_ONE":
		return ZCmpRice, nil
	case "HCOMPRESS_1":
		return ZCmpHCompress, nil
	case "PLIO_1":
		return ZCmpPlio, nil
	case "NOCOMPRESS":
		return ZCmpNoCompress, nil
	default:
		return 0, wrapf(ErrUnsupported, "unknown ZCMPTYPE %q", name)
	}
}

// ZQuantiz is the dithering scheme named by ZQUANTIZ, applicable only when
// the tile's pixels are floating point (§4.7).
type ZQuantiz int

const (
	NoDither ZQuantiz = iota
	SubtractiveDither1
	SubtractiveDither2
)

func zQuantizFromName(name string) (ZQuantiz, error) {
	switch name {
	case "NO_DITHER", "":
		return NoDither, nil
	case "SUBTRACTIVE_DITHER_1":
		return SubtractiveDither1, nil
	case "SUBTRACTIVE_DITHER_2":
		return SubtractiveDither2, nil
	default:
		return 0, wrapf(ErrUnsupported, "unknown ZQUANTIZ %q", name)
	}
}

// zBlankSource is either a per-row column holding the blank sentinel or a
// single header-wide value.
type zBlankSource struct {
	colIdx int     // -1 if not column-backed
	fixed  float64 // valid only if colIdx < 0 and hasFixed
	hasFixed bool
}

// TileCompressed is the tile-compressed image descriptor parsed from the
// Z-prefixed keywords of a BINTABLE whose rows each hold one compressed
// image tile (§4.7).
type TileCompressed struct {
	ZBitpix  int
	ZNaxis   []int64 // ZNAXISn: full (uncompressed) image axis lengths
	ZTile    []int64 // ZTILEn: tile shape along each axis
	CmpType  ZCmpType
	Quantiz  ZQuantiz
	ZDither0 int64

	DataCompressedIdx int
	ZScaleIdx         int // -1 if absent (scale defaults to 1)
	ZZeroIdx          int // -1 if absent (zero defaults to 0)
	Blank             zBlankSource

	// RICE parameters (ZVAL1/ZVAL2), meaningful only when CmpType==ZCmpRice.
	RiceBlockSize int32
	RiceBytePix   int32
}

// NumTiles returns the number of tiles the image is divided into, one per
// row of the main table.
func (t *TileCompressed) NumTiles() int64 {
	n := int64(1)
	for i, naxis := range t.ZNaxis {
		tile := t.ZTile[i]
		n *= (naxis + tile - 1) / tile
	}
	return n
}

// parseTileCompressed validates and extracts the Z-prefixed tile-compressed
// image keywords (§4.7). Returns (nil, nil) when ZCMPTYPE names a scheme
// this reader does not decode (HCOMPRESS_1, PLIO_1, NOCOMPRESS): such rows
// are left for the caller to read as a plain binary table instead of an
// error, matching how the heap-array columns are still well-formed.
func parseTileCompressed(h *Header, bt *BinTable) (*TileCompressed, error) {
	zbitpix, err := requireInt(h, "ZBITPIX")
	if err != nil {
		return nil, err
	}
	if zbitpix != 8 && zbitpix != 16 && zbitpix != 32 && zbitpix != -32 {
		return nil, wrapf(ErrUnsupported, "ZBITPIX=%d tile pipeline only supports {8,16,32,-32}", zbitpix)
	}

	znaxis, err := requireInt(h, "ZNAXIS")
	if err != nil {
		return nil, err
	}
	if znaxis <= 0 {
		return nil, wrapf(ErrValueOutOfRange, "ZNAXIS=%d must be positive", znaxis)
	}

	zNaxisN := make([]int64, znaxis)
	zTileN := make([]int64, znaxis)
	for i := int64(0); i < znaxis; i++ {
		zNaxisN[i], err = requireInt(h, fmt.Sprintf("ZNAXIS%d", i+1))
		if err != nil {
			return nil, err
		}
		tileName := fmt.Sprintf("ZTILE%d", i+1)
		if c := h.Get(tileName); c != nil && c.Value.Kind == ValueInteger {
			zTileN[i] = c.Value.Int
		} else if i == 0 {
			zTileN[i] = zNaxisN[0]
		} else {
			zTileN[i] = 1
		}
	}

	cmpTypeName, err := requireString(h, "ZCMPTYPE")
	if err != nil {
		return nil, err
	}
	cmpType, err := zCmpTypeFromName(cmpTypeName)
	if err != nil {
		return nil, err
	}
	if cmpType != ZCmpGzip1 && cmpType != ZCmpGzip2 && cmpType != ZCmpRice {
		return nil, nil
	}

	quantiz := NoDither
	if c := h.Get("ZQUANTIZ"); c != nil && c.Value.Kind == ValueString {
		quantiz, err = zQuantizFromName(c.Value.Str)
		if err != nil {
			return nil, err
		}
	}
	var zDither0 int64
	if c := h.Get("ZDITHER0"); c != nil && c.Value.Kind == ValueInteger {
		zDither0 = c.Value.Int
	}

	dataIdx := bt.ColIndex("DATA_COMPRESSED")
	if dataIdx < 0 {
		dataIdx = bt.ColIndex("GZIP_COMPRESSED_DATA")
	}
	if dataIdx < 0 {
		return nil, wrapf(ErrMandatoryMissing, "DATA_COMPRESSED or GZIP_COMPRESSED_DATA column not found")
	}
	if !bt.Columns[dataIdx].IsArrayDescriptor() {
		return nil, wrapf(ErrInvariant, "compressed-data column is not a P/Q array descriptor")
	}

	zScaleIdx := bt.ColIndex("ZSCALE")
	zZeroIdx := bt.ColIndex("ZZERO")

	blank := zBlankSource{colIdx: bt.ColIndex("ZBLANK")}
	if blank.colIdx < 0 {
		if zbitpix < 0 {
			if c := h.Get("ZBLANK"); c != nil && (c.Value.Kind == ValueInteger || c.Value.Kind == ValueFloat) {
				blank.hasFixed = true
				blank.fixed = numericValue(c.Value)
			}
		} else {
			if c := h.Get("BLANK"); c != nil && c.Value.Kind == ValueInteger {
				blank.hasFixed = true
				blank.fixed = float64(c.Value.Int)
			}
		}
	}

	tile := &TileCompressed{
		ZBitpix: int(zbitpix), ZNaxis: zNaxisN, ZTile: zTileN,
		CmpType: cmpType, Quantiz: quantiz, ZDither0: zDither0,
		DataCompressedIdx: dataIdx, ZScaleIdx: zScaleIdx, ZZeroIdx: zZeroIdx,
		Blank:         blank,
		RiceBlockSize: 32,
		RiceBytePix:   4,
	}

	if cmpType == ZCmpRice {
		if c := h.Get("ZVAL1"); c != nil && c.Value.Kind == ValueInteger {
			tile.RiceBlockSize = int32(c.Value.Int)
		}
		if c := h.Get("ZVAL2"); c != nil && c.Value.Kind == ValueInteger {
			tile.RiceBytePix = int32(c.Value.Int)
		}
	}

	return tile, nil
}

func numericValue(v Value) float64 {
	if v.Kind == ValueFloat {
		return v.Flt
	}
	return float64(v.Int)
}

// tileSizeFromRowIdx computes the shape of the tile at 0-based linear index
// n across a grid of ceil(naxis/tile) tiles per axis: full ZTILEn along
// every interior tile, clipped to what remains of ZNAXISn at the border.
func tileSizeFromRowIdx(zTile, zNaxis []int64, n int64) []int64 {
	d := len(zTile)
	s := make([]int64, d)
	for i := range s {
		s[i] = (zNaxis[i] + zTile[i] - 1) / zTile[i]
	}

	u := make([]int64, d)
	u[0] = n % s[0]
	for i := 1; i < d; i++ {
		prodBelow := func(upto int) int64 {
			p := int64(1)
			for k := 0; k < upto; k++ {
				p *= s[k]
			}
			return p
		}
		var sum int64
		for k := 1; k < i; k++ {
			sum += u[k] * prodBelow(k)
		}
		u[i] = n - u[0] - sum
		u[i] = (u[i] / prodBelow(i)) % s[i]
	}

	shape := make([]int64, d)
	for i := range shape {
		rem := zNaxis[i] - u[i]*zTile[i]
		if zTile[i] < rem {
			shape[i] = zTile[i]
		} else {
			shape[i] = rem
		}
	}
	return shape
}

func tileNumPixels(zTile, zNaxis []int64, n int64) int64 {
	shape := tileSizeFromRowIdx(zTile, zNaxis, n)
	p := int64(1)
	for _, s := range shape {
		p *= s
	}
	return p
}

// TilePixel is one decoded, dequantized tile-compressed image sample.
type TilePixel struct {
	Kind PixelKind
	U8   byte
	I16  int16
	I32  int32
	F32  float32
}

// TileReader decodes the tile-compressed image stream of a BinTable row by
// row: for each row it follows the DATA_COMPRESSED array descriptor into
// the heap itself (heap-following is disabled on the underlying RowDecoder
// for this purpose), decompresses the tile into a scratch buffer, and
// yields its pixels one at a time, dequantizing/reversing dither for
// floating-point tiles per §4.7.
type TileReader struct {
	rows *RowDecoder
	tile *TileCompressed

	scratch []byte // sized for the largest possible tile

	rowIdx0    int64 // 0-based index of the tile currently loaded
	tilePixels int64
	cursor     int64 // index of the next pixel to emit within the current tile

	scale, zero      float32
	blankVal         float64
	hasBlank         bool
	ditherI1         int
}

// NewTileReader builds a TileReader over an HDU's BinTable data unit. rs
// must be positioned at the start of the data unit (HDU.DataReader()).
func NewTileReader(rs io.ReadSeeker, bt *BinTable) (*TileReader, error) {
	if bt.Tile == nil {
		return nil, wrapf(ErrUnsupported, "BinTable has no tile-compressed image descriptor")
	}
	sel := []int{bt.Tile.DataCompressedIdx}
	if bt.Tile.ZScaleIdx >= 0 {
		sel = append(sel, bt.Tile.ZScaleIdx)
	}
	if bt.Tile.ZZeroIdx >= 0 {
		sel = append(sel, bt.Tile.ZZeroIdx)
	}
	if bt.Tile.Blank.colIdx >= 0 {
		sel = append(sel, bt.Tile.Blank.colIdx)
	}

	rows := NewRowDecoder(rs, bt, sel, WithHeapFollow(false))

	maxElems := int64(1)
	for _, t := range bt.Tile.ZTile {
		maxElems *= t
	}
	width := bitpixWidth(bt.Tile.ZBitpix)
	if bt.Tile.ZBitpix < 0 {
		width = 4
	}

	return &TileReader{
		rows:    rows,
		tile:    bt.Tile,
		scratch: make([]byte, maxElems*int64(width)),
	}, nil
}

// Next decodes and returns the next pixel in row-major tile order across
// the whole image; io.EOF once every tile has been consumed.
func (tr *TileReader) Next() (TilePixel, error) {
	if tr.cursor >= tr.tilePixels {
		if err := tr.loadNextTile(); err != nil {
			return TilePixel{}, err
		}
	}
	p, err := tr.extract(tr.cursor)
	if err != nil {
		return TilePixel{}, err
	}
	tr.cursor++
	return p, nil
}

func (tr *TileReader) loadNextTile() error {
	row, err := tr.rows.NextRow()
	if err != nil {
		return err
	}
	// NextRow already incremented rowsEmitted past the row it just returned;
	// byteOffsetInMain-derived RowIndex is unreliable here since it reflects
	// wherever the last selected column landed, not the row boundary.
	rowIdx0 := tr.rows.RowsEmitted() - 1

	var descFV *FieldValue
	var scaleFV, zeroFV, blankFV *FieldValue
	for i := range row {
		switch row[i].ColIndex {
		case tr.tile.DataCompressedIdx:
			descFV = &row[i]
		case tr.tile.ZScaleIdx:
			scaleFV = &row[i]
		case tr.tile.ZZeroIdx:
			zeroFV = &row[i]
		case tr.tile.Blank.colIdx:
			blankFV = &row[i]
		}
	}
	if descFV == nil {
		return wrapf(ErrInvariant, "row is missing the compressed-data field")
	}

	tr.scale = 1
	tr.zero = 0
	if scaleFV != nil {
		tr.scale = scalarF32(*scaleFV)
	}
	if zeroFV != nil {
		tr.zero = scalarF32(*zeroFV)
	}

	tr.hasBlank = tr.tile.Blank.hasFixed
	tr.blankVal = tr.tile.Blank.fixed
	if blankFV != nil {
		tr.hasBlank = true
		tr.blankVal = float64(scalarF32(*blankFV))
	}

	numPixels := tileNumPixels(tr.tile.ZTile, tr.tile.ZNaxis, rowIdx0)

	if tr.tile.Quantiz != NoDither {
		i0 := (rowIdx0 + tr.tile.ZDither0) % nRandom
		tr.ditherI1 = int(ditherRand[i0] * 500.0)
	}

	heapR, err := tr.rows.JumpToHeapRaw(descFV.Desc.ByteOffset)
	if err != nil {
		return err
	}
	if err := tr.decompressTile(heapR, numPixels); err != nil {
		return err
	}
	if err := tr.rows.JumpBackFromHeap(); err != nil {
		return err
	}

	tr.rowIdx0 = rowIdx0
	tr.tilePixels = numPixels
	tr.cursor = 0
	return nil
}

func scalarF32(fv FieldValue) float32 {
	switch fv.Code {
	case 'E':
		return fv.F32
	case 'D':
		return float32(fv.F64)
	case 'I':
		return float32(fv.I16)
	case 'J':
		return float32(fv.I32)
	case 'K':
		return float32(fv.I64)
	default:
		return 0
	}
}

// decompressTile fills tr.scratch[:n*width] with the decoded tile samples.
func (tr *TileReader) decompressTile(r io.Reader, n int64) error {
	width := bitpixWidth(tr.tile.ZBitpix)
	if tr.tile.ZBitpix < 0 {
		width = 4
	}
	dst := tr.scratch[:n*int64(width)]

	switch tr.tile.CmpType {
	case ZCmpGzip1, ZCmpGzip2:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return wrapf(err, "opening tile gzip stream")
		}
		defer gz.Close()
		if _, err := io.ReadFull(gz, dst); err != nil {
			return wrapf(err, "reading tile gzip stream")
		}
		return nil
	case ZCmpRice:
		switch tr.tile.ZBitpix {
		case 8:
			dec := NewRICEDecoder[uint8](r, tr.tile.RiceBlockSize, int32(n))
			_, err := io.ReadFull(dec, dst)
			return wrapf(err, "reading RICE tile")
		case 16:
			dec := NewRICEDecoder[int16](r, tr.tile.RiceBlockSize, int32(n))
			_, err := io.ReadFull(dec, dst)
			return wrapf(err, "reading RICE tile")
		default: // 32 or -32 (quantized floats are stored as i32)
			dec := NewRICEDecoder[int32](r, tr.tile.RiceBlockSize, int32(n))
			_, err := io.ReadFull(dec, dst)
			return wrapf(err, "reading RICE tile")
		}
	default:
		return wrapf(ErrUnsupported, "tile compression type %v", tr.tile.CmpType)
	}
}

// extract decodes the element at position idx out of tr.scratch, applying
// dequantization for floating-point tiles.
func (tr *TileReader) extract(idx int64) (TilePixel, error) {
	switch tr.tile.ZBitpix {
	case 8:
		v := tr.extractWidth(idx, 1)
		return TilePixel{Kind: PixelU8, U8: byte(v)}, nil
	case 16:
		v := tr.extractWidth(idx, 2)
		return TilePixel{Kind: PixelI16, I16: int16(v)}, nil
	case 32:
		v := tr.extractWidth(idx, 4)
		return TilePixel{Kind: PixelI32, I32: int32(v)}, nil
	case -32:
		raw := int32(tr.extractWidth(idx, 4))
		return TilePixel{Kind: PixelF32, F32: tr.unquantize(raw)}, nil
	default:
		return TilePixel{}, wrapf(ErrUnsupported, "ZBITPIX=%d", tr.tile.ZBitpix)
	}
}

// extractWidth reads one element of byte width w at index idx out of
// tr.scratch, per the layout each compression scheme leaves it in: RICE
// packs tightly at stride w (little-endian, per decompressTile's per-width
// decoder selection); GZIP1 always strides 4 bytes per element, taking the
// trailing w bytes big-endian; GZIP2 stores the buffer as w contiguous
// byte planes (most-significant first) across the whole tile, CFITSIO's
// "byte shuffled" GZIP_2 layout.
func (tr *TileReader) extractWidth(idx int64, w int) uint32 {
	switch tr.tile.CmpType {
	case ZCmpRice:
		off := idx * int64(w)
		var v uint32
		for i := 0; i < w; i++ {
			v |= uint32(tr.scratch[off+int64(i)]) << uint(8*i)
		}
		return v
	case ZCmpGzip1:
		off := idx * 4
		var v uint32
		for i := 0; i < w; i++ {
			v = v<<8 | uint32(tr.scratch[off+int64(4-w+i)])
		}
		return v
	case ZCmpGzip2:
		var v uint32
		for i := 0; i < w; i++ {
			v = v<<8 | uint32(tr.scratch[int64(i)*tr.tilePixels+idx])
		}
		return v
	default:
		return 0
	}
}

// unquantize reverses the float-tile quantization of §4.7: NoDither is a
// plain affine rescale; SubtractiveDither1/2 additionally undo the
// subtractive-dither offset drawn from the shared random table, advancing
// the per-tile cursor one entry per pixel. SubtractiveDither2's -2147483647
// sentinel reproduces a zero pixel without consuming scale/zero, matching
// CFITSIO's reserved "zero" encoding.
func (tr *TileReader) unquantize(raw int32) float32 {
	if tr.hasBlank && float64(raw) == tr.blankVal {
		return nanF32()
	}

	switch tr.tile.Quantiz {
	case NoDither:
		return float32(raw)*tr.scale + tr.zero
	case SubtractiveDither1:
		ri := ditherRand[tr.ditherI1]
		tr.ditherI1 = (tr.ditherI1 + 1) % nRandom
		return (float32(raw)-ri+0.5)*tr.scale + tr.zero
	case SubtractiveDither2:
		if raw == -2147483647 {
			tr.ditherI1 = (tr.ditherI1 + 1) % nRandom
			return 0
		}
		ri := ditherRand[tr.ditherI1]
		tr.ditherI1 = (tr.ditherI1 + 1) % nRandom
		return (float32(raw)-ri+0.5)*tr.scale + tr.zero
	default:
		return float32(raw)*tr.scale + tr.zero
	}
}

func nanF32() float32 {
	var f float32
	return f / f // compiles to a quiet NaN without importing math for one constant
}

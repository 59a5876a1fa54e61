// Copyright 2015 The astrogo Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fitsrs

import (
	"fmt"
	"strings"
)

// XtensionKind is the closed variant set an HDU's data unit belongs to.
type XtensionKind int

const (
	XtensionImage XtensionKind = iota
	XtensionAsciiTable
	XtensionBinTable
)

func (k XtensionKind) String() string {
	switch k {
	case XtensionImage:
		return "IMAGE"
	case XtensionAsciiTable:
		return "TABLE"
	case XtensionBinTable:
		return "BINTABLE"
	default:
		return "UNKNOWN"
	}
}

func xtensionKindFromName(name string) (XtensionKind, error) {
	switch name {
	case "IMAGE", "IUEIMAGE":
		return XtensionImage, nil
	case "TABLE":
		return XtensionAsciiTable, nil
	case "BINTABLE":
		return XtensionBinTable, nil
	default:
		return 0, wrapf(ErrUnsupported, "unknown XTENSION %q", name)
	}
}

// Xtension is the common behavior of the three descriptor kinds: how many
// bytes their data unit occupies (before 2880-rounding).
type Xtension interface {
	Kind() XtensionKind
	DataUnitBytes() int64
}

// Image is the mandatory-keyword descriptor for a primary HDU or an IMAGE
// extension: BITPIX plus NAXIS axis lengths.
type Image struct {
	Bitpix int
	Axes   []int64 // NAXIS1..NAXISn, in that order
}

func (i *Image) Kind() XtensionKind { return XtensionImage }

func (i *Image) DataUnitBytes() int64 {
	n := int64(1)
	for _, a := range i.Axes {
		n *= a
	}
	return n * int64(bitpixWidth(i.Bitpix))
}

// NumPixels returns the product of the axis lengths.
func (i *Image) NumPixels() int64 {
	n := int64(1)
	for _, a := range i.Axes {
		n *= a
	}
	return n
}

func bitpixWidth(bitpix int) int {
	switch bitpix {
	case 8:
		return 1
	case 16:
		return 2
	case 32, -32:
		return 4
	case 64, -64:
		return 8
	default:
		return 0
	}
}

func validBitpix(b int) bool {
	switch b {
	case 8, 16, 32, 64, -32, -64:
		return true
	default:
		return false
	}
}

// parseImage validates the mandatory Image keyword sequence: BITPIX, NAXIS,
// then NAXIS1..NAXISn.
func parseImage(h *Header) (*Image, error) {
	bitpix, err := requireInt(h, "BITPIX")
	if err != nil {
		return nil, err
	}
	if !validBitpix(int(bitpix)) {
		return nil, wrapf(ErrValueOutOfRange, "BITPIX=%d not in {8,16,32,64,-32,-64}", bitpix)
	}
	naxis, err := requireInt(h, "NAXIS")
	if err != nil {
		return nil, err
	}
	if naxis < 0 {
		return nil, wrapf(ErrValueOutOfRange, "NAXIS=%d is negative", naxis)
	}
	axes := make([]int64, naxis)
	for i := int64(0); i < naxis; i++ {
		axes[i], err = requireInt(h, fmt.Sprintf("NAXIS%d", i+1))
		if err != nil {
			return nil, err
		}
	}
	return &Image{Bitpix: int(bitpix), Axes: axes}, nil
}

// AsciiTable is the mandatory-keyword descriptor for a TABLE extension. Only
// the layout (widths, column starts) is recognized; per-field parsing of
// printed numbers is a Non-goal.
type AsciiTable struct {
	Naxis1  int64 // bytes per row
	Naxis2  int64 // number of rows
	Tfields int64
	Tforms  []string
	Tbcols  []int64
}

func (t *AsciiTable) Kind() XtensionKind { return XtensionAsciiTable }

func (t *AsciiTable) DataUnitBytes() int64 { return t.Naxis1 * t.Naxis2 }

func parseAsciiTable(h *Header) (*AsciiTable, error) {
	if err := requireIntEquals(h, "BITPIX", 8); err != nil {
		return nil, err
	}
	if err := requireIntEquals(h, "NAXIS", 2); err != nil {
		return nil, err
	}
	naxis1, err := requireInt(h, "NAXIS1")
	if err != nil {
		return nil, err
	}
	naxis2, err := requireInt(h, "NAXIS2")
	if err != nil {
		return nil, err
	}
	if err := requireIntEquals(h, "PCOUNT", 0); err != nil {
		return nil, err
	}
	if err := requireIntEquals(h, "GCOUNT", 1); err != nil {
		return nil, err
	}
	tfields, err := requireInt(h, "TFIELDS")
	if err != nil {
		return nil, err
	}
	tforms := make([]string, tfields)
	tbcols := make([]int64, tfields)
	for i := int64(0); i < tfields; i++ {
		tforms[i], err = requireString(h, fmt.Sprintf("TFORM%d", i+1))
		if err != nil {
			return nil, err
		}
		tbcols[i], err = requireInt(h, fmt.Sprintf("TBCOL%d", i+1))
		if err != nil {
			return nil, err
		}
	}
	return &AsciiTable{Naxis1: naxis1, Naxis2: naxis2, Tfields: tfields, Tforms: tforms, Tbcols: tbcols}, nil
}

// ColumnWidths exposes the per-column printed width that the ASCII table
// layout already computes while recognizing TFORM, without performing the
// per-field numeric parse the Non-goal excludes.
func (t *AsciiTable) ColumnWidths() []int {
	widths := make([]int, len(t.Tforms))
	for i, f := range t.Tforms {
		if len(f) < 2 {
			continue
		}
		w := 0
		for _, c := range f[1:] {
			if c == '.' {
				break
			}
			if c < '0' || c > '9' {
				break
			}
			w = w*10 + int(c-'0')
		}
		widths[i] = w
	}
	return widths
}

// BinTable is the mandatory-keyword descriptor for a BINTABLE extension,
// plus optional tile-compressed-image metadata (populated when ZIMAGE=T and
// a compressed-data column is present).
type BinTable struct {
	Naxis1  int64 // bytes per row
	Naxis2  int64 // number of rows
	Pcount  int64 // heap size in bytes
	Gcount  int64
	Tfields int64
	Columns []TForm
	THeap   int64 // byte offset of the heap from start of data unit

	Tile *TileCompressed // nil unless ZIMAGE=T and a compressed-data column exists
}

func (t *BinTable) Kind() XtensionKind { return XtensionBinTable }

// DataUnitBytes spans the main table AND the heap (PCOUNT bytes starting at
// THEAP): the heap is part of the data unit, not a separate region, so a
// cursor bounded by this size is seekable all the way to the last heap byte.
func (t *BinTable) DataUnitBytes() int64 { return t.Naxis1*t.Naxis2 + t.Pcount }

// TForm is one parsed binary-table column format: {repeat_count, type_code,
// width_per_element}, per spec's Binary-table column data model.
type TForm struct {
	Name        string // TTYPEn, or "" if absent
	Repeat      int64
	Code        byte // one of L,X,B,I,J,K,A,E,D,C,M,P,Q
	ElementSize int  // bytes per element (1 for X is a rounding of bits to bytes)

	// ArrayElemCode is the format letter of the heap array's elements for a
	// P/Q column, e.g. the 'J' in "1PJ(100)". Zero for non-array columns.
	ArrayElemCode byte
}

// NumBytesField returns the number of bytes this field occupies in the main
// table row.
func (f TForm) NumBytesField() int64 {
	if f.Code == 'X' {
		return (f.Repeat + 7) / 8
	}
	return f.Repeat * int64(f.ElementSize)
}

// IsArrayDescriptor reports whether this column is a P or Q heap pointer.
func (f TForm) IsArrayDescriptor() bool {
	return f.Code == 'P' || f.Code == 'Q'
}

func elementSizeForCode(code byte) (int, error) {
	switch code {
	case 'L', 'B', 'A':
		return 1, nil
	case 'X':
		return 1, nil // bit-packed; NumBytesField handles the rounding
	case 'I':
		return 2, nil
	case 'J', 'E':
		return 4, nil
	case 'K', 'D', 'C', 'P':
		return 8, nil
	case 'M', 'Q':
		return 16, nil
	default:
		return 0, wrapf(ErrUnsupported, "unknown TFORM type code %q", string(code))
	}
}

// parseTForm parses a TFORMn value, e.g. "1J", "16A", "1PE(100)". For a P/Q
// array descriptor, elemCode is the format letter of the heap elements (the
// 'E' in "1PE(100)"); it is zero for every other code.
func parseTForm(s string) (repeat int64, code byte, elemCode byte, err error) {
	i := 0
	n := len(s)
	if n == 0 {
		return 0, 0, 0, wrapf(ErrMalformedCard, "empty TFORM")
	}
	start := i
	for i < n && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == start {
		repeat = 1
	} else {
		for _, c := range s[start:i] {
			repeat = repeat*10 + int64(c-'0')
		}
	}
	if i >= n {
		return 0, 0, 0, wrapf(ErrMalformedCard, "TFORM %q missing type code", s)
	}
	code = s[i]
	i++
	if code == 'P' || code == 'Q' {
		if i >= n {
			return 0, 0, 0, wrapf(ErrMalformedCard, "TFORM %q missing array element code", s)
		}
		elemCode = s[i]
	}
	return repeat, code, elemCode, nil
}

func parseBinTable(h *Header) (*BinTable, error) {
	if err := requireIntEquals(h, "BITPIX", 8); err != nil {
		return nil, err
	}
	if err := requireIntEquals(h, "NAXIS", 2); err != nil {
		return nil, err
	}
	naxis1, err := requireInt(h, "NAXIS1")
	if err != nil {
		return nil, err
	}
	naxis2, err := requireInt(h, "NAXIS2")
	if err != nil {
		return nil, err
	}
	if err := requireIntEquals(h, "GCOUNT", 1); err != nil {
		return nil, err
	}
	pcount, err := requireInt(h, "PCOUNT")
	if err != nil {
		return nil, err
	}
	if pcount < 0 {
		return nil, wrapf(ErrValueOutOfRange, "PCOUNT=%d is negative", pcount)
	}
	tfields, err := requireInt(h, "TFIELDS")
	if err != nil {
		return nil, err
	}

	cols := make([]TForm, tfields)
	var rowBytes int64
	for i := int64(0); i < tfields; i++ {
		formStr, err := requireString(h, fmt.Sprintf("TFORM%d", i+1))
		if err != nil {
			return nil, err
		}
		repeat, code, elemCode, err := parseTForm(formStr)
		if err != nil {
			return nil, err
		}
		esize, err := elementSizeForCode(code)
		if err != nil {
			return nil, err
		}
		name := ""
		if c := h.Get(fmt.Sprintf("TTYPE%d", i+1)); c != nil && c.Value.Kind == ValueString {
			name = c.Value.Str
		}
		tf := TForm{Name: name, Repeat: repeat, Code: code, ElementSize: esize, ArrayElemCode: elemCode}
		cols[i] = tf
		rowBytes += tf.NumBytesField()
	}
	if rowBytes != naxis1 {
		return nil, wrapf(ErrInvariant, "TFORM widths sum to %d bytes, NAXIS1=%d", rowBytes, naxis1)
	}

	theap := naxis1 * naxis2
	if c := h.Get("THEAP"); c != nil && c.Value.Kind == ValueInteger {
		theap = c.Value.Int
	}
	if theap < naxis1*naxis2 {
		return nil, wrapf(ErrInvariant, "THEAP=%d is less than NAXIS1*NAXIS2=%d", theap, naxis1*naxis2)
	}

	bt := &BinTable{
		Naxis1: naxis1, Naxis2: naxis2, Pcount: pcount, Gcount: 1,
		Tfields: tfields, Columns: cols, THeap: theap,
	}

	if zimage := h.Get("ZIMAGE"); zimage != nil && zimage.Value.Kind == ValueLogical && zimage.Value.Bool {
		if hasDataCompressedColumn(cols) {
			tile, err := parseTileCompressed(h, bt)
			if err != nil {
				return nil, err
			}
			bt.Tile = tile
		}
	}

	return bt, nil
}

func hasDataCompressedColumn(cols []TForm) bool {
	for _, c := range cols {
		if c.Name == "DATA_COMPRESSED" || c.Name == "GZIP_COMPRESSED_DATA" {
			return true
		}
	}
	return false
}

// ColIndex returns the index of the column named n, or -1.
func (t *BinTable) ColIndex(n string) int {
	for i, c := range t.Columns {
		if c.Name == n {
			return i
		}
	}
	for i, c := range t.Columns {
		if strings.EqualFold(c.Name, n) {
			return i
		}
	}
	return -1
}

func requireInt(h *Header, name string) (int64, error) {
	c := h.Get(name)
	if c == nil {
		return 0, wrapf(ErrMandatoryMissing, "%s is absent", name)
	}
	switch c.Value.Kind {
	case ValueInteger:
		return c.Value.Int, nil
	case ValueFloat:
		return int64(c.Value.Flt), nil
	default:
		return 0, wrapf(ErrMandatoryMissing, "%s is not numeric", name)
	}
}

func requireIntEquals(h *Header, name string, want int64) error {
	v, err := requireInt(h, name)
	if err != nil {
		return err
	}
	if v != want {
		return wrapf(ErrMandatoryMissing, "%s=%d, expected %d", name, v, want)
	}
	return nil
}

func requireString(h *Header, name string) (string, error) {
	c := h.Get(name)
	if c == nil {
		return "", wrapf(ErrMandatoryMissing, "%s is absent", name)
	}
	if c.Value.Kind != ValueString {
		return "", wrapf(ErrMandatoryMissing, "%s is not a string", name)
	}
	return c.Value.Str, nil
}

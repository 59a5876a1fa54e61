package fitsrs

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func threeColumnBinTable() *BinTable {
	cols := []TForm{
		{Name: "INT32", Repeat: 1, Code: 'J', ElementSize: 4},
		{Name: "FLOATS", Repeat: 2, Code: 'E', ElementSize: 4},
		{Name: "LABEL", Repeat: 4, Code: 'A', ElementSize: 1},
	}
	return &BinTable{Naxis1: 16, Naxis2: 1, Pcount: 0, Gcount: 1, Tfields: 3, Columns: cols, THeap: 16}
}

func TestRowDecoderThreeColumnRow(t *testing.T) {
	row := []byte{
		0x00, 0x00, 0x00, 0x2A,
		0x40, 0x49, 0x0F, 0xDB,
		0x40, 0x2D, 0xF8, 0x54,
		0x48, 0x69, 0x21, 0x00,
	}
	bt := threeColumnBinTable()
	rs := bytes.NewReader(row)
	rd := NewRowDecoder(rs, bt, nil)

	require.False(t, rd.Done())
	r, err := rd.NextRow()
	require.NoError(t, err)
	require.Len(t, r, 3)

	require.EqualValues(t, 42, r[0].I32)
	require.Len(t, r[1].ArrayF32, 2)
	require.InDelta(t, 3.1415927, r[1].ArrayF32[0], 1e-6)
	require.InDelta(t, 2.7182817, r[1].ArrayF32[1], 1e-6)
	require.Equal(t, "Hi!\x00", r[2].Str)

	require.True(t, rd.Done())
	_, err = rd.NextRow()
	require.ErrorIs(t, err, io.EOF)
}

func TestRowDecoderTFieldsZero(t *testing.T) {
	bt := &BinTable{Naxis1: 0, Naxis2: 3, Pcount: 0, Gcount: 1, Tfields: 0, Columns: nil, THeap: 0}
	rs := bytes.NewReader(nil)
	rd := NewRowDecoder(rs, bt, nil)
	r, err := rd.NextRow()
	require.NoError(t, err)
	require.Len(t, r, 0)
}

func TestSelectColumnsByNameCaseInsensitive(t *testing.T) {
	bt := threeColumnBinTable()
	idx := SelectColumnsByName(bt, []string{"label", "floats", "nope"}, nil)
	require.Equal(t, []int{2, 1}, idx)
}

func TestRowDecoderArrayDescriptorHeapFollow(t *testing.T) {
	// main table: one row, one P column pointing at a 3-element J array in
	// the heap immediately following the main table.
	cols := []TForm{
		{Name: "DATA", Repeat: 1, Code: 'P', ElementSize: 8, ArrayElemCode: 'J'},
	}
	bt := &BinTable{Naxis1: 8, Naxis2: 1, Pcount: 12, Gcount: 1, Tfields: 1, Columns: cols, THeap: 8}

	var buf bytes.Buffer
	// descriptor: count=3, offset=0
	buf.Write([]byte{0, 0, 0, 3, 0, 0, 0, 0})
	// heap: three int32 values
	buf.Write([]byte{0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0, 3})

	rs := bytes.NewReader(buf.Bytes())
	rd := NewRowDecoder(rs, bt, nil)
	r, err := rd.NextRow()
	require.NoError(t, err)
	require.Equal(t, []int32{1, 2, 3}, r[0].ArrayI32)
}

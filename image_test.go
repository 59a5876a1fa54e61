package fitsrs

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestImageReaderBitpix8(t *testing.T) {
	img := &Image{Bitpix: 8, Axes: []int64{3}}
	ir, err := NewImageReader(bytes.NewReader([]byte{0x41, 0x42, 0x43}), img)
	require.NoError(t, err)
	require.Equal(t, PixelU8, ir.Kind)

	var got []byte
	for {
		p, err := ir.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, p.U8)
	}
	require.Equal(t, []byte{0x41, 0x42, 0x43}, got)
}

func TestImageReaderBitpix16SignedBigEndian(t *testing.T) {
	img := &Image{Bitpix: 16, Axes: []int64{2}}
	// -1 and 1000, big-endian two's complement
	raw := []byte{0xFF, 0xFF, 0x03, 0xE8}
	ir, err := NewImageReader(bytes.NewReader(raw), img)
	require.NoError(t, err)

	p1, err := ir.Next()
	require.NoError(t, err)
	require.EqualValues(t, -1, p1.I16)

	p2, err := ir.Next()
	require.NoError(t, err)
	require.EqualValues(t, 1000, p2.I16)

	_, err = ir.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestImageReaderBitpixMinus32Float(t *testing.T) {
	img := &Image{Bitpix: -32, Axes: []int64{1}}
	raw := []byte{0x40, 0x49, 0x0F, 0xDB} // 3.1415927f big-endian
	ir, err := NewImageReader(bytes.NewReader(raw), img)
	require.NoError(t, err)

	p, err := ir.Next()
	require.NoError(t, err)
	require.InDelta(t, 3.1415927, p.F32, 1e-6)
}

func TestImageReaderEarlyTermination(t *testing.T) {
	img := &Image{Bitpix: 32, Axes: []int64{4}} // expects 16 bytes, only 4 given
	ir, err := NewImageReader(bytes.NewReader([]byte{0, 0, 0, 1}), img)
	require.NoError(t, err)

	_, err = ir.Next()
	require.NoError(t, err)

	_, err = ir.Next()
	require.Error(t, err)
	require.ErrorIs(t, err, io.EOF)
}

func TestBorrowedU8(t *testing.T) {
	img := &Image{Bitpix: 8, Axes: []int64{3}}
	data := []byte{1, 2, 3, 0, 0}
	view, ok := BorrowedU8(img, data)
	require.True(t, ok)
	require.Equal(t, []byte{1, 2, 3}, view)
}

func TestBorrowedU8RejectsNonBitpix8(t *testing.T) {
	img := &Image{Bitpix: 16, Axes: []int64{3}}
	_, ok := BorrowedU8(img, []byte{1, 2, 3, 4, 5, 6})
	require.False(t, ok)
}

func TestBorrowedU8RejectsShortData(t *testing.T) {
	img := &Image{Bitpix: 8, Axes: []int64{10}}
	_, ok := BorrowedU8(img, []byte{1, 2, 3})
	require.False(t, ok)
}

func TestImageDataUnitBytesAndNumPixels(t *testing.T) {
	img := &Image{Bitpix: 32, Axes: []int64{10, 5}}
	require.EqualValues(t, 50, img.NumPixels())
	require.EqualValues(t, 200, img.DataUnitBytes())
}

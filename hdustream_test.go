package fitsrs

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildPrimaryImageFITS assembles a one-HDU FITS stream: a header (SIMPLE,
// BITPIX, NAXIS, NAXIS1, END, space-padded to 2880) followed by data padded
// to the next 2880-byte boundary.
func buildPrimaryImageFITS(data []byte) []byte {
	raw := buildHeaderBytes(
		"SIMPLE  =                    T",
		"BITPIX  =                    8",
		"NAXIS   =                    1",
		"NAXIS1  =                    3",
		"END",
	)
	for int64(len(raw))%2880 != 0 {
		raw = append(raw, ' ')
	}
	raw = append(raw, data...)
	for int64(len(raw))%2880 != 0 {
		raw = append(raw, 0)
	}
	return raw
}

func TestStreamSyntheticPrimaryScenario(t *testing.T) {
	raw := buildPrimaryImageFITS([]byte{0x41, 0x42, 0x43})
	require.EqualValues(t, 5760, len(raw))

	rs := bytes.NewReader(raw)
	stream := NewStream(rs)

	hdu, err := stream.Next()
	require.NoError(t, err)
	require.Equal(t, 0, hdu.Index)
	require.Equal(t, XtensionImage, hdu.XType)
	require.NotNil(t, hdu.Image())
	require.EqualValues(t, 3, hdu.DataSize)

	ir, err := NewImageReader(hdu.DataReader(), hdu.Image())
	require.NoError(t, err)

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
	require.NoError(t, hdu.Close())

	_, err = stream.Next()
	require.ErrorIs(t, err, io.EOF)

	pos, err := rs.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	require.EqualValues(t, 5760, pos)
}

func TestStreamDataUnitExactMultipleOf2880NoExtraPadding(t *testing.T) {
	data := bytes.Repeat([]byte{0xAA}, 2880)
	raw := buildHeaderBytes(
		"SIMPLE  =                    T",
		"BITPIX  =                    8",
		"NAXIS   =                    1",
		"NAXIS1  =                 2880",
		"END",
	)
	for int64(len(raw))%2880 != 0 {
		raw = append(raw, ' ')
	}
	headerLen := int64(len(raw))
	raw = append(raw, data...)

	rs := bytes.NewReader(raw)
	stream := NewStream(rs)
	hdu, err := stream.Next()
	require.NoError(t, err)
	require.EqualValues(t, 2880, hdu.DataSize)
	require.NoError(t, hdu.Close())

	pos, err := rs.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	require.Equal(t, headerLen+2880, pos)
}

func TestStreamTruncatedTrailingBlockIsNotAnError(t *testing.T) {
	raw := buildPrimaryImageFITS([]byte{0x41, 0x42, 0x43})
	// Drop the zero-padding after the data, leaving only the real bytes.
	raw = raw[:2880+3]

	rs := bytes.NewReader(raw)
	stream := NewStream(rs)
	hdu, err := stream.Next()
	require.NoError(t, err)

	ir, err := NewImageReader(hdu.DataReader(), hdu.Image())
	require.NoError(t, err)
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

func TestStreamMissingSimpleIsMandatoryMissing(t *testing.T) {
	raw := buildHeaderBytes(
		"BITPIX  =                    8",
		"NAXIS   =                    0",
		"END",
	)
	rs := bytes.NewReader(raw)
	stream := NewStream(rs)
	_, err := stream.Next()
	require.Error(t, err)
	require.ErrorIs(t, err, ErrMandatoryMissing)

	_, err = stream.Next()
	require.ErrorIs(t, err, io.EOF)
}

package fitsrs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func toCardBytes(s string) [cardLen]byte {
	var b [cardLen]byte
	for i := range b {
		b[i] = ' '
	}
	copy(b[:], s)
	return b
}

func TestCardRoundTrip(t *testing.T) {
	cases := []Card{
		{Kind: CardValue, Name: "BITPIX", Value: Value{Kind: ValueInteger, Int: -32}, Comment: "array data type"},
		{Kind: CardValue, Name: "EXPTIME", Value: Value{Kind: ValueFloat, Flt: 12.5}, Comment: "seconds"},
		{Kind: CardValue, Name: "SIMPLE", Value: Value{Kind: ValueLogical, Bool: true}, Comment: "conforms"},
		{Kind: CardValue, Name: "OBJECT", Value: Value{Kind: ValueString, Str: "M31"}, Comment: "target"},
	}
	for _, want := range cases {
		line := formatCard(want)
		got, err := ParseCard(line)
		require.NoError(t, err)
		require.Equal(t, want.Name, got.Name)
		require.Equal(t, want.Value, got.Value)
		require.Equal(t, want.Comment, got.Comment)
	}
}

func TestParseCardBoundary(t *testing.T) {
	// a value exactly filling byte 79 must still parse.
	line := "KEY1    = 'abcdefghijklmnopqrstuvwxyzabcdefghijklmnopqrstuvwxyzabcdefghijklmnop'"
	require.Len(t, line, cardLen)
	c, err := ParseCard(toCardBytes(line))
	require.NoError(t, err)
	require.Equal(t, CardValue, c.Kind)
	require.Equal(t, ValueString, c.Value.Kind)
}

func TestParseCardHierarch(t *testing.T) {
	line := "HIERARCH ESO TEL FOCU SCALE = 1.489 / (deg/m)"
	c, err := ParseCard(toCardBytes(line))
	require.NoError(t, err)
	require.Equal(t, CardHierarch, c.Kind)
	require.Equal(t, "ESO.TEL.FOCU.SCALE", c.Name)
	require.Equal(t, ValueFloat, c.Value.Kind)
	require.InDelta(t, 1.489, c.Value.Flt, 1e-9)
	require.Contains(t, c.Comment, "(deg/m)")
}

func TestParseCardHierarchMissingEquals(t *testing.T) {
	line := "HIERARCH ESO TEL FOCU SCALE 1.489"
	_, err := ParseCard(toCardBytes(line))
	require.Error(t, err)
	require.ErrorIs(t, err, ErrMalformedCard)
}

func TestParseCardComplexUnsupported(t *testing.T) {
	line := "CVAL    = (1.0, 2.0)"
	_, err := ParseCard(toCardBytes(line))
	require.Error(t, err)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestParseCardEndAndSpace(t *testing.T) {
	end, err := ParseCard(toCardBytes("END"))
	require.NoError(t, err)
	require.Equal(t, CardEnd, end.Kind)

	sp, err := ParseCard(toCardBytes(""))
	require.NoError(t, err)
	require.Equal(t, CardSpace, sp.Kind)
}

func TestParseCardStringEscapeAndBlank(t *testing.T) {
	c, err := ParseCard(toCardBytes("KEY1    = 'it''s'"))
	require.NoError(t, err)
	require.Equal(t, "it's", c.Value.Str)

	c2, err := ParseCard(toCardBytes("KEY1    = ''"))
	require.NoError(t, err)
	require.Equal(t, "", c2.Value.Str)

	c3, err := ParseCard(toCardBytes("KEY1    = '   '"))
	require.NoError(t, err)
	require.Equal(t, " ", c3.Value.Str)
}

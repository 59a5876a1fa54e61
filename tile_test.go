package fitsrs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// groundTruthTileShapes is the 36-entry table for zTile=[300,200,150] over
// zNaxis=[1000,500,350]: 4x3x3 tiles, axis 0 varying fastest, with the last
// tile along each axis clipped to what remains of the image.
var groundTruthTileShapes = [][]int64{
	{300, 200, 150}, {300, 200, 150}, {300, 200, 150}, {100, 200, 150},
	{300, 200, 150}, {300, 200, 150}, {300, 200, 150}, {100, 200, 150},
	{300, 100, 150}, {300, 100, 150}, {300, 100, 150}, {100, 100, 150},
	{300, 200, 150}, {300, 200, 150}, {300, 200, 150}, {100, 200, 150},
	{300, 200, 150}, {300, 200, 150}, {300, 200, 150}, {100, 200, 150},
	{300, 100, 150}, {300, 100, 150}, {300, 100, 150}, {100, 100, 150},
	{300, 200, 50}, {300, 200, 50}, {300, 200, 50}, {100, 200, 50},
	{300, 200, 50}, {300, 200, 50}, {300, 200, 50}, {100, 200, 50},
	{300, 100, 50}, {300, 100, 50}, {300, 100, 50}, {100, 100, 50},
}

func TestTileSizeFromRowIdxGroundTruth(t *testing.T) {
	zTile := []int64{300, 200, 150}
	zNaxis := []int64{1000, 500, 350}
	for i, want := range groundTruthTileShapes {
		got := tileSizeFromRowIdx(zTile, zNaxis, int64(i))
		require.Equalf(t, want, got, "tile %d", i)
	}
}

func TestNumTilesMatchesGrid(t *testing.T) {
	tc := &TileCompressed{
		ZNaxis: []int64{1000, 500, 350},
		ZTile:  []int64{300, 200, 150},
	}
	require.EqualValues(t, 36, tc.NumTiles())
}

func TestTileSizeProductInvariant(t *testing.T) {
	zTile := []int64{300, 200, 150}
	zNaxis := []int64{1000, 500, 350}
	tc := &TileCompressed{ZNaxis: zNaxis, ZTile: zTile}

	var sum int64
	for i := int64(0); i < tc.NumTiles(); i++ {
		sum += tileNumPixels(zTile, zNaxis, i)
	}

	want := int64(1)
	for _, n := range zNaxis {
		want *= n
	}
	require.Equal(t, want, sum)
}

func TestUnquantizeNoDither(t *testing.T) {
	tr := &TileReader{tile: &TileCompressed{Quantiz: NoDither}}
	tr.scale = 0.5
	tr.zero = 2
	got := tr.unquantize(10)
	require.InDelta(t, float32(7), got, 1e-6)
}

// TestUnquantizeSubtractiveDither1 exercises the end-to-end dequantization
// formula: SUBTRACTIVE_DITHER_1, ZDITHER0=1, ZSCALE=0.01, ZZERO=10, decoded
// integer v=500 at the first tile of the image. i0 is seeded from the
// dither table at (tile_row_idx + ZDITHER0) mod 10000, then i1 advances by
// one entry per unquantized pixel.
func TestUnquantizeSubtractiveDither1(t *testing.T) {
	tr := &TileReader{tile: &TileCompressed{Quantiz: SubtractiveDither1, ZDither0: 1}}
	tr.scale = 0.01
	tr.zero = 10

	rowIdx0 := int64(0)
	i0 := int((rowIdx0 + tr.tile.ZDither0) % nRandom)
	tr.ditherI1 = int(ditherRand[i0] * 500.0)
	require.Equal(t, 65, tr.ditherI1)

	got := tr.unquantize(500)
	require.InDelta(t, float32(15.00006), got, 1e-4)
	require.Equal(t, 66, tr.ditherI1)
}

func TestUnquantizeBlankSentinel(t *testing.T) {
	tr := &TileReader{tile: &TileCompressed{Quantiz: NoDither}}
	tr.hasBlank = true
	tr.blankVal = -999
	got := tr.unquantize(-999)
	require.True(t, got != got, "expected NaN for blank sentinel")
}

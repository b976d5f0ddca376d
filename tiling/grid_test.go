package tiling

import (
	"testing"

	"github.com/go-spatial/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZOrder(t *testing.T) {
	tests := []struct {
		col, row int
		want     uint64
	}{
		{0, 0, 0},
		{1, 0, 1},
		{0, 1, 2},
		{1, 1, 3},
		{2, 0, 4},
		{3, 3, 15},
		{0, 4, 32},
	}
	for i, tt := range tests {
		assert.Equal(t, tt.want, zOrder(tt.col, tt.row), "%d: %v,%v", i, tt.col, tt.row)
	}
	assert.Panics(t, func() { zOrder(-1, 0) })
}

func TestGridTiles(t *testing.T) {
	g := Grid{Extent: geom.Extent{0, 0, 10, 4}, Rows: 2, Cols: 2}
	assert.Equal(t, []Tile{
		{Row: 0, Col: 0, Extent: geom.Extent{0, 0, 5, 2}},
		{Row: 0, Col: 1, Extent: geom.Extent{5, 0, 10, 2}},
		{Row: 1, Col: 0, Extent: geom.Extent{0, 2, 5, 4}},
		{Row: 1, Col: 1, Extent: geom.Extent{5, 2, 10, 4}},
	}, g.Tiles())
}

func TestGridTilesCoverExtent(t *testing.T) {
	extent := geom.Extent{0.1, -3.3, 7.7, 9.9}
	g := Grid{Extent: extent, Rows: 7, Cols: 3}
	tiles := g.Tiles()
	require.Len(t, tiles, 21)

	area := 0.0
	seen := make(map[[2]int]bool)
	for _, tile := range tiles {
		area += (tile.Extent[2] - tile.Extent[0]) * (tile.Extent[3] - tile.Extent[1])
		seen[[2]int{tile.Row, tile.Col}] = true
		if tile.Row == g.Rows-1 {
			assert.Equal(t, extent[3], tile.Extent[3])
		}
		if tile.Col == g.Cols-1 {
			assert.Equal(t, extent[2], tile.Extent[2])
		}
	}
	assert.Len(t, seen, 21)
	assert.InDelta(t, (extent[2]-extent[0])*(extent[3]-extent[1]), area, 1e-9)
}

func TestGridTilesZOrdered(t *testing.T) {
	tiles := Grid{Extent: geom.Extent{0, 0, 4, 4}, Rows: 4, Cols: 4}.Tiles()
	var cells [][2]int
	for _, tile := range tiles[:8] {
		cells = append(cells, [2]int{tile.Col, tile.Row})
	}
	assert.Equal(t, [][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}, {2, 0}, {3, 0}, {2, 1}, {3, 1}}, cells)
}

func TestGridWithoutCells(t *testing.T) {
	assert.Empty(t, Grid{Extent: geom.Extent{0, 0, 1, 1}, Rows: 0, Cols: 3}.Tiles())
}

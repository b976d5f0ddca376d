// Package tiling partitions a layer extent into a grid of tiles and evaluates
// the tiles concurrently.
package tiling

import (
	"cmp"
	"slices"

	"github.com/go-spatial/geom"
)

// Tile is one cell of a Grid.
type Tile struct {
	Row, Col int
	Extent   geom.Extent
}

// Grid divides Extent into Rows x Cols equal cells.
type Grid struct {
	Extent     geom.Extent
	Rows, Cols int
}

// Tiles returns all cells in Z-order. The last row and column end exactly on
// the maximum of the extent.
func (g Grid) Tiles() []Tile {
	if g.Rows < 1 || g.Cols < 1 {
		return nil
	}
	width := (g.Extent[2] - g.Extent[0]) / float64(g.Cols)
	height := (g.Extent[3] - g.Extent[1]) / float64(g.Rows)

	tiles := make([]Tile, 0, g.Rows*g.Cols)
	for row := 0; row < g.Rows; row++ {
		minY := g.Extent[1] + float64(row)*height
		maxY := g.Extent[1] + float64(row+1)*height
		if row == g.Rows-1 {
			maxY = g.Extent[3]
		}
		for col := 0; col < g.Cols; col++ {
			minX := g.Extent[0] + float64(col)*width
			maxX := g.Extent[0] + float64(col+1)*width
			if col == g.Cols-1 {
				maxX = g.Extent[2]
			}
			tiles = append(tiles, Tile{Row: row, Col: col, Extent: geom.Extent{minX, minY, maxX, maxY}})
		}
	}
	slices.SortFunc(tiles, func(a, b Tile) int {
		return cmp.Compare(zOrder(a.Col, a.Row), zOrder(b.Col, b.Row))
	})
	return tiles
}

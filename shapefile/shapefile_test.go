package shapefile

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/go-spatial/geom"
	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdok/selfoverlap/geometry"
	"github.com/pdok/selfoverlap/geomhelp"
	"github.com/pdok/selfoverlap/layer"
)

// clockwise ring of a rectangle, closed
func shell(minX, minY, maxX, maxY float64) []shp.Point {
	return []shp.Point{{X: minX, Y: minY}, {X: minX, Y: maxY}, {X: maxX, Y: maxY}, {X: maxX, Y: minY}, {X: minX, Y: minY}}
}

// counter-clockwise ring of a rectangle, closed
func hole(minX, minY, maxX, maxY float64) []shp.Point {
	return []shp.Point{{X: minX, Y: minY}, {X: maxX, Y: minY}, {X: maxX, Y: maxY}, {X: minX, Y: maxY}, {X: minX, Y: minY}}
}

func writeShapefile(t *testing.T, name string, records ...[][]shp.Point) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name+".shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	w.SetFields([]shp.Field{shp.NumberField("ID", 10)})
	for i, rings := range records {
		polygon := shp.Polygon(*shp.NewPolyLine(rings))
		n := w.Write(&polygon)
		require.NoError(t, w.WriteAttribute(int(n), 0, i))
	}
	w.Close()
	return path
}

func readAll(t *testing.T, l layer.Layer) []layer.Feature {
	t.Helper()
	var features []layer.Feature
	for {
		f, err := l.NextFeature()
		if errors.Is(err, io.EOF) {
			return features
		}
		require.NoError(t, err)
		features = append(features, f)
	}
}

func TestOpenLayer(t *testing.T) {
	path := writeShapefile(t, "habitats",
		[][]shp.Point{shell(0, 0, 4, 4), hole(1, 1, 2, 2)},
		[][]shp.Point{shell(10, 10, 11, 11), shell(20, 10, 21, 11)},
		[][]shp.Point{shell(3, 3, 5, 5)},
	)
	source := Source{Path: path}
	assert.Equal(t, "habitats", source.LayerName())

	l, err := source.OpenLayer(context.Background(), "habitats", nil)
	require.NoError(t, err)
	defer l.Close()

	count, err := l.FeatureCount()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	ext, err := l.Extent()
	require.NoError(t, err)
	assert.Equal(t, geom.Extent{0, 0, 21, 11}, ext)
	assert.Equal(t, geometry.KindMultiPolygon, l.GeometryKind())

	features := readAll(t, l)
	require.Len(t, features, 3)

	assert.Equal(t, int64(0), features[0].ID())
	polygon, ok := features[0].Geometry().(geom.Polygon)
	require.True(t, ok, "%T", features[0].Geometry())
	require.Len(t, polygon, 2, "shell with one hole")
	assert.InDelta(t, 16.0, geomhelp.Shoelace(polygon[0]), 1e-9)
	assert.InDelta(t, 1.0, geomhelp.Shoelace(polygon[1]), 1e-9)

	multi, ok := features[1].Geometry().(geom.MultiPolygon)
	require.True(t, ok, "%T", features[1].Geometry())
	assert.Len(t, multi, 2)

	assert.Equal(t, int64(2), features[2].ID())
}

func TestOpenLayerFilter(t *testing.T) {
	path := writeShapefile(t, "habitats",
		[][]shp.Point{shell(0, 0, 1, 1)},
		[][]shp.Point{shell(5, 5, 6, 6)},
		[][]shp.Point{shell(1, 1, 2, 2)},
	)
	l, err := Source{Path: path}.OpenLayer(context.Background(), "", &geom.Extent{1, 1, 3, 3})
	require.NoError(t, err)
	defer l.Close()

	var ids []int64
	for _, f := range readAll(t, l) {
		ids = append(ids, f.ID())
	}
	assert.Equal(t, []int64{0, 2}, ids)
}

func TestOpenLayerErrors(t *testing.T) {
	path := writeShapefile(t, "habitats", [][]shp.Point{shell(0, 0, 1, 1)})
	_, err := Source{Path: path}.OpenLayer(context.Background(), "roads", nil)
	assert.ErrorIs(t, err, layer.ErrLayerNotFound)

	_, err = Source{Path: filepath.Join(t.TempDir(), "missing.shp")}.OpenLayer(context.Background(), "", nil)
	assert.Error(t, err)
}

func TestAssemble(t *testing.T) {
	square := func(minX, minY, maxX, maxY float64, clockwise bool) [][2]float64 {
		ring := [][2]float64{{minX, minY}, {minX, maxY}, {maxX, maxY}, {maxX, minY}, {minX, minY}}
		if !clockwise {
			ring = [][2]float64{{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY}}
		}
		return ring
	}

	tests := []struct {
		name  string
		rings [][][2]float64
		want  []int // rings per polygon
	}{
		{name: "single shell", rings: [][][2]float64{square(0, 0, 1, 1, true)}, want: []int{1}},
		{name: "holes in second shell", rings: [][][2]float64{
			square(0, 0, 1, 1, true),
			square(10, 0, 20, 10, true),
			square(11, 1, 12, 2, false),
			square(13, 1, 14, 2, false),
		}, want: []int{1, 3}},
		{name: "orphan hole", rings: [][][2]float64{
			square(0, 0, 1, 1, true),
			square(5, 5, 6, 6, false),
		}, want: []int{1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			polygons := assemble(tt.rings)
			var got []int
			for _, p := range polygons {
				got = append(got, len(p))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

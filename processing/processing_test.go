package processing

import (
	"context"
	"errors"
	"testing"

	"github.com/go-spatial/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdok/selfoverlap/config"
	"github.com/pdok/selfoverlap/geometry"
	"github.com/pdok/selfoverlap/layer"
	"github.com/pdok/selfoverlap/overlap"
)

func rect(minX, minY, maxX, maxY float64) geom.Polygon {
	return geom.Polygon{{{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}}}
}

func chain() []layer.MemoryFeature {
	return []layer.MemoryFeature{
		{FID: 1, Geom: rect(0, 0, 10, 10)},
		{FID: 2, Geom: rect(9, 0, 19, 5)},
		{FID: 3, Geom: rect(18, 2, 28, 5)},
		{FID: 4, Geom: rect(28, 2, 30, 5)}, // touches 3
		{FID: 5, Geom: rect(29.5, 4.5, 40, 10)},
	}
}

func TestDetect(t *testing.T) {
	source := layer.NewMemory()
	source.AddLayer("habitats", geometry.KindMultiPolygon, chain())

	want := []overlap.PairOverlap{{A: 1, B: 2, Area: 5}, {A: 2, B: 3, Area: 3}}

	single := config.Default()
	got, err := Detect(context.Background(), source, "habitats", single)
	require.NoError(t, err)
	assert.Equal(t, want, got.Sorted())

	tiled := config.Default()
	tiled.TileActivationFeatureCount = 2
	tiled.TileGridRows, tiled.TileGridCols = 3, 4
	tiled.MaxConcurrentTiles = 2
	got, err = Detect(context.Background(), source, "habitats", tiled)
	require.NoError(t, err)
	sorted := got.Sorted()
	require.Len(t, sorted, len(want))
	for i := range want {
		assert.Equal(t, want[i].A, sorted[i].A)
		assert.Equal(t, want[i].B, sorted[i].B)
		assert.InDelta(t, want[i].Area, sorted[i].Area, 1e-9)
	}
}

func TestDetectThreshold(t *testing.T) {
	source := layer.NewMemory()
	source.AddLayer("habitats", geometry.KindPolygon, chain())
	cfg := config.Default()
	cfg.AreaThreshold = 0
	got, err := Detect(context.Background(), source, "habitats", cfg)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.InDelta(t, 0.25, got[overlap.PairKey{A: 4, B: 5}], 1e-9)
}

func TestDetectUnknownKindIsAccepted(t *testing.T) {
	source := layer.NewMemory()
	source.AddLayer("mixed", geometry.KindUnknown, append(chain(), layer.MemoryFeature{FID: 9, Geom: geom.Point{1, 1}}))
	got, err := Detect(context.Background(), source, "mixed", config.Default())
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestDetectCollectionLayerIsAccepted(t *testing.T) {
	source := layer.NewMemory()
	source.AddLayer("collection", geometry.KindCollection, append(chain(), layer.MemoryFeature{FID: 9, Geom: geom.LineString{{0, 0}, {1, 1}}}))
	got, err := Detect(context.Background(), source, "collection", config.Default())
	require.NoError(t, err)
	assert.Equal(t, []overlap.PairOverlap{{A: 1, B: 2, Area: 5}, {A: 2, B: 3, Area: 3}}, got.Sorted())
}

func TestDetectPreconditions(t *testing.T) {
	source := layer.NewMemory()
	source.AddLayer("roads", geometry.KindLineString, []layer.MemoryFeature{{FID: 1, Geom: geom.LineString{{0, 0}, {1, 1}}}})

	_, err := Detect(context.Background(), source, "roads", config.Default())
	assert.ErrorIs(t, err, ErrUnsupportedLayerType)

	_, err = Detect(context.Background(), source, "rivers", config.Default())
	assert.ErrorIs(t, err, layer.ErrLayerNotFound)

	cfg := config.Default()
	cfg.MaxVertices = 2
	_, err = Detect(context.Background(), source, "roads", cfg)
	assert.ErrorContains(t, err, "invalid config")
}

func TestDetectCancelled(t *testing.T) {
	source := layer.NewMemory()
	source.AddLayer("habitats", geometry.KindPolygon, chain())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got, err := Detect(ctx, source, "habitats", config.Default())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, got)
}

var errClose = errors.New("close failed")

type closeFailingSource struct {
	layer.Source
}

func (s closeFailingSource) OpenLayer(ctx context.Context, name string, filter *geom.Extent) (layer.Layer, error) {
	l, err := s.Source.OpenLayer(ctx, name, filter)
	if err != nil {
		return nil, err
	}
	return closeFailingLayer{Layer: l}, nil
}

type closeFailingLayer struct {
	layer.Layer
}

func (l closeFailingLayer) Close() error {
	_ = l.Layer.Close()
	return errClose
}

func TestDetectReportsCloseFailure(t *testing.T) {
	memory := layer.NewMemory()
	memory.AddLayer("habitats", geometry.KindPolygon, chain())
	memory.AddLayer("roads", geometry.KindLineString, []layer.MemoryFeature{{FID: 1, Geom: geom.LineString{{0, 0}, {1, 1}}}})
	source := closeFailingSource{Source: memory}

	single := config.Default()
	got, err := Detect(context.Background(), source, "habitats", single)
	assert.ErrorIs(t, err, errClose)
	assert.Nil(t, got)

	tiled := config.Default()
	tiled.TileActivationFeatureCount = 2
	tiled.TileGridRows, tiled.TileGridCols = 2, 2
	got, err = Detect(context.Background(), source, "habitats", tiled)
	assert.ErrorIs(t, err, errClose)
	assert.Nil(t, got)

	_, err = Detect(context.Background(), source, "roads", single)
	assert.ErrorIs(t, err, ErrUnsupportedLayerType)
	assert.ErrorIs(t, err, errClose)
}

package layer

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/go-spatial/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdok/selfoverlap/geometry"
)

func square(x, y, size float64) geom.Polygon {
	return geom.Polygon{{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}}}
}

func readAll(t *testing.T, l Layer) []int64 {
	t.Helper()
	var ids []int64
	for {
		f, err := l.NextFeature()
		if errors.Is(err, io.EOF) {
			return ids
		}
		require.NoError(t, err)
		ids = append(ids, f.ID())
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	m.AddLayer("parcels", geometry.KindPolygon, []MemoryFeature{
		{FID: 1, Geom: square(0, 0, 1)},
		{FID: 2, Geom: square(5, 5, 1)},
		{FID: 3, Geom: nil},
		{FID: 4, Geom: square(-2, 3, 1)},
	})

	l, err := m.OpenLayer(context.Background(), "parcels", nil)
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, []int64{1, 2, 3, 4}, readAll(t, l))
	count, err := l.FeatureCount()
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	ext, err := l.Extent()
	require.NoError(t, err)
	assert.Equal(t, geom.Extent{-2, 0, 6, 6}, ext)
	assert.Equal(t, geometry.KindPolygon, l.GeometryKind())
}

func TestMemoryFilter(t *testing.T) {
	m := NewMemory()
	m.AddLayer("parcels", geometry.KindPolygon, []MemoryFeature{
		{FID: 1, Geom: square(0, 0, 1)},
		{FID: 2, Geom: square(5, 5, 1)},
		{FID: 3, Geom: nil},
		{FID: 4, Geom: square(1, 0, 1)},
	})

	l, err := m.OpenLayer(context.Background(), "parcels", &geom.Extent{0.5, 0, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 4}, readAll(t, l))

	count, err := l.FeatureCount()
	require.NoError(t, err)
	assert.Equal(t, 4, count, "count describes the whole layer")
}

func TestMemoryUnknownLayer(t *testing.T) {
	_, err := NewMemory().OpenLayer(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, ErrLayerNotFound)
}

func TestMemoryCancelled(t *testing.T) {
	m := NewMemory()
	m.AddLayer("a", geometry.KindPolygon, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.OpenLayer(ctx, "a", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

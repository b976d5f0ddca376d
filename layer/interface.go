// Package layer describes read access to polygon feature layers.
package layer

import (
	"context"
	"errors"

	"github.com/go-spatial/geom"

	"github.com/pdok/selfoverlap/geometry"
)

var ErrLayerNotFound = errors.New("layer not found")

// Feature is one source record. Geometry may be nil.
type Feature interface {
	ID() int64
	Geometry() geom.Geometry
}

// Layer is a single read handle on a layer. It is not safe for concurrent use.
type Layer interface {
	// NextFeature returns the next feature, or io.EOF when the layer is exhausted.
	NextFeature() (Feature, error)
	// FeatureCount is the number of features of the whole layer, regardless of any filter.
	FeatureCount() (int, error)
	// Extent is the extent of the whole layer, regardless of any filter.
	Extent() (geom.Extent, error)
	// GeometryKind is the declared geometry type of the layer.
	GeometryKind() geometry.Kind
	Close() error
}

// Source opens layers. Every OpenLayer call returns an independent handle,
// so concurrent callers each get their own. With a non-nil filter only features
// whose envelope intersects the filter are streamed.
type Source interface {
	OpenLayer(ctx context.Context, name string, filter *geom.Extent) (Layer, error)
}

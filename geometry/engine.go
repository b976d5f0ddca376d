package geometry

import (
	"errors"
	"fmt"
	"slices"

	"github.com/go-spatial/geom"
	"github.com/twpayne/go-geos"
)

var (
	ErrUnsupportedGeometry = errors.New("geometry is not a polygon or multipolygon")
	ErrInvalidGeometry     = errors.New("invalid geometry")
	ErrOperation           = errors.New("geometry operation failed")
)

// OperationError is a failure raised by GEOS while executing Op.
type OperationError struct {
	Op  string
	Err error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrOperation, e.Err)
}

func (e *OperationError) Unwrap() []error {
	return []error{ErrOperation, e.Err}
}

// Engine owns one GEOS context. Geometries made by an Engine may only be
// combined with geometries of the same Engine. An Engine is not shared between
// goroutines that run concurrently; each evaluation creates its own.
type Engine struct {
	ctx *geos.Context
}

func NewEngine() *Engine {
	return &Engine{ctx: geos.NewContext()}
}

// FromGeometry converts a go-spatial polygon or multipolygon into a GEOS geometry.
// Rings are closed when their last vertex differs from the first.
func (e *Engine) FromGeometry(g geom.Geometry) (result *geos.Geom, err error) {
	switch t := g.(type) {
	case geom.Polygon:
		return e.polygon(t)
	case *geom.Polygon:
		if t == nil {
			return nil, ErrInvalidGeometry
		}
		return e.polygon(*t)
	case geom.MultiPolygon:
		return e.multiPolygon(t)
	case *geom.MultiPolygon:
		if t == nil {
			return nil, ErrInvalidGeometry
		}
		return e.multiPolygon(*t)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedGeometry, KindOf(g))
	}
}

func (e *Engine) polygon(p geom.Polygon) (*geos.Geom, error) {
	rings, err := closedRings(p)
	if err != nil {
		return nil, err
	}
	var g *geos.Geom
	err = guard("polygon", func() { g = e.ctx.NewPolygon(rings) })
	return g, err
}

func (e *Engine) multiPolygon(mp geom.MultiPolygon) (*geos.Geom, error) {
	polygons := make([]*geos.Geom, 0, len(mp))
	for i := range mp {
		p, err := e.polygon(mp[i])
		if err != nil {
			return nil, fmt.Errorf("polygon %d of multipolygon: %w", i, err)
		}
		polygons = append(polygons, p)
	}
	var g *geos.Geom
	err := guard("multipolygon", func() { g = e.ctx.NewCollection(geos.TypeIDMultiPolygon, polygons) })
	return g, err
}

func closedRings(p geom.Polygon) ([][][]float64, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("%w: polygon without rings", ErrInvalidGeometry)
	}
	rings := make([][][]float64, 0, len(p))
	for r, ring := range p {
		coords := make([][]float64, 0, len(ring)+1)
		for _, pt := range ring {
			coords = append(coords, []float64{pt[0], pt[1]})
		}
		if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
			coords = append(coords, []float64{ring[0][0], ring[0][1]})
		}
		if len(coords) < 4 {
			if r == 0 {
				return nil, fmt.Errorf("%w: shell has %d vertices", ErrInvalidGeometry, len(ring))
			}
			continue // degenerate hole
		}
		rings = append(rings, coords)
	}
	return rings, nil
}

// FromWKT parses a WKT string within this engine.
func (e *Engine) FromWKT(wkt string) (*geos.Geom, error) {
	return e.ctx.NewGeomFromWKT(wkt)
}

// Rectangle returns the polygon covering the extent.
func (e *Engine) Rectangle(ext geom.Extent) *geos.Geom {
	return e.ctx.NewPolygon([][][]float64{{
		{ext[0], ext[1]},
		{ext[2], ext[1]},
		{ext[2], ext[3]},
		{ext[0], ext[3]},
		{ext[0], ext[1]},
	}})
}

// misusePanics are raised by go-geos for API misuse rather than by GEOS itself.
var misusePanics = []geos.Error{
	geos.Error("context mismatch"),
	geos.Error("index out of range"),
}

// guard runs a GEOS call and turns a GEOS failure into an OperationError.
// Any other panic, including go-geos misuse, is re-raised.
func guard(op string, fn func()) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		geosErr, ok := r.(geos.Error)
		if !ok || slices.Contains(misusePanics, geosErr) {
			panic(r)
		}
		err = &OperationError{Op: op, Err: geosErr}
	}()
	fn()
	return nil
}

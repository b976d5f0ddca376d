// Package geojson reads a GeoJSON FeatureCollection file as a single layer.
package geojson

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-spatial/geom"
	tgeom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/pdok/selfoverlap/geometry"
	"github.com/pdok/selfoverlap/layer"
)

// Source is a FeatureCollection file. Its one layer is named after the file
// without extension; the empty name selects it too.
type Source struct {
	Path string
}

type featureCollection struct {
	Type     string           `json:"type"`
	Features []featureMembers `json:"features"`
}

type featureMembers struct {
	ID       json.RawMessage `json:"id"`
	Geometry json.RawMessage `json:"geometry"`
}

type feature struct {
	id       int64
	geometry geom.Geometry
}

func (f feature) ID() int64 {
	return f.id
}

func (f feature) Geometry() geom.Geometry {
	return f.geometry
}

// LayerName is the name of the layer of the file.
func (s Source) LayerName() string {
	base := filepath.Base(s.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// OpenLayer reads and decodes the whole file.
func (s Source) OpenLayer(ctx context.Context, name string, filter *geom.Extent) (layer.Layer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name != "" && name != s.LayerName() {
		return nil, fmt.Errorf("%w: %q", layer.ErrLayerNotFound, name)
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("error opening GeoJSON: %w", err)
	}
	features, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("error decoding GeoJSON %s: %w", s.Path, err)
	}
	l := &jsonLayer{features: features}
	if filter != nil {
		f := *filter
		l.filter = &f
	}
	return l, nil
}

func decode(data []byte) ([]feature, error) {
	var fc featureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, err
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("expected a FeatureCollection, got %q", fc.Type)
	}
	features := make([]feature, len(fc.Features))
	for i, member := range fc.Features {
		id, err := parseID(member.ID, i)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		g, err := toGeometry(member.Geometry)
		if err != nil {
			log.Printf("    failed to decode geometry of feature %d: %v", id, err)
			g = nil
		}
		features[i] = feature{id: id, geometry: g}
	}
	return features, nil
}

// parseID returns the integer id member, or the position when there is none.
func parseID(raw json.RawMessage, position int) (int64, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return int64(position), nil
	}
	if unquoted, err := strconv.Unquote(text); err == nil {
		text = unquoted
	}
	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("id %s is not an integer", raw)
	}
	return id, nil
}

// toGeometry decodes a GeoJSON geometry. Null geometries are nil. Only the
// types the overlap check distinguishes are converted; others become nil.
func toGeometry(raw json.RawMessage) (geom.Geometry, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return nil, nil
	}
	var g tgeom.T
	if err := geojson.Unmarshal(raw, &g); err != nil {
		return nil, err
	}
	switch t := g.(type) {
	case *tgeom.Polygon:
		return polygon(t.Coords()), nil
	case *tgeom.MultiPolygon:
		coords := t.Coords()
		mp := make(geom.MultiPolygon, len(coords))
		for i, p := range coords {
			mp[i] = polygon(p)
		}
		return mp, nil
	case *tgeom.Point:
		c := t.Coords()
		return geom.Point{c.X(), c.Y()}, nil
	case *tgeom.LineString:
		return geom.LineString(ring(t.Coords())), nil
	default:
		return nil, nil
	}
}

func polygon(rings [][]tgeom.Coord) geom.Polygon {
	p := make(geom.Polygon, len(rings))
	for i, r := range rings {
		p[i] = ring(r)
	}
	return p
}

func ring(coords []tgeom.Coord) [][2]float64 {
	pts := make([][2]float64, len(coords))
	for i, c := range coords {
		pts[i] = [2]float64{c.X(), c.Y()}
	}
	return pts
}

type jsonLayer struct {
	features []feature
	filter   *geom.Extent
	pos      int
}

func (l *jsonLayer) NextFeature() (layer.Feature, error) {
	for l.pos < len(l.features) {
		f := l.features[l.pos]
		l.pos++
		if l.filter != nil {
			ext, ok := geometry.ExtentOf(f.geometry)
			if !ok || !geometry.ExtentsIntersect(ext, *l.filter) {
				continue
			}
		}
		return f, nil
	}
	return nil, io.EOF
}

func (l *jsonLayer) FeatureCount() (int, error) {
	return len(l.features), nil
}

func (l *jsonLayer) Extent() (geom.Extent, error) {
	var (
		extent geom.Extent
		found  bool
	)
	for _, f := range l.features {
		e, ok := geometry.ExtentOf(f.geometry)
		if !ok {
			continue
		}
		if !found {
			extent, found = e, true
			continue
		}
		extent.Add(&e)
	}
	return extent, nil
}

// GeometryKind is always KindUnknown: a FeatureCollection has no layer geometry type.
func (l *jsonLayer) GeometryKind() geometry.Kind {
	return geometry.KindUnknown
}

func (l *jsonLayer) Close() error {
	return nil
}

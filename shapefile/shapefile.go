// Package shapefile reads polygon layers from ESRI Shapefiles.
package shapefile

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-spatial/geom"
	"github.com/jonas-p/go-shp"

	"github.com/pdok/selfoverlap/geometry"
	"github.com/pdok/selfoverlap/geomhelp"
	"github.com/pdok/selfoverlap/layer"
)

// Source is a single .shp file. Its one layer is named after the file
// without extension; the empty name selects it too.
type Source struct {
	Path string
}

// LayerName is the name of the layer of the shapefile.
func (s Source) LayerName() string {
	base := filepath.Base(s.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (s Source) OpenLayer(ctx context.Context, name string, filter *geom.Extent) (layer.Layer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name != "" && name != s.LayerName() {
		return nil, fmt.Errorf("%w: %q", layer.ErrLayerNotFound, name)
	}
	if _, err := os.Stat(s.Path); err != nil {
		return nil, fmt.Errorf("error opening shapefile: %w", err)
	}
	reader, err := shp.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("error opening shapefile %s: %w", s.Path, err)
	}
	l := &shpLayer{path: s.Path, reader: reader}
	if filter != nil {
		f := *filter
		l.filter = &f
	}
	return l, nil
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

type shpLayer struct {
	path   string
	reader *shp.Reader
	filter *geom.Extent
	count  *int
}

func (l *shpLayer) NextFeature() (layer.Feature, error) {
	for l.reader.Next() {
		index, shape := l.reader.Shape()
		if l.filter != nil && !boxIntersects(shape.BBox(), *l.filter) {
			continue
		}
		return feature{id: int64(index), geometry: toGeometry(shape)}, nil
	}
	if err := l.reader.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("error reading shapefile %s: %w", l.path, err)
	}
	return nil, io.EOF
}

// FeatureCount counts the records with a reader of its own.
func (l *shpLayer) FeatureCount() (int, error) {
	if l.count != nil {
		return *l.count, nil
	}
	reader, err := shp.Open(l.path)
	if err != nil {
		return 0, fmt.Errorf("error opening shapefile %s: %w", l.path, err)
	}
	defer reader.Close()
	count := 0
	for reader.Next() {
		count++
	}
	if err := reader.Err(); err != nil && err != io.EOF {
		return 0, fmt.Errorf("error counting shapefile %s: %w", l.path, err)
	}
	l.count = &count
	return count, nil
}

func (l *shpLayer) Extent() (geom.Extent, error) {
	box := l.reader.BBox()
	return geom.Extent{box.MinX, box.MinY, box.MaxX, box.MaxY}, nil
}

func (l *shpLayer) GeometryKind() geometry.Kind {
	switch l.reader.GeometryType {
	case shp.POLYGON, shp.POLYGONZ, shp.POLYGONM:
		return geometry.KindMultiPolygon
	case shp.POINT, shp.POINTZ, shp.POINTM:
		return geometry.KindPoint
	case shp.POLYLINE, shp.POLYLINEZ, shp.POLYLINEM:
		return geometry.KindMultiLineString
	case shp.MULTIPOINT, shp.MULTIPOINTZ, shp.MULTIPOINTM:
		return geometry.KindMultiPoint
	default:
		return geometry.KindUnknown
	}
}

func (l *shpLayer) Close() error {
	return l.reader.Close()
}

func boxIntersects(box shp.Box, ext geom.Extent) bool {
	return geometry.ExtentsIntersect(geom.Extent{box.MinX, box.MinY, box.MaxX, box.MaxY}, ext)
}

// toGeometry converts a polygon record into a polygon or multipolygon.
// Records of other shape types have no geometry here.
func toGeometry(shape shp.Shape) geom.Geometry {
	var (
		parts  []int32
		points []shp.Point
	)
	switch p := shape.(type) {
	case *shp.Polygon:
		parts, points = p.Parts, p.Points
	case *shp.PolygonZ:
		parts, points = p.Parts, p.Points
	case *shp.PolygonM:
		parts, points = p.Parts, p.Points
	default:
		return nil
	}
	rings := splitRings(parts, points)
	if len(rings) == 0 {
		return nil
	}
	polygons := assemble(rings)
	if len(polygons) == 1 {
		return polygons[0]
	}
	return geom.MultiPolygon(polygons)
}

func splitRings(parts []int32, points []shp.Point) [][][2]float64 {
	rings := make([][][2]float64, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || end > int32(len(points)) || end-start < 3 {
			continue
		}
		ring := make([][2]float64, 0, end-start)
		for _, pt := range points[start:end] {
			ring = append(ring, [2]float64{pt.X, pt.Y})
		}
		rings = append(rings, ring)
	}
	return rings
}

// assemble groups rings into polygons: clockwise rings are shells,
// counter-clockwise rings are holes of the shell that contains their first vertex.
// A hole without such a shell becomes a polygon of its own.
func assemble(rings [][][2]float64) []geom.Polygon {
	var (
		polygons []geom.Polygon
		holes    [][][2]float64
	)
	for _, ring := range rings {
		if geomhelp.IsClockwise(ring) {
			polygons = append(polygons, geom.Polygon{ring})
		} else {
			holes = append(holes, ring)
		}
	}
	shells := len(polygons)
	for _, hole := range holes {
		owner := -1
		for i, polygon := range polygons[:shells] {
			if geomhelp.RingContains(polygon[0], hole[0]) {
				owner = i
				break
			}
		}
		if owner < 0 {
			polygons = append(polygons, geom.Polygon{hole})
			continue
		}
		polygons[owner] = append(polygons[owner], hole)
	}
	return polygons
}

package geometry

import (
	"strings"

	"github.com/go-spatial/geom"
)

// Kind is the closed set of geometry types the overlap engine distinguishes.
// Only KindPolygon and KindMultiPolygon are ever compared.
type Kind int

const (
	KindUnknown Kind = iota // generic or mixed, e.g. a GEOMETRY column
	KindPoint
	KindLineString
	KindPolygon
	KindMultiPoint
	KindMultiLineString
	KindMultiPolygon
	KindCollection
)

var kindNames = [...]string{
	KindUnknown:         "GEOMETRY",
	KindPoint:           "POINT",
	KindLineString:      "LINESTRING",
	KindPolygon:         "POLYGON",
	KindMultiPoint:      "MULTIPOINT",
	KindMultiLineString: "MULTILINESTRING",
	KindMultiPolygon:    "MULTIPOLYGON",
	KindCollection:      "GEOMETRYCOLLECTION",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

// IsPolygonal is true for polygons and multipolygons.
func (k Kind) IsPolygonal() bool {
	return k == KindPolygon || k == KindMultiPolygon
}

// AcceptableForLayer reports whether a layer of this kind may hold polygons at all.
// Generic and collection layers pass; their non-polygonal features are skipped one by one.
func (k Kind) AcceptableForLayer() bool {
	return k.IsPolygonal() || k == KindUnknown || k == KindCollection
}

// KindFromName returns the kind of a geometry type name as used by
// gpkg_geometry_columns. Unrecognized names are KindUnknown.
func KindFromName(name string) Kind {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "POINT":
		return KindPoint
	case "LINESTRING":
		return KindLineString
	case "POLYGON", "CURVEPOLYGON":
		return KindPolygon
	case "MULTIPOINT":
		return KindMultiPoint
	case "MULTILINESTRING", "MULTICURVE":
		return KindMultiLineString
	case "MULTIPOLYGON", "MULTISURFACE":
		return KindMultiPolygon
	case "GEOMETRYCOLLECTION":
		return KindCollection
	default:
		return KindUnknown
	}
}

// KindOf classifies a go-spatial geometry. Nil is KindUnknown.
func KindOf(g geom.Geometry) Kind {
	switch g.(type) {
	case geom.Point, *geom.Point:
		return KindPoint
	case geom.LineString, *geom.LineString:
		return KindLineString
	case geom.Polygon, *geom.Polygon:
		return KindPolygon
	case geom.MultiPoint, *geom.MultiPoint:
		return KindMultiPoint
	case geom.MultiLineString, *geom.MultiLineString:
		return KindMultiLineString
	case geom.MultiPolygon, *geom.MultiPolygon:
		return KindMultiPolygon
	case geom.Collection, *geom.Collection:
		return KindCollection
	default:
		return KindUnknown
	}
}

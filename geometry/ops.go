package geometry

import (
	"github.com/go-spatial/geom"
	"github.com/twpayne/go-geos"
)

// Envelope returns the bounding box of g as a go-spatial extent.
func Envelope(g *geos.Geom) geom.Extent {
	b := g.Bounds()
	return geom.Extent{b.MinX, b.MinY, b.MaxX, b.MaxY}
}

// ExtentsIntersect is true when a and b share at least a boundary point.
func ExtentsIntersect(a, b geom.Extent) bool {
	return a[0] <= b[2] && b[0] <= a[2] && a[1] <= b[3] && b[1] <= a[3]
}

// ExtentOf returns the envelope of every vertex of g and false when g has none.
func ExtentOf(g geom.Geometry) (geom.Extent, bool) {
	var (
		ext   geom.Extent
		found bool
	)
	add := func(pt [2]float64) {
		if !found {
			ext = geom.Extent{pt[0], pt[1], pt[0], pt[1]}
			found = true
			return
		}
		ext[0] = min(ext[0], pt[0])
		ext[1] = min(ext[1], pt[1])
		ext[2] = max(ext[2], pt[0])
		ext[3] = max(ext[3], pt[1])
	}
	addPolygon := func(p geom.Polygon) {
		for _, ring := range p {
			for _, pt := range ring {
				add(pt)
			}
		}
	}
	switch t := g.(type) {
	case geom.Polygon:
		addPolygon(t)
	case *geom.Polygon:
		if t != nil {
			addPolygon(*t)
		}
	case geom.MultiPolygon:
		for _, p := range t {
			addPolygon(p)
		}
	case *geom.MultiPolygon:
		if t != nil {
			for _, p := range *t {
				addPolygon(p)
			}
		}
	case geom.Point:
		add(t)
	case geom.LineString:
		for _, pt := range t {
			add(pt)
		}
	case geom.MultiPoint:
		for _, pt := range t {
			add(pt)
		}
	case geom.MultiLineString:
		for _, ls := range t {
			for _, pt := range ls {
				add(pt)
			}
		}
	}
	return ext, found
}

// VertexCount is the number of vertices of the exterior ring of a polygon.
func VertexCount(polygon *geos.Geom) int {
	return polygon.ExteriorRing().CoordSeq().Size()
}

// Polygons returns the non-empty polygonal members of g. Lines and points that
// an overlay may produce along shared boundaries are dropped.
func Polygons(g *geos.Geom) []*geos.Geom {
	if g == nil || g.IsEmpty() {
		return nil
	}
	switch g.TypeID() {
	case geos.TypeIDPolygon:
		return []*geos.Geom{g}
	case geos.TypeIDMultiPolygon, geos.TypeIDGeometryCollection:
		var polygons []*geos.Geom
		for i := 0; i < g.NumGeometries(); i++ {
			polygons = append(polygons, Polygons(g.Geometry(i))...)
		}
		return polygons
	default:
		return nil
	}
}

// Intersects reports whether a and b share any point.
func Intersects(a, b *geos.Geom) (ok bool, err error) {
	err = guard("intersects", func() { ok = a.Intersects(b) })
	return ok, err
}

// Touches reports whether a and b only share boundary points.
func Touches(a, b *geos.Geom) (ok bool, err error) {
	err = guard("touches", func() { ok = a.Touches(b) })
	return ok, err
}

// Intersection returns the overlay intersection of a and b.
func Intersection(a, b *geos.Geom) (g *geos.Geom, err error) {
	err = guard("intersection", func() { g = a.Intersection(b) })
	return g, err
}

// IntersectionArea returns the area of the intersection of a and b.
func IntersectionArea(a, b *geos.Geom) (area float64, err error) {
	err = guard("intersection", func() {
		g := a.Intersection(b)
		area = g.Area()
		g.Destroy()
	})
	return area, err
}

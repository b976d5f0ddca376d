// Package subdivide splits oversized polygons into smaller parts by recursive
// bounding box bisection, so that no single comparison handles more than a
// bounded number of vertices.
package subdivide

import (
	"github.com/go-spatial/geom"
	"github.com/twpayne/go-geos"

	"github.com/pdok/selfoverlap/geometry"
)

const (
	DefaultMaxVertices = 512
	// MinMaxVertices is the smallest usable bound: a closed triangle.
	MinMaxVertices = 4

	// maxDepth 50 => 2^50 ~= 10^15 parts
	maxDepth = 50
	// minSpan stops bisecting boxes that are (nearly) degenerate.
	minSpan = 1e-9
	// maxStall is the number of consecutive bisections allowed to not reduce
	// the vertex count. Clipping a rectangle never yields fewer than 5 vertices.
	maxStall = 3
)

// Subdivide returns polygon parts of g (a polygon or multipolygon) whose outer
// rings have at most maxVertices vertices. The parts cover g without overlap.
// A part that cannot be reduced further (depth, span or progress exhausted) is kept whole.
// Empty clip results are dropped.
func Subdivide(e *geometry.Engine, g *geos.Geom, maxVertices int) ([]*geos.Geom, error) {
	if maxVertices < MinMaxVertices {
		maxVertices = MinMaxVertices
	}
	var parts []*geos.Geom
	for _, polygon := range geometry.Polygons(g) {
		sub, err := subdivideRecursive(e, polygon, maxVertices, 0, 0)
		if err != nil {
			return nil, err
		}
		parts = append(parts, sub...)
	}
	return parts, nil
}

func subdivideRecursive(e *geometry.Engine, polygon *geos.Geom, maxVertices, depth, stalled int) ([]*geos.Geom, error) {
	count := geometry.VertexCount(polygon)
	if count <= maxVertices {
		return []*geos.Geom{polygon}, nil
	}
	box := geometry.Envelope(polygon)
	width := box[2] - box[0]
	height := box[3] - box[1]
	if depth >= maxDepth || (width < minSpan && height < minSpan) {
		return []*geos.Geom{polygon}, nil
	}

	halves := bisect(box, width, height)
	var results []*geos.Geom
	for _, half := range halves {
		rect := e.Rectangle(half)
		clipped, err := geometry.Intersection(polygon, rect)
		rect.Destroy()
		if err != nil {
			return nil, err
		}
		for _, p := range geometry.Polygons(clipped) {
			nextStalled := 0
			if geometry.VertexCount(p) >= count {
				nextStalled = stalled + 1
			}
			if nextStalled > maxStall {
				results = append(results, p)
				continue
			}
			sub, err := subdivideRecursive(e, p, maxVertices, depth+1, nextStalled)
			if err != nil {
				return nil, err
			}
			results = append(results, sub...)
		}
	}
	return results, nil
}

// bisect splits the box across its longer dimension. On a tie the split line is vertical.
func bisect(box geom.Extent, width, height float64) [2]geom.Extent {
	first, second := box, box
	if width >= height {
		mid := box[0] + width/2
		first[2] = mid
		second[0] = mid
	} else {
		mid := box[1] + height/2
		first[3] = mid
		second[1] = mid
	}
	return [2]geom.Extent{first, second}
}

// Package geomhelp holds planar helpers on plain coordinate rings, used where
// no GEOS context is at hand (e.g. while assembling shapefile records).
package geomhelp

import (
	"math"

	"github.com/muesli/reflow/truncate"
	"github.com/twpayne/go-geos"
)

// https://en.wikipedia.org/wiki/Shoelace_formula
func Shoelace(pts [][2]float64) float64 {
	return math.Abs(SignedArea(pts))
}

// SignedArea is positive for counter-clockwise rings and negative for clockwise ones.
// The ring does not need to be closed.
func SignedArea(pts [][2]float64) float64 {
	sum := 0.
	if len(pts) == 0 {
		return 0.
	}

	p0 := pts[len(pts)-1]
	for _, p1 := range pts {
		sum += p0[0]*p1[1] - p1[0]*p0[1]
		p0 = p1
	}
	return sum / 2
}

func IsClockwise(pts [][2]float64) bool {
	return SignedArea(pts) < 0
}

// RingContains reports whether pt lies inside or on the ring.
func RingContains(ring [][2]float64, pt [2]float64) bool {
	if len(ring) < 3 {
		return false
	}
	c, on := RayIntersect(pt, ring[0], ring[len(ring)-1])
	if on {
		return true
	}
	for i := 0; i < len(ring)-1; i++ {
		inter, on := RayIntersect(pt, ring[i], ring[i+1])
		if on {
			return true
		}
		if inter {
			c = !c
		}
	}
	return c
}

// from paulmach/orb
// Original implementation: http://rosettacode.org/wiki/Ray-casting_algorithm#Go
//
//nolint:cyclop,nestif
func RayIntersect(pt, start, end [2]float64) (intersects, on bool) {
	if start[0] > end[0] {
		start, end = end, start
	}

	if pt[0] == start[0] {
		if pt[1] == start[1] {
			// pt == start
			return false, true
		} else if start[0] == end[0] {
			// vertical segment (start -> end)
			// return true if within the line, check to see if start or end is greater.
			if start[1] > end[1] && start[1] >= pt[1] && pt[1] >= end[1] {
				return false, true
			}

			if end[1] > start[1] && end[1] >= pt[1] && pt[1] >= start[1] {
				return false, true
			}
		}

		// Move the y coordinate to deal with degenerate case
		pt[0] = math.Nextafter(pt[0], math.Inf(1))
	} else if pt[0] == end[0] {
		if pt[1] == end[1] {
			// matching the end point
			return false, true
		}

		pt[0] = math.Nextafter(pt[0], math.Inf(1))
	}

	if pt[0] < start[0] || pt[0] > end[0] {
		return false, false
	}

	if start[1] > end[1] {
		if pt[1] > start[1] {
			return false, false
		} else if pt[1] < end[1] {
			return true, false
		}
	} else {
		if pt[1] > end[1] {
			return false, false
		} else if pt[1] < start[1] {
			return true, false
		}
	}

	rs := (pt[1] - start[1]) / (pt[0] - start[0])
	ds := (end[1] - start[1]) / (end[0] - start[0])

	if rs == ds {
		return false, true
	}

	return rs <= ds, false
}

// TruncatedWKT renders g as WKT cut off at width characters (0 means no limit).
func TruncatedWKT(g *geos.Geom, width uint) string {
	if g == nil {
		return "<nil>"
	}
	s := g.ToWKT()
	if width == 0 {
		return s
	}
	return truncate.StringWithTail(s, width, "...")
}

// Package overlap finds pairs of features of one layer whose polygons overlap,
// and combines partial results of separate evaluation passes.
package overlap

import (
	"cmp"
	"slices"

	"golang.org/x/exp/maps"
)

// PairKey is an unordered pair of feature ids, stored with A < B.
type PairKey struct {
	A, B int64
}

// NewPairKey returns the canonical key of the pair (a, b).
func NewPairKey(a, b int64) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey{A: a, B: b}
}

// PairOverlap is one reported overlap.
type PairOverlap struct {
	A    int64   `json:"a"`
	B    int64   `json:"b"`
	Area float64 `json:"area"`
}

// Overlaps maps feature pairs to their cumulative overlap area.
type Overlaps map[PairKey]float64

// Add adds area to the pair, in whichever order its ids are given.
func (o Overlaps) Add(key PairKey, area float64) {
	o[NewPairKey(key.A, key.B)] += area
}

// Filter returns the pairs whose area exceeds threshold. Pairs of a feature
// with itself never qualify.
func (o Overlaps) Filter(threshold float64) Overlaps {
	filtered := make(Overlaps, len(o))
	for key, area := range o {
		if key.A == key.B || !(area > threshold) {
			continue
		}
		filtered[key] = area
	}
	return filtered
}

// Sorted lists the overlaps ordered by A, then B.
func (o Overlaps) Sorted() []PairOverlap {
	keys := maps.Keys(o)
	slices.SortFunc(keys, func(x, y PairKey) int {
		if c := cmp.Compare(x.A, y.A); c != 0 {
			return c
		}
		return cmp.Compare(x.B, y.B)
	})
	sorted := make([]PairOverlap, len(keys))
	for i, key := range keys {
		sorted[i] = PairOverlap{A: key.A, B: key.B, Area: o[key]}
	}
	return sorted
}

// Merge sums the partial results per pair and applies the threshold to the totals.
// The outcome does not depend on the order of partials (up to floating point summation).
func Merge(areaThreshold float64, partials ...Overlaps) Overlaps {
	size := 0
	for _, partial := range partials {
		size = max(size, len(partial))
	}
	merged := make(Overlaps, size)
	for _, partial := range partials {
		for key, area := range partial {
			merged.Add(key, area)
		}
	}
	return merged.Filter(areaThreshold)
}

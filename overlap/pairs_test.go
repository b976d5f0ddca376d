package overlap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPairKey(t *testing.T) {
	assert.Equal(t, PairKey{1, 2}, NewPairKey(1, 2))
	assert.Equal(t, PairKey{1, 2}, NewPairKey(2, 1))
	assert.Equal(t, PairKey{-5, 3}, NewPairKey(3, -5))
}

func TestOverlapsAddCanonicalises(t *testing.T) {
	o := make(Overlaps)
	o.Add(PairKey{2, 1}, 1.5)
	o.Add(PairKey{1, 2}, 0.5)
	assert.Equal(t, Overlaps{{1, 2}: 2}, o)
}

func TestOverlapsFilter(t *testing.T) {
	o := Overlaps{{1, 2}: 1, {1, 3}: 1.0001, {2, 3}: 0, {4, 4}: 10}
	assert.Equal(t, Overlaps{{1, 3}: 1.0001}, o.Filter(1), "strictly greater")
	assert.Equal(t, Overlaps{{1, 2}: 1, {1, 3}: 1.0001}, o.Filter(0))
	assert.Len(t, o, 4, "filter returns a new map")
}

func TestOverlapsSorted(t *testing.T) {
	o := Overlaps{{3, 4}: 1, {1, 9}: 2, {1, 2}: 3}
	assert.Equal(t, []PairOverlap{
		{A: 1, B: 2, Area: 3},
		{A: 1, B: 9, Area: 2},
		{A: 3, B: 4, Area: 1},
	}, o.Sorted())
	assert.Empty(t, Overlaps{}.Sorted())
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		partials  []Overlaps
		want      Overlaps
	}{
		{
			name:      "nothing",
			threshold: 1,
			want:      Overlaps{},
		},
		{
			name:      "fragments add up across the threshold",
			threshold: 1,
			partials: []Overlaps{
				{{1, 2}: 0.6},
				{{1, 2}: 0.6},
				{{3, 4}: 0.4},
			},
			want: Overlaps{{1, 2}: 1.2},
		},
		{
			name:      "swapped keys are one pair",
			threshold: 0,
			partials: []Overlaps{
				{{1, 2}: 1},
				{{2, 1}: 2},
			},
			want: Overlaps{{1, 2}: 3},
		},
		{
			name:      "disjoint pairs are kept",
			threshold: 0,
			partials: []Overlaps{
				{{1, 2}: 1, {2, 3}: 2},
				{{5, 6}: 4},
			},
			want: Overlaps{{1, 2}: 1, {2, 3}: 2, {5, 6}: 4},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Merge(tt.threshold, tt.partials...))
		})
	}
}

func TestMergeIsOrderIndependent(t *testing.T) {
	a := Overlaps{{1, 2}: 0.25, {2, 3}: 1}
	b := Overlaps{{1, 2}: 0.5}
	c := Overlaps{{3, 2}: 2, {7, 8}: 0.125}
	assert.Equal(t, Merge(0, a, b, c), Merge(0, c, a, b))
	assert.Equal(t, Merge(0, a, b, c), Merge(0, Merge(0, a, b), c))
}

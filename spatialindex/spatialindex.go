// Package spatialindex is a static, bulk-loaded bounding box index.
//
// The lifecycle has two phases: populate with Insert, then Build once, then Query
// as often as needed. Inserting after Build is refused; querying before Build too.
// The packed Hilbert R-tree (flatbush) behind it supports no other order.
package spatialindex

import (
	"errors"

	"github.com/bmharper/flatbush-go"
	"github.com/go-spatial/geom"
)

var (
	ErrBuilt    = errors.New("spatial index is already built")
	ErrNotBuilt = errors.New("spatial index is not built yet")
)

// Index maps the envelopes of keys of type K to a packed R-tree.
type Index[K comparable] struct {
	tree  *flatbush.Flatbush64
	keys  []K
	built bool
}

// New returns an empty index. sizeHint is the expected number of entries (may be 0).
func New[K comparable](sizeHint int) *Index[K] {
	tree := flatbush.NewFlatbush64()
	if sizeHint > 0 {
		tree.Reserve(sizeHint)
	}
	return &Index[K]{
		tree: tree,
		keys: make([]K, 0, max(sizeHint, 0)),
	}
}

// Insert registers key with its envelope.
func (ix *Index[K]) Insert(key K, envelope geom.Extent) error {
	if ix.built {
		return ErrBuilt
	}
	i := ix.tree.Add(envelope[0], envelope[1], envelope[2], envelope[3])
	if i != len(ix.keys) {
		// flatbush hands out indexes in insertion order
		panic("spatialindex: flatbush index out of sync with keys")
	}
	ix.keys = append(ix.keys, key)
	return nil
}

// Build packs the tree. It is idempotent.
func (ix *Index[K]) Build() {
	if ix.built {
		return
	}
	ix.tree.Finish()
	ix.built = true
}

// Query returns the keys whose envelope intersects envelope, boundaries included.
// The querying entry itself is part of the result; nothing is deduplicated.
func (ix *Index[K]) Query(envelope geom.Extent) ([]K, error) {
	if !ix.built {
		return nil, ErrNotBuilt
	}
	hits := ix.tree.Search(envelope[0], envelope[1], envelope[2], envelope[3])
	keys := make([]K, len(hits))
	for i, hit := range hits {
		keys[i] = ix.keys[hit]
	}
	return keys, nil
}

// Len is the number of entries inserted.
func (ix *Index[K]) Len() int {
	return len(ix.keys)
}

// Key returns the key of the i-th inserted entry.
func (ix *Index[K]) Key(i int) K {
	return ix.keys[i]
}

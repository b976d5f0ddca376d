package overlap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/go-spatial/geom"
	"github.com/twpayne/go-geos"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/pdok/selfoverlap/geometry"
	"github.com/pdok/selfoverlap/geomhelp"
	"github.com/pdok/selfoverlap/layer"
	"github.com/pdok/selfoverlap/spatialindex"
	"github.com/pdok/selfoverlap/subdivide"
)

const (
	DefaultCancelCheckInterval = 1000
	wktLogWidth                = 120
)

// Options configure a single evaluation pass.
type Options struct {
	MaxVertices int
	// AreaThreshold is the area a pair's total overlap must exceed to be reported.
	AreaThreshold float64
	// CancelCheckInterval is the number of features (and parts) between context checks.
	CancelCheckInterval int
}

// PartKey identifies one decomposed part of a feature.
type PartKey struct {
	FeatureID int64
	Index     int
}

// Less orders part keys by feature id, then part index.
func (k PartKey) Less(other PartKey) bool {
	if k.FeatureID != other.FeatureID {
		return k.FeatureID < other.FeatureID
	}
	return k.Index < other.Index
}

type part struct {
	geometry *geos.Geom
	envelope geom.Extent
}

// Stats are the counters of the last Evaluate call.
type Stats struct {
	Features         uint64
	NoGeometry       uint64
	NonPolygons      uint64
	InvalidGeometry  uint64
	OutsideClip      uint64
	SubdivideFailure uint64
	Parts            uint64
	Candidates       uint64
	Comparisons      uint64
	Failures         uint64
	Pairs            uint64
}

// operations are the GEOS calls an evaluation depends on.
type operations struct {
	intersects       func(a, b *geos.Geom) (bool, error)
	touches          func(a, b *geos.Geom) (bool, error)
	intersection     func(a, b *geos.Geom) (*geos.Geom, error)
	intersectionArea func(a, b *geos.Geom) (float64, error)
	subdivide        func(e *geometry.Engine, g *geos.Geom, maxVertices int) ([]*geos.Geom, error)
}

var geosOperations = operations{
	intersects:       geometry.Intersects,
	touches:          geometry.Touches,
	intersection:     geometry.Intersection,
	intersectionArea: geometry.IntersectionArea,
	subdivide:        subdivide.Subdivide,
}

// Evaluator finds overlapping feature pairs within one layer (or one tile of it).
// It owns a geometry engine and is not safe for concurrent use; concurrent passes
// each need their own Evaluator.
type Evaluator struct {
	options Options
	engine  *geometry.Engine
	ops     operations
	stats   Stats
}

func NewEvaluator(options Options) *Evaluator {
	if options.MaxVertices <= 0 {
		options.MaxVertices = subdivide.DefaultMaxVertices
	}
	if options.CancelCheckInterval <= 0 {
		options.CancelCheckInterval = DefaultCancelCheckInterval
	}
	return &Evaluator{
		options: options,
		engine:  geometry.NewEngine(),
		ops:     geosOperations,
	}
}

// Stats returns the counters of the last Evaluate call.
func (ev *Evaluator) Stats() Stats {
	return ev.stats
}

// Evaluate streams all features of l, optionally clipped to clip, and returns the
// feature pairs whose total overlap area exceeds the configured threshold.
// On cancellation the context's error is returned and no result.
func (ev *Evaluator) Evaluate(ctx context.Context, l layer.Layer, clip *geom.Extent) (Overlaps, error) {
	ev.stats = Stats{}

	parts, index, err := ev.collectParts(ctx, l, clip)
	if err != nil {
		return nil, err
	}
	index.Build()

	totals, err := ev.comparePairs(ctx, parts, index)
	if err != nil {
		return nil, err
	}
	result := totals.Filter(ev.options.AreaThreshold)
	ev.stats.Pairs = uint64(len(result))
	ev.logStats()
	return result, nil
}

func (ev *Evaluator) collectParts(ctx context.Context, l layer.Layer, clip *geom.Extent) (
	*orderedmap.OrderedMap[PartKey, part], *spatialindex.Index[PartKey], error) {

	var clipPolygon *geos.Geom
	if clip != nil {
		clipPolygon = ev.engine.Rectangle(*clip)
	}
	sizeHint := 0
	if count, err := l.FeatureCount(); err == nil && clip == nil {
		sizeHint = count
	}
	parts := orderedmap.New[PartKey, part]()
	index := spatialindex.New[PartKey](sizeHint)

	for {
		if ev.stats.Features%uint64(ev.options.CancelCheckInterval) == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}
		feature, err := l.NextFeature()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read feature: %w", err)
		}
		ev.stats.Features++

		polygons := ev.prepare(feature, clip, clipPolygon)
		for i, polygon := range polygons {
			key := PartKey{FeatureID: feature.ID(), Index: i}
			envelope := geometry.Envelope(polygon)
			parts.Set(key, part{geometry: polygon, envelope: envelope})
			if err := index.Insert(key, envelope); err != nil {
				return nil, nil, err
			}
		}
		ev.stats.Parts += uint64(len(polygons))
	}
	return parts, index, nil
}

// prepare converts, clips and decomposes the geometry of one feature.
// Features without usable polygonal area yield no parts.
func (ev *Evaluator) prepare(feature layer.Feature, clip *geom.Extent, clipPolygon *geos.Geom) []*geos.Geom {
	g := feature.Geometry()
	if g == nil {
		ev.stats.NoGeometry++
		return nil
	}
	if !geometry.KindOf(g).IsPolygonal() {
		ev.stats.NonPolygons++
		return nil
	}
	extent, ok := geometry.ExtentOf(g)
	if !ok {
		ev.stats.NoGeometry++
		return nil
	}
	if clip != nil && !geometry.ExtentsIntersect(extent, *clip) {
		ev.stats.OutsideClip++
		return nil
	}

	polygon, err := ev.engine.FromGeometry(g)
	if err != nil {
		ev.stats.InvalidGeometry++
		log.Printf("    skipping feature %d: %v", feature.ID(), err)
		return nil
	}
	if polygon.IsEmpty() {
		ev.stats.NoGeometry++
		return nil
	}
	if clipPolygon != nil && !within(extent, *clip) {
		clipped, err := ev.ops.intersection(polygon, clipPolygon)
		if err != nil {
			ev.stats.Failures++
			log.Printf("    failed to clip feature %d %s: %v", feature.ID(), geomhelp.TruncatedWKT(polygon, wktLogWidth), err)
			return nil
		}
		polygon = clipped
	}
	if len(geometry.Polygons(polygon)) == 0 {
		ev.stats.OutsideClip++
		return nil
	}

	parts, err := ev.ops.subdivide(ev.engine, polygon, ev.options.MaxVertices)
	if err != nil {
		ev.stats.SubdivideFailure++
		log.Printf("    failed to subdivide feature %d, keeping it whole: %v", feature.ID(), err)
		return geometry.Polygons(polygon)
	}
	return parts
}

func (ev *Evaluator) comparePairs(ctx context.Context, parts *orderedmap.OrderedMap[PartKey, part],
	index *spatialindex.Index[PartKey]) (Overlaps, error) {

	totals := make(Overlaps)
	visited := 0
	for pair := parts.Oldest(); pair != nil; pair = pair.Next() {
		if visited%ev.options.CancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		visited++

		p := pair.Key
		candidates, err := index.Query(pair.Value.envelope)
		if err != nil {
			return nil, err
		}
		ev.stats.Candidates += uint64(len(candidates))
		for _, q := range candidates {
			// every unordered pair once, and only across features
			if !p.Less(q) || p.FeatureID == q.FeatureID {
				continue
			}
			other, ok := parts.Get(q)
			if !ok {
				panic(fmt.Errorf("part %v is indexed but not stored", q))
			}
			area, ok := ev.overlapArea(p, pair.Value.geometry, q, other.geometry)
			if !ok {
				continue
			}
			totals.Add(NewPairKey(p.FeatureID, q.FeatureID), area)
		}
	}
	return totals, nil
}

// overlapArea returns the intersection area of two parts, and false when they
// are disjoint, only touch or when the comparison failed.
func (ev *Evaluator) overlapArea(p PartKey, a *geos.Geom, q PartKey, b *geos.Geom) (float64, bool) {
	ev.stats.Comparisons++
	intersects, err := ev.ops.intersects(a, b)
	if err != nil {
		ev.failed(p, a, q, b, err)
		return 0, false
	}
	if !intersects {
		return 0, false
	}
	touches, err := ev.ops.touches(a, b)
	if err != nil {
		ev.failed(p, a, q, b, err)
		return 0, false
	}
	if touches {
		return 0, false
	}
	area, err := ev.ops.intersectionArea(a, b)
	if err != nil {
		ev.failed(p, a, q, b, err)
		return 0, false
	}
	return area, true
}

func (ev *Evaluator) failed(p PartKey, a *geos.Geom, q PartKey, b *geos.Geom, err error) {
	ev.stats.Failures++
	log.Printf("    comparison of %d/%d and %d/%d failed: %v", p.FeatureID, p.Index, q.FeatureID, q.Index, err)
	log.Printf("      %s", geomhelp.TruncatedWKT(a, wktLogWidth))
	log.Printf("      %s", geomhelp.TruncatedWKT(b, wktLogWidth))
}

func (ev *Evaluator) logStats() {
	s := ev.stats
	log.Printf("    total features: %d", s.Features)
	if s.NoGeometry > 0 {
		log.Printf("       no geometry: %d", s.NoGeometry)
	}
	if s.NonPolygons > 0 {
		log.Printf("      non-polygons: %d", s.NonPolygons)
	}
	if s.InvalidGeometry > 0 {
		log.Printf("           invalid: %d", s.InvalidGeometry)
	}
	if s.OutsideClip > 0 {
		log.Printf("      outside clip: %d", s.OutsideClip)
	}
	log.Printf("             parts: %d", s.Parts)
	log.Printf("        candidates: %d", s.Candidates)
	log.Printf("       comparisons: %d", s.Comparisons)
	if s.Failures > 0 || s.SubdivideFailure > 0 {
		log.Printf("          failures: %d (subdivide: %d)", s.Failures, s.SubdivideFailure)
	}
	log.Printf("          overlaps: %d", s.Pairs)
}

func within(inner, outer geom.Extent) bool {
	return inner[0] >= outer[0] && inner[1] >= outer[1] && inner[2] <= outer[2] && inner[3] <= outer[3]
}

package tiling

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/pdok/selfoverlap/layer"
	"github.com/pdok/selfoverlap/overlap"
)

// Scheduler evaluates a layer tile by tile. Every tile task opens its own
// read handle, filtered to the tile, and runs its own Evaluator clipped to the
// tile. The partial results are merged once all tiles are done.
type Scheduler struct {
	Source    layer.Source
	LayerName string
	Rows      int
	Cols      int
	// MaxConcurrent caps the number of tiles evaluated at the same time.
	MaxConcurrent int
	// Options for the tile evaluators. Options.AreaThreshold is applied to the merged totals only.
	Options overlap.Options
}

// Run evaluates all tiles and returns the merged result.
// Cancellation of ctx, or the failure of any tile, stops all tiles and no result is returned.
func (s *Scheduler) Run(ctx context.Context) (overlap.Overlaps, error) {
	l, err := s.Source.OpenLayer(ctx, s.LayerName, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open layer %s: %w", s.LayerName, err)
	}
	extent, err := l.Extent()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to determine extent of layer %s: %w", s.LayerName, err), l.Close())
	}
	if err := l.Close(); err != nil {
		return nil, fmt.Errorf("failed to close layer %s: %w", s.LayerName, err)
	}

	tiles := Grid{Extent: extent, Rows: s.Rows, Cols: s.Cols}.Tiles()
	log.Printf("  tiling %s into %d tiles (%dx%d), %d at a time", s.LayerName, len(tiles), s.Rows, s.Cols, s.maxConcurrent())

	partials := make([]overlap.Overlaps, len(tiles))
	gate := semaphore.NewWeighted(int64(s.maxConcurrent()))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, tile := range tiles {
		if err := gate.Acquire(groupCtx, 1); err != nil {
			break
		}
		group.Go(func() error {
			defer gate.Release(1)
			partial, err := s.evaluateTile(groupCtx, tile)
			if err != nil {
				return err
			}
			partials[i] = partial
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	// a failed Acquire without a failing tile means ctx itself is done
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	merged := overlap.Merge(s.Options.AreaThreshold, partials...)
	log.Printf("  merged %d tiles: %d overlaps", len(tiles), len(merged))
	return merged, nil
}

func (s *Scheduler) evaluateTile(ctx context.Context, tile Tile) (_ overlap.Overlaps, err error) {
	filter := tile.Extent
	l, err := s.Source.OpenLayer(ctx, s.LayerName, &filter)
	if err != nil {
		return nil, fmt.Errorf("failed to open layer %s for tile %d,%d: %w", s.LayerName, tile.Row, tile.Col, err)
	}
	defer func() {
		if closeErr := l.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close tile %d,%d: %w", tile.Row, tile.Col, closeErr))
		}
	}()

	options := s.Options
	// a tile only sees fragments, the real threshold applies to the merged sums
	options.AreaThreshold = 0
	log.Printf("    tile %d,%d", tile.Row, tile.Col)
	partial, err := overlap.NewEvaluator(options).Evaluate(ctx, l, &filter)
	if err != nil {
		return nil, fmt.Errorf("tile %d,%d: %w", tile.Row, tile.Col, err)
	}
	return partial, nil
}

func (s *Scheduler) maxConcurrent() int {
	return max(s.MaxConcurrent, 1)
}

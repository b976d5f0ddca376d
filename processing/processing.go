// Package processing takes care of the logistics around a detection run:
// preconditions on the layer and the choice between a single pass and tiling.
// Not the overlap detection itself.
package processing

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/pdok/selfoverlap/config"
	"github.com/pdok/selfoverlap/layer"
	"github.com/pdok/selfoverlap/overlap"
	"github.com/pdok/selfoverlap/tiling"
)

var ErrUnsupportedLayerType = errors.New("layer geometry type is not polygonal")

// Detect returns the pairs of features of the layer whose overlap exceeds
// cfg.AreaThreshold. Layers larger than cfg.TileActivationFeatureCount are
// processed as a grid of concurrently evaluated tiles.
func Detect(ctx context.Context, source layer.Source, layerName string, cfg config.Config) (overlap.Overlaps, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	l, err := source.OpenLayer(ctx, layerName, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open layer %s: %w", layerName, err)
	}
	kind := l.GeometryKind()
	if !kind.AcceptableForLayer() {
		err := fmt.Errorf("%w: layer %s has geometry type %s", ErrUnsupportedLayerType, layerName, kind)
		return nil, errors.Join(err, l.Close())
	}
	count, err := l.FeatureCount()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to count features of %s: %w", layerName, err), l.Close())
	}

	options := evaluatorOptions(cfg)
	if count <= cfg.TileActivationFeatureCount {
		log.Printf("  single pass over %s (%d features)", layerName, count)
		return singlePass(ctx, l, layerName, options)
	}
	if err := l.Close(); err != nil {
		return nil, fmt.Errorf("failed to close layer %s: %w", layerName, err)
	}

	scheduler := tiling.Scheduler{
		Source:        source,
		LayerName:     layerName,
		Rows:          cfg.TileGridRows,
		Cols:          cfg.TileGridCols,
		MaxConcurrent: cfg.Concurrency(),
		Options:       options,
	}
	log.Printf("  tiled run over %s (%d features)", layerName, count)
	return scheduler.Run(ctx)
}

func singlePass(ctx context.Context, l layer.Layer, layerName string, options overlap.Options) (overlap.Overlaps, error) {
	result, err := overlap.NewEvaluator(options).Evaluate(ctx, l, nil)
	if closeErr := l.Close(); closeErr != nil {
		return nil, errors.Join(err, fmt.Errorf("failed to close layer %s: %w", layerName, closeErr))
	}
	return result, err
}

func evaluatorOptions(cfg config.Config) overlap.Options {
	return overlap.Options{
		MaxVertices:         cfg.MaxVertices,
		AreaThreshold:       cfg.AreaThreshold,
		CancelCheckInterval: cfg.CancelCheckInterval,
	}
}

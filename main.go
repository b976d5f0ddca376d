package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/carlmjohnson/versioninfo"
	"github.com/iancoleman/strcase"
	"github.com/urfave/cli/v2"

	"github.com/pdok/selfoverlap/config"
	"github.com/pdok/selfoverlap/geojson"
	"github.com/pdok/selfoverlap/gpkg"
	"github.com/pdok/selfoverlap/layer"
	"github.com/pdok/selfoverlap/overlap"
	"github.com/pdok/selfoverlap/processing"
	"github.com/pdok/selfoverlap/shapefile"
)

const SOURCE string = `source`
const LAYER string = `layer`
const CONFIG string = `config`
const MAXVERTICES string = `maxVertices`
const AREATHRESHOLD string = `areaThreshold`
const TILEGRIDROWS string = `tileGridRows`
const TILEGRIDCOLS string = `tileGridCols`
const TILEACTIVATION string = `tileActivationFeatureCount`
const MAXCONCURRENTTILES string = `maxConcurrentTiles`
const FORMAT string = `format`
const QUIET string = `quiet`

type result struct {
	Layer string  `json:"layer"`
	A     int64   `json:"a"`
	B     int64   `json:"b"`
	Area  float64 `json:"area"`
}

//nolint:funlen
func main() {
	app := cli.NewApp()
	app.Name = "selfoverlap"
	app.Usage = "Detects overlapping polygons within a layer"
	app.Version = versioninfo.Short()

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:     SOURCE,
			Aliases:  []string{"s"},
			Usage:    "Source dataset: GeoPackage (.gpkg), Shapefile (.shp) or GeoJSON (.geojson, .json)",
			Required: true,
			EnvVars:  []string{strcase.ToScreamingSnake(SOURCE)},
		},
		&cli.StringFlag{
			Name:     LAYER,
			Aliases:  []string{"l"},
			Usage:    "Layer to check. Default: every polygon table of a GeoPackage, the only layer of other sources",
			Required: false,
			EnvVars:  []string{strcase.ToScreamingSnake(LAYER)},
		},
		&cli.StringFlag{
			Name:     CONFIG,
			Aliases:  []string{"c"},
			Usage:    "JSON config file. Flags take precedence",
			Required: false,
			EnvVars:  []string{strcase.ToScreamingSnake(CONFIG)},
		},
		&cli.IntFlag{
			Name:    MAXVERTICES,
			Usage:   "Polygons with more outer ring vertices are split into parts before comparing",
			Value:   config.Default().MaxVertices,
			EnvVars: []string{strcase.ToScreamingSnake(MAXVERTICES)},
		},
		&cli.Float64Flag{
			Name:    AREATHRESHOLD,
			Aliases: []string{"t"},
			Usage:   "Report a pair when its overlap area exceeds this (in squared units of the layer)",
			Value:   config.Default().AreaThreshold,
			EnvVars: []string{strcase.ToScreamingSnake(AREATHRESHOLD)},
		},
		&cli.IntFlag{
			Name:    TILEGRIDROWS,
			Usage:   "Rows of the tile grid for large layers",
			Value:   config.Default().TileGridRows,
			EnvVars: []string{strcase.ToScreamingSnake(TILEGRIDROWS)},
		},
		&cli.IntFlag{
			Name:    TILEGRIDCOLS,
			Usage:   "Columns of the tile grid for large layers",
			Value:   config.Default().TileGridCols,
			EnvVars: []string{strcase.ToScreamingSnake(TILEGRIDCOLS)},
		},
		&cli.IntFlag{
			Name:    TILEACTIVATION,
			Usage:   "Layers with more features are processed tile by tile",
			Value:   config.Default().TileActivationFeatureCount,
			EnvVars: []string{strcase.ToScreamingSnake(TILEACTIVATION)},
		},
		&cli.IntFlag{
			Name:    MAXCONCURRENTTILES,
			Usage:   "Tiles processed at the same time. 0: number of CPUs minus one",
			Value:   config.Default().MaxConcurrentTiles,
			EnvVars: []string{strcase.ToScreamingSnake(MAXCONCURRENTTILES)},
		},
		&cli.StringFlag{
			Name:    FORMAT,
			Aliases: []string{"f"},
			Usage:   "Output format: csv or json",
			Value:   "csv",
			EnvVars: []string{strcase.ToScreamingSnake(FORMAT)},
		},
		&cli.BoolFlag{
			Name:    QUIET,
			Aliases: []string{"q"},
			Usage:   "No progress logging",
			EnvVars: []string{strcase.ToScreamingSnake(QUIET)},
		},
	}

	app.Action = func(c *cli.Context) error {
		if c.Bool(QUIET) {
			log.SetOutput(io.Discard)
		}
		format := strings.ToLower(c.String(FORMAT))
		if format != "csv" && format != "json" {
			return fmt.Errorf("unknown output format %q", c.String(FORMAT))
		}
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}

		source, layers, err := openSource(c.Context, c.String(SOURCE), c.String(LAYER))
		if err != nil {
			return err
		}

		log.Println("=== start detecting self-overlaps ===")
		var results []result
		for _, name := range layers {
			log.Printf("  checking %s", name)
			overlaps, err := processing.Detect(c.Context, source, name, cfg)
			if err != nil {
				return err
			}
			results = append(results, toResults(name, overlaps)...)
			log.Printf("  finished %s: %d overlapping pairs", name, len(overlaps))
		}
		log.Println("=== done detecting self-overlaps ===")

		if format == "json" {
			return writeJSON(os.Stdout, results)
		}
		return writeCSV(os.Stdout, results)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := app.RunContext(ctx, os.Args)
	stop()
	if err != nil {
		log.Fatal(err)
	}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String(CONFIG); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}
	if c.IsSet(MAXVERTICES) {
		cfg.MaxVertices = c.Int(MAXVERTICES)
	}
	if c.IsSet(AREATHRESHOLD) {
		cfg.AreaThreshold = c.Float64(AREATHRESHOLD)
	}
	if c.IsSet(TILEGRIDROWS) {
		cfg.TileGridRows = c.Int(TILEGRIDROWS)
	}
	if c.IsSet(TILEGRIDCOLS) {
		cfg.TileGridCols = c.Int(TILEGRIDCOLS)
	}
	if c.IsSet(TILEACTIVATION) {
		cfg.TileActivationFeatureCount = c.Int(TILEACTIVATION)
	}
	if c.IsSet(MAXCONCURRENTTILES) {
		cfg.MaxConcurrentTiles = c.Int(MAXCONCURRENTTILES)
	}
	return cfg, cfg.Validate()
}

// openSource picks the source by file extension and lists the layers to check
func openSource(ctx context.Context, path, layerName string) (layer.Source, []string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil, fmt.Errorf("error opening source: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gpkg":
		source := gpkg.Source{Path: path}
		if layerName != "" {
			return source, []string{layerName}, nil
		}
		tables, err := source.Tables(ctx)
		if err != nil {
			return nil, nil, err
		}
		var layers []string
		for _, t := range tables {
			if t.Kind.AcceptableForLayer() {
				layers = append(layers, t.Name)
			} else {
				log.Printf("  skipping %s: %s", t.Name, t.Kind)
			}
		}
		if len(layers) == 0 {
			return nil, nil, errors.New("no polygon tables in " + path)
		}
		return source, layers, nil
	case ".shp":
		source := shapefile.Source{Path: path}
		return source, []string{defaultName(layerName, source.LayerName())}, nil
	case ".geojson", ".json":
		source := geojson.Source{Path: path}
		return source, []string{defaultName(layerName, source.LayerName())}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported source %s: expected .gpkg, .shp, .geojson or .json", path)
	}
}

func defaultName(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

func toResults(layerName string, overlaps overlap.Overlaps) []result {
	sorted := overlaps.Sorted()
	results := make([]result, len(sorted))
	for i, o := range sorted {
		results[i] = result{Layer: layerName, A: o.A, B: o.B, Area: o.Area}
	}
	return results
}

func writeCSV(w io.Writer, results []result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"layer", "feature_a", "feature_b", "overlap_area"}); err != nil {
		return err
	}
	for _, r := range results {
		record := []string{
			r.Layer,
			strconv.FormatInt(r.A, 10),
			strconv.FormatInt(r.B, 10),
			strconv.FormatFloat(r.Area, 'f', -1, 64),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSON(w io.Writer, results []result) error {
	if results == nil {
		results = []result{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

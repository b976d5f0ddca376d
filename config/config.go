// Package config holds the knobs of a self-overlap detection run.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"slices"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/perimeterx/marshmallow"
	"golang.org/x/exp/maps"
)

var ErrUnknownField = errors.New("unknown configuration field")

type Config struct {
	// MaxVertices bounds the outer ring of the parts oversized polygons are split into.
	MaxVertices int `default:"512" validate:"gte=4" json:"maxVertices"`
	// AreaThreshold is the overlap area a pair has to exceed to be reported.
	AreaThreshold float64 `default:"1" validate:"gte=0" json:"areaThreshold"`

	TileGridRows int `default:"20" validate:"gte=1" json:"tileGridRows"`
	TileGridCols int `default:"20" validate:"gte=1" json:"tileGridCols"`
	// Layers with more features than this are processed tile by tile.
	TileActivationFeatureCount int `default:"1000000" validate:"gte=0" json:"tileActivationFeatureCount"`
	// 0 means the number of CPUs minus one (at least 1).
	MaxConcurrentTiles int `default:"0" validate:"gte=0" json:"maxConcurrentTiles"`

	CancelCheckInterval int `default:"1000" validate:"gte=1" json:"cancelCheckInterval"`
}

// Default returns the configuration with every field at its default.
func Default() Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(fmt.Errorf("invalid config defaults: %w", err))
	}
	return c
}

// Load reads a JSON configuration file. Absent fields keep their default;
// unknown fields are an error.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("error reading config: %w", err)
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("error loading config %s: %w", path, err)
	}
	return c, nil
}

func (c *Config) UnmarshalJSON(data []byte) error {
	err := defaults.Set(c)
	if err != nil {
		return err
	}

	unknown, err := marshmallow.Unmarshal(data, c, marshmallow.WithExcludeKnownFieldsFromMap(true))
	if err != nil {
		return err
	}
	if len(unknown) > 0 {
		keys := maps.Keys(unknown)
		slices.Sort(keys)
		return fmt.Errorf("%w: %s", ErrUnknownField, strings.Join(keys, ", "))
	}
	return c.Validate()
}

func (c Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate.Struct(c)
}

// Concurrency is the resolved number of tiles processed at the same time.
func (c Config) Concurrency() int {
	if c.MaxConcurrentTiles > 0 {
		return c.MaxConcurrentTiles
	}
	return max(runtime.NumCPU()-1, 1)
}

// Package config loads the YAML configuration of the voxel renderer and validates it against an
// embedded JSON schema.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-voxel/engine/graph"
	"github.com/Carmen-Shannon/oxy-voxel/engine/uniform"
	"github.com/Carmen-Shannon/oxy-voxel/engine/voxel"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed assets/config.schema.json
var schemaSource string

const schemaURL = "oxy-voxel://config.schema.json"

// ErrInvalidConfig is returned when a document does not match the schema.
var ErrInvalidConfig = errors.New("config: invalid configuration")

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

// World selects the world loaded at start-up.
type World struct {
	// Source is "empty" or the path of a snapshot file.
	Source         string  `yaml:"source"`
	Size           uint32  `yaml:"size"`
	VoxelsPerMeter float32 `yaml:"voxels_per_meter"`
}

// Buffers holds GPU buffer lengths in u32 elements.
type Buffers struct {
	Physics   uint64 `yaml:"physics"`
	Animation uint64 `yaml:"animation"`
}

// Window configures the demo window.
type Window struct {
	Title      string  `yaml:"title"`
	Width      int     `yaml:"width"`
	Height     int     `yaml:"height"`
	FrameLimit float64 `yaml:"frame_limit"`
}

// Profiler configures frame statistics.
type Profiler struct {
	Enabled bool `yaml:"enabled"`
	// TraceDB is the sqlite path frame reports are written to. Empty disables the trace.
	TraceDB string `yaml:"trace_db"`
}

// Remote configures the websocket control server.
type Remote struct {
	// Addr is the listen address. Empty disables the server.
	Addr string `yaml:"addr"`
}

// Config is the full configuration document.
type Config struct {
	World    World                 `yaml:"world"`
	Graph    graph.Settings        `yaml:"graph"`
	Trace    uniform.TraceSettings `yaml:"trace"`
	Buffers  Buffers               `yaml:"buffers"`
	Workers  int                   `yaml:"workers"`
	Window   Window                `yaml:"window"`
	Profiler Profiler              `yaml:"profiler"`
	Remote   Remote                `yaml:"remote"`
	LogLevel string                `yaml:"log_level"`
}

// Default returns the configuration used for keys a document leaves out.
//
// Returns:
//   - Config: a 256³ empty world at 4 voxels per metre with every node enabled
func Default() Config {
	return Config{
		World:    World{Source: "empty", Size: 256, VoxelsPerMeter: 4},
		Graph:    graph.DefaultSettings(),
		Trace:    uniform.DefaultTraceSettings(),
		Buffers:  Buffers{Physics: 1_000_000, Animation: 1_000_000},
		Workers:  max(runtime.NumCPU()/2, 1),
		Window:   Window{Title: "oxy-voxel", Width: 1280, Height: 720},
		LogLevel: "info",
	}
}

// Load reads and validates a YAML file. Keys missing from the file keep their defaults.
//
// Parameters:
//   - path: the YAML file
//
// Returns:
//   - Config: the merged configuration
//   - error: if the file cannot be read, is not YAML, or fails validation (ErrInvalidConfig)
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates and decodes a YAML document on top of Default().
//
// Parameters:
//   - raw: the YAML document
//
// Returns:
//   - Config: the merged configuration
//   - error: a YAML syntax error or ErrInvalidConfig
func Parse(raw []byte) (Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(raw)) == 0 {
		return cfg, nil
	}

	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := validate(doc); err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// validate checks a decoded YAML document against the schema. The document is passed through
// JSON first so the validator sees JSON value types.
func validate(doc any) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}
	if doc == nil {
		return nil
	}
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	var v any
	if err := json.Unmarshal(asJSON, &v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, strings.NewReader(schemaSource)); err != nil {
			schemaErr = fmt.Errorf("config: schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Source returns the world source the configuration names.
func (c Config) Source() voxel.Source {
	return voxel.ParseSource(c.World.Source, c.World.Size)
}

// Level maps LogLevel to a slog level. Unknown names map to Info.
func (c Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

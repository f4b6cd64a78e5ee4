package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-voxel/engine/voxel"
)

func TestParseEmptyDocumentKeepsDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := Default()
	if cfg.World != want.World {
		t.Errorf("World = %+v, want %+v", cfg.World, want.World)
	}
	if cfg.Buffers.Physics != 1_000_000 || cfg.Buffers.Animation != 1_000_000 {
		t.Errorf("Buffers = %+v, want 1000000 each", cfg.Buffers)
	}
	if cfg.Graph != want.Graph {
		t.Errorf("Graph = %+v, want %+v", cfg.Graph, want.Graph)
	}
}

func TestParseMergesOverDefaults(t *testing.T) {
	doc := []byte(`
world:
  size: 64
graph:
  physics: false
trace:
  samples: 4
remote:
  addr: 127.0.0.1:7000
log_level: debug
`)
	cfg, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.World.Size != 64 {
		t.Errorf("World.Size = %d, want 64", cfg.World.Size)
	}
	if cfg.World.VoxelsPerMeter != 4 {
		t.Errorf("World.VoxelsPerMeter = %v, want 4", cfg.World.VoxelsPerMeter)
	}
	if cfg.Graph.Physics {
		t.Errorf("Graph.Physics = true, want false")
	}
	if !cfg.Graph.Trace {
		t.Errorf("Graph.Trace = false, want the default true")
	}
	if cfg.Trace.Samples != 4 || !cfg.Trace.Shadows {
		t.Errorf("Trace = %+v, want 4 samples with shadows", cfg.Trace)
	}
	if cfg.Remote.Addr != "127.0.0.1:7000" {
		t.Errorf("Remote.Addr = %q, want 127.0.0.1:7000", cfg.Remote.Addr)
	}
	if cfg.Level() != slog.LevelDebug {
		t.Errorf("Level() = %v, want %v", cfg.Level(), slog.LevelDebug)
	}
}

func TestParseRejectsSchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown key", "colour: red\n"},
		{"size not a multiple of the brick", "world:\n  size: 30\n"},
		{"zero voxels per metre", "world:\n  voxels_per_meter: 0\n"},
		{"wrong type", "graph:\n  trace: yes please\n"},
		{"zero samples", "trace:\n  samples: 0\n"},
		{"unknown log level", "log_level: loud\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.doc)); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Parse() error = %v, want %v", err, ErrInvalidConfig)
			}
		})
	}
}

func TestParseRejectsBadYAML(t *testing.T) {
	_, err := Parse([]byte("world: [unclosed\n"))
	if err == nil {
		t.Fatal("Parse() error = nil, want a YAML error")
	}
	if errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Parse() error = %v, want a syntax error, not a schema error", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oxy.yaml")
	if err := os.WriteFile(path, []byte("world:\n  source: worlds/sand.vxw\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Source(); got.Kind != voxel.SourceFile || got.Path != "worlds/sand.vxw" {
		t.Errorf("Source() = %+v, want file worlds/sand.vxw", got)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("Load() of a missing file error = nil, want an error")
	}
}

func TestDefaultSourceIsEmptyWorld(t *testing.T) {
	got := Default().Source()
	if got.Kind != voxel.SourceEmpty || got.Size != 256 {
		t.Errorf("Source() = %+v, want empty(256)", got)
	}
}

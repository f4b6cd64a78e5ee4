package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-voxel/common"
)

const smallConfig = `
world:
  size: 16
buffers:
  physics: 1024
  animation: 1024
workers: 1
window:
  width: 8
  height: 6
log_level: warn
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(smallConfig), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func keepLogger(t *testing.T) {
	prev := common.Logger()
	t.Cleanup(func() { common.SetLogger(prev) })
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"defaults", nil, false},
		{"headless", []string{"-headless", "-frames", "3"}, false},
		{"zero frames", []string{"-headless", "-frames", "0"}, true},
		{"unknown flag", []string{"-nope"}, true},
		{"material zero", []string{"-material", "0"}, true},
		{"material too large", []string{"-material", "255"}, true},
		{"mesh material", []string{"-mesh", "rock.glb", "-material", "8"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFlags(tt.args, &bytes.Buffer{})
			if (err != nil) != tt.wantErr {
				t.Errorf("parseFlags(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
		})
	}
}

func TestHeadlessRunSavesWorld(t *testing.T) {
	keepLogger(t)
	cfg := writeConfig(t)
	dir := t.TempDir()
	snapshot := filepath.Join(dir, "world.vxw")
	traceDB := filepath.Join(dir, "trace.db")

	var stderr bytes.Buffer
	args := []string{"-config", cfg, "-headless", "-frames", "2", "-save", snapshot, "-trace-db", traceDB}
	if err := run(args, &stderr); err != nil {
		t.Fatalf("run() error = %v, log:\n%s", err, stderr.String())
	}
	for _, path := range []string{snapshot, traceDB} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("Stat(%s) error = %v", filepath.Base(path), err)
		}
	}

	// The snapshot loads as the world source of a second run.
	reload := filepath.Join(dir, "reload.yaml")
	doc := "world:\n  source: " + snapshot + "\n  size: 16\nworkers: 1\nlog_level: warn\n" +
		"buffers:\n  physics: 1024\n  animation: 1024\nwindow:\n  width: 8\n  height: 6\n"
	if err := os.WriteFile(reload, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := run([]string{"-config", reload, "-headless", "-frames", "1"}, &stderr); err != nil {
		t.Fatalf("run(reload) error = %v, log:\n%s", err, stderr.String())
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	keepLogger(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("world:\n  size: 7\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := run([]string{"-config", path, "-headless"}, &bytes.Buffer{}); err == nil {
		t.Error("run() error = nil, want a validation error")
	}
}

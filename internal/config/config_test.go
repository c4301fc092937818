package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jrcoleman/dam/internal/engine"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dam.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BufferPoolFrames != engine.DefaultFrameCount {
		t.Fatalf("BufferPoolFrames = %d, want %d", cfg.BufferPoolFrames, engine.DefaultFrameCount)
	}
	if cfg.Verbose {
		t.Fatalf("Verbose = true, want false by default")
	}
}

func TestLoad_OverridesFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dam.yaml")
	doc := "buffer_pool_frames: 128\nverbose: true\ncheckpoint_cron: \"0 0 * * * *\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BufferPoolFrames != 128 {
		t.Fatalf("BufferPoolFrames = %d, want 128", cfg.BufferPoolFrames)
	}
	if !cfg.Verbose {
		t.Fatalf("Verbose = false, want true")
	}
	if cfg.CheckpointCron != "0 0 * * * *" {
		t.Fatalf("CheckpointCron = %q", cfg.CheckpointCron)
	}
}

func TestLoad_ZeroFrameCountFallsBackToDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dam.yaml")
	if err := os.WriteFile(path, []byte("buffer_pool_frames: 0\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BufferPoolFrames != engine.DefaultFrameCount {
		t.Fatalf("BufferPoolFrames = %d, want default %d", cfg.BufferPoolFrames, engine.DefaultFrameCount)
	}
}

func TestLoad_MalformedYAMLRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dam.yaml")
	if err := os.WriteFile(path, []byte("not: [valid yaml"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for malformed YAML")
	}
}

// Package config loads the optional dam.yaml file that overrides the
// engine defaults spec.md §6 lists (buffer-pool frame count, verbose
// logging) plus the checkpoint schedule internal/checkpoint runs.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jrcoleman/dam/internal/engine"
)

// Config is the on-disk YAML shape for dam.yaml, sitting alongside
// dam.db/dam.meta in the store's root directory.
type Config struct {
	BufferPoolFrames int    `yaml:"buffer_pool_frames"`
	Verbose          bool   `yaml:"verbose"`
	CheckpointCron   string `yaml:"checkpoint_cron"`
}

// Default returns the engine's built-in defaults (spec.md §6: frame count
// 512) with checkpoints every five minutes.
func Default() Config {
	return Config{
		BufferPoolFrames: engine.DefaultFrameCount,
		Verbose:          false,
		CheckpointCron:   "0 */5 * * * *",
	}
}

// Load reads path if present, overlaying its fields onto Default(); a
// missing file is not an error (Default() alone applies).
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.BufferPoolFrames <= 0 {
		cfg.BufferPoolFrames = engine.DefaultFrameCount
	}
	if cfg.CheckpointCron == "" {
		cfg.CheckpointCron = "0 */5 * * * *"
	}
	return cfg, nil
}

// Package config loads the embedding application's settings from an
// optional YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/srodi/procscope/pkg/types"
)

// Config is the parameter surface the embedding application supplies.
type Config struct {
	// Interval is the sampling cadence.
	Interval time.Duration
	// HistoryLen bounds the rolling usage window kept for graphs.
	HistoryLen int
	// TopK is how many rows consumers display per table.
	TopK int
	// HideKernel drops kernel worker threads from snapshots.
	HideKernel bool
	// ExcludeNames lists executable names to leave out of every snapshot.
	ExcludeNames []string
	// CPUClamp overrides the per-process CPU ceiling of 100 x cores.
	CPUClamp float64
	// LogLevel is a logrus level name such as "info" or "debug".
	LogLevel string
}

// fileConfig mirrors Config with optional fields so an absent key keeps its
// default. Interval is a duration string like "2s" or "500ms".
type fileConfig struct {
	Interval     string   `yaml:"interval"`
	HistoryLen   int      `yaml:"history_len"`
	TopK         int      `yaml:"topk"`
	HideKernel   *bool    `yaml:"hide_kernel"`
	ExcludeNames []string `yaml:"exclude_names"`
	CPUClamp     float64  `yaml:"cpu_clamp"`
	LogLevel     string   `yaml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Interval:   types.DefaultInterval,
		HistoryLen: types.DefaultHistoryLen,
		TopK:       types.DefaultTopK,
		HideKernel: true,
		LogLevel:   "info",
	}
}

// Load reads a YAML config file over the defaults. Keys the file leaves out
// or sets to nonsensical values keep their default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.merge(file); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) merge(file fileConfig) error {
	if file.Interval != "" {
		interval, err := time.ParseDuration(file.Interval)
		if err != nil {
			return fmt.Errorf("parsing interval: %w", err)
		}
		if interval > 0 {
			c.Interval = interval
		}
	}
	if file.HistoryLen > 0 {
		c.HistoryLen = file.HistoryLen
	}
	if file.TopK > 0 {
		c.TopK = file.TopK
	}
	if file.HideKernel != nil {
		c.HideKernel = *file.HideKernel
	}
	if len(file.ExcludeNames) > 0 {
		c.ExcludeNames = file.ExcludeNames
	}
	if file.CPUClamp > 0 {
		c.CPUClamp = file.CPUClamp
	}
	if file.LogLevel != "" {
		c.LogLevel = file.LogLevel
	}
	return nil
}

// Exclude builds the name filter the collector expects from ExcludeNames,
// or nil when nothing is excluded.
func (c Config) Exclude() func(name string) bool {
	if len(c.ExcludeNames) == 0 {
		return nil
	}
	excluded := make(map[string]struct{}, len(c.ExcludeNames))
	for _, name := range c.ExcludeNames {
		excluded[name] = struct{}{}
	}
	return func(name string) bool {
		_, drop := excluded[name]
		return !drop
	}
}

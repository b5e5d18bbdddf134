package model

import (
	"fmt"
	"math"
	"runtime"
	"time"
)

// Config is the complete shiftdetect configuration.
// It is passed explicitly to the pipeline; nothing reads global state.
type Config struct {
	Calibration CalibrationConfig `yaml:"calibration" mapstructure:"calibration"`
	Columns     ColumnsConfig     `yaml:"columns" mapstructure:"columns"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Output      OutputConfig      `yaml:"output" mapstructure:"output"`
	Logging     LoggingConfig     `yaml:"logging" mapstructure:"logging"`
}

// CalibrationConfig controls the threshold sweep
type CalibrationConfig struct {
	Thresholds []float64 `yaml:"thresholds" mapstructure:"thresholds"`     // Candidate thresholds, in encounter order
	Strategies []string  `yaml:"strategies" mapstructure:"strategies"`     // Strategy names, in encounter order
	Metrics    []string  `yaml:"metrics,omitempty" mapstructure:"metrics"` // Extra score columns, each calibrated per row
	Workers    int       `yaml:"workers" mapstructure:"workers"`           // Parallel (threshold, strategy) evaluations
}

// ColumnsConfig maps table headers to record fields
type ColumnsConfig struct {
	UnitID     string `yaml:"unit_id" mapstructure:"unit_id"`
	SentIdx    string `yaml:"sent_idx" mapstructure:"sent_idx"`
	Src        string `yaml:"src" mapstructure:"src"`
	Tgt        string `yaml:"tgt" mapstructure:"tgt"`
	ItemScore  string `yaml:"item_score" mapstructure:"item_score"`
	UnitScore  string `yaml:"unit_score" mapstructure:"unit_score"`
	HumanLabel string `yaml:"human_label" mapstructure:"human_label"`
}

// CacheConfig controls partition memoization
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskDir   string        `yaml:"disk_dir" mapstructure:"disk_dir"` // Empty disables the disk layer
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// StoreConfig controls persistence of calibration runs
type StoreConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// OutputConfig controls rendering and exports
type OutputConfig struct {
	Dir             string `yaml:"dir" mapstructure:"dir"`
	Format          string `yaml:"format" mapstructure:"format"` // table, markdown, json, yaml
	TimestampLayout string `yaml:"timestamp_layout" mapstructure:"timestamp_layout"`
	Verbose         bool   `yaml:"verbose" mapstructure:"verbose"`
}

// LoggingConfig controls the slog handler
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // text, json
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Calibration: CalibrationConfig{
			Thresholds: []float64{0.40, 0.45, 0.50, 0.55, 0.60},
			Strategies: []string{string(StrategyWord), string(StrategySentence), string(StrategyBasic)},
			Workers:    runtime.NumCPU(),
		},
		Columns: ColumnsConfig{
			UnitID:     "unit_id",
			SentIdx:    "sent_idx",
			Src:        "src",
			Tgt:        "tgt",
			ItemScore:  "item_score",
			UnitScore:  "unit_score",
			HumanLabel: "human_label",
		},
		Cache: CacheConfig{
			Enabled:   true,
			MemoryTTL: 30 * time.Minute,
			DiskDir:   "",
			DiskTTL:   7 * 24 * time.Hour,
		},
		Store: StoreConfig{
			Enabled: false,
			Path:    ".shiftdetect/runs.db",
		},
		Output: OutputConfig{
			Dir:             ".",
			Format:          "table",
			TimestampLayout: "02012006_150405",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks the configuration for values the engine cannot run with
func (c *Config) Validate() error {
	if len(c.Calibration.Thresholds) == 0 {
		return fmt.Errorf("calibration.thresholds: at least one threshold required")
	}
	for _, th := range c.Calibration.Thresholds {
		if math.IsNaN(th) || math.IsInf(th, 0) {
			return fmt.Errorf("calibration.thresholds: non-finite threshold %v", th)
		}
	}
	if len(c.Calibration.Strategies) == 0 && len(c.Calibration.Metrics) == 0 {
		return fmt.Errorf("calibration.strategies: at least one strategy or metric required")
	}
	if _, err := ParseStrategies(c.Calibration.Strategies); err != nil {
		return fmt.Errorf("calibration.strategies: %w", err)
	}
	if _, err := ParseMetrics(c.Calibration.Metrics); err != nil {
		return fmt.Errorf("calibration.metrics: %w", err)
	}
	switch c.Output.Format {
	case "table", "markdown", "json", "yaml":
	default:
		return fmt.Errorf("output.format: unknown format %q", c.Output.Format)
	}
	for name, col := range map[string]string{
		"unit_id":    c.Columns.UnitID,
		"sent_idx":   c.Columns.SentIdx,
		"src":        c.Columns.Src,
		"item_score": c.Columns.ItemScore,
	} {
		if col == "" {
			return fmt.Errorf("columns.%s: column name required", name)
		}
	}
	return nil
}

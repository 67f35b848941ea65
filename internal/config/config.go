// Package config provides the configuration for the htn planner tools.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is where the CLI looks for a config file when none is given.
const DefaultConfigPath = ".htn/config.yaml"

// Config holds all settings of the planner tools.
type Config struct {
	// Core settings
	Name    string `yaml:"name" json:"name,omitempty"`
	Version string `yaml:"version" json:"version,omitempty"`

	// Search limits
	Planner PlannerLimits `yaml:"planner" json:"planner,omitempty"`

	// Step-event persistence
	Trace TraceConfig `yaml:"trace" json:"trace,omitempty"`

	// Concurrent problem solving
	Batch BatchConfig `yaml:"batch" json:"batch,omitempty"`

	// File watching
	Watch WatchConfig `yaml:"watch" json:"watch,omitempty"`

	// Logging
	Logging LoggingConfig `yaml:"logging" json:"logging,omitempty"`
}

// TraceConfig configures the SQLite step-event store.
type TraceConfig struct {
	Enabled      bool   `yaml:"enabled" json:"enabled,omitempty"`
	DatabasePath string `yaml:"database_path" json:"database_path,omitempty"`
	Driver       string `yaml:"driver" json:"driver,omitempty"`             // sqlite (pure Go) or sqlite3 (cgo)
	BusBuffer    int    `yaml:"bus_buffer" json:"bus_buffer,omitempty"`     // subscriber channel size
	BatchWindow  string `yaml:"batch_window" json:"batch_window,omitempty"` // e.g. "100ms"
}

// BatchConfig configures the batch runner.
type BatchConfig struct {
	Workers  int  `yaml:"workers" json:"workers,omitempty"`
	FailFast bool `yaml:"fail_fast" json:"fail_fast,omitempty"`
}

// WatchConfig configures the watch command.
type WatchConfig struct {
	Debounce string `yaml:"debounce" json:"debounce,omitempty"` // e.g. "200ms"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "htn",
		Version: "1.0.0",

		Planner: PlannerLimits{
			RecursionLimit: 10000,
			MaxPlans:       1,
			Timeout:        "30s",
		},

		Trace: TraceConfig{
			Enabled:      false,
			DatabasePath: ".htn/trace.db",
			Driver:       "sqlite",
			BusBuffer:    256,
			BatchWindow:  "100ms",
		},

		Batch: BatchConfig{
			Workers: 4,
		},

		Watch: WatchConfig{
			Debounce: "200ms",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("HTN_RECURSION_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Planner.RecursionLimit = n
		}
	}
	if v := os.Getenv("HTN_MAX_PLANS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Planner.MaxPlans = n
		}
	}
	if v := os.Getenv("HTN_TIMEOUT"); v != "" {
		c.Planner.Timeout = v
	}

	if path := os.Getenv("HTN_TRACE_DB"); path != "" {
		c.Trace.DatabasePath = path
		c.Trace.Enabled = true
	}
	if driver := os.Getenv("HTN_TRACE_DRIVER"); driver != "" {
		c.Trace.Driver = driver
	}

	if v := os.Getenv("HTN_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Batch.Workers = n
		}
	}

	if level := os.Getenv("HTN_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if v := os.Getenv("HTN_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugMode = b
		}
	}
}

// GetPlannerTimeout returns the per-problem search timeout. Zero means none.
func (c *Config) GetPlannerTimeout() time.Duration {
	if c.Planner.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Planner.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetWatchDebounce returns the debounce interval for file events.
func (c *Config) GetWatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d <= 0 {
		return 200 * time.Millisecond
	}
	return d
}

// GetTraceBatchWindow returns how long the event bus buffers before
// delivering.
func (c *Config) GetTraceBatchWindow() time.Duration {
	d, err := time.ParseDuration(c.Trace.BatchWindow)
	if err != nil || d < 0 {
		return 100 * time.Millisecond
	}
	return d
}

// ValidDrivers lists the accepted trace database drivers.
var ValidDrivers = []string{"sqlite", "sqlite3"}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := c.ValidatePlannerLimits(); err != nil {
		return err
	}

	validDriver := false
	for _, d := range ValidDrivers {
		if c.Trace.Driver == d {
			validDriver = true
			break
		}
	}
	if !validDriver {
		return fmt.Errorf("invalid trace driver: %s (valid: %v)", c.Trace.Driver, ValidDrivers)
	}
	if c.Trace.Enabled && c.Trace.DatabasePath == "" {
		return fmt.Errorf("trace.database_path is required when tracing is enabled")
	}

	if c.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be >= 1")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}

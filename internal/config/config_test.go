package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"HTN_RECURSION_LIMIT", "HTN_MAX_PLANS", "HTN_TIMEOUT", "HTN_TRACE_DB",
		"HTN_TRACE_DRIVER", "HTN_WORKERS", "HTN_LOG_LEVEL", "HTN_DEBUG",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "htn", cfg.Name)
	assert.Equal(t, 10000, cfg.Planner.RecursionLimit)
	assert.Equal(t, 1, cfg.Planner.MaxPlans)
	assert.Equal(t, "sqlite", cfg.Trace.Driver)
	assert.False(t, cfg.Trace.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Planner.RecursionLimit = 500
	cfg.Planner.MaxPlans = 0
	cfg.Trace.Enabled = true
	cfg.Trace.Driver = "sqlite3"
	cfg.Logging.Categories = map[string]bool{"search": false}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("planner:\n  recursion_limit: 42\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Planner.RecursionLimit)
	assert.Equal(t, "200ms", cfg.Watch.Debounce)
	assert.Equal(t, 4, cfg.Batch.Workers)
}

func TestLoad_BadYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("planner: [unclosed"), 0644))
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestEnvOverrides(t *testing.T) {
	t.Run("planner limits", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("HTN_RECURSION_LIMIT", "77")
		t.Setenv("HTN_MAX_PLANS", "3")
		t.Setenv("HTN_TIMEOUT", "5s")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, 77, cfg.Planner.RecursionLimit)
		assert.Equal(t, 3, cfg.Planner.MaxPlans)
		assert.Equal(t, 5*time.Second, cfg.GetPlannerTimeout())
	})

	t.Run("trace db enables tracing", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("HTN_TRACE_DB", "/tmp/x.db")
		t.Setenv("HTN_TRACE_DRIVER", "sqlite3")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.True(t, cfg.Trace.Enabled)
		assert.Equal(t, "/tmp/x.db", cfg.Trace.DatabasePath)
		assert.Equal(t, "sqlite3", cfg.Trace.Driver)
	})

	t.Run("malformed numbers are ignored", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("HTN_RECURSION_LIMIT", "lots")
		t.Setenv("HTN_WORKERS", "-")
		t.Setenv("HTN_DEBUG", "maybe")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, 10000, cfg.Planner.RecursionLimit)
		assert.Equal(t, 4, cfg.Batch.Workers)
		assert.False(t, cfg.Logging.DebugMode)
	})

	t.Run("logging", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("HTN_LOG_LEVEL", "debug")
		t.Setenv("HTN_DEBUG", "true")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.True(t, cfg.Logging.DebugMode)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"recursion limit", func(c *Config) { c.Planner.RecursionLimit = 0 }, "recursion_limit"},
		{"max plans", func(c *Config) { c.Planner.MaxPlans = -1 }, "max_plans"},
		{"step budget", func(c *Config) { c.Planner.StepBudget = -5 }, "step_budget"},
		{"timeout", func(c *Config) { c.Planner.Timeout = "soon" }, "planner.timeout"},
		{"driver", func(c *Config) { c.Trace.Driver = "postgres" }, "invalid trace driver"},
		{"trace path", func(c *Config) { c.Trace.Enabled = true; c.Trace.DatabasePath = "" }, "database_path"},
		{"workers", func(c *Config) { c.Batch.Workers = 0 }, "batch.workers"},
		{"level", func(c *Config) { c.Logging.Level = "loud" }, "invalid log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfig_DurationHelpers(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30*time.Second, cfg.GetPlannerTimeout())
	assert.Equal(t, 200*time.Millisecond, cfg.GetWatchDebounce())
	assert.Equal(t, 100*time.Millisecond, cfg.GetTraceBatchWindow())

	cfg.Planner.Timeout = ""
	assert.Zero(t, cfg.GetPlannerTimeout())

	cfg.Watch.Debounce = "garbage"
	cfg.Trace.BatchWindow = "0s"
	assert.Equal(t, 200*time.Millisecond, cfg.GetWatchDebounce())
	assert.Zero(t, cfg.GetTraceBatchWindow())
}

func TestLoggingConfig(t *testing.T) {
	lc := LoggingConfig{Level: "warn", Format: "json"}
	assert.False(t, lc.IsCategoryEnabled("search"), "production mode disables categories")

	lc.DebugMode = true
	assert.True(t, lc.IsCategoryEnabled("search"))

	lc.Categories = map[string]bool{"search": false}
	assert.False(t, lc.IsCategoryEnabled("search"))
	assert.True(t, lc.IsCategoryEnabled("loader"))

	opts := lc.Options()
	assert.True(t, opts.JSONFormat)
	assert.True(t, opts.DebugMode)
	assert.Equal(t, "warn", opts.Level)
	assert.Equal(t, lc.Categories, opts.Categories)
}

// Package logging provides config-driven categorized logging for htnplan,
// backed by zap.
// Logging is controlled by debug_mode in the config - when false, every
// category logger is a no-op.
package logging

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot   Category = "boot"   // Startup, config loading
	CategorySearch Category = "search" // Planner search steps and guards
	CategoryState  Category = "state"  // World state rollbacks
	CategoryLoader Category = "loader" // Domain and problem loading
	CategoryTrace  Category = "trace"  // Step-event sinks and the trace store
	CategoryBatch  Category = "batch"  // Concurrent planner runs
	CategoryWatch  Category = "watch"  // File watching and replanning
)

// Options mirrors the relevant parts of config.LoggingConfig
// to avoid circular imports
type Options struct {
	DebugMode  bool
	Level      string // debug, info, warn, error
	JSONFormat bool
	File       string // empty means stderr
	Categories map[string]bool
}

// Logger is a category logger. The zero value (and any logger for a disabled
// category) discards everything.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	base    *zap.Logger
	opts    Options
	loggers = make(map[Category]*Logger)
)

// Initialize builds the zap logger described by o. With DebugMode off no
// logger is built and all categories stay silent.
func Initialize(o Options) error {
	if !o.DebugMode {
		InitializeWith(nil, o)
		return nil
	}

	cfg := zap.NewProductionConfig()
	if !o.JSONFormat {
		cfg = zap.NewDevelopmentConfig()
	}
	level := zapcore.InfoLevel
	if o.Level != "" {
		parsed, err := zapcore.ParseLevel(o.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", o.Level, err)
		}
		level = parsed
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	if o.File != "" {
		cfg.OutputPaths = []string{o.File}
	}

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	InitializeWith(l, o)

	boot := Get(CategoryBoot)
	boot.Info("logging initialized")
	boot.Debug("level=%s json=%v file=%q", level, o.JSONFormat, o.File)
	return nil
}

// InitializeWith installs an existing zap logger. A nil logger disables
// logging. Tests use this with an observer core.
func InitializeWith(l *zap.Logger, o Options) {
	mu.Lock()
	defer mu.Unlock()
	base = l
	opts = o
	if l != nil {
		opts.DebugMode = true
	}
	loggers = make(map[Category]*Logger)
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabled(category)
}

func categoryEnabled(category Category) bool {
	if base == nil {
		return false
	}
	if opts.Categories == nil {
		return true
	}
	enabled, exists := opts.Categories[string(category)]
	if !exists {
		return true // Enable by default if not specified
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or category is disabled.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := &Logger{category: category}
	if categoryEnabled(category) {
		l.sugar = base.Named(string(category)).Sugar()
	}
	loggers[category] = l
	return l
}

// Enabled reports whether l writes anything.
func (l *Logger) Enabled() bool { return l.sugar != nil }

// With returns a logger that adds key/value context to every entry.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	if l.sugar == nil {
		return l
	}
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Errorf(format, args...)
}

// StructuredLog writes one entry with structured fields
func (l *Logger) StructuredLog(level zapcore.Level, msg string, fields ...zap.Field) {
	if l.sugar == nil {
		return
	}
	if ce := l.sugar.Desugar().Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

// Sync flushes buffered entries (call at shutdown)
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if base != nil {
		_ = base.Sync()
	}
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) {
	Get(CategoryBoot).Debug(format, args...)
}

// Search logs to the search category
func Search(format string, args ...interface{}) {
	Get(CategorySearch).Info(format, args...)
}

// SearchDebug logs debug to the search category
func SearchDebug(format string, args ...interface{}) {
	Get(CategorySearch).Debug(format, args...)
}

// SearchWarn logs a warning to the search category
func SearchWarn(format string, args ...interface{}) {
	Get(CategorySearch).Warn(format, args...)
}

// Loader logs to the loader category
func Loader(format string, args ...interface{}) {
	Get(CategoryLoader).Info(format, args...)
}

// LoaderDebug logs debug to the loader category
func LoaderDebug(format string, args ...interface{}) {
	Get(CategoryLoader).Debug(format, args...)
}

// Trace logs to the trace category
func Trace(format string, args ...interface{}) {
	Get(CategoryTrace).Info(format, args...)
}

// TraceError logs an error to the trace category
func TraceError(format string, args ...interface{}) {
	Get(CategoryTrace).Error(format, args...)
}

// Batch logs to the batch category
func Batch(format string, args ...interface{}) {
	Get(CategoryBatch).Info(format, args...)
}

// BatchDebug logs debug to the batch category
func BatchDebug(format string, args ...interface{}) {
	Get(CategoryBatch).Debug(format, args...)
}

// Watch logs to the watch category
func Watch(format string, args ...interface{}) {
	Get(CategoryWatch).Info(format, args...)
}

// WatchError logs an error to the watch category
func WatchError(format string, args ...interface{}) {
	Get(CategoryWatch).Error(format, args...)
}

// =============================================================================
// TIMING HELPERS - For performance logging
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}

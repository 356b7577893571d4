// Package logging provides config-driven categorized logging for dossier.
// Each category writes to its own file under the configured log directory.
// Logging is controlled by debug_mode in the config - when false, no logs are written.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot Category = "boot" // Boot/initialization
	CategoryAPI  Category = "api"  // LLM API calls

	// Pipeline stages
	CategoryOrchestrator Category = "orchestrator" // Run lifecycle, state merges
	CategoryPlanner      Category = "planner"
	CategoryResearcher   Category = "researcher"
	CategoryWriter       Category = "writer"
	CategoryVerifier     Category = "verifier"
	CategoryTrace        Category = "trace" // Span begin/end

	// Adapters
	CategoryEmbedding Category = "embedding" // Embedding engine
	CategoryStore     Category = "store"     // Chunk index operations
	CategoryIngest    Category = "ingest"    // Document loading and chunking
	CategoryHistory   Category = "history"   // Run history persistence
	CategoryEval      Category = "eval"      // Batch evaluation
)

// AllCategories lists every known category, in declaration order.
var AllCategories = []Category{
	CategoryBoot, CategoryAPI,
	CategoryOrchestrator, CategoryPlanner, CategoryResearcher, CategoryWriter, CategoryVerifier, CategoryTrace,
	CategoryEmbedding, CategoryStore, CategoryIngest, CategoryHistory, CategoryEval,
}

// Options mirrors config.LoggingConfig to avoid an import cycle.
type Options struct {
	DebugMode  bool
	Dir        string
	Level      string          // debug, info, warn, error
	JSONFormat bool            // JSON lines instead of console text
	Categories map[string]bool // empty = all enabled
}

// Logger is a category-bound logger with printf-style methods.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	files     []*os.File
	opts      Options
	level     zap.AtomicLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	// testCore, when set, replaces every file core.
	testCore zapcore.Core
)

// Initialize sets up the log directory and resets all category loggers.
// Should be called once at startup.
func Initialize(o Options) error {
	CloseAll()

	if o.DebugMode {
		if o.Dir == "" {
			return fmt.Errorf("log directory required when debug_mode is enabled")
		}
		if err := os.MkdirAll(o.Dir, 0755); err != nil {
			return fmt.Errorf("failed to create logs directory: %w", err)
		}
	}

	loggersMu.Lock()
	opts = o
	level.SetLevel(parseLevel(o.Level))
	loggersMu.Unlock()

	if !o.DebugMode {
		return nil // Silent no-op in production mode
	}

	Boot("=== dossier logging initialized ===")
	Boot("Logs directory: %s", o.Dir)
	Boot("Log level: %s", level.Level())
	if len(o.Categories) == 0 {
		Boot("All categories enabled (no category filter)")
	}
	return nil
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// IsDebugMode reports whether file logging is active.
func IsDebugMode() bool {
	loggersMu.RLock()
	defer loggersMu.RUnlock()
	return opts.DebugMode || testCore != nil
}

// IsCategoryEnabled checks the category filter.
func IsCategoryEnabled(category Category) bool {
	loggersMu.RLock()
	defer loggersMu.RUnlock()
	return categoryEnabledLocked(category)
}

func categoryEnabledLocked(category Category) bool {
	if testCore != nil {
		return true
	}
	if !opts.DebugMode {
		return false
	}
	if len(opts.Categories) == 0 {
		return true
	}
	enabled, ok := opts.Categories[string(category)]
	return !ok || enabled
}

// Get returns the logger for a category, creating it on first use.
func Get(category Category) *Logger {
	loggersMu.RLock()
	l, ok := loggers[category]
	loggersMu.RUnlock()
	if ok {
		return l
	}

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	l = &Logger{category: category, sugar: zap.NewNop().Sugar()}
	if core := buildCoreLocked(category); core != nil {
		l.sugar = zap.New(core).Named(string(category)).Sugar()
	}
	loggers[category] = l
	return l
}

func buildCoreLocked(category Category) zapcore.Core {
	if !categoryEnabledLocked(category) {
		return nil
	}
	if testCore != nil {
		return testCore
	}

	path := filepath.Join(opts.Dir, string(category)+".log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] could not open %s: %v\n", path, err)
		return nil
	}
	files = append(files, file)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if opts.JSONFormat {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewCore(enc, zapcore.AddSync(file), level)
}

// SetCoreForTest routes every category to core (e.g. a zaptest observer) and
// returns a function restoring the previous state.
func SetCoreForTest(core zapcore.Core) func() {
	loggersMu.Lock()
	prev := testCore
	testCore = core
	loggers = make(map[Category]*Logger)
	loggersMu.Unlock()

	return func() {
		loggersMu.Lock()
		testCore = prev
		loggers = make(map[Category]*Logger)
		loggersMu.Unlock()
	}
}

// CloseAll flushes and closes all log files.
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for _, l := range loggers {
		_ = l.sugar.Sync()
	}
	for _, f := range files {
		_ = f.Close()
	}
	files = nil
	loggers = make(map[Category]*Logger)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) { l.sugar.Infof(format, args...) }

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) { l.sugar.Warnf(format, args...) }

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// StructuredLog writes a message with key-value fields.
func (l *Logger) StructuredLog(lvl string, msg string, fields map[string]interface{}) {
	kv := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	switch parseLevel(lvl) {
	case zapcore.DebugLevel:
		l.sugar.Debugw(msg, kv...)
	case zapcore.WarnLevel:
		l.sugar.Warnw(msg, kv...)
	case zapcore.ErrorLevel:
		l.sugar.Errorw(msg, kv...)
	default:
		l.sugar.Infow(msg, kv...)
	}
}

// WithRun returns a logger that tags every entry with a run id.
func (l *Logger) WithRun(runID string) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With("run_id", runID)}
}

// =============================================================================
// Category helpers
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }
func BootWarn(format string, args ...interface{})  { Get(CategoryBoot).Warn(format, args...) }

func API(format string, args ...interface{})      { Get(CategoryAPI).Info(format, args...) }
func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debug(format, args...) }
func APIError(format string, args ...interface{}) { Get(CategoryAPI).Error(format, args...) }

func Orchestrator(format string, args ...interface{}) {
	Get(CategoryOrchestrator).Info(format, args...)
}
func OrchestratorDebug(format string, args ...interface{}) {
	Get(CategoryOrchestrator).Debug(format, args...)
}
func OrchestratorWarn(format string, args ...interface{}) {
	Get(CategoryOrchestrator).Warn(format, args...)
}

func Planner(format string, args ...interface{})      { Get(CategoryPlanner).Info(format, args...) }
func PlannerDebug(format string, args ...interface{}) { Get(CategoryPlanner).Debug(format, args...) }

func Researcher(format string, args ...interface{}) { Get(CategoryResearcher).Info(format, args...) }
func ResearcherDebug(format string, args ...interface{}) {
	Get(CategoryResearcher).Debug(format, args...)
}

func Writer(format string, args ...interface{})      { Get(CategoryWriter).Info(format, args...) }
func WriterDebug(format string, args ...interface{}) { Get(CategoryWriter).Debug(format, args...) }

func Verifier(format string, args ...interface{})      { Get(CategoryVerifier).Info(format, args...) }
func VerifierDebug(format string, args ...interface{}) { Get(CategoryVerifier).Debug(format, args...) }


func Embedding(format string, args ...interface{})      { Get(CategoryEmbedding).Info(format, args...) }
func EmbeddingDebug(format string, args ...interface{}) { Get(CategoryEmbedding).Debug(format, args...) }

func Store(format string, args ...interface{})      { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }
func StoreWarn(format string, args ...interface{})  { Get(CategoryStore).Warn(format, args...) }

func Ingest(format string, args ...interface{})      { Get(CategoryIngest).Info(format, args...) }
func IngestDebug(format string, args ...interface{}) { Get(CategoryIngest).Debug(format, args...) }
func IngestWarn(format string, args ...interface{})  { Get(CategoryIngest).Warn(format, args...) }

func History(format string, args ...interface{})     { Get(CategoryHistory).Info(format, args...) }
func HistoryWarn(format string, args ...interface{}) { Get(CategoryHistory).Warn(format, args...) }

func Eval(format string, args ...interface{})     { Get(CategoryEval).Info(format, args...) }
func EvalWarn(format string, args ...interface{}) { Get(CategoryEval).Warn(format, args...) }

// =============================================================================
// Timer
// =============================================================================

// Timer measures an operation and logs its duration on Stop.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
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

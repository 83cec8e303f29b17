// Package logging provides JSON-lines structured logging for the hook, the
// background miner and the CLI.
//
// Lines look like:
//
//	{"ts":"2024-01-15T10:30:00Z","level":"INFO","msg":"mining pass finished","pass":"sequence","patterns":4}
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config configures the structured logger.
type Config struct {
	// Output is the writer for log output (default: os.Stderr)
	Output io.Writer

	// Level is the minimum log level (default: LevelInfo)
	Level slog.Level

	// Debug enables debug level logging (overrides Level)
	Debug bool
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Output: os.Stderr,
		Level:  slog.LevelInfo,
	}
}

// New creates a JSON-lines logger. The time attribute is written as "ts".
func New(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	level := cfg.Level
	if cfg.Debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				a.Key = "ts"
			}
			return a
		},
	}
	return slog.New(slog.NewJSONHandler(output, opts))
}

// ParseLevel maps a config level name to a slog level. Unknown names fall
// back to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// OpenFile creates a logger appending to path. The returned closer must be
// called when the process is done logging.
func OpenFile(path string, level slog.Level, debug bool) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return New(&Config{Output: f, Level: level, Debug: debug}), f, nil
}

// Discard returns a logger that drops everything. Tests and library callers
// that pass a nil logger get this.
func Discard() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// LogCaptureFailed logs a capture hook failure. The hook never surfaces
// errors to the prompt.
func LogCaptureFailed(logger *slog.Logger, phase string, err error) {
	logger.Warn("capture failed", "phase", phase, "error", err)
}

// LogMiningPass logs the outcome of one mining pass.
func LogMiningPass(logger *slog.Logger, pass string, patterns int, elapsed time.Duration, err error) {
	if err != nil {
		logger.Error("mining pass failed", "pass", pass, "elapsed_ms", elapsed.Milliseconds(), "error", err)
		return
	}
	logger.Info("mining pass finished", "pass", pass, "patterns", patterns, "elapsed_ms", elapsed.Milliseconds())
}

// LogWorkflowRun logs a finished workflow run.
func LogWorkflowRun(logger *slog.Logger, name, runID, state string, failedStep int, elapsed time.Duration) {
	logger.Info("workflow run finished",
		"workflow", name,
		"run_id", runID,
		"state", state,
		"failed_step", failedStep,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// LogErrorResolved logs an automatically resolved error.
func LogErrorResolved(logger *slog.Logger, errorID int64, semanticType string) {
	logger.Debug("error auto-resolved", "error_id", errorID, "semantic_type", semanticType)
}

// LogSQLiteError logs SQLite errors.
func LogSQLiteError(logger *slog.Logger, operation string, err error) {
	logger.Error("sqlite error", "operation", operation, "error", err)
}

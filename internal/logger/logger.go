// Package logger provides structured logging for the httprange library.
//
// It wraps log/slog behind a small package-level API so library code can
// log without threading a logger through every call. Output defaults to
// stderr at INFO level; embedding applications can reconfigure it with
// Init or silence it entirely with a level above ERROR.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Config holds logger configuration.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or a file path
}

var (
	currentLevel atomic.Int32 // slog.Level

	mu       sync.RWMutex
	output   io.Writer = os.Stderr
	useColor bool
	format   = "text"
	slogger  *slog.Logger
)

func init() {
	currentLevel.Store(int32(slog.LevelInfo))
	useColor = isTerminal(os.Stderr.Fd())
	rebuild()
}

// rebuild swaps the slog handler for the current settings. Callers must
// not hold mu.
func rebuild() {
	mu.Lock()
	defer mu.Unlock()

	opts := &slog.HandlerOptions{Level: slog.Level(currentLevel.Load())}

	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(output, opts)
	} else {
		h = newTextHandler(output, opts, useColor)
	}
	slogger = slog.New(h)
}

// Init configures the logger. Empty fields keep their current values.
// Output can be "stdout", "stderr", or a file path.
func Init(cfg Config) error {
	if cfg.Output != "" {
		var w io.Writer
		var color bool

		switch strings.ToLower(cfg.Output) {
		case "stdout":
			w = os.Stdout
			color = isTerminal(os.Stdout.Fd())
		case "stderr":
			w = os.Stderr
			color = isTerminal(os.Stderr.Fd())
		default:
			f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return fmt.Errorf("failed to open log file %q: %w", cfg.Output, err)
			}
			w = f
		}

		mu.Lock()
		output = w
		useColor = color
		mu.Unlock()
	}

	if cfg.Level != "" {
		SetLevel(cfg.Level)
	}
	if cfg.Format != "" {
		SetFormat(cfg.Format)
	}

	rebuild()
	return nil
}

// InitWithWriter directs log output to w. Primarily useful for testing.
func InitWithWriter(w io.Writer, level, fmtName string, enableColor bool) {
	mu.Lock()
	output = w
	useColor = enableColor
	mu.Unlock()

	if level != "" {
		SetLevel(level)
	}
	if fmtName != "" {
		SetFormat(fmtName)
	}
	rebuild()
}

// SetLevel sets the minimum log level. Invalid levels are ignored.
func SetLevel(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		currentLevel.Store(int32(slog.LevelDebug))
	case "INFO":
		currentLevel.Store(int32(slog.LevelInfo))
	case "WARN":
		currentLevel.Store(int32(slog.LevelWarn))
	case "ERROR":
		currentLevel.Store(int32(slog.LevelError))
	default:
		return
	}
	rebuild()
}

// SetFormat sets the output format, "text" or "json". Invalid formats are
// ignored.
func SetFormat(f string) {
	f = strings.ToLower(f)
	if f != "text" && f != "json" {
		return
	}
	mu.Lock()
	format = f
	mu.Unlock()
	rebuild()
}

func getLogger() *slog.Logger {
	mu.RLock()
	l := slogger
	mu.RUnlock()
	return l
}

// Debug logs at debug level with structured fields.
// Usage: Debug("message", "key1", value1, "key2", value2)
func Debug(msg string, args ...any) {
	if slog.Level(currentLevel.Load()) > slog.LevelDebug {
		return
	}
	getLogger().Debug(msg, args...)
}

// Info logs at info level with structured fields.
func Info(msg string, args ...any) {
	if slog.Level(currentLevel.Load()) > slog.LevelInfo {
		return
	}
	getLogger().Info(msg, args...)
}

// Warn logs at warn level with structured fields.
func Warn(msg string, args ...any) {
	if slog.Level(currentLevel.Load()) > slog.LevelWarn {
		return
	}
	getLogger().Warn(msg, args...)
}

// Error logs at error level with structured fields.
func Error(msg string, args ...any) {
	getLogger().Error(msg, args...)
}

// With returns a slog.Logger with pre-bound attributes. Streams use this
// to tag every log line with their correlation id and URL.
func With(args ...any) *slog.Logger {
	return getLogger().With(args...)
}

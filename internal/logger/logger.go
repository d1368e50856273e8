package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var (
	// default logger instance, swapped atomically so tests can redirect output
	defaultLogger atomic.Pointer[slog.Logger]
)

// initializes the logger based on environment
func init() {
	defaultLogger.Store(newLogger(os.Getenv("ENVIRONMENT"), os.Getenv("LOG_LEVEL"), nil))
}

func newLogger(env, level string, w io.Writer) *slog.Logger {
	var handler slog.Handler

	if env == "production" {
		// production: JSON output for structured logging
		if w == nil {
			w = os.Stdout
		}
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level, slog.LevelInfo)})
	} else {
		// development: human-readable text output
		if w == nil {
			w = os.Stderr
		}
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(level, slog.LevelDebug)})
	}

	return slog.New(handler)
}

func parseLevel(level string, fallback slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}

// redirects all package-level logging to w (the CLI sends logs to a file
// while the TUI owns the terminal)
func SetOutput(w io.Writer) {
	defaultLogger.Store(newLogger(os.Getenv("ENVIRONMENT"), os.Getenv("LOG_LEVEL"), w))
}

// returns the default logger instance
func Default() *slog.Logger {
	return defaultLogger.Load()
}

// creates a logger with additional context fields
func With(args ...any) *slog.Logger {
	return Default().With(args...)
}

// returns the logger stored in ctx, or the default one
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return Default()
	}

	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}

	return Default()
}

// adds logger to context
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

type loggerKey struct{}

func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}

// logs an error with context
func ErrorErr(err error, msg string, args ...any) {
	args = append(args, "error", err)
	Default().Error(msg, args...)
}

// logs a fatal error and exits (for CLI tools)
func Fatal(msg string, args ...any) {
	Default().Error(msg, args...)
	os.Exit(1)
}

// logs a fatal error with error and exits (for CLI tools)
func FatalErr(err error, msg string, args ...any) {
	args = append(args, "error", err)
	Default().Error(msg, args...)
	os.Exit(1)
}

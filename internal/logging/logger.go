// Package logging provides structured logging configuration using log/slog.
//
// Request IDs assigned by chi's RequestID middleware are propagated into log
// entries, and SQL issued through pgx can be traced into the same logger.
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/tracelog"
)

// Setup configures the global slog logger based on level and format.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func Setup(level, format string) {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// ParseLevel converts a string log level to slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// FromContext returns the default logger enriched with the request ID, if any.
//
//	logger := logging.FromContext(r.Context())
//	logger.Info("card issued", "uid", uid)
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}

	return logger
}

// WithFields returns a request-scoped logger with additional structured fields.
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}

// NewQueryTracer returns a pgx tracer that writes statements through slog.
// Statements are logged at debug level; failures at error level.
func NewQueryTracer(level slog.Level) *tracelog.TraceLog {
	return &tracelog.TraceLog{
		Logger: tracelog.LoggerFunc(func(ctx context.Context, lvl tracelog.LogLevel, msg string, data map[string]any) {
			args := make([]any, 0, len(data)*2)
			for k, v := range data {
				args = append(args, k, v)
			}
			FromContext(ctx).Log(ctx, slogLevel(lvl), "pgx: "+msg, args...)
		}),
		LogLevel: traceLevel(level),
	}
}

// slogLevel maps a pgx trace level onto slog.
func slogLevel(lvl tracelog.LogLevel) slog.Level {
	switch lvl {
	case tracelog.LogLevelTrace, tracelog.LogLevelDebug:
		return slog.LevelDebug
	case tracelog.LogLevelInfo:
		return slog.LevelInfo
	case tracelog.LogLevelWarn:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// traceLevel picks the most verbose pgx level that slog would still emit.
func traceLevel(level slog.Level) tracelog.LogLevel {
	switch {
	case level <= slog.LevelDebug:
		return tracelog.LogLevelDebug
	case level <= slog.LevelInfo:
		return tracelog.LogLevelInfo
	case level <= slog.LevelWarn:
		return tracelog.LogLevelWarn
	default:
		return tracelog.LogLevelError
	}
}

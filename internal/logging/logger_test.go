package logging

import (
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5/tracelog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"nonsense", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewQueryTracer_Level(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  tracelog.LogLevel
	}{
		{slog.LevelDebug, tracelog.LogLevelDebug},
		{slog.LevelInfo, tracelog.LogLevelInfo},
		{slog.LevelWarn, tracelog.LogLevelWarn},
		{slog.LevelError, tracelog.LogLevelError},
	}

	for _, tt := range tests {
		tracer := NewQueryTracer(tt.level)
		if tracer.LogLevel != tt.want {
			t.Errorf("NewQueryTracer(%v).LogLevel = %v, want %v", tt.level, tracer.LogLevel, tt.want)
		}
		if tracer.Logger == nil {
			t.Errorf("NewQueryTracer(%v).Logger is nil", tt.level)
		}
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		in   tracelog.LogLevel
		want slog.Level
	}{
		{tracelog.LogLevelTrace, slog.LevelDebug},
		{tracelog.LogLevelDebug, slog.LevelDebug},
		{tracelog.LogLevelInfo, slog.LevelInfo},
		{tracelog.LogLevelWarn, slog.LevelWarn},
		{tracelog.LogLevelError, slog.LevelError},
	}

	for _, tt := range tests {
		if got := slogLevel(tt.in); got != tt.want {
			t.Errorf("slogLevel(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

package common

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name     string
		level    LogLevel
		expected slog.Level
	}{
		{"error level", LogLevelError, slog.LevelError},
		{"warn level", LogLevelWarn, slog.LevelWarn},
		{"info level", LogLevelInfo, slog.LevelInfo},
		{"debug level", LogLevelDebug, slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(tt.level)
			if logger == nil {
				t.Fatal("expected logger, got nil")
			}
			if logger.Logger == nil {
				t.Fatal("expected slog.Logger, got nil")
			}
			if logger.Level() != tt.level {
				t.Errorf("expected level %v, got %v", tt.level, logger.Level())
			}
			if got := tt.level.ToSlogLevel(); got != tt.expected {
				t.Errorf("expected slog level %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"error", LogLevelError},
		{"warn", LogLevelWarn},
		{"warning", LogLevelWarn},
		{"info", LogLevelInfo},
		{"debug", LogLevelDebug},
		{"", LogLevelInfo},
		{"bogus", LogLevelInfo},
	}

	for _, tt := range tests {
		t.Run("input "+tt.input, func(t *testing.T) {
			if got := ParseLogLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNewJSONLogger(t *testing.T) {
	logger := NewJSONLogger(LogLevelInfo)
	if logger == nil {
		t.Fatal("expected logger, got nil")
	}
	if logger.Logger == nil {
		t.Fatal("expected slog.Logger, got nil")
	}
}

func TestLoggerContextHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, LogLevelDebug)

	logger.WithComponent("engine").
		WithRun("run-42").
		WithPipeline("build").
		WithStage("compile").
		WithAttempt(2).
		Info("stage started")

	out := buf.String()
	for _, want := range []string{
		"component=engine",
		"run_id=run-42",
		"pipeline=build",
		"stage=compile",
		"attempt=2",
		"stage started",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got %q", want, out)
		}
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, LogLevelWarn)

	logger.Debug("hidden debug")
	logger.Info("hidden info")
	logger.Warn("visible warn")
	logger.Error("visible error")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("expected debug/info to be filtered, got %q", out)
	}
	if !strings.Contains(out, "visible warn") || !strings.Contains(out, "visible error") {
		t.Errorf("expected warn and error to pass, got %q", out)
	}
}

func TestDefaultLogger(t *testing.T) {
	original := GetLogger()
	defer SetDefaultLogger(original)

	custom := NewLogger(LogLevelDebug)
	SetDefaultLogger(custom)

	if GetLogger() != custom {
		t.Error("expected GetLogger to return the logger set by SetDefaultLogger")
	}
}

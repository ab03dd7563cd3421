package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/nerrad567/perimeter-core/internal/infrastructure/config"
)

func TestNew_Formats(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LoggingConfig
	}{
		{"json stdout", config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}},
		{"text stderr", config.LoggingConfig{Level: "debug", Format: "text", Output: "stderr"}},
		{"empty defaults", config.LoggingConfig{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if logger := New(tt.cfg, "1.0.0"); logger == nil {
				t.Fatal("expected non-nil logger")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected slog.Level
	}{
		{name: "debug level", input: "debug", expected: slog.LevelDebug},
		{name: "info level", input: "info", expected: slog.LevelInfo},
		{name: "warn level", input: "warn", expected: slog.LevelWarn},
		{name: "warning level", input: "warning", expected: slog.LevelWarn},
		{name: "error level", input: "error", expected: slog.LevelError},
		{name: "unknown defaults to info", input: "unknown", expected: slog.LevelInfo},
		{name: "empty defaults to info", input: "", expected: slog.LevelInfo},
		{name: "case insensitive", input: "DEBUG", expected: slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestLogger_With(t *testing.T) {
	logger := New(config.LoggingConfig{Level: "info", Format: "json"}, "1.0.0")
	childLogger := logger.With("component", "vendor")

	if childLogger == nil {
		t.Fatal("expected non-nil child logger")
	}
	if childLogger == logger {
		t.Error("expected child logger to be different from parent")
	}
}

func TestDefault(t *testing.T) {
	if logger := Default(); logger == nil {
		t.Fatal("expected non-nil default logger")
	}
}

func TestNewWithWriter_OutputContainsDefaultFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "test", &buf)

	logger.Component("ingest").Info("event ingested", "event_id", "evt-1")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}

	want := map[string]string{
		"msg":       "event ingested",
		"service":   "perimeter",
		"version":   "test",
		"component": "ingest",
		"event_id":  "evt-1",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("entry[%q] = %v, want %q", k, entry[k], v)
		}
	}
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "warn", Format: "text"}, "test", &buf)

	logger.Info("should be filtered")
	logger.Warn("should appear")

	output := buf.String()
	if strings.Contains(output, "should be filtered") {
		t.Error("info message written at warn level")
	}
	if !strings.Contains(output, "should appear") {
		t.Error("warn message missing at warn level")
	}
}

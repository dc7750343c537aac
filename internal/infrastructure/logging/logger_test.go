package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nerrad567/deckscan-core/internal/infrastructure/config"
)

func TestNew_ConsoleOutputs(t *testing.T) {
	for _, cfg := range []config.LoggingConfig{
		{Level: "info", Format: "json", Output: "stdout"},
		{Level: "debug", Format: "text", Output: "stderr"},
		{},
	} {
		logger, err := New(cfg, "1.0.0")
		if err != nil {
			t.Fatalf("New(%+v) error = %v", cfg, err)
		}
		if logger.closer != nil {
			t.Errorf("New(%+v) holds a file for console output", cfg)
		}
		if err := logger.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "deckscan.log")
	cfg := config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "file",
		File:   config.FileLoggingConfig{Path: path},
	}

	logger, err := New(cfg, "1.0.0")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("frame saved", "location", "a.tif")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"frame saved"`) {
		t.Errorf("log file = %q", data)
	}
}

func TestNew_FileOutputBadPath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatalf("writing blocker: %v", err)
	}

	_, err := New(config.LoggingConfig{
		Output: "file",
		File:   config.FileLoggingConfig{Path: filepath.Join(blocker, "deckscan.log")},
	}, "1.0.0")
	if err == nil {
		t.Error("New() expected error for a log path under a regular file")
	}
}

func TestNewLogger_FanOut(t *testing.T) {
	var a, b bytes.Buffer
	logger := newLogger(config.LoggingConfig{Level: "info", Format: "json"}, "test", &a, &b)

	logger.Debug("hidden")
	logger.Info("scan started", "scan", 2)

	for name, buf := range map[string]*bytes.Buffer{"first": &a, "second": &b} {
		out := buf.String()
		if strings.Contains(out, "hidden") {
			t.Errorf("%s writer got a debug entry at info level", name)
		}
		if !strings.Contains(out, `"msg":"scan started"`) || !strings.Contains(out, `"service":"deckscan"`) {
			t.Errorf("%s writer = %q", name, out)
		}
	}
}

func TestParseLevel(t *testing.T) {
	want := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"trace":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, level := range want {
		if got := parseLevel(in); got != level {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, level)
		}
	}
}

func TestLogger_WithAddsFields(t *testing.T) {
	var buf bytes.Buffer
	parent := newLogger(config.LoggingConfig{Format: "text"}, "test", &buf)

	parent.With("component", "motion").Info("homed", "axis", "z")
	parent.Info("idle")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "component=motion") || !strings.Contains(lines[0], "axis=z") {
		t.Errorf("child entry = %q", lines[0])
	}
	if strings.Contains(lines[1], "component=") {
		t.Errorf("parent entry picked up child fields: %q", lines[1])
	}
}

func TestLogger_EntryFields(t *testing.T) {
	var buf bytes.Buffer
	newLogger(config.LoggingConfig{Level: "info", Format: "json"}, "v0.3.1", &buf).
		Info("point captured", "well", "B7")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decoding entry: %v", err)
	}
	for k, v := range map[string]string{
		"service": "deckscan",
		"version": "v0.3.1",
		"msg":     "point captured",
		"well":    "B7",
	} {
		if entry[k] != v {
			t.Errorf("%s = %v, want %q", k, entry[k], v)
		}
	}
}

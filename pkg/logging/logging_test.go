package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for name, want := range tests {
		got, err := ParseLevel(name)
		if err != nil {
			t.Errorf("ParseLevel(%q) failed: %v", name, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}

	if _, err := ParseLevel("loud"); err == nil {
		t.Error("Expected error for unknown level")
	}
}

func TestNewWithWriterFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, slog.LevelWarn)
	l.Info("hidden")
	l.Warn("shown", "slice", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Info record should be filtered: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "slice=3") {
		t.Errorf("Expected warn record with attribute, got %q", out)
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mramip.log")
	l, closer, err := New(Config{Level: "info", File: path, MaxSize: 1})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	l.Info("to file")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("Expected record in log file, got %q", data)
	}
}

func TestOrNop(t *testing.T) {
	l := OrNop(nil)
	if l.Enabled(context.Background(), slog.LevelError) {
		t.Error("Nop logger must report all levels disabled")
	}
	real := slog.Default()
	if OrNop(real) != real {
		t.Error("OrNop must return a non-nil logger unchanged")
	}
}

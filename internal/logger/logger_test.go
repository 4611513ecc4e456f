package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	info, err := New(false, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("debug should be disabled by default")
	}

	debug, err := New(true, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !debug.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("debug should be enabled")
	}
}

func TestNewJSONEncoding(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.json")

	l, err := newWithOutput(true, false, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l.Info("provider chain built", zap.Duration("backoff", time.Second))
	_ = l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("expected json log line, got %q: %v", data, err)
	}
	if entry["step"] != "provider chain built" {
		t.Fatalf("unexpected message field: %v", entry)
	}
	if entry["level"] != "info" {
		t.Fatalf("unexpected level: %v", entry["level"])
	}
	if entry["backoff"] != "1s" {
		t.Fatalf("unexpected duration encoding: %v", entry["backoff"])
	}
}

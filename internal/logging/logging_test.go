package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/HerbHall/nubilus-agent/internal/config"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		verbose bool
		want    zapcore.Level
	}{
		{"default", "", false, zapcore.InfoLevel},
		{"warn", "warn", false, zapcore.WarnLevel},
		{"upper case", "ERROR", false, zapcore.ErrorLevel},
		{"verbose overrides", "error", true, zapcore.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(config.LogConfig{Level: tt.level}, tt.verbose)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if !logger.Core().Enabled(tt.want) {
				t.Errorf("level %v not enabled", tt.want)
			}
			if tt.want > zapcore.DebugLevel && logger.Core().Enabled(tt.want-1) {
				t.Errorf("level %v unexpectedly enabled", tt.want-1)
			}
		})
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New(config.LogConfig{Level: "loud"}, false); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestNew_InvalidFormat(t *testing.T) {
	_, err := New(config.LogConfig{Format: "xml"}, false)
	if err == nil || !strings.Contains(err.Error(), "unsupported log format") {
		t.Fatalf("New() error = %v, want unsupported log format", err)
	}
}

func TestNew_WritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "agent.log")
	logger, err := New(config.LogConfig{Level: "info", Format: "json", File: path, MaxSizeMB: 1}, false)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Info("hello from test")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "hello from test") {
		t.Errorf("log file missing message, got: %s", data)
	}
	if !strings.Contains(string(data), `"timestamp"`) {
		t.Errorf("log file should be JSON with timestamp key, got: %s", data)
	}
}

func TestBootstrap(t *testing.T) {
	if Bootstrap(false).Core().Enabled(zapcore.DebugLevel) {
		t.Error("bootstrap logger should not enable debug without verbose")
	}
	if !Bootstrap(true).Core().Enabled(zapcore.DebugLevel) {
		t.Error("verbose bootstrap logger should enable debug")
	}
}

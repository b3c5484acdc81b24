package infra

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"":      slog.LevelInfo,
	}
	for name, want := range tests {
		if got := ParseLevel(name); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestNewLogger_WritesFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.File = filepath.Join(t.TempDir(), "nested", "app.log")

	logger := NewLogger(&cfg)
	logger.Info("hello", slog.String("market", "abc"))

	data, err := os.ReadFile(cfg.Logging.File)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected log output in file")
	}
}

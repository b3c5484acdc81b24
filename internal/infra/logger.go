package infra

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger creates a new slog.Logger with log rotation support
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(cfg.Logging.Level),
		// AddSource: true, // Optional: Include file line number (expensive)
	}

	if cfg.Logging.File == "" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}

	// Create logs directory if not exists
	if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
		// Fallback to stderr if directory creation fails
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}

	// Setup lumberjack logger for file rotation
	fileLogger := &lumberjack.Logger{
		Filename:   cfg.Logging.File,
		MaxSize:    cfg.Logging.MaxSizeMB,  // Megabytes
		MaxBackups: cfg.Logging.MaxBackups, // Number of backups
		MaxAge:     cfg.Logging.MaxAgeDays, // Days
		Compress:   true,
	}

	// Multi-writer: Log to both file and stdout
	writer := io.MultiWriter(os.Stdout, fileLogger)

	return slog.New(slog.NewJSONHandler(writer, opts))
}

// ParseLevel maps a config level name to a slog level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Package logger builds the slog loggers used by the binaries.
//
// The server logs text lines to stdout, and also to a rotating file when
// one is configured. streakctl logs through charmbracelet/log for colored
// terminal output.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects where and what to log.
type Config struct {
	Level slog.Level
	File  string // optional rotating log file
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns the server logger writing to out. The closer releases the
// log file, if any.
func New(out io.Writer, cfg Config) (*slog.Logger, io.Closer, error) {
	w := out
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, err
		}
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		w = io.MultiWriter(out, file)
		closer = file
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.Level})
	return slog.New(handler), closer, nil
}

// NewCLI returns a logger for interactive commands.
func NewCLI(out io.Writer, level slog.Level) *slog.Logger {
	handler := log.NewWithOptions(out, log.Options{
		ReportTimestamp: level <= slog.LevelDebug,
		Level:           log.Level(level),
		Prefix:          "streakctl",
	})
	return slog.New(handler)
}

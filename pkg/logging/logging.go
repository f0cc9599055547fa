// Package logging builds the structured loggers used across mramip.
// Components take a *slog.Logger and stay silent when given nil.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/natefinch/lumberjack"
)

// Config controls where log records go
type Config struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`

	// File, when set, sends records to a rotating log file instead of stderr
	File string `yaml:"file"`

	// MaxSize is the size in megabytes at which the log file rotates
	MaxSize int `yaml:"maxSize"`

	// MaxAge is the number of days rotated files are kept
	MaxAge int `yaml:"maxAge"`
}

// ParseLevel maps a level name to a slog.Level
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// New creates a text logger according to cfg. The returned closer releases
// the log file, if any.
func New(cfg Config) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var w io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		l := &lumberjack.Logger{
			Filename: cfg.File,
			MaxSize:  cfg.MaxSize, // megabytes
			MaxAge:   cfg.MaxAge,  // days
		}
		w = l
		closer = l
	}

	return NewWithWriter(w, level), closer, nil
}

// NewWithWriter creates a text logger writing to w
func NewWithWriter(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// OrNop returns l, or a logger that discards everything when l is nil
func OrNop(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(nopHandler{})
	}
	return l
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// nopHandler discards all records and reports every level as disabled so
// callers skip formatting.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

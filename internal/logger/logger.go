package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults for captured gateway output (lumberjack semantics).
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// Config controls the supervisor's own structured logging.
type Config struct {
	Level  string // debug, info, warn, error (default info)
	Format string // text or json (default text)
	Color  bool   // ANSI colors for text format
}

// NewSlogger builds a slog.Logger for the supervisor itself, writing to stderr
// so the gateway's pass-through stdout stays clean for operators.
func (c Config) NewSlogger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	if c.Color {
		return slog.New(NewColorTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// GatewayWriters returns rotating stdout/stderr writers for the gateway
// subprocess when dir is set; both are nil when dir is empty, in which case
// the caller should pass the gateway's output through to the container's
// standard streams.
func GatewayWriters(dir, name string) (io.WriteCloser, io.WriteCloser, error) {
	if dir == "" {
		return nil, nil, nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	outW := &lj.Logger{
		Filename:   filepath.Join(dir, fmt.Sprintf("%s.stdout.log", name)),
		MaxSize:    DefaultMaxSizeMB,
		MaxBackups: DefaultMaxBackups,
		MaxAge:     DefaultMaxAgeDays,
	}
	errW := &lj.Logger{
		Filename:   filepath.Join(dir, fmt.Sprintf("%s.stderr.log", name)),
		MaxSize:    DefaultMaxSizeMB,
		MaxBackups: DefaultMaxBackups,
		MaxAge:     DefaultMaxAgeDays,
	}
	return outW, errW, nil
}

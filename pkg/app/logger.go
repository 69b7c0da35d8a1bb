package app

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/flemzord/qaindex/internal/config"
)

// Rotation defaults for log.file.
const (
	defaultLogMaxSizeMB  = 10
	defaultLogMaxBackups = 5
	defaultLogMaxAgeDays = 30
)

// NewLogger builds the process logger. With log.file set, JSON records go
// to a rotating file; otherwise text records go to out (stderr if nil).
// The returned func releases the log file.
func NewLogger(cfg config.LogConfig, verbose bool, out io.Writer) (*slog.Logger, func()) {
	opts := &slog.HandlerOptions{Level: logLevel(cfg.Level, verbose)}

	if cfg.File == "" {
		if out == nil {
			out = os.Stderr
		}
		return slog.New(slog.NewTextHandler(out, opts)), func() {}
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    orDefault(cfg.MaxSizeMB, defaultLogMaxSizeMB),
		MaxBackups: orDefault(cfg.MaxBackups, defaultLogMaxBackups),
		MaxAge:     orDefault(cfg.MaxAgeDays, defaultLogMaxAgeDays),
		Compress:   true,
	}
	return slog.New(slog.NewJSONHandler(rotator, opts)), func() { _ = rotator.Close() }
}

func logLevel(name string, verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// Package obslog configures structured JSON logging, adapted from the
// teacher's observability/logging.Setup: a slog.JSONHandler with
// timestamp/severity/message key renames, plus an optional rotating file
// sink via gopkg.in/natefinch/lumberjack.v2 (declared but unwired in the
// teacher's go.mod; wired here for the watchtower's long-running-process
// log file, per SPEC_FULL.md's logging section).
package obslog

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where and how logs are emitted.
type Config struct {
	Service string
	Env     string

	// FilePath, if non-empty, tees logs to a rotating file alongside stdout.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Setup builds the process-wide structured logger and installs it as
// slog.Default (spec.md §6 logging section).
func Setup(cfg Config) *slog.Logger {
	var out io.Writer = os.Stdout
	if strings.TrimSpace(cfg.FilePath) != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotator)
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			case slog.LevelKey:
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: attr.Value}
			default:
				return attr
			}
		},
	})

	attrs := []any{slog.String("service", strings.TrimSpace(cfg.Service))}
	if env := strings.TrimSpace(cfg.Env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}

	logger := slog.New(handler).With(attrs...)
	slog.SetDefault(logger)
	return logger
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

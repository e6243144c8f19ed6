// Package logging sets up the process-wide structured logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelTrace is more verbose than [slog.LevelDebug] and is used for
// per-step and per-request diagnostics.
const LevelTrace = slog.Level(-8)

// DefaultLevel is used when the verbosity variable is unset or invalid.
const DefaultLevel = slog.LevelError

// ParseLevel converts a level name (trace, debug, info, warn, error) into
// a [slog.Level]. Names are case-insensitive.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return DefaultLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// New returns a text logger writing to w that renders [LevelTrace] as TRACE.
func New(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key != slog.LevelKey || len(groups) > 0 {
				return a
			}
			if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
				a.Value = slog.StringValue("TRACE")
			}
			return a
		},
	}))
}

// FromEnv builds a stderr logger whose verbosity is read from the
// environment variable name.
//
// An invalid value is logged as an error and the logger keeps [DefaultLevel].
func FromEnv(name string) *slog.Logger {
	return fromEnv(os.Stderr, name)
}

func fromEnv(w io.Writer, name string) *slog.Logger {
	raw, set := os.LookupEnv(name)
	if !set || raw == "" {
		return New(w, DefaultLevel)
	}

	lvl, err := ParseLevel(raw)
	logger := New(w, lvl)
	if err != nil {
		logger.Error("ignoring log verbosity", "variable", name, "error", err)
	}
	return logger
}

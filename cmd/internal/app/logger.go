package app

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// Logger is the app-wide logger type (slog).
type Logger = *slog.Logger

// NewLogger creates the process logger and installs it as slog's default.
// Format "pretty" is for local development; "auto" picks pretty on a terminal.
func NewLogger(cfg Config) *slog.Logger {
	log := slog.New(newLogHandler(os.Stdout, cfg, term.IsTerminal(int(os.Stdout.Fd()))))
	slog.SetDefault(log)
	return log
}

func newLogHandler(w io.Writer, cfg Config, isTTY bool) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     parseLogLevel(cfg.LogLevel),
		AddSource: true,
	}
	switch strings.ToLower(strings.TrimSpace(cfg.LogFormat)) {
	case "pretty":
		return newPrettyHandler(w, opts, cfg.LogColor && isTTY)
	case "auto":
		if isTTY {
			return newPrettyHandler(w, opts, cfg.LogColor)
		}
	}
	return slog.NewJSONHandler(w, opts)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Service is attached to every record so logs from the API and the CLI can
// be told apart downstream.
const Service = "veriflow"

// New creates a JSON logger on stdout at the provided level.
func New(level string) *slog.Logger {
	return NewWriter(os.Stdout, level)
}

// NewWriter creates a JSON logger writing to w. Unknown levels fall back to info.
func NewWriter(w io.Writer, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return slog.New(handler).With("service", Service)
}

// ParseLevel accepts the slog level names plus "warning".
func ParseLevel(level string) slog.Level {
	level = strings.TrimSpace(strings.ToLower(level))
	if level == "warning" {
		return slog.LevelWarn
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Discard returns a logger that drops all output. Useful for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

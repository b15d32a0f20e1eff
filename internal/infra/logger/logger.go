// Package logger builds the process-wide slog logger.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"tutor-dispatch/internal/infra/config"
)

// Service is attached to every record.
const Service = "tutor-dispatch"

// secretKeys are attribute keys whose values never reach the log.
var secretKeys = map[string]bool{
	"api_key":       true,
	"apikey":        true,
	"authorization": true,
	"passphrase":    true,
}

// New opens cfg.Output (stderr, stdout or a file path) and returns a logger
// writing to it together with a closer for file outputs.
func New(cfg config.LoggerConfig) (*slog.Logger, func() error, error) {
	w, closeFn, err := openOutput(cfg.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("open log output %q: %w", cfg.Output, err)
	}
	return NewWithWriter(w, cfg), closeFn, nil
}

// NewWithWriter builds a logger on w, ignoring cfg.Output. Debug level adds
// source locations.
func NewWithWriter(w io.Writer, cfg config.LoggerConfig) *slog.Logger {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:       level,
		AddSource:   level <= slog.LevelDebug,
		ReplaceAttr: redact,
	}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h).With("service", Service)
}

// Discard drops every record. One-shot CLI commands that print their own
// output use it.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if secretKeys[strings.ToLower(a.Key)] && a.Value.String() != "" {
		return slog.String(a.Key, "[redacted]")
	}
	return a
}

// parseLevel accepts slog's names plus "warning". Anything else is info.
func parseLevel(s string) slog.Level {
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if s == "" || l.UnmarshalText([]byte(s)) != nil {
		return slog.LevelInfo
	}
	return l
}

func openOutput(target string) (io.Writer, func() error, error) {
	nop := func() error { return nil }
	switch strings.ToLower(target) {
	case "", "stderr":
		return os.Stderr, nop, nil
	case "stdout":
		return os.Stdout, nop, nil
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

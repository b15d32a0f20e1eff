package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor-dispatch/internal/infra/config"
)

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, config.LoggerConfig{Level: "info", Format: "json"})

	log.Info("routing decision", "action", "delegate")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	assert.Equal(t, "routing decision", entry["msg"])
	assert.Equal(t, "delegate", entry["action"])
	assert.Equal(t, Service, entry["service"])
}

func TestNewWithWriterLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, config.LoggerConfig{Level: "warn", Format: "text"})

	log.Info("hidden")
	log.Warn("fallback routing")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record should be filtered at warn level: %s", out)
	}
	assert.Contains(t, out, "fallback routing")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
		{"WARNING", slog.LevelWarn},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tutor.log")
	log, closer, err := New(config.LoggerConfig{Level: "info", Format: "text", Output: path})
	require.NoError(t, err)

	log.Info("session cleanup", "removed", 2)
	require.NoError(t, closer())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "session cleanup")
}

func TestNewStdStreams(t *testing.T) {
	for _, out := range []string{"stdout", "stderr", ""} {
		_, closer, err := New(config.LoggerConfig{Output: out})
		require.NoError(t, err)
		assert.NoError(t, closer())
	}
}

func TestDiscard(t *testing.T) {
	log := Discard()
	assert.False(t, log.Enabled(context.Background(), slog.LevelError))
}

func TestSecretsAreRedacted(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, config.LoggerConfig{Format: "json"})

	log.Info("provider configured", "provider", "gemini", "api_key", "AIza-secret", "Authorization", "Bearer sk-1")

	out := buf.String()
	assert.NotContains(t, out, "AIza-secret")
	assert.NotContains(t, out, "sk-1")
	assert.Contains(t, out, "[redacted]")
	assert.Contains(t, out, "gemini")
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor-dispatch/internal/domain"
)

// clearEnv blanks the variables Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"GEMINI_API_KEY", "ENVIRONMENT", "PORT", "TUTOR_ENVIRONMENT", "TUTOR_SERVER_ADDR",
		"TUTOR_LLM_DEFAULT_PROVIDER", "TUTOR_LOGGER_LEVEL", "TUTOR_CONFIG_KEY",
		"TUTOR_LLM_PROVIDER_GEMINI_API_KEY",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Sessions.MaxHistory != 5 {
		t.Errorf("MaxHistory = %d, want 5", cfg.Sessions.MaxHistory)
	}
	if cfg.Sessions.Expiry != time.Hour {
		t.Errorf("Expiry = %v, want 1h", cfg.Sessions.Expiry)
	}
	assert.Equal(t, "gemini", cfg.LLM.DefaultProvider)
	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, 0.9, cfg.Tutor.Confidence.Math)
	assert.Equal(t, 0.85, cfg.Tutor.Confidence.Physics)
	assert.Equal(t, 0.1, cfg.Tutor.Confidence.Failure)
}

func TestLoadNonExistentUsesDefaultsAndEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "test-key", cfg.LLM.Providers[0].APIKey)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestLoadMissingCredentialsIsFatal(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfigInvalid))
	assert.Contains(t, err.Error(), "api_key is empty")
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
environment: production
llm:
  default_provider: "flash"
  providers:
    - name: "flash"
      type: "genai"
      api_key: "file-key"
      model: "gemini-2.0-flash"
  model_routing:
    routing: "flash"
sessions:
  max_history: 8
  expiry: 30m
tutor:
  agents:
    math: {enabled: true, strategy: manual}
    physics: {enabled: false}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "flash", cfg.LLM.DefaultProvider)
	assert.Equal(t, 8, cfg.Sessions.MaxHistory)
	assert.Equal(t, 30*time.Minute, cfg.Sessions.Expiry)
	assert.Equal(t, "manual", cfg.Tutor.Agents["math"].Strategy)
	assert.False(t, cfg.Tutor.Agents["physics"].Enabled)
	assert.True(t, cfg.IsProduction())
	// Production without an explicit level logs warnings.
	assert.Equal(t, "warn", cfg.Logger.Level)
}

func TestLoadRejectsWorldWritable(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: development\n"), 0o600))
	require.NoError(t, os.Chmod(path, 0o666))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure permissions")
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9001")
	t.Setenv("ENVIRONMENT", "Production")
	t.Setenv("TUTOR_LOGGER_LEVEL", "debug")
	t.Setenv("TUTOR_LLM_PROVIDER_GEMINI_API_KEY", "per-provider")
	t.Setenv("TUTOR_SESSIONS_MAX_HISTORY", "3")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	assert.Equal(t, ":9001", cfg.Server.Addr)
	assert.Equal(t, EnvProduction, cfg.Environment)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "per-provider", cfg.LLM.Providers[0].APIKey)
	assert.Equal(t, 3, cfg.Sessions.MaxHistory)
}

func TestGeminiKeyDoesNotOverrideExplicitKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "env-key")

	cfg := Defaults()
	cfg.LLM.Providers[0].APIKey = "explicit"
	ApplyEnvOverrides(cfg)
	assert.Equal(t, "explicit", cfg.LLM.Providers[0].APIKey)
}

func TestEncryptDecryptValue(t *testing.T) {
	enc, err := EncryptValue("sk-secret", "passphrase")
	require.NoError(t, err)
	assert.True(t, strings.Contains(enc, ":"))

	dec, err := DecryptValue(enc, "passphrase")
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", dec)

	_, err = DecryptValue(enc, "wrong")
	assert.ErrorIs(t, err, domain.ErrDecryption)

	_, err = DecryptValue("no-separator", "passphrase")
	assert.ErrorIs(t, err, domain.ErrDecryption)

	_, err = DecryptValue("!!:??", "passphrase")
	assert.ErrorIs(t, err, domain.ErrDecryption)
}

func TestLoadRejectsEncryptedKeyWithoutPassphrase(t *testing.T) {
	clearEnv(t)
	enc, err := EncryptValue("k", "cfg-pass")
	require.NoError(t, err)
	t.Setenv("TUTOR_CONFIG_KEY", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "llm:\n  providers:\n    - name: gemini\n      type: gemini\n      model: gemini-2.0-flash\n      api_key: \"enc:" + enc + "\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err = Load(path)
	require.ErrorIs(t, err, domain.ErrDecryption)
	assert.Contains(t, err.Error(), "TUTOR_CONFIG_KEY")
}

func TestLoadDecryptsProviderKeys(t *testing.T) {
	clearEnv(t)
	enc, err := EncryptValue("decrypted-key", "cfg-pass")
	require.NoError(t, err)
	t.Setenv("TUTOR_CONFIG_KEY", "cfg-pass")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "llm:\n  providers:\n    - name: gemini\n      type: gemini\n      model: gemini-2.0-flash\n      api_key: \"enc:" + enc + "\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "decrypted-key", cfg.LLM.Providers[0].APIKey)
}

func TestProviderLookup(t *testing.T) {
	cfg := Defaults()
	p, ok := cfg.Provider("gemini")
	require.True(t, ok)
	assert.Equal(t, "gemini-2.0-flash", p.Model)

	_, ok = cfg.Provider("nope")
	assert.False(t, ok)
}

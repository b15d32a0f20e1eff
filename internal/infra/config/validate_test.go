package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Defaults()
	cfg.LLM.Providers[0].APIKey = "key"
	cfg.Logger.Level = "info"
	return cfg
}

func requireValidationError(t *testing.T, err error, substr string) {
	t.Helper()
	require.Error(t, err)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "want *ValidationError, got %T", err)
	for _, e := range ve.Errors {
		if strings.Contains(e, substr) {
			return
		}
	}
	t.Errorf("no validation error contains %q: %v", substr, ve.Errors)
}

func TestValidateDefaultsWithKeyPass(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateEnvironment(t *testing.T) {
	cfg := validConfig()
	cfg.Environment = "staging"
	requireValidationError(t, Validate(cfg), "environment")
}

func TestValidateServerAddr(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Addr = "8000"
	requireValidationError(t, Validate(cfg), "server.addr")
}

func TestValidateTrustedProxies(t *testing.T) {
	cfg := validConfig()
	cfg.Server.RateLimit.TrustedProxies = []string{"10.0.0.0/8", "bogus"}
	requireValidationError(t, Validate(cfg), "trusted_proxies[1]")
}

func TestValidateLLM(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"default empty", func(c *Config) { c.LLM.DefaultProvider = "" }, "default_provider must not be empty"},
		{"default unknown", func(c *Config) { c.LLM.DefaultProvider = "other" }, "does not match"},
		{"bad type", func(c *Config) { c.LLM.Providers[0].Type = "anthropic" }, "type \"anthropic\" is invalid"},
		{"missing key", func(c *Config) { c.LLM.Providers[0].APIKey = "" }, "api_key is empty"},
		{"duplicate", func(c *Config) { c.LLM.Providers = append(c.LLM.Providers, c.LLM.Providers[0]) }, "duplicate provider"},
		{"routing unknown", func(c *Config) { c.LLM.ModelRouting = map[string]string{"routing": "x"} }, "model_routing.routing"},
		{"timeout", func(c *Config) { c.LLM.CallTimeout = 0 }, "call_timeout"},
		{"bedrock region", func(c *Config) {
			c.LLM.Providers = append(c.LLM.Providers, ProviderConfig{Name: "br", Type: "bedrock", Model: "m"})
		}, "region is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			requireValidationError(t, Validate(cfg), tt.want)
		})
	}
}

func TestValidateTutor(t *testing.T) {
	cfg := validConfig()
	cfg.Tutor.Confidence.Math = 1.5
	requireValidationError(t, Validate(cfg), "tutor.confidence.math")

	cfg = validConfig()
	cfg.Tutor.Agents["math"] = AgentConfig{Enabled: true, Strategy: "magic"}
	requireValidationError(t, Validate(cfg), "strategy \"magic\"")

	cfg = validConfig()
	cfg.Tutor.Agents = map[string]AgentConfig{"math": {Enabled: false}}
	requireValidationError(t, Validate(cfg), "at least one specialist")
}

func TestValidateSessions(t *testing.T) {
	cfg := validConfig()
	cfg.Sessions.MaxHistory = 0
	requireValidationError(t, Validate(cfg), "max_history")

	cfg = validConfig()
	cfg.Sessions.CleanupSchedule = "every so often"
	requireValidationError(t, Validate(cfg), "cleanup_schedule")

	cfg = validConfig()
	cfg.Sessions.CleanupSchedule = "*/5 * * * *"
	assert.NoError(t, Validate(cfg))
}

func TestValidateLogger(t *testing.T) {
	cfg := validConfig()
	cfg.Logger.Level = "trace"
	requireValidationError(t, Validate(cfg), "logger.level")

	cfg = validConfig()
	cfg.Logger.Format = "xml"
	requireValidationError(t, Validate(cfg), "logger.format")
}

func TestValidationErrorAccumulates(t *testing.T) {
	cfg := validConfig()
	cfg.Sessions.MaxHistory = 0
	cfg.Logger.Format = "xml"
	err := Validate(cfg)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.GreaterOrEqual(t, len(ve.Errors), 2)
	assert.True(t, strings.HasPrefix(err.Error(), "config validation failed"))
}

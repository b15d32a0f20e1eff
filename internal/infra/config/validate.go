package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"

	"tutor-dispatch/internal/domain"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// Unwrap lets callers match domain.ErrConfigInvalid.
func (v *ValidationError) Unwrap() error { return domain.ErrConfigInvalid }

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateEnvironment(cfg, ve)
	validateServer(cfg, ve)
	validateLLM(cfg, ve)
	validateTutor(cfg, ve)
	validateSessions(cfg, ve)
	validateLogger(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateEnvironment(cfg *Config, ve *ValidationError) {
	switch cfg.Environment {
	case EnvDevelopment, EnvProduction:
	default:
		ve.Add("environment %q is invalid (want: development, production)", cfg.Environment)
	}
}

func validateServer(cfg *Config, ve *ValidationError) {
	if cfg.Server.Addr == "" {
		ve.Add("server.addr must not be empty")
	} else if _, _, err := net.SplitHostPort(cfg.Server.Addr); err != nil {
		ve.Add("server.addr %q is invalid: %v", cfg.Server.Addr, err)
	}
	if cfg.Server.ReadTimeout <= 0 || cfg.Server.WriteTimeout <= 0 {
		ve.Add("server.read_timeout and server.write_timeout must be > 0")
	}
	rl := cfg.Server.RateLimit
	if rl.Enabled {
		if rl.RequestsPerMinute <= 0 {
			ve.Add("server.rate_limit.requests_per_minute must be > 0 when enabled")
		}
		if rl.Burst <= 0 {
			ve.Add("server.rate_limit.burst must be > 0 when enabled")
		}
	}
	for i, cidr := range rl.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			ve.Add("server.rate_limit.trusted_proxies[%d] %q is not a valid CIDR", i, cidr)
		}
	}
}

var validProviderTypes = map[string]bool{
	"gemini":  true,
	"genai":   true,
	"openai":  true,
	"bedrock": true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if cfg.LLM.DefaultProvider == "" {
		ve.Add("llm.default_provider must not be empty")
	}
	if len(cfg.LLM.Providers) == 0 {
		ve.Add("llm.providers must configure at least one provider")
		return
	}
	if cfg.LLM.CallTimeout <= 0 {
		ve.Add("llm.call_timeout must be > 0")
	}

	seen := make(map[string]bool)
	foundDefault := false
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
			continue
		}
		if seen[p.Name] {
			ve.Add("llm.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		if !validProviderTypes[p.Type] {
			ve.Add("llm.providers[%d].type %q is invalid (want: gemini, genai, openai, bedrock)", i, p.Type)
		}
		if p.APIKey == "" && p.Type != "bedrock" {
			ve.Add("llm.providers[%d] (%s): api_key is empty (set via TUTOR_LLM_PROVIDER_%s_API_KEY or GEMINI_API_KEY)",
				i, p.Name, strings.ToUpper(p.Name))
		}
		if p.Type == "bedrock" && p.Region == "" {
			ve.Add("llm.providers[%d] (%s): region is required for bedrock provider", i, p.Name)
		}
		if p.Model == "" {
			ve.Add("llm.providers[%d] (%s): model must not be empty", i, p.Name)
		}
		if p.Name == cfg.LLM.DefaultProvider {
			foundDefault = true
		}
	}

	if !foundDefault && cfg.LLM.DefaultProvider != "" {
		ve.Add("llm.default_provider %q does not match any configured provider", cfg.LLM.DefaultProvider)
	}
	for role, name := range cfg.LLM.ModelRouting {
		if !seen[name] {
			ve.Add("llm.model_routing.%s references unknown provider %q", role, name)
		}
	}
	if cfg.LLM.Failover.Enabled {
		for _, name := range cfg.LLM.Failover.Fallbacks {
			if !seen[name] {
				ve.Add("llm.failover.fallbacks references unknown provider %q", name)
			}
		}
	}
}

var validStrategies = map[string]bool{
	"tool_calling": true,
	"manual":       true,
}

func validateTutor(cfg *Config, ve *ValidationError) {
	c := cfg.Tutor.Confidence
	for name, v := range map[string]float64{
		"math":             c.Math,
		"physics":          c.Physics,
		"no_tool_fallback": c.NoToolFallback,
		"direct":           c.Direct,
		"failure":          c.Failure,
	} {
		if v < 0 || v > 1 {
			ve.Add("tutor.confidence.%s must be within [0, 1], got %g", name, v)
		}
	}
	enabled := 0
	for key, a := range cfg.Tutor.Agents {
		if a.Strategy != "" && !validStrategies[a.Strategy] {
			ve.Add("tutor.agents.%s.strategy %q is invalid (want: tool_calling, manual)", key, a.Strategy)
		}
		if a.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		ve.Add("tutor.agents must enable at least one specialist")
	}
}

func validateSessions(cfg *Config, ve *ValidationError) {
	if cfg.Sessions.MaxHistory <= 0 {
		ve.Add("sessions.max_history must be > 0")
	}
	if cfg.Sessions.Expiry <= 0 {
		ve.Add("sessions.expiry must be > 0")
	}
	if cfg.Sessions.CleanupSchedule != "" {
		if _, err := cron.ParseStandard(cfg.Sessions.CleanupSchedule); err != nil {
			ve.Add("sessions.cleanup_schedule %q is invalid: %v", cfg.Sessions.CleanupSchedule, err)
		}
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if cfg.Logger.Level != "" && !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	switch cfg.Logger.Format {
	case "text", "json":
	default:
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

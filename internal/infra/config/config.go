package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment names.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config is the root configuration.
type Config struct {
	Environment string         `yaml:"environment"`
	Server      ServerConfig   `yaml:"server"`
	LLM         LLMConfig      `yaml:"llm"`
	Tutor       TutorConfig    `yaml:"tutor"`
	Sessions    SessionsConfig `yaml:"sessions"`
	Tools       ToolsConfig    `yaml:"tools"`
	Logger      LoggerConfig   `yaml:"logger"`
	Tracer      TracerConfig   `yaml:"tracer"`
}

// IsProduction reports whether the process runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, EnvProduction)
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr              string          `yaml:"addr"`
	ReadHeaderTimeout time.Duration   `yaml:"read_header_timeout"`
	ReadTimeout       time.Duration   `yaml:"read_timeout"`
	WriteTimeout      time.Duration   `yaml:"write_timeout"`
	ShutdownTimeout   time.Duration   `yaml:"shutdown_timeout"`
	DebugEndpoints    bool            `yaml:"debug_endpoints"`
	RateLimit         RateLimitConfig `yaml:"rate_limit"`
	CORS              CORSConfig      `yaml:"cors"`
}

// RateLimitConfig holds per-IP request limits.
type RateLimitConfig struct {
	Enabled           bool     `yaml:"enabled"`
	RequestsPerMinute int      `yaml:"requests_per_minute"`
	Burst             int      `yaml:"burst"`
	TrustedProxies    []string `yaml:"trusted_proxies,omitempty"`
}

// CORSConfig holds cross-origin settings. An empty or "*" origin list allows all.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// FailoverConfig holds model failover settings.
type FailoverConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Fallbacks []string `yaml:"fallbacks"`
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	Failover        FailoverConfig       `yaml:"failover"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
	ModelRouting    map[string]string    `yaml:"model_routing,omitempty"` // role → provider name, e.g. "routing" → "flash"
	CallTimeout     time.Duration        `yaml:"call_timeout"`
}

// CircuitBreakerConfig holds circuit breaker settings for LLM providers.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings for LLM providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Region      string        `yaml:"region,omitempty"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// TutorConfig holds coordinator and specialist settings.
type TutorConfig struct {
	CoordinatorName string                 `yaml:"coordinator_name"`
	ModelLabel      string                 `yaml:"model_label"`
	Confidence      ConfidenceConfig       `yaml:"confidence"`
	Agents          map[string]AgentConfig `yaml:"agents"`
}

// ConfidenceConfig holds the fixed confidence assigned to each outcome.
type ConfidenceConfig struct {
	Math           float64 `yaml:"math"`
	Physics        float64 `yaml:"physics"`
	NoToolFallback float64 `yaml:"no_tool_fallback"`
	Direct         float64 `yaml:"direct"`
	Failure        float64 `yaml:"failure"`
}

// AgentConfig toggles a specialist and selects its tool strategy.
type AgentConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Strategy string `yaml:"strategy"` // "tool_calling" or "manual"
}

// SessionsConfig holds session store settings.
type SessionsConfig struct {
	MaxHistory      int           `yaml:"max_history"`
	Expiry          time.Duration `yaml:"expiry"`
	CleanupSchedule string        `yaml:"cleanup_schedule"`
}

// ToolsConfig holds tool settings.
type ToolsConfig struct {
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
	FormulasFile       string `yaml:"formulas_file,omitempty"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Server: ServerConfig{
			Addr:              ":8000",
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      120 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			DebugEndpoints:    true,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 60,
				Burst:             10,
			},
			CORS: CORSConfig{AllowedOrigins: []string{"*"}},
		},
		LLM: LLMConfig{
			DefaultProvider: "gemini",
			Providers: []ProviderConfig{{
				Name:        "gemini",
				Type:        "gemini",
				BaseURL:     "https://generativelanguage.googleapis.com",
				Model:       "gemini-2.0-flash",
				ConnTimeout: 10 * time.Second,
				RespTimeout: 60 * time.Second,
			}},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
			CallTimeout: 30 * time.Second,
		},
		Tutor: TutorConfig{
			CoordinatorName: "AI Tutor Coordinator",
			ModelLabel:      "Gemini 2.0 Flash",
			Confidence: ConfidenceConfig{
				Math:           0.9,
				Physics:        0.85,
				NoToolFallback: 0.7,
				Direct:         0.7,
				Failure:        0.1,
			},
			Agents: map[string]AgentConfig{
				"math":    {Enabled: true, Strategy: "tool_calling"},
				"physics": {Enabled: true, Strategy: "tool_calling"},
			},
		},
		Sessions: SessionsConfig{
			MaxHistory:      5,
			Expiry:          time.Hour,
			CleanupSchedule: "@every 10m",
		},
		Tools: ToolsConfig{
			RateLimitPerMinute: 120,
		},
		Logger: LoggerConfig{
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file yields the defaults plus env overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		if err := validatePermissions(absPath); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	ApplyEnvOverrides(cfg)

	if err := decryptSecrets(cfg, os.Getenv("TUTOR_CONFIG_KEY")); err != nil {
		return nil, fmt.Errorf("decrypt secrets: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps TUTOR_* env vars to config fields. GEMINI_API_KEY,
// ENVIRONMENT and PORT are honored for compatibility with existing deployments.
func ApplyEnvOverrides(cfg *Config) {
	if v := firstEnv("TUTOR_ENVIRONMENT", "ENVIRONMENT"); v != "" {
		cfg.Environment = strings.ToLower(v)
	}
	if v := os.Getenv("TUTOR_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	} else if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Addr = ":" + v
	}
	if v := os.Getenv("TUTOR_SERVER_DEBUG_ENDPOINTS"); v != "" {
		cfg.Server.DebugEndpoints = v == "true"
	}
	if v := os.Getenv("TUTOR_SERVER_CORS_ORIGINS"); v != "" {
		cfg.Server.CORS.AllowedOrigins = splitAndTrim(v, ",")
	}
	if v := os.Getenv("TUTOR_LLM_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	if v := os.Getenv("TUTOR_LLM_CALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LLM.CallTimeout = d
		}
	}
	if v := os.Getenv("TUTOR_SESSIONS_MAX_HISTORY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sessions.MaxHistory = n
		}
	}
	if v := os.Getenv("TUTOR_SESSIONS_EXPIRY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sessions.Expiry = d
		}
	}
	if v := os.Getenv("TUTOR_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("TUTOR_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("TUTOR_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("TUTOR_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}

	// Per-provider API key overrides: TUTOR_LLM_PROVIDER_<NAME>_API_KEY
	for i := range cfg.LLM.Providers {
		envKey := fmt.Sprintf("TUTOR_LLM_PROVIDER_%s_API_KEY",
			strings.ToUpper(cfg.LLM.Providers[i].Name))
		if v := os.Getenv(envKey); v != "" {
			cfg.LLM.Providers[i].APIKey = v
		}
	}

	// GEMINI_API_KEY fills any Gemini-family provider left without a key.
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		for i := range cfg.LLM.Providers {
			p := &cfg.LLM.Providers[i]
			if (p.Type == "gemini" || p.Type == "genai") && p.APIKey == "" {
				p.APIKey = v
			}
		}
	}

	// Production logs warnings and above unless a level was set explicitly.
	if cfg.Logger.Level == "" {
		if cfg.IsProduction() {
			cfg.Logger.Level = "warn"
		} else {
			cfg.Logger.Level = "info"
		}
	}
}

// Provider returns the provider config with the given name.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.LLM.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}

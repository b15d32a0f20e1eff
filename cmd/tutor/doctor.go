package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"tutor-dispatch/internal/adapter/tool"
	"tutor-dispatch/internal/adapter/tui/theme"
	"tutor-dispatch/internal/infra/config"
	"tutor-dispatch/internal/infra/logger"
)

type verdict string

const (
	verdictPass verdict = "PASS"
	verdictWarn verdict = "WARN"
	verdictFail verdict = "FAIL"
)

type finding struct {
	Verdict verdict
	Detail  string
	Fix     string
}

// check runs against the loaded config, which is nil when loading failed.
type check struct {
	name string
	run  func(cfg *config.Config) finding
}

func newDoctorCmd(opts *rootOptions) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, credentials and tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Some checks work without a valid config.
			cfg, cfgErr := opts.load()
			return runDoctor(cmd.OutOrStdout(), doctorChecks(opts.configPath, cfgErr, offline), cfg)
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "skip the provider connectivity check")
	return cmd
}

func doctorChecks(cfgPath string, cfgErr error, offline bool) []check {
	checks := []check{
		{name: "Config file", run: checkConfigFile(cfgPath, cfgErr)},
		{name: "LLM API key", run: checkLLMAPIKey},
		{name: "Specialists", run: checkSpecialists},
		{name: "Tool catalog", run: checkToolCatalog},
		{name: "Session cleanup", run: checkSessionSchedule},
	}
	if !offline {
		checks = append(checks, check{name: "LLM connectivity", run: checkLLMConnectivity})
	}
	return checks
}

// runDoctor prints one table row per check, then any fixes and a tally.
// It returns an error when a check fails.
func runDoctor(w io.Writer, checks []check, cfg *config.Config) error {
	tally := map[verdict]int{}
	rows := make([][]string, 0, len(checks))
	var fixes []string
	for _, c := range checks {
		f := c.run(cfg)
		tally[f.Verdict]++
		rows = append(rows, []string{verdictLabel(f.Verdict), c.name, f.Detail})
		if f.Fix != "" {
			fixes = append(fixes, fmt.Sprintf("[%s] Fix: %s", c.name, f.Fix))
		}
	}

	fmt.Fprintln(w, theme.Bold.Render("tutor doctor"))
	fmt.Fprintln(w, newTable([]string{"STATUS", "CHECK", "DETAIL"}, rows).Render())
	for _, fx := range fixes {
		fmt.Fprintln(w, "  "+fx)
	}
	fmt.Fprintf(w, "\n%d passed, %d warnings, %d failed\n",
		tally[verdictPass], tally[verdictWarn], tally[verdictFail])

	if n := tally[verdictFail]; n > 0 {
		return fmt.Errorf("%d check(s) failed", n)
	}
	return nil
}

func verdictLabel(v verdict) string {
	switch v {
	case verdictPass:
		return theme.TextSuccess.Render(string(v))
	case verdictWarn:
		return theme.TextWarning.Render(string(v))
	case verdictFail:
		return theme.TextError.Render(string(v))
	}
	return "?"
}

// checkConfigFile returns a check that verifies the config file loads. A
// missing file is only a warning since defaults plus env vars may suffice.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) finding {
	return func(_ *config.Config) finding {
		if cfgErr != nil {
			return finding{
				Verdict: verdictFail,
				Detail:  fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check config.yaml syntax and the environment variables it relies on",
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return finding{
				Verdict: verdictWarn,
				Detail:  fmt.Sprintf("no config file at %s; using defaults and environment", cfgPath),
				Fix:     "Copy config.example.yaml to config.yaml to customize settings",
			}
		}
		return finding{
			Verdict: verdictPass,
			Detail:  fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

// checkLLMAPIKey verifies the configured providers have credentials.
// Bedrock authenticates through the AWS credential chain instead.
func checkLLMAPIKey(cfg *config.Config) finding {
	if cfg == nil {
		return finding{Verdict: verdictFail, Detail: "cannot check: config not loaded"}
	}
	if len(cfg.LLM.Providers) == 0 {
		return finding{
			Verdict: verdictFail,
			Detail:  "no LLM providers configured",
			Fix:     "Set GEMINI_API_KEY or add a provider under llm.providers",
		}
	}

	var withKey, withoutKey []string
	for _, p := range cfg.LLM.Providers {
		if p.APIKey != "" || p.Type == "bedrock" {
			withKey = append(withKey, p.Name)
		} else {
			withoutKey = append(withoutKey, p.Name)
		}
	}

	if len(withKey) == 0 {
		return finding{
			Verdict: verdictFail,
			Detail:  fmt.Sprintf("no API keys found for providers: %s", strings.Join(withoutKey, ", ")),
			Fix:     "Set GEMINI_API_KEY or TUTOR_LLM_PROVIDER_<NAME>_API_KEY",
		}
	}
	if len(withoutKey) > 0 {
		return finding{
			Verdict: verdictWarn,
			Detail:  fmt.Sprintf("keys configured for [%s]; missing for [%s]", strings.Join(withKey, ", "), strings.Join(withoutKey, ", ")),
		}
	}
	return finding{
		Verdict: verdictPass,
		Detail:  fmt.Sprintf("API keys configured for: %s", strings.Join(withKey, ", ")),
	}
}

// checkSpecialists reports which specialists will be registered.
func checkSpecialists(cfg *config.Config) finding {
	if cfg == nil {
		return finding{Verdict: verdictFail, Detail: "cannot check: config not loaded"}
	}
	var enabled []string
	for _, key := range []string{"math", "physics"} {
		if ac, ok := cfg.Tutor.Agents[key]; ok && ac.Enabled {
			enabled = append(enabled, key)
		}
	}
	if len(enabled) == 0 {
		return finding{
			Verdict: verdictWarn,
			Detail:  "no specialists enabled; every question goes to the general tutor",
			Fix:     "Enable tutor.agents.math or tutor.agents.physics",
		}
	}
	return finding{
		Verdict: verdictPass,
		Detail:  "enabled: " + strings.Join(enabled, ", "),
	}
}

// checkToolCatalog builds the tool catalog, which also loads the formulas file.
func checkToolCatalog(cfg *config.Config) finding {
	if cfg == nil {
		return finding{Verdict: verdictFail, Detail: "cannot check: config not loaded"}
	}
	reg, err := tool.NewCatalog(tool.CatalogConfig{
		FormulasFile:       cfg.Tools.FormulasFile,
		RateLimitPerMinute: cfg.Tools.RateLimitPerMinute,
	}, logger.Discard())
	if err != nil {
		return finding{
			Verdict: verdictFail,
			Detail:  err.Error(),
			Fix:     "Fix or remove tools.formulas_file",
		}
	}
	msg := "tools: " + strings.Join(reg.Names(), ", ")
	if cfg.Tools.FormulasFile != "" {
		msg += " (formulas from " + cfg.Tools.FormulasFile + ")"
	}
	return finding{Verdict: verdictPass, Detail: msg}
}

// checkSessionSchedule validates sessions.cleanup_schedule.
func checkSessionSchedule(cfg *config.Config) finding {
	if cfg == nil {
		return finding{Verdict: verdictFail, Detail: "cannot check: config not loaded"}
	}
	schedule := cfg.Sessions.CleanupSchedule
	if schedule == "" {
		return finding{
			Verdict: verdictWarn,
			Detail:  "no cleanup schedule; expired sessions are only dropped when touched",
		}
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return finding{
			Verdict: verdictFail,
			Detail:  fmt.Sprintf("invalid schedule %q: %v", schedule, err),
			Fix:     "Use a five-field cron expression or a descriptor such as @every 5m",
		}
	}
	return finding{
		Verdict: verdictPass,
		Detail:  fmt.Sprintf("expired sessions swept on %q", schedule),
	}
}

// checkLLMConnectivity tests if the default provider's endpoint is reachable.
func checkLLMConnectivity(cfg *config.Config) finding {
	if cfg == nil {
		return finding{Verdict: verdictFail, Detail: "cannot check: config not loaded"}
	}
	provider, ok := cfg.Provider(cfg.LLM.DefaultProvider)
	if !ok {
		return finding{
			Verdict: verdictFail,
			Detail:  fmt.Sprintf("default provider %q not found in config", cfg.LLM.DefaultProvider),
		}
	}

	endpoint := providerEndpoint(provider)
	if endpoint == "" {
		return finding{
			Verdict: verdictWarn,
			Detail:  fmt.Sprintf("no known endpoint for provider type %q; skipping", provider.Type),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return finding{Verdict: verdictFail, Detail: fmt.Sprintf("failed to create request: %v", err)}
	}
	resp, err := http.DefaultClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return finding{
			Verdict: verdictFail,
			Detail:  fmt.Sprintf("cannot reach %s: %v", endpoint, err),
			Fix:     "Check your internet connection and firewall settings",
		}
	}
	resp.Body.Close()

	return finding{
		Verdict: verdictPass,
		Detail:  fmt.Sprintf("%s reachable (latency: %dms)", provider.Name, latency.Milliseconds()),
	}
}

// providerEndpoint returns a URL that answers without credentials for the
// given provider.
func providerEndpoint(p config.ProviderConfig) string {
	if p.BaseURL != "" {
		return strings.TrimRight(p.BaseURL, "/")
	}
	switch p.Type {
	case "gemini", "genai":
		return "https://generativelanguage.googleapis.com/"
	case "openai":
		return "https://api.openai.com/v1/models"
	case "bedrock":
		region := p.Region
		if region == "" {
			region = "us-east-1"
		}
		return "https://bedrock-runtime." + region + ".amazonaws.com/"
	default:
		return ""
	}
}

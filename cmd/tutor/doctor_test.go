package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tutor-dispatch/internal/infra/config"
)

func TestCheckConfigFile_Missing(t *testing.T) {
	fn := checkConfigFile("/nonexistent/path/config.yaml", nil)
	result := fn(nil)
	if result.Verdict != verdictWarn {
		t.Errorf("expected WARN for missing config, got %s", result.Verdict)
	}
	if result.Fix == "" {
		t.Error("expected fix suggestion for missing config")
	}
}

func TestCheckConfigFile_LoadError(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := writeTestFile(t, cfgPath, "llm: {{yaml"); err != nil {
		t.Fatal(err)
	}

	fn := checkConfigFile(cfgPath, &config.ValidationError{Errors: []string{"bad yaml"}})
	result := fn(nil)
	if result.Verdict != verdictFail {
		t.Errorf("expected FAIL for load error, got %s", result.Verdict)
	}
	if !strings.Contains(result.Detail, "bad yaml") {
		t.Errorf("expected message to carry the error, got %q", result.Detail)
	}
}

func TestCheckConfigFile_Valid(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := writeTestFile(t, cfgPath, "environment: development\n"); err != nil {
		t.Fatal(err)
	}

	fn := checkConfigFile(cfgPath, nil)
	result := fn(nil)
	if result.Verdict != verdictPass {
		t.Errorf("expected PASS for valid config, got %s: %s", result.Verdict, result.Detail)
	}
}

func TestCheckLLMAPIKey_NilConfig(t *testing.T) {
	result := checkLLMAPIKey(nil)
	if result.Verdict != verdictFail {
		t.Errorf("expected FAIL for nil config, got %s", result.Verdict)
	}
}

func TestCheckLLMAPIKey_NoProviders(t *testing.T) {
	result := checkLLMAPIKey(&config.Config{})
	if result.Verdict != verdictFail {
		t.Errorf("expected FAIL for no providers, got %s", result.Verdict)
	}
}

func TestCheckLLMAPIKey_AllKeysPresent(t *testing.T) {
	cfg := &config.Config{
		LLM: config.LLMConfig{
			Providers: []config.ProviderConfig{
				{Name: "gemini", Type: "gemini", APIKey: "test-key"},
				{Name: "claude", Type: "bedrock"},
			},
		},
	}
	result := checkLLMAPIKey(cfg)
	if result.Verdict != verdictPass {
		t.Errorf("expected PASS, got %s: %s", result.Verdict, result.Detail)
	}
}

func TestCheckLLMAPIKey_MissingKey(t *testing.T) {
	cfg := &config.Config{
		LLM: config.LLMConfig{
			Providers: []config.ProviderConfig{
				{Name: "gemini", Type: "gemini", APIKey: "test-key"},
				{Name: "openai", Type: "openai"},
			},
		},
	}
	result := checkLLMAPIKey(cfg)
	if result.Verdict != verdictWarn {
		t.Errorf("expected WARN for partially missing keys, got %s", result.Verdict)
	}
}

func TestCheckLLMAPIKey_NoKeys(t *testing.T) {
	cfg := &config.Config{
		LLM: config.LLMConfig{
			Providers: []config.ProviderConfig{{Name: "gemini", Type: "gemini"}},
		},
	}
	result := checkLLMAPIKey(cfg)
	if result.Verdict != verdictFail {
		t.Errorf("expected FAIL with no keys, got %s", result.Verdict)
	}
}

func TestCheckSpecialists(t *testing.T) {
	cfg := config.Defaults()
	if r := checkSpecialists(cfg); r.Verdict != verdictPass {
		t.Errorf("expected PASS with defaults, got %s: %s", r.Verdict, r.Detail)
	}

	cfg.Tutor.Agents = map[string]config.AgentConfig{"math": {Enabled: false}}
	if r := checkSpecialists(cfg); r.Verdict != verdictWarn {
		t.Errorf("expected WARN with no specialists, got %s", r.Verdict)
	}
}

func TestCheckToolCatalog(t *testing.T) {
	cfg := config.Defaults()
	result := checkToolCatalog(cfg)
	if result.Verdict != verdictPass {
		t.Fatalf("expected PASS, got %s: %s", result.Verdict, result.Detail)
	}
	for _, name := range []string{"calculator", "equation_solver", "formula_lookup"} {
		if !strings.Contains(result.Detail, name) {
			t.Errorf("expected %s in message %q", name, result.Detail)
		}
	}

	cfg.Tools.FormulasFile = filepath.Join(t.TempDir(), "missing.yaml")
	if r := checkToolCatalog(cfg); r.Verdict != verdictFail {
		t.Errorf("expected FAIL for missing formulas file, got %s", r.Verdict)
	}
}

func TestCheckSessionSchedule(t *testing.T) {
	tests := []struct {
		schedule string
		want     verdict
	}{
		{"@every 10m", verdictPass},
		{"*/5 * * * *", verdictPass},
		{"", verdictWarn},
		{"every so often", verdictFail},
	}
	for _, tt := range tests {
		cfg := config.Defaults()
		cfg.Sessions.CleanupSchedule = tt.schedule
		if got := checkSessionSchedule(cfg).Verdict; got != tt.want {
			t.Errorf("schedule %q: got %s, want %s", tt.schedule, got, tt.want)
		}
	}
}

func TestProviderEndpoint(t *testing.T) {
	tests := []struct {
		p    config.ProviderConfig
		want string
	}{
		{config.ProviderConfig{Type: "gemini"}, "https://generativelanguage.googleapis.com/"},
		{config.ProviderConfig{Type: "openai", BaseURL: "http://localhost:8080/v1/"}, "http://localhost:8080/v1"},
		{config.ProviderConfig{Type: "bedrock", Region: "eu-west-1"}, "https://bedrock-runtime.eu-west-1.amazonaws.com/"},
		{config.ProviderConfig{Type: "custom"}, ""},
	}
	for _, tt := range tests {
		if got := providerEndpoint(tt.p); got != tt.want {
			t.Errorf("providerEndpoint(%+v) = %q, want %q", tt.p, got, tt.want)
		}
	}
}

func TestDoctorChecksOffline(t *testing.T) {
	online := doctorChecks("config.yaml", nil, false)
	offline := doctorChecks("config.yaml", nil, true)
	if len(online) != len(offline)+1 {
		t.Errorf("offline should skip exactly one check: %d vs %d", len(online), len(offline))
	}
	for _, c := range offline {
		if c.name == "LLM connectivity" {
			t.Error("offline checks must not include connectivity")
		}
	}
}

func TestRunDoctor(t *testing.T) {
	pass := check{name: "ok", run: func(*config.Config) finding {
		return finding{Verdict: verdictPass, Detail: "fine"}
	}}
	warn := check{name: "meh", run: func(*config.Config) finding {
		return finding{Verdict: verdictWarn, Detail: "hmm", Fix: "do a thing"}
	}}
	fail := check{name: "bad", run: func(*config.Config) finding {
		return finding{Verdict: verdictFail, Detail: "broken"}
	}}

	var buf bytes.Buffer
	if err := runDoctor(&buf, []check{pass, warn}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "1 passed, 1 warnings, 0 failed") {
		t.Errorf("unexpected summary:\n%s", out)
	}
	if !strings.Contains(out, "Fix: do a thing") {
		t.Errorf("expected fix line:\n%s", out)
	}

	buf.Reset()
	err := runDoctor(&buf, []check{pass, fail}, nil)
	if err == nil || !strings.Contains(err.Error(), "1 check(s) failed") {
		t.Errorf("expected failure error, got %v", err)
	}
}

func TestEncryptSecretCmd(t *testing.T) {
	t.Setenv("TUTOR_CONFIG_KEY", "")
	cmd := newEncryptSecretCmd()
	cmd.SetArgs([]string{"secret"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil {
		t.Error("expected error without TUTOR_CONFIG_KEY")
	}

	t.Setenv("TUTOR_CONFIG_KEY", "passphrase")
	var out bytes.Buffer
	cmd = newEncryptSecretCmd()
	cmd.SetArgs([]string{"secret"})
	cmd.SetOut(&out)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	enc := strings.TrimSpace(out.String())
	if !strings.HasPrefix(enc, "enc:") {
		t.Fatalf("expected enc: prefix, got %q", enc)
	}
	plain, err := config.DecryptValue(strings.TrimPrefix(enc, "enc:"), "passphrase")
	if err != nil || plain != "secret" {
		t.Errorf("round trip failed: %q, %v", plain, err)
	}
}

// writeTestFile is a test helper that creates a file with the given content.
func writeTestFile(t *testing.T, path, content string) error {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return errors.Join(errors.New("write test file"), err)
	}
	return nil
}

// Package uxerror turns errors from the tutor into short explanations with
// recovery hints for the terminal front ends.
package uxerror

import (
	"errors"
	"strings"

	"tutor-dispatch/internal/adapter/tui/theme"
	"tutor-dispatch/internal/domain"
)

// FriendlyError is what the CLI prints instead of a wrapped Go error.
type FriendlyError struct {
	Title   string
	Message string
	Hints   []string
	Raw     string
}

func (fe FriendlyError) Render() string {
	var sb strings.Builder
	sb.WriteString(fe.Title)
	if fe.Message != "" {
		sb.WriteString("\n  " + fe.Message)
	}
	if len(fe.Hints) > 0 {
		sb.WriteString("\n  Suggestions:")
		for _, h := range fe.Hints {
			sb.WriteString("\n    " + theme.SymbolBullet + " " + h)
		}
	}
	return sb.String()
}

// rule matches by sentinel first; words are a fallback for errors that come
// from outside the domain package (net, SDKs).
type rule struct {
	sentinels []error
	words     []string
	title     string
	message   string
	hints     []string
}

var rules = []rule{
	{
		sentinels: []error{domain.ErrAgentNotFound},
		title:     "Unknown Specialist",
		message:   "There is no tutor registered under that name.",
		hints:     []string{"Run 'tutor agents' to list specialists", "Leave out --agent to let the coordinator route"},
	},
	{
		sentinels: []error{domain.ErrInvalidInput},
		title:     "Invalid Question",
		message:   "The question was empty or malformed.",
		hints:     []string{"Type a question before pressing Enter"},
	},
	{
		sentinels: []error{domain.ErrCircuitOpen, domain.ErrAllProvidersFailed},
		title:     "Model Unavailable",
		message:   "Every configured model provider is failing right now.",
		hints:     []string{"Wait a minute and try again", "Run 'tutor doctor' to check provider settings"},
	},
	{
		sentinels: []error{domain.ErrAuthInvalid},
		words:     []string{"401", "unauthorized", "invalid api key", "api key not valid"},
		title:     "Authentication Failed",
		message:   "The API key or credentials were rejected.",
		hints:     []string{"Set TUTOR_LLM_PROVIDER_<NAME>_API_KEY or GEMINI_API_KEY", "Check that the key has not expired"},
	},
	{
		sentinels: []error{domain.ErrDecryption},
		title:     "Cannot Decrypt Config",
		message:   "An enc: value in the config could not be decrypted.",
		hints:     []string{"Export TUTOR_CONFIG_KEY with the passphrase used by 'tutor encrypt-secret'"},
	},
	{
		sentinels: []error{domain.ErrRateLimit, domain.ErrToolRate},
		words:     []string{"429", "too many requests", "quota"},
		title:     "Rate Limited",
		message:   "Too many requests were sent in a short time.",
		hints:     []string{"Wait a moment before retrying", "Check your provider quota"},
	},
	{
		words:   []string{"connection refused", "dial tcp", "no such host"},
		title:   "Connection Failed",
		message: "Could not reach the model provider.",
		hints:   []string{"Check your internet connection", "Verify the provider base_url in config"},
	},
	{
		sentinels: []error{domain.ErrTimeout},
		words:     []string{"deadline exceeded", "timeout", "timed out"},
		title:     "Request Timed Out",
		message:   "The tutor took too long to answer.",
		hints:     []string{"Ask a shorter question", "Increase llm.call_timeout in config"},
	},
}

func (r rule) hasSentinel(err error) bool {
	for _, s := range r.sentinels {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}

func (r rule) hasWord(text string) bool {
	for _, w := range r.words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func (r rule) friendly(raw string) FriendlyError {
	return FriendlyError{Title: r.title, Message: r.message, Hints: r.hints, Raw: raw}
}

// Humanize checks every rule's sentinels before falling back to words, so a
// wrapped domain error is never misread by its message text.
func Humanize(err error) FriendlyError {
	if err == nil {
		return FriendlyError{Title: "Unknown Error", Raw: "nil"}
	}
	raw := err.Error()
	for _, r := range rules {
		if r.hasSentinel(err) {
			return r.friendly(raw)
		}
	}
	text := strings.ToLower(raw)
	for _, r := range rules {
		if r.hasWord(text) {
			return r.friendly(raw)
		}
	}
	return FriendlyError{
		Title:   "Unexpected Error",
		Message: raw,
		Hints:   []string{"Try again", "Run with --log-level debug for more details"},
		Raw:     raw,
	}
}

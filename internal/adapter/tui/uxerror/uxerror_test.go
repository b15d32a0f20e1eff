package uxerror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"tutor-dispatch/internal/domain"
)

func TestHumanize(t *testing.T) {
	tests := []struct {
		err   error
		title string
	}{
		{err: domain.NewDomainError("AnswerDirect", domain.ErrAgentNotFound, "chemistry"), title: "Unknown Specialist"},
		{err: fmt.Errorf("chat: %w", domain.ErrCircuitOpen), title: "Model Unavailable"},
		{err: domain.ErrRateLimit, title: "Rate Limited"},
		{err: errors.New("dial tcp 127.0.0.1:443: connection refused"), title: "Connection Failed"},
		{err: errors.New("context deadline exceeded"), title: "Request Timed Out"},
		{err: fmt.Errorf("solve: %w", domain.ErrTimeout), title: "Request Timed Out"},
		{err: fmt.Errorf("provider gemini api_key: %w", domain.ErrDecryption), title: "Cannot Decrypt Config"},
		{err: errors.New("API error 400: API key not valid"), title: "Authentication Failed"},
		{err: errors.New("something odd"), title: "Unexpected Error"},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			fe := Humanize(tt.err)
			assert.Equal(t, tt.title, fe.Title)
			assert.Equal(t, tt.err.Error(), fe.Raw)
		})
	}
}

func TestHumanizePrefersSentinels(t *testing.T) {
	// The text says timeout, but the sentinel says rate limit.
	err := fmt.Errorf("%w: upstream timeout budget spent", domain.ErrRateLimit)
	assert.Equal(t, "Rate Limited", Humanize(err).Title)
}

func TestRender(t *testing.T) {
	fe := FriendlyError{Title: "Oops", Message: "broken", Hints: []string{"retry"}}
	out := fe.Render()
	assert.Contains(t, out, "Oops\n  broken")
	assert.Contains(t, out, "Suggestions:")
	assert.Contains(t, out, "retry")
	assert.Equal(t, "Unknown Error", Humanize(nil).Title)
}

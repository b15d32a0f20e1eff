package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tutor-dispatch/internal/domain"
)

// DefaultCallTimeout bounds a single LLM call when none is configured.
const DefaultCallTimeout = 30 * time.Second

// llmCaller runs provider calls under a per-call timeout derived from the
// request context. Empty responses count as failures.
type llmCaller struct {
	provider domain.LLMProvider
	timeout  time.Duration
}

func newLLMCaller(p domain.LLMProvider, timeout time.Duration) llmCaller {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return llmCaller{provider: p, timeout: timeout}
}

func (c llmCaller) chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if c.provider == nil {
		return nil, fmt.Errorf("%w: no provider configured", domain.ErrProviderNotFound)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.provider.Chat(ctx, req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout) {
			return nil, fmt.Errorf("%w after %s: %v", domain.ErrTimeout, c.timeout, err)
		}
		return nil, err
	}
	if resp.Empty() {
		return nil, domain.ErrEmptyResponse
	}
	return resp, nil
}

// text sends a system and user prompt without tools and returns the text.
func (c llmCaller) text(ctx context.Context, system, user string) (string, error) {
	resp, err := c.chat(ctx, plainRequest(system, user))
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if text == "" {
		return "", domain.ErrEmptyResponse
	}
	return text, nil
}

func plainRequest(system, user string) domain.ChatRequest {
	var msgs []domain.Message
	if system != "" {
		msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: system})
	}
	msgs = append(msgs, domain.Message{Role: domain.RoleUser, Content: user})
	return domain.ChatRequest{Messages: msgs}
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

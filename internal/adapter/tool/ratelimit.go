package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"tutor-dispatch/internal/domain"
)

// RateLimiter caps tool calls at limit per window. The full budget is
// available up front and refills evenly across the window.
type RateLimiter struct {
	lim *rate.Limiter
	now func() time.Time
}

// NewRateLimiter allows limit calls per window. A limit of zero or less
// rejects every call.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 || window <= 0 {
		return &RateLimiter{lim: rate.NewLimiter(0, 0), now: time.Now}
	}
	return &RateLimiter{
		lim: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit),
		now: time.Now,
	}
}

// Allow consumes one call from the budget if any is left.
func (r *RateLimiter) Allow() bool {
	return r.lim.AllowN(r.now(), 1)
}

// RateLimitedTool answers calls beyond its budget with a retryable error
// result instead of running the tool.
type RateLimitedTool struct {
	inner   domain.Tool
	limiter *RateLimiter
}

func (t *RateLimitedTool) Name() string              { return t.inner.Name() }
func (t *RateLimitedTool) Description() string       { return t.inner.Description() }
func (t *RateLimitedTool) Schema() domain.ToolSchema { return t.inner.Schema() }

func (t *RateLimitedTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	if t.limiter.Allow() {
		return t.inner.Execute(ctx, params)
	}
	return &domain.ToolResult{
		IsError:     true,
		IsRetryable: true,
		Content:     fmt.Sprintf("%v: %s, try again shortly", domain.ErrToolRate, t.inner.Name()),
	}, nil
}

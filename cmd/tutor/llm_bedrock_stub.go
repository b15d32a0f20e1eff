//go:build !bedrock

package main

import (
	"context"
	"fmt"
	"log/slog"

	"tutor-dispatch/internal/domain"
	"tutor-dispatch/internal/infra/config"
)

func createBedrockProvider(_ context.Context, _ config.ProviderConfig, _ *slog.Logger) (domain.LLMProvider, error) {
	return nil, fmt.Errorf("bedrock provider requires build with -tags bedrock")
}

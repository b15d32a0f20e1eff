//go:build bedrock

package main

import (
	"context"
	"log/slog"

	"tutor-dispatch/internal/adapter/llm"
	"tutor-dispatch/internal/domain"
	"tutor-dispatch/internal/infra/config"
)

func createBedrockProvider(ctx context.Context, pc config.ProviderConfig, log *slog.Logger) (domain.LLMProvider, error) {
	return llm.NewBedrockProvider(ctx, pc, log)
}

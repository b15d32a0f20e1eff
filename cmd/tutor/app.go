package main

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"tutor-dispatch/internal/adapter/llm"
	"tutor-dispatch/internal/adapter/tool"
	"tutor-dispatch/internal/domain"
	"tutor-dispatch/internal/infra/config"
	"tutor-dispatch/internal/usecase"
	"tutor-dispatch/internal/usecase/multiagent"
)

// app is the fully wired tutor: providers, tools, specialists and the
// coordinator.
type app struct {
	cfg         *config.Config
	llm         *LLMComponents
	tools       *tool.Registry
	sessions    *usecase.SessionStore
	coordinator *usecase.Coordinator
}

// LLMComponents holds the provider registry and the per-role providers.
type LLMComponents struct {
	Registry   *llm.Registry
	DefaultLLM domain.LLMProvider
	Routing    domain.LLMProvider
	Specialist domain.LLMProvider
	Tutor      domain.LLMProvider
}

func buildApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	llms, err := initLLM(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	tools, err := tool.NewCatalog(tool.CatalogConfig{
		FormulasFile:       cfg.Tools.FormulasFile,
		RateLimitPerMinute: cfg.Tools.RateLimitPerMinute,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("tools: %w", err)
	}

	agents, err := buildSpecialists(cfg, llms.Specialist, tools, log)
	if err != nil {
		return nil, err
	}

	sessions := usecase.NewSessionStore(cfg.Sessions.MaxHistory, cfg.Sessions.Expiry, log)
	coord, err := usecase.NewCoordinator(usecase.CoordinatorDeps{
		Name:              cfg.Tutor.CoordinatorName,
		Agents:            agents,
		RoutingLLM:        llms.Routing,
		TutorLLM:          llms.Tutor,
		ModelLabel:        cfg.Tutor.ModelLabel,
		DirectConfidence:  cfg.Tutor.Confidence.Direct,
		FailureConfidence: cfg.Tutor.Confidence.Failure,
		CallTimeout:       cfg.LLM.CallTimeout,
		Sessions:          sessions,
		Logger:            log,
	})
	if err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}

	log.Info("tutor ready",
		"agents", agents.Keys(),
		"tools", tools.Names(),
		"providers", llms.Registry.List(),
	)
	return &app{cfg: cfg, llm: llms, tools: tools, sessions: sessions, coordinator: coord}, nil
}

// initLLM registers every configured provider, wrapping each in a circuit
// breaker, then resolves the per-role providers.
func initLLM(ctx context.Context, cfg *config.Config, log *slog.Logger) (*LLMComponents, error) {
	registry := llm.NewRegistry()

	cbCfg := cfg.LLM.CircuitBreaker
	for _, pc := range cfg.LLM.Providers {
		provider, err := createLLMProvider(ctx, pc, log)
		if err != nil {
			return nil, fmt.Errorf("llm provider %s: %w", pc.Name, err)
		}
		if cbCfg.Enabled {
			provider = llm.NewCircuitBreakerProvider(provider, cbCfg, log)
		}
		if err := registry.Register(provider); err != nil {
			return nil, fmt.Errorf("llm provider %s: %w", pc.Name, err)
		}
	}

	var fallbacks []string
	if cfg.LLM.Failover.Enabled {
		fallbacks = cfg.LLM.Failover.Fallbacks
	}
	defaultLLM, err := registry.WithFailover(cfg.LLM.DefaultProvider, fallbacks, log)
	if err != nil {
		return nil, fmt.Errorf("default llm provider: %w", err)
	}
	if len(fallbacks) > 0 {
		log.Info("model failover enabled", "fallbacks", fallbacks)
	}

	roles, err := registry.ResolveRoles(cfg.LLM.ModelRouting, defaultLLM)
	if err != nil {
		return nil, fmt.Errorf("model routing: %w", err)
	}
	out := &LLMComponents{
		Registry:   registry,
		DefaultLLM: defaultLLM,
		Routing:    roles.Routing,
		Specialist: roles.Specialist,
		Tutor:      roles.Tutor,
	}
	return out, nil
}

func createLLMProvider(ctx context.Context, pc config.ProviderConfig, log *slog.Logger) (domain.LLMProvider, error) {
	switch pc.Type {
	case "gemini":
		return llm.NewGeminiProvider(pc, log), nil
	case "genai":
		return llm.NewGenAIProvider(ctx, pc, log)
	case "openai":
		return llm.NewOpenAIProvider(pc, log), nil
	case "bedrock":
		return createBedrockProvider(ctx, pc, log)
	default:
		return nil, fmt.Errorf("unknown provider type %q", pc.Type)
	}
}

// physicsTools is the subset of the catalog the physics tutor may call.
var physicsTools = []string{tool.NameCalculator, tool.NameFormulaLookup}

// buildSpecialists registers the enabled specialists in a stable order:
// math, then physics.
func buildSpecialists(cfg *config.Config, provider domain.LLMProvider, tools *tool.Registry, log *slog.Logger) (*multiagent.Registry, error) {
	reg := multiagent.NewRegistry(log)
	conf := cfg.Tutor.Confidence

	type builtin struct {
		key     string
		persona usecase.Persona
		tools   domain.ToolExecutor
		success float64
	}
	physics, err := tools.Subset(physicsTools...)
	if err != nil {
		return nil, fmt.Errorf("physics tools: %w", err)
	}
	builtins := []builtin{
		{key: "math", persona: usecase.MathPersona(), tools: tools, success: conf.Math},
		{key: "physics", persona: usecase.PhysicsPersona(), tools: physics, success: conf.Physics},
	}

	keys := make([]string, 0, len(cfg.Tutor.Agents))
	for k := range cfg.Tutor.Agents {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if !slices.ContainsFunc(builtins, func(s builtin) bool { return s.key == k }) {
			log.Warn("ignoring unknown specialist in config", "key", k)
		}
	}

	for _, s := range builtins {
		ac, ok := cfg.Tutor.Agents[s.key]
		if !ok || !ac.Enabled {
			continue
		}
		strategy, err := usecase.StrategyByName(ac.Strategy)
		if err != nil {
			return nil, fmt.Errorf("%s specialist: %w", s.key, err)
		}
		agent := usecase.NewSpecialist(usecase.SpecialistDeps{
			Persona:  s.persona,
			LLM:      provider,
			Tools:    s.tools,
			Strategy: strategy,
			Confidences: usecase.Confidences{
				Success:        s.success,
				NoToolFallback: conf.NoToolFallback,
				Failure:        conf.Failure,
			},
			ModelLabel:  cfg.Tutor.ModelLabel,
			CallTimeout: cfg.LLM.CallTimeout,
			Logger:      log,
		})
		if err := reg.Register(s.key, agent); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

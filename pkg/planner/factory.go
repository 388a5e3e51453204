package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/ColtMercer/nautobot-mcp/pkg/llm"
	"github.com/ColtMercer/nautobot-mcp/pkg/llm/middleware/circuit"
	"github.com/ColtMercer/nautobot-mcp/pkg/llm/middleware/metrics"
	"github.com/ColtMercer/nautobot-mcp/pkg/llm/middleware/ratelimit"
	"github.com/ColtMercer/nautobot-mcp/pkg/llm/middleware/retry"
	"github.com/ColtMercer/nautobot-mcp/pkg/llm/middleware/timeout"
	"github.com/ColtMercer/nautobot-mcp/pkg/logx"
	appmetrics "github.com/ColtMercer/nautobot-mcp/pkg/metrics"
	"github.com/ColtMercer/nautobot-mcp/pkg/planner/internal/llmimpl/anthropic"
	"github.com/ColtMercer/nautobot-mcp/pkg/planner/internal/llmimpl/google"
	"github.com/ColtMercer/nautobot-mcp/pkg/planner/internal/llmimpl/ollama"
	"github.com/ColtMercer/nautobot-mcp/pkg/planner/internal/llmimpl/openai"
)

const defaultOllamaHost = "http://localhost:11434"

// ResilienceConfig carries the middleware tunables for planner clients.
type ResilienceConfig struct {
	Circuit   circuit.Config
	Retry     retry.Config
	RateLimit map[string]ratelimit.Config // keyed by provider
	Timeout   time.Duration
}

// DefaultResilienceConfig returns the stock tunables. Ollama runs locally,
// so it gets a large token budget but low concurrency; hosted providers
// use the shared default allowance.
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		Circuit: circuit.DefaultConfig,
		Retry:   retry.DefaultConfig,
		RateLimit: map[string]ratelimit.Config{
			llm.ProviderAnthropic: ratelimit.DefaultConfig,
			llm.ProviderOpenAI:    ratelimit.DefaultConfig,
			llm.ProviderGoogle:    ratelimit.DefaultConfig,
			llm.ProviderOllama:    {TokensPerMinute: 1000000, MaxConcurrency: 2},
		},
		Timeout: timeout.DefaultTimeout,
	}
}

// Factory builds planner clients with properly configured middleware
// chains. Circuit breakers and rate limiters are per provider, so every
// client created for a provider shares the same failure and budget state.
type Factory struct {
	resilience ResilienceConfig
	recorder   appmetrics.Recorder
	logger     *logx.Logger
	breakers   map[string]circuit.Breaker
	limiters   map[string]*ratelimit.TokenBucket
}

// NewFactory creates a planner client factory. A nil recorder disables
// metrics.
func NewFactory(res ResilienceConfig, recorder appmetrics.Recorder, logger *logx.Logger) *Factory {
	if recorder == nil {
		recorder = appmetrics.Nop()
	}

	providers := []string{llm.ProviderAnthropic, llm.ProviderOpenAI, llm.ProviderOllama, llm.ProviderGoogle}

	breakers := make(map[string]circuit.Breaker, len(providers))
	limiters := make(map[string]*ratelimit.TokenBucket, len(providers))
	for _, provider := range providers {
		breakers[provider] = circuit.New(res.Circuit)

		cfg, ok := res.RateLimit[provider]
		if !ok {
			cfg = ratelimit.DefaultConfig
		}
		limiters[provider] = ratelimit.NewTokenBucket(provider, cfg)
	}

	return &Factory{
		resilience: res,
		recorder:   recorder,
		logger:     logger,
		breakers:   breakers,
		limiters:   limiters,
	}
}

// Start launches the rate limiter refill loops. They run until ctx is
// cancelled.
func (f *Factory) Start(ctx context.Context) {
	for _, limiter := range f.limiters {
		limiter.Start(ctx)
	}
}

// NewClient builds a planner client for the given configuration with the
// full middleware chain:
// Metrics -> CircuitBreaker -> Retry -> RateLimit -> Timeout -> RawClient.
func (f *Factory) NewClient(cfg llm.Config) (llm.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid planner config: %w", err)
	}

	var raw llm.Client
	switch cfg.Provider {
	case llm.ProviderAnthropic:
		raw = anthropic.NewClient(cfg.APIKey, cfg.ModelName)
	case llm.ProviderOpenAI:
		raw = openai.NewClient(cfg.APIKey, cfg.ModelName)
	case llm.ProviderOllama:
		host := cfg.Host
		if host == "" {
			host = defaultOllamaHost
		}
		raw = ollama.NewClient(host, cfg.ModelName)
	case llm.ProviderGoogle:
		raw = google.NewClient(cfg.APIKey, cfg.ModelName)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}

	breaker, exists := f.breakers[cfg.Provider]
	if !exists {
		return nil, fmt.Errorf("no circuit breaker found for provider %s", cfg.Provider)
	}
	limiter, exists := f.limiters[cfg.Provider]
	if !exists {
		return nil, fmt.Errorf("no rate limiter found for provider %s", cfg.Provider)
	}

	retryPolicy := retry.NewPolicy(f.resilience.Retry, nil) // Use default classifier

	client := llm.Chain(raw,
		metrics.Middleware(f.recorder, nil, f.logger),
		circuit.Middleware(breaker),
		retry.Middleware(retryPolicy),
		ratelimit.Middleware(limiter, nil, f.recorder), // Uses default token estimator
		timeout.Middleware(f.resilience.Timeout),
	)

	return client, nil
}

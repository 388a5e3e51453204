// Package ratelimit provides rate limiting for planner LLM calls.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ColtMercer/nautobot-mcp/pkg/llm"
	"github.com/ColtMercer/nautobot-mcp/pkg/logx"
	"github.com/ColtMercer/nautobot-mcp/pkg/tokens"
)

const (
	// bufferFactor shrinks the advertised tokens-per-minute to absorb
	// estimation error before the provider starts returning 429s.
	bufferFactor = 0.9

	// refillInterval splits the per-minute budget into ten refills.
	refillInterval = 6 * time.Second
	refillsPerMin  = 10

	// maxWait bounds how long Acquire blocks. The bucket refills to full
	// capacity in about a minute; waiting two full cycles means the request
	// can never fit or the config is wrong.
	maxWait = 2 * time.Minute

	pollInterval = 100 * time.Millisecond
)

// Limiter defines the interface for rate limiting implementations.
type Limiter interface {
	// Acquire atomically claims tokens and a concurrency slot, blocking
	// until both are available or the context is cancelled. The returned
	// release function must be called to return the slot; tokens are
	// consumed and not refunded.
	Acquire(ctx context.Context, tokenCount int) (func(), error)

	// GetStats returns current limiter statistics.
	GetStats() Stats
}

// TokenEstimator estimates the number of tokens needed for a request.
type TokenEstimator interface {
	EstimatePrompt(req llm.CompletionRequest) int
}

// Config defines rate limiting configuration for a provider.
type Config struct {
	TokensPerMinute int `json:"tokens_per_minute" yaml:"tokens_per_minute"`
	MaxConcurrency  int `json:"max_concurrency" yaml:"max_concurrency"`
}

// DefaultConfig matches a mid-tier provider allowance with headroom for
// several concurrent sessions.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultConfig = Config{
	TokensPerMinute: 80000,
	MaxConcurrency:  4,
}

// TiktokenEstimator estimates prompt size with tiktoken-based counting.
type TiktokenEstimator struct{}

// NewTiktokenEstimator creates the default prompt token estimator.
func NewTiktokenEstimator() TokenEstimator {
	return &TiktokenEstimator{}
}

// EstimatePrompt counts tokens across message content and embedded tool
// results, which carry most of the bulk in later planning rounds.
//
//nolint:gocritic // hugeParam: estimation reads the full request by design of the interface
func (e *TiktokenEstimator) EstimatePrompt(req llm.CompletionRequest) int {
	var promptText string
	for i := range req.Messages {
		promptText += req.Messages[i].Content + "\n"
		for j := range req.Messages[i].ToolResults {
			promptText += req.Messages[i].ToolResults[j].Content + "\n"
		}
	}
	return tokens.CountSimple(promptText)
}

// Stats represents current rate limiter statistics.
type Stats struct {
	Provider        string `json:"provider"`
	AvailableTokens int    `json:"available_tokens"`
	MaxCapacity     int    `json:"max_capacity"`
	ActiveRequests  int    `json:"active_requests"`
	MaxConcurrency  int    `json:"max_concurrency"`
	TokenLimitHits  int64  `json:"token_limit_hits"`
	ConcurrencyHits int64  `json:"concurrency_hits"`
}

// TokenBucket implements Limiter with a token bucket for throughput plus a
// counting semaphore for concurrency.
//
//nolint:govet // fieldalignment: Struct layout optimized for readability over memory
type TokenBucket struct {
	mu sync.Mutex

	provider string

	availableTokens int
	tokensPerRefill int
	maxCapacity     int

	activeRequests int
	maxConcurrency int

	tokenLimitHits  int64
	concurrencyHits int64
}

// NewTokenBucket creates a rate limiter for a provider. Zero-value config
// fields fall back to DefaultConfig. The bucket starts full.
func NewTokenBucket(provider string, cfg Config) *TokenBucket {
	if cfg.TokensPerMinute <= 0 {
		cfg.TokensPerMinute = DefaultConfig.TokensPerMinute
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultConfig.MaxConcurrency
	}

	maxCapacity := int(float64(cfg.TokensPerMinute) * bufferFactor)

	return &TokenBucket{
		provider:        provider,
		availableTokens: maxCapacity,
		tokensPerRefill: cfg.TokensPerMinute / refillsPerMin,
		maxCapacity:     maxCapacity,
		maxConcurrency:  cfg.MaxConcurrency,
	}
}

// Start launches the background refill timer. It stops when ctx is cancelled.
func (l *TokenBucket) Start(ctx context.Context) {
	ticker := time.NewTicker(refillInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.refill()
			}
		}
	}()
}

// Acquire atomically claims tokens and a concurrency slot.
func (l *TokenBucket) Acquire(ctx context.Context, tokenCount int) (func(), error) {
	firstAttempt := true
	startTime := time.Now()

	for {
		l.mu.Lock()

		hasTokens := l.availableTokens >= tokenCount
		hasSlot := l.activeRequests < l.maxConcurrency

		if hasTokens && hasSlot {
			l.availableTokens -= tokenCount
			l.activeRequests++
			l.mu.Unlock()

			var once sync.Once
			return func() {
				once.Do(l.release)
			}, nil
		}

		elapsed := time.Since(startTime)
		if elapsed > maxWait {
			l.mu.Unlock()
			return nil, fmt.Errorf("rate limit acquisition timeout after %v "+
				"(requested %d tokens, max capacity %d, provider: %s)",
				elapsed.Round(time.Second), tokenCount, l.maxCapacity, l.provider)
		}

		// Record what blocked us, once, to avoid log spam while polling
		if firstAttempt {
			if !hasTokens {
				l.tokenLimitHits++
				logx.Infof("RATELIMIT: %s token limit hit, waiting for refill (need %d, have %d)",
					l.provider, tokenCount, l.availableTokens)
			}
			if !hasSlot {
				l.concurrencyHits++
				logx.Infof("RATELIMIT: %s concurrency limit hit, waiting for slot (active: %d/%d)",
					l.provider, l.activeRequests, l.maxConcurrency)
			}
			firstAttempt = false
		}

		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err() //nolint:wrapcheck // Context error propagated as-is
		case <-time.After(pollInterval):
		}
	}
}

// release returns a concurrency slot. Tokens stay consumed.
func (l *TokenBucket) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.activeRequests--
}

// refill adds tokens to the bucket up to max capacity.
func (l *TokenBucket) refill() {
	l.mu.Lock()
	defer l.mu.Unlock()

	oldTokens := l.availableTokens
	l.availableTokens += l.tokensPerRefill
	if l.availableTokens > l.maxCapacity {
		l.availableTokens = l.maxCapacity
	}

	if l.availableTokens != oldTokens {
		logx.Debugf("RATELIMIT: %s bucket refilled: %d -> %d tokens (max: %d)",
			l.provider, oldTokens, l.availableTokens, l.maxCapacity)
	}
}

// GetStats returns current limiter statistics (thread-safe).
func (l *TokenBucket) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Stats{
		Provider:        l.provider,
		AvailableTokens: l.availableTokens,
		MaxCapacity:     l.maxCapacity,
		ActiveRequests:  l.activeRequests,
		MaxConcurrency:  l.maxConcurrency,
		TokenLimitHits:  l.tokenLimitHits,
		ConcurrencyHits: l.concurrencyHits,
	}
}

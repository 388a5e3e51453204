// Package retry provides retry logic with exponential backoff for resilient LLM calls.
package retry

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/ColtMercer/nautobot-mcp/pkg/llm/llmerrors"
	"github.com/ColtMercer/nautobot-mcp/pkg/llm/middleware/circuit"
)

// Config defines configuration for retry behavior.
type Config struct {
	MaxAttempts   int           `json:"max_attempts"`   // Maximum number of attempts (including initial)
	InitialDelay  time.Duration `json:"initial_delay"`  // Initial delay before first retry
	MaxDelay      time.Duration `json:"max_delay"`      // Maximum delay between retries
	BackoffFactor float64       `json:"backoff_factor"` // Multiplier for exponential backoff
	Jitter        bool          `json:"jitter"`         // Add random jitter to prevent thundering herd
}

// DefaultConfig provides reasonable defaults for retry behavior.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultConfig = Config{
	MaxAttempts:   3,
	InitialDelay:  100 * time.Millisecond,
	MaxDelay:      10 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// Classifier determines if an error should be retried.
type Classifier func(error) bool

// ShouldRetry is the default error classifier. Classified llmerrors carry
// their own retryability; unclassified errors use the same blocklist
// approach, so unknown errors retry.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	// Never retry context cancellation
	if errors.Is(err, context.Canceled) {
		return false
	}

	// Per-request timeouts surface as DeadlineExceeded while the parent
	// context is still live, so deadline errors stay retryable.

	// Never retry circuit breaker errors - let the circuit breaker handle recovery
	var circuitErr *circuit.Error
	if errors.As(err, &circuitErr) {
		return false
	}

	// Classified errors know whether they are retryable
	var llmErr *llmerrors.Error
	if errors.As(err, &llmErr) {
		return llmErr.IsRetryable()
	}

	errStr := strings.ToLower(err.Error())

	// Retry on network/timeout errors
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "temporary") {
		return true
	}

	// Retry on rate limiting
	if strings.Contains(errStr, "rate") || strings.Contains(errStr, "429") {
		return true
	}

	// Retry on server errors (5xx)
	if strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") {
		return true
	}

	// Don't retry auth failures
	if strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "unauthorized") ||
		strings.Contains(errStr, "forbidden") ||
		strings.Contains(errStr, "invalid api key") {
		return false
	}

	// Don't retry malformed requests
	if strings.Contains(errStr, "400") || strings.Contains(errStr, "404") {
		return false
	}

	// Unknown errors default to retryable (blocklist approach)
	return true
}

// Policy encapsulates retry configuration and logic.
//
//nolint:govet // Simple struct, logical grouping preferred
type Policy struct {
	Config     Config
	Classifier Classifier
}

// NewPolicy creates a new retry policy with the given configuration and classifier.
func NewPolicy(config Config, classifier Classifier) *Policy {
	if classifier == nil {
		classifier = ShouldRetry
	}
	return &Policy{
		Config:     config,
		Classifier: classifier,
	}
}

// configFor picks the backoff parameters for an error: classified errors use
// their type-specific config, everything else uses the policy config.
func (p *Policy) configFor(err error) Config {
	var llmErr *llmerrors.Error
	if errors.As(err, &llmErr) {
		tc := llmErr.GetRetryConfig()
		return Config{
			MaxAttempts:   tc.MaxRetries + 1,
			InitialDelay:  tc.InitialDelay,
			MaxDelay:      tc.MaxDelay,
			BackoffFactor: tc.BackoffFactor,
			Jitter:        tc.Jitter,
		}
	}
	return p.Config
}

// MaxAttemptsFor returns the attempt budget for an error, including the
// initial attempt.
func (p *Policy) MaxAttemptsFor(err error) int {
	return p.configFor(err).MaxAttempts
}

// CalculateDelay computes the delay before the given attempt number using
// the policy's own backoff configuration.
func (p *Policy) CalculateDelay(attempt int) time.Duration {
	return delayFromConfig(p.Config, attempt)
}

// CalculateDelayFor computes the delay before the given attempt number,
// using error-type-specific backoff when the error is classified.
func (p *Policy) CalculateDelayFor(attempt int, err error) time.Duration {
	return delayFromConfig(p.configFor(err), attempt)
}

func delayFromConfig(cfg Config, attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delay := time.Duration(float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(attempt-2)))

	// Cap at maximum delay
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}

	// Add jitter if enabled
	if cfg.Jitter && delay > 0 {
		jitterFactor := (2*time.Now().UnixNano()%2 - 1) // -1 or 1
		jitter := time.Duration(float64(delay) * 0.1 * float64(jitterFactor))
		delay += jitter
		if delay < 0 {
			delay = cfg.InitialDelay
		}
	}

	return delay
}

// ShouldRetry determines if an error should be retried based on the configured classifier.
func (p *Policy) ShouldRetry(err error) bool {
	return p.Classifier(err)
}

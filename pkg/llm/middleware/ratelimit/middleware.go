package ratelimit

import (
	"context"
	"errors"

	"github.com/ColtMercer/nautobot-mcp/pkg/llm"
	"github.com/ColtMercer/nautobot-mcp/pkg/metrics"
)

// Middleware returns a middleware function that wraps an LLM client with
// rate limiting. It estimates token usage and acquires tokens plus a
// concurrency slot before dispatching.
func Middleware(limiter Limiter, estimator TokenEstimator, recorder metrics.Recorder) llm.Middleware {
	if estimator == nil {
		estimator = NewTiktokenEstimator()
	}
	if recorder == nil {
		recorder = metrics.Nop()
	}

	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				release, err := acquire(ctx, limiter, estimator, recorder, next.GetModelName(), req)
				if err != nil {
					return llm.CompletionResponse{}, err
				}
				defer release()

				return next.Complete(ctx, req) //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				release, err := acquire(ctx, limiter, estimator, recorder, next.GetModelName(), req)
				if err != nil {
					return nil, err
				}

				ch, err := next.Stream(ctx, req)
				if err != nil {
					release()
					return nil, err //nolint:wrapcheck // Middleware should pass through errors unchanged
				}

				// Hold the slot until the stream drains
				out := make(chan llm.StreamChunk)
				go func() {
					defer release()
					defer close(out)
					for chunk := range ch {
						out <- chunk
					}
				}()
				return out, nil
			},
			func() string {
				return next.GetModelName()
			},
		)
	}
}

// acquire estimates the request cost and claims limiter resources,
// recording a throttle metric when acquisition fails.
func acquire(ctx context.Context, limiter Limiter, estimator TokenEstimator, recorder metrics.Recorder, modelName string, req llm.CompletionRequest) (func(), error) {
	promptTokens := estimator.EstimatePrompt(req)
	totalTokens := promptTokens + req.MaxTokens

	release, err := limiter.Acquire(ctx, totalTokens)
	if err != nil {
		reason := "rate_limit"
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			reason = "cancelled"
		}
		recorder.IncThrottle(modelName, reason)
		return nil, err //nolint:wrapcheck // Limiter errors carry full context already
	}

	return release, nil
}

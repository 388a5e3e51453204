// Package timeout provides timeout middleware for LLM clients.
package timeout

import (
	"context"
	"time"

	"github.com/ColtMercer/nautobot-mcp/pkg/llm"
)

// DefaultTimeout bounds a single planner completion.
const DefaultTimeout = 60 * time.Second

// Middleware creates timeout middleware with the given timeout duration.
func Middleware(timeout time.Duration) llm.Middleware {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()

				return next.Complete(timeoutCtx, req)
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				// The deadline covers the stream's full lifetime. A relay
				// keeps the timer alive until the stream drains; cancelling
				// when Stream returns would kill the stream mid-flight.
				timeoutCtx, cancel := context.WithTimeout(ctx, timeout)

				ch, err := next.Stream(timeoutCtx, req)
				if err != nil {
					cancel()
					return nil, err
				}

				out := make(chan llm.StreamChunk)
				go func() {
					defer cancel()
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

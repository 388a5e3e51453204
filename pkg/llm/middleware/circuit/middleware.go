package circuit

import (
	"context"

	"github.com/ColtMercer/nautobot-mcp/pkg/llm"
)

// Middleware creates circuit breaker middleware with the given breaker.
func Middleware(breaker Breaker) llm.Middleware {
	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				if !breaker.Allow() {
					return llm.CompletionResponse{}, &Error{State: breaker.GetState()}
				}

				resp, err := next.Complete(ctx, req)
				breaker.Record(err == nil)
				return resp, err
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				if !breaker.Allow() {
					return nil, &Error{State: breaker.GetState()}
				}

				ch, err := next.Stream(ctx, req)
				// Record only the call setup; chunk-level errors surface to the caller.
				breaker.Record(err == nil)
				return ch, err
			},
			func() string {
				return next.GetModelName()
			},
		)
	}
}

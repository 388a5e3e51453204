// Package metrics provides metrics middleware for LLM clients.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/ColtMercer/nautobot-mcp/pkg/llm"
	"github.com/ColtMercer/nautobot-mcp/pkg/llm/llmerrors"
	"github.com/ColtMercer/nautobot-mcp/pkg/llm/middleware/circuit"
	"github.com/ColtMercer/nautobot-mcp/pkg/logx"
	"github.com/ColtMercer/nautobot-mcp/pkg/tokens"
)

const statusSuccess = "success"

// Recorder receives planner request observations. Satisfied by the
// application metrics recorder.
type Recorder interface {
	ObservePlanner(provider, status string, duration time.Duration)
}

// nopRecorder discards observations when no recorder is wired.
type nopRecorder struct{}

func (nopRecorder) ObservePlanner(_, _ string, _ time.Duration) {}

// UsageExtractor extracts token usage from a request and response pair.
type UsageExtractor func(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int)

// DefaultUsageExtractor counts tokens with tiktoken. Prompt tokens include
// embedded tool results since those dominate later planning rounds.
func DefaultUsageExtractor(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int) {
	var promptText string
	for i := range req.Messages {
		promptText += req.Messages[i].Content + "\n"
		for j := range req.Messages[i].ToolResults {
			promptText += req.Messages[i].ToolResults[j].Content + "\n"
		}
	}
	promptTokens = tokens.CountSimple(promptText)
	completionTokens = tokens.CountSimple(resp.Content)

	return promptTokens, completionTokens
}

// Middleware returns a middleware function that records metrics for LLM
// operations. It tracks request latency, token usage, and outcome by type.
func Middleware(recorder Recorder, usageExtractor UsageExtractor, logger *logx.Logger) llm.Middleware {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if usageExtractor == nil {
		usageExtractor = DefaultUsageExtractor
	}

	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				modelName := next.GetModelName()

				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				var promptTokens, completionTokens int
				if err == nil {
					promptTokens, completionTokens = usageExtractor(req, resp)
				}

				status := statusSuccess
				if err != nil {
					status = classifyOutcome(err)
				}

				recorder.ObservePlanner(modelName, status, duration)

				if logger != nil {
					totalTokens := promptTokens + completionTokens
					logger.Info("🎯 Planner request: model=%s tokens=%d+%d=%d status=%s duration=%dms",
						modelName, promptTokens, completionTokens, totalTokens, status, duration.Milliseconds())
				}

				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				start := time.Now()
				modelName := next.GetModelName()

				ch, err := next.Stream(ctx, req)
				duration := time.Since(start)

				// Streams record setup latency only; counting tokens would
				// require consuming the whole stream here.
				status := statusSuccess
				if err != nil {
					status = classifyOutcome(err)
				}

				recorder.ObservePlanner(modelName, status, duration)

				if logger != nil {
					logger.Info("🎯 Planner stream: model=%s tokens=streaming status=%s duration=%dms",
						modelName, status, duration.Milliseconds())
				}

				return ch, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			func() string {
				return next.GetModelName()
			},
		)
	}
}

// classifyOutcome maps an error to a bounded status label.
func classifyOutcome(err error) string {
	var cbErr *circuit.Error
	if errors.As(err, &cbErr) {
		return "circuit_breaker"
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}

	var llmErr *llmerrors.Error
	if errors.As(err, &llmErr) {
		return llmErr.Type.String()
	}

	return "unknown"
}

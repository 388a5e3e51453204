// Package validation provides response validation middleware for LLM clients.
package validation

import (
	"context"
	"fmt"
	"strings"

	"github.com/ColtMercer/nautobot-mcp/pkg/llm"
	"github.com/ColtMercer/nautobot-mcp/pkg/llm/llmerrors"
	"github.com/ColtMercer/nautobot-mcp/pkg/logx"
)

// EmptyResponseValidator validates planner responses and retries once with
// guidance before escalating.
//
// A planner response is meaningful if it either requests tool calls or
// carries final answer text. A response with neither gives the orchestrator
// nothing to act on, so the turn would spin a round for free.
type EmptyResponseValidator struct{}

// NewEmptyResponseValidator creates a new response validator.
func NewEmptyResponseValidator() *EmptyResponseValidator {
	return &EmptyResponseValidator{}
}

// Middleware returns a middleware function that validates LLM responses.
//
// For empty responses (retry pattern):
// - First occurrence: Adds guidance message to request, retries immediately
// - Second occurrence: Returns ErrorTypeEmptyResponse for the turn to abort on.
func (v *EmptyResponseValidator) Middleware() llm.Middleware {
	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				// Max 2 attempts: original + 1 retry with guidance
				const maxEmptyAttempts = 2

				logger := logx.NewLogger("empty-response-validator")

				for attempt := 1; attempt <= maxEmptyAttempts; attempt++ {
					resp, err := next.Complete(ctx, req)

					// Non-empty-response errors pass through immediately
					if err != nil && !llmerrors.Is(err, llmerrors.ErrorTypeEmptyResponse) {
						//nolint:wrapcheck // Middleware intentionally passes through errors unchanged
						return resp, err
					}

					isEmpty := err != nil || isEmptyResponse(resp)
					if !isEmpty {
						return resp, nil
					}

					logEmptyResponseDetails(logger, attempt, resp, err)

					if attempt == 1 {
						logger.Warn("🔄 AUTO-RETRY: Adding guidance message and retrying (attempt 1→2)")
						guidanceMessage := createGuidanceMessage(req)
						logger.Debug("🔄 Guidance message: %s", guidanceMessage)

						modifiedReq := req
						modifiedReq.Messages = append(modifiedReq.Messages, llm.CompletionMessage{
							Role:    llm.RoleUser,
							Content: guidanceMessage,
						})

						req = modifiedReq
						continue
					}

					logger.Error("❌ AUTO-RETRY FAILED: Both attempts returned empty responses, escalating")
					break
				}

				emptyErr := llmerrors.NewError(
					llmerrors.ErrorTypeEmptyResponse,
					"received inadequate response after guidance: no tool calls and no answer text",
				)
				return llm.CompletionResponse{}, emptyErr
			},
			// Streams pass through unchanged; validation applies to complete responses
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				return next.Stream(ctx, req)
			},
			func() string {
				return next.GetModelName()
			},
		)
	}
}

// isEmptyResponse reports whether a response carries neither tool calls nor
// answer text.
func isEmptyResponse(resp llm.CompletionResponse) bool {
	if len(resp.ToolCalls) > 0 {
		return false
	}
	return strings.TrimSpace(resp.Content) == ""
}

// createGuidanceMessage builds fallback guidance naming a few of the
// available tools so the model has something concrete to reach for.
func createGuidanceMessage(req llm.CompletionRequest) string {
	if len(req.Tools) == 0 {
		return "Your response was empty. Please answer the user's question directly."
	}

	names := make([]string, 0, 3)
	for i := range req.Tools {
		names = append(names, req.Tools[i].Name)
		if len(names) == 3 {
			break
		}
	}

	return fmt.Sprintf("Your response was empty. Either call one of the available tools (such as %s) "+
		"to gather the data you need, or answer the user's question directly.",
		strings.Join(names, ", "))
}

// logEmptyResponseDetails logs why a response was considered empty.
func logEmptyResponseDetails(logger *logx.Logger, attempt int, resp llm.CompletionResponse, err error) {
	hasContent := strings.TrimSpace(resp.Content) != ""
	hasToolCalls := len(resp.ToolCalls) > 0

	var emptyReason string
	switch {
	case err != nil:
		emptyReason = fmt.Sprintf("LLM client returned ErrorTypeEmptyResponse: %v", err)
	case !hasContent && !hasToolCalls:
		emptyReason = "Response has no content and no tool calls"
	default:
		emptyReason = "Response was considered empty for unknown reason"
	}

	logger.Warn("⚠️ EMPTY RESPONSE DETECTED (attempt %d/%d): %s", attempt, 2, emptyReason)
	logger.Debug("📊 Response details: content_length=%d, tool_calls_count=%d",
		len(resp.Content), len(resp.ToolCalls))
}

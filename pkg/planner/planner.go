// Package planner decides, round by round, whether a turn is answered or
// which capability calls come next. Planners are pure functions of their
// request: conversation history, the capability catalog, prior round
// results, and cache hints. How the decision is produced stays behind the
// Planner interface; the orchestrator's state machine never depends on it.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ColtMercer/nautobot-mcp/pkg/capability"
	"github.com/ColtMercer/nautobot-mcp/pkg/llm"
	"github.com/ColtMercer/nautobot-mcp/pkg/logx"
	"github.com/ColtMercer/nautobot-mcp/pkg/tokens"
)

// DecisionKind tags the planner's decision variant.
type DecisionKind int

const (
	// DecisionFinal carries the answer that completes the turn.
	DecisionFinal DecisionKind = iota

	// DecisionCalls carries the next batch of capability calls.
	DecisionCalls
)

// String returns a human-readable name for the DecisionKind.
func (k DecisionKind) String() string {
	switch k {
	case DecisionFinal:
		return "Final"
	case DecisionCalls:
		return "Calls"
	default:
		return fmt.Sprintf("DecisionKind(%d)", k)
	}
}

// Decision is the planner's verdict for one round: either the final answer
// or the calls to execute next. RoundIndex on the calls is stamped by the
// orchestrator, not the planner.
type Decision struct {
	Kind   DecisionKind
	Answer string
	Calls  []capability.CallRequest
}

// Message is one conversation entry visible to the planner.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// RoundResult pairs one executed round's requests with their results,
// index-aligned.
type RoundResult struct {
	Requests []capability.CallRequest
	Results  []capability.CallResult
}

// Request is everything a planner may consider for one decision.
type Request struct {
	History    []Message
	Catalog    []capability.Capability
	Rounds     []RoundResult
	CacheHints []string
}

// Planner decides each round of a turn.
type Planner interface {
	Decide(ctx context.Context, req *Request) (*Decision, error)
}

// ErrEmptyDecision reports a model response carrying neither an answer nor
// capability calls. The orchestrator treats it as a planner failure.
var ErrEmptyDecision = errors.New("planner returned neither an answer nor calls")

const (
	// historyWindow bounds how many prior messages are replayed to the model.
	historyWindow = 25

	// historyTokenBudget bounds the replayed history size. Oldest messages
	// are dropped first; the newest always survives.
	historyTokenBudget = 8000
)

const systemInstructions = `You are a helpful assistant working in a corporate environment with access to live network inventory data through capability calls.

GUIDELINES:
- Call capabilities only when the question needs live inventory data; otherwise answer directly.
- Arguments must satisfy each capability's input schema exactly.
- For follow-up questions, use the conversation history to resolve what the user is referring to.
- When a call fails, decide whether to retry with different arguments or explain the problem.
- Be professional and keep answers concise.`

// LLMPlanner delegates the round decision to a model behind a
// middleware-chained completion client.
type LLMPlanner struct {
	client      llm.Client
	logger      *logx.Logger
	counter     *tokens.Counter
	maxTokens   int
	temperature float32
}

// NewLLMPlanner wraps a completion client in the Planner interface. The
// client's model name seeds the token counter used for history budgeting;
// maxTokens <= 0 falls back to the default response cap.
func NewLLMPlanner(client llm.Client, maxTokens int, temperature float32, logger *logx.Logger) *LLMPlanner {
	if logger == nil {
		logger = logx.NewLogger("planner")
	}
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}
	counter, err := tokens.NewCounter(client.GetModelName())
	if err != nil {
		counter = nil // Count degrades to the character estimate
	}
	return &LLMPlanner{
		client:      client,
		logger:      logger,
		counter:     counter,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Decide asks the model for the next step of the turn.
func (p *LLMPlanner) Decide(ctx context.Context, req *Request) (*Decision, error) {
	round := len(req.Rounds)
	p.logger.Debug("🎯 Planning round %d: %d history messages, %d capabilities, %d cache hints",
		round, len(req.History), len(req.Catalog), len(req.CacheHints))

	completion := llm.CompletionRequest{
		Messages:    p.buildMessages(req),
		Tools:       req.Catalog,
		ToolChoice:  "auto",
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	}

	resp, err := p.client.Complete(ctx, completion)
	if err != nil {
		return nil, fmt.Errorf("planner completion failed: %w", err)
	}

	// A response carrying both text and calls continues the loop; the text
	// is the model thinking out loud, not the answer.
	if len(resp.ToolCalls) > 0 {
		calls := make([]capability.CallRequest, len(resp.ToolCalls))
		for i := range resp.ToolCalls {
			calls[i] = capability.CallRequest{
				CapabilityName: resp.ToolCalls[i].Name,
				Arguments:      resp.ToolCalls[i].Parameters,
			}
		}
		p.logger.Info("🔧 Round %d: model requested %d capability calls", round, len(calls))
		return &Decision{Kind: DecisionCalls, Calls: calls}, nil
	}

	if resp.Content != "" {
		p.logger.Info("✅ Round %d: model produced final answer (%d chars)", round, len(resp.Content))
		return &Decision{Kind: DecisionFinal, Answer: resp.Content}, nil
	}

	return nil, fmt.Errorf("round %d: %w", round, ErrEmptyDecision)
}

// buildMessages assembles the completion conversation: system instructions,
// the windowed history, then one assistant/user message pair per executed
// round replaying its calls and results.
func (p *LLMPlanner) buildMessages(req *Request) []llm.CompletionMessage {
	history := p.windowHistory(req.History)

	msgs := make([]llm.CompletionMessage, 0, len(history)+2*len(req.Rounds)+1)
	msgs = append(msgs, llm.CompletionMessage{
		Role:    llm.RoleSystem,
		Content: p.systemPrompt(req),
	})

	for i := range history {
		role := llm.RoleUser
		if history[i].Role == "assistant" {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.CompletionMessage{Role: role, Content: history[i].Content})
	}

	for r := range req.Rounds {
		round := &req.Rounds[r]

		calls := make([]llm.ToolCall, len(round.Requests))
		for i := range round.Requests {
			calls[i] = llm.ToolCall{
				ID:         syntheticCallID(r, i),
				Name:       round.Requests[i].CapabilityName,
				Parameters: round.Requests[i].Arguments,
			}
		}
		msgs = append(msgs, llm.CompletionMessage{Role: llm.RoleAssistant, ToolCalls: calls})

		results := make([]llm.ToolResult, len(round.Results))
		for i := range round.Results {
			res := &round.Results[i]
			name := ""
			if i < len(round.Requests) {
				name = round.Requests[i].CapabilityName
			}
			results[i] = llm.ToolResult{
				ToolCallID: syntheticCallID(r, i),
				Name:       name,
				Content:    foldResult(res),
				IsError:    !res.OK(),
			}
		}
		msgs = append(msgs, llm.CompletionMessage{Role: llm.RoleUser, ToolResults: results})
	}

	return msgs
}

// syntheticCallID produces stable IDs for replayed rounds. Requests and
// results share indices, so the pairing is consistent across providers.
func syntheticCallID(round, index int) string {
	return fmt.Sprintf("call_%d_%d", round, index)
}

// systemPrompt extends the base instructions with the session cache summary
// so the model knows which data it already holds.
func (p *LLMPlanner) systemPrompt(req *Request) string {
	if len(req.CacheHints) == 0 {
		return systemInstructions
	}
	return systemInstructions +
		"\n\nAlready fetched this session (repeat requests are served from cache):\n- " +
		strings.Join(req.CacheHints, "\n- ")
}

// windowHistory keeps the newest messages that fit both the message and
// token budgets, then trims the head so the window opens on a user turn.
func (p *LLMPlanner) windowHistory(history []Message) []Message {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	for len(history) > 1 {
		total := 0
		for i := range history {
			total += p.counter.Count(history[i].Content)
		}
		if total <= historyTokenBudget {
			break
		}
		history = history[1:]
	}
	// Strict-alternation providers reject a window that opens on an
	// assistant turn.
	for len(history) > 1 && history[0].Role == "assistant" {
		history = history[1:]
	}
	return history
}

// foldResult renders one call result as a tool message payload. Failures
// become explicit notices so the model can retry with different arguments
// or give up; successes and cache hits carry the backend envelope verbatim.
func foldResult(res *capability.CallResult) string {
	var body map[string]any
	if res.Kind == capability.ResultFailure {
		body = map[string]any{
			"success":      false,
			"error":        res.Message,
			"failure_kind": string(res.FailureKind),
		}
	} else {
		body = res.Payload
	}

	data, err := json.Marshal(body)
	if err != nil {
		data, _ = json.Marshal(map[string]any{
			"success": false,
			"error":   fmt.Sprintf("unencodable payload: %v", err),
		})
	}
	return string(data)
}

package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ColtMercer/nautobot-mcp/pkg/llm"
	"github.com/ColtMercer/nautobot-mcp/pkg/llm/llmerrors"
)

// fastPolicy keeps test backoffs in the low milliseconds.
func fastPolicy(maxAttempts int) *Policy {
	return NewPolicy(Config{
		MaxAttempts:   maxAttempts,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
		Jitter:        false,
	}, nil)
}

// flakyClient fails a fixed number of times before succeeding.
type flakyClient struct {
	failures int32
	calls    int32
	err      error
}

func (c *flakyClient) Complete(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
	n := atomic.AddInt32(&c.calls, 1)
	if n <= atomic.LoadInt32(&c.failures) {
		return llm.CompletionResponse{}, c.err
	}
	return llm.CompletionResponse{Content: "recovered"}, nil
}

func (c *flakyClient) Stream(_ context.Context, _ llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	n := atomic.AddInt32(&c.calls, 1)
	if n <= atomic.LoadInt32(&c.failures) {
		return nil, c.err
	}
	ch := make(chan llm.StreamChunk)
	close(ch)
	return ch, nil
}

func (c *flakyClient) GetModelName() string { return "flaky-model" }

func TestMiddleware_SucceedsFirstAttempt(t *testing.T) {
	base := &flakyClient{failures: 0}
	client := llm.Chain(base, Middleware(fastPolicy(3)))

	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "recovered" {
		t.Errorf("expected 'recovered', got %q", resp.Content)
	}
	if got := atomic.LoadInt32(&base.calls); got != 1 {
		t.Errorf("expected 1 call, got %d", got)
	}
}

func TestMiddleware_RetriesTransientThenSucceeds(t *testing.T) {
	base := &flakyClient{failures: 2, err: errors.New("connection reset by peer")}
	client := llm.Chain(base, Middleware(fastPolicy(5)))

	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "recovered" {
		t.Errorf("expected 'recovered', got %q", resp.Content)
	}
	if got := atomic.LoadInt32(&base.calls); got != 3 {
		t.Errorf("expected 3 calls (2 failures + success), got %d", got)
	}
}

func TestMiddleware_ExhaustionEmitsServiceUnavailable(t *testing.T) {
	rootErr := errors.New("connection refused")
	base := &flakyClient{failures: 100, err: rootErr}
	client := llm.Chain(base, Middleware(fastPolicy(3)))

	_, err := client.Complete(context.Background(), llm.NewCompletionRequest(nil))
	if err == nil {
		t.Fatal("expected error after exhaustion")
	}
	if !llmerrors.IsServiceUnavailable(err) {
		t.Errorf("expected service unavailable, got %v", err)
	}
	if !errors.Is(err, rootErr) {
		t.Error("expected root cause preserved through exhaustion")
	}
	if got := atomic.LoadInt32(&base.calls); got != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", got)
	}
}

func TestMiddleware_NonRetryablePassesThrough(t *testing.T) {
	authErr := llmerrors.NewError(llmerrors.ErrorTypeAuth, "invalid api key")
	base := &flakyClient{failures: 100, err: authErr}
	client := llm.Chain(base, Middleware(fastPolicy(3)))

	_, err := client.Complete(context.Background(), llm.NewCompletionRequest(nil))
	if err == nil {
		t.Fatal("expected error")
	}
	if !llmerrors.Is(err, llmerrors.ErrorTypeAuth) {
		t.Errorf("expected auth error unchanged, got %v", err)
	}
	if llmerrors.IsServiceUnavailable(err) {
		t.Error("non-retryable errors must not be converted to service unavailable")
	}
	if got := atomic.LoadInt32(&base.calls); got != 1 {
		t.Errorf("expected exactly 1 attempt for non-retryable error, got %d", got)
	}
}

func TestMiddleware_CancelledDuringBackoff(t *testing.T) {
	base := &flakyClient{failures: 100, err: errors.New("connection reset")}

	// Long enough backoff that cancellation lands inside the wait
	policy := NewPolicy(Config{
		MaxAttempts:   5,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2.0,
		Jitter:        false,
	}, nil)
	client := llm.Chain(base, Middleware(policy))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := client.Complete(ctx, llm.NewCompletionRequest(nil))
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if got := atomic.LoadInt32(&base.calls); got != 1 {
		t.Errorf("expected 1 attempt before cancellation, got %d", got)
	}
}

func TestMiddleware_StreamRetries(t *testing.T) {
	base := &flakyClient{failures: 1, err: errors.New("connection reset")}
	client := llm.Chain(base, Middleware(fastPolicy(3)))

	ch, err := client.Stream(context.Background(), llm.NewCompletionRequest(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ch == nil {
		t.Fatal("expected stream channel")
	}
	if got := atomic.LoadInt32(&base.calls); got != 2 {
		t.Errorf("expected 2 calls (1 failure + success), got %d", got)
	}
}

func TestMiddleware_ModelNameDelegation(t *testing.T) {
	base := &flakyClient{}
	client := llm.Chain(base, Middleware(fastPolicy(3)))

	if got := client.GetModelName(); got != "flaky-model" {
		t.Errorf("expected 'flaky-model', got %q", got)
	}
}

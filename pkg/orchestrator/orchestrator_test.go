package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ColtMercer/nautobot-mcp/pkg/capability"
	"github.com/ColtMercer/nautobot-mcp/pkg/executor"
	"github.com/ColtMercer/nautobot-mcp/pkg/planner"
	"github.com/ColtMercer/nautobot-mcp/pkg/registry"
	"github.com/ColtMercer/nautobot-mcp/pkg/session"
)

// fakePlanner scripts decisions by call number and captures every request it
// receives.
type fakePlanner struct {
	decide func(call int, req *planner.Request) (*planner.Decision, error)

	mu       sync.Mutex
	calls    int
	requests []*planner.Request
}

func (f *fakePlanner) Decide(_ context.Context, req *planner.Request) (*planner.Decision, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.decide(call, req)
}

func (f *fakePlanner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakePlanner) request(i int) *planner.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

// stubProvider serves a fixed catalog and counts backend invocations per
// capability.
type stubProvider struct {
	name    string
	caps    []capability.Capability
	handler func(ctx context.Context, name string, args map[string]any) (map[string]any, error)

	mu    sync.Mutex
	calls map[string]int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Discover(_ context.Context) ([]capability.Capability, error) {
	return s.caps, nil
}

func (s *stubProvider) Invoke(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	s.mu.Lock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[name]++
	s.mu.Unlock()
	return s.handler(ctx, name, args)
}

func (s *stubProvider) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func inventoryCaps() []capability.Capability {
	return []capability.Capability{
		{
			Name:        "get_devices_by_location",
			Description: "Get devices for a location",
			InputSchema: capability.InputSchema{
				Type: "object",
				Properties: map[string]capability.Property{
					"location_name": {Type: "string"},
				},
				Required: []string{"location_name"},
			},
		},
		{
			Name:        "get_device_interfaces",
			Description: "Get interfaces for a device",
			InputSchema: capability.InputSchema{
				Type: "object",
				Properties: map[string]capability.Property{
					"device_name": {Type: "string"},
				},
				Required: []string{"device_name"},
			},
		},
	}
}

func inventoryHandler(_ context.Context, name string, _ map[string]any) (map[string]any, error) {
	switch name {
	case "get_devices_by_location":
		return map[string]any{
			"success": true,
			"count":   3,
			"data": []any{
				map[string]any{"name": "X1"},
				map[string]any{"name": "X2"},
				map[string]any{"name": "X3"},
			},
		}, nil
	case "get_device_interfaces":
		return map[string]any{"success": true, "count": 2, "data": []any{}}, nil
	default:
		return nil, fmt.Errorf("unknown capability %s", name)
	}
}

func newTestOrchestrator(t *testing.T, p planner.Planner, provider registry.Provider, cfg Config) *Orchestrator {
	t.Helper()
	reg := registry.New([]registry.Provider{provider}, nil)
	require.NoError(t, reg.Refresh(context.Background()))
	exec := executor.New(executor.Config{CallTimeout: 2 * time.Second}, nil, nil)
	return New(p, reg, exec, cfg, nil, nil, nil)
}

func devicesCall(location string) capability.CallRequest {
	return capability.CallRequest{
		CapabilityName: "get_devices_by_location",
		Arguments:      map[string]any{"location_name": location},
	}
}

// Round 0 fetches devices, round 1 fans out one interface lookup per device
// returned, round 2 answers. The turn must finish Done with two executed
// rounds and four citations in (round, request index) order.
func TestProcessTurnMultiRound(t *testing.T) {
	p := &fakePlanner{decide: func(call int, req *planner.Request) (*planner.Decision, error) {
		switch call {
		case 0:
			return &planner.Decision{Kind: planner.DecisionCalls, Calls: []capability.CallRequest{devicesCall("Branch Office 3")}}, nil
		case 1:
			devices, ok := req.Rounds[0].Results[0].Payload["data"].([]any)
			if !ok {
				return nil, errors.New("round 0 payload missing data")
			}
			calls := make([]capability.CallRequest, 0, len(devices))
			for _, item := range devices {
				device := item.(map[string]any)
				calls = append(calls, capability.CallRequest{
					CapabilityName: "get_device_interfaces",
					Arguments:      map[string]any{"device_name": device["name"]},
				})
			}
			return &planner.Decision{Kind: planner.DecisionCalls, Calls: calls}, nil
		default:
			return &planner.Decision{Kind: planner.DecisionFinal, Answer: "All 3 devices are healthy."}, nil
		}
	}}
	provider := &stubProvider{name: "inventory", caps: inventoryCaps(), handler: inventoryHandler}
	o := newTestOrchestrator(t, p, provider, Config{})

	sess := session.New()
	turn, err := o.ProcessTurn(context.Background(), sess, "How are the devices at Branch Office 3?")
	require.NoError(t, err)

	assert.Equal(t, session.RoleAssistant, turn.Role)
	assert.Equal(t, "All 3 devices are healthy.", turn.Text)
	assert.False(t, turn.Incomplete)
	assert.Equal(t, session.AbortNone, turn.AbortReason)
	assert.Equal(t, 2, turn.Rounds)
	require.Len(t, turn.Citations, 4)

	assert.Equal(t, 0, turn.Citations[0].Round)
	assert.Equal(t, "get_devices_by_location", turn.Citations[0].Request.CapabilityName)
	for i, device := range []string{"X1", "X2", "X3"} {
		cit := turn.Citations[i+1]
		assert.Equal(t, 1, cit.Round)
		assert.Equal(t, "get_device_interfaces", cit.Request.CapabilityName)
		assert.Equal(t, device, cit.Request.Arguments["device_name"])
	}
	for _, cit := range turn.Citations {
		assert.Equal(t, cit.Round, cit.Request.RoundIndex, "orchestrator stamps round indices")
		assert.Equal(t, capability.ResultSuccess, cit.Result.Kind)
	}

	assert.Equal(t, 1, provider.count("get_devices_by_location"))
	assert.Equal(t, 3, provider.count("get_device_interfaces"))

	// Session holds exactly the user turn and the assistant turn.
	require.Equal(t, 2, sess.Len())
	turns := sess.Turns()
	assert.Equal(t, session.RoleUser, turns[0].Role)
	assert.Equal(t, "How are the devices at Branch Office 3?", turns[0].Text)
	assert.Equal(t, turn.ID, turns[1].ID)

	// The planner saw the user message and the growing round context.
	require.Equal(t, 3, p.callCount())
	first := p.request(0)
	require.NotEmpty(t, first.History)
	assert.Equal(t, "How are the devices at Branch Office 3?", first.History[len(first.History)-1].Content)
	assert.Len(t, first.Catalog, 2)
	assert.Len(t, p.request(1).Rounds, 1)
	assert.Len(t, p.request(2).Rounds, 2)
}

// A follow-up turn repeating a fingerprint must be served from the session
// cache: one backend call total, the repeat citation tagged CacheHit with a
// reference to the round that fetched it.
func TestProcessTurnCacheHitAcrossTurns(t *testing.T) {
	p := &fakePlanner{decide: func(call int, _ *planner.Request) (*planner.Decision, error) {
		switch call {
		case 0, 2:
			return &planner.Decision{Kind: planner.DecisionCalls, Calls: []capability.CallRequest{devicesCall("Branch Office 3")}}, nil
		default:
			return &planner.Decision{Kind: planner.DecisionFinal, Answer: "done"}, nil
		}
	}}
	provider := &stubProvider{name: "inventory", caps: inventoryCaps(), handler: inventoryHandler}
	o := newTestOrchestrator(t, p, provider, Config{})

	sess := session.New()
	first, err := o.ProcessTurn(context.Background(), sess, "What devices are at Branch Office 3?")
	require.NoError(t, err)
	require.Len(t, first.Citations, 1)
	assert.Equal(t, capability.ResultSuccess, first.Citations[0].Result.Kind)

	second, err := o.ProcessTurn(context.Background(), sess, "And their device list again?")
	require.NoError(t, err)
	require.Len(t, second.Citations, 1)
	assert.Equal(t, capability.ResultCacheHit, second.Citations[0].Result.Kind)
	assert.Equal(t, 0, second.Citations[0].Result.OriginalRound)

	assert.Equal(t, 1, provider.count("get_devices_by_location"), "second turn never reaches the backend")

	// The follow-up planning pass received the cache hint and the full
	// conversation so far.
	hintReq := p.request(2)
	require.NotEmpty(t, hintReq.CacheHints)
	assert.True(t, strings.HasPrefix(hintReq.CacheHints[0], "get_devices_by_location:"))
	assert.GreaterOrEqual(t, len(hintReq.History), 3)
}

func TestProcessTurnIntraTurnCacheHit(t *testing.T) {
	p := &fakePlanner{decide: func(call int, _ *planner.Request) (*planner.Decision, error) {
		if call < 2 {
			return &planner.Decision{Kind: planner.DecisionCalls, Calls: []capability.CallRequest{devicesCall("HQ-Dallas")}}, nil
		}
		return &planner.Decision{Kind: planner.DecisionFinal, Answer: "done"}, nil
	}}
	provider := &stubProvider{name: "inventory", caps: inventoryCaps(), handler: inventoryHandler}
	o := newTestOrchestrator(t, p, provider, Config{})

	turn, err := o.ProcessTurn(context.Background(), session.New(), "devices at HQ-Dallas, twice")
	require.NoError(t, err)

	require.Len(t, turn.Citations, 2)
	assert.Equal(t, capability.ResultSuccess, turn.Citations[0].Result.Kind)
	assert.Equal(t, capability.ResultCacheHit, turn.Citations[1].Result.Kind)
	assert.Equal(t, 0, turn.Citations[1].Result.OriginalRound)
	assert.Equal(t, 1, provider.count("get_devices_by_location"))
	assert.Equal(t, 2, turn.Rounds, "a cache-served round still counts as executed")
}

func TestProcessTurnRoundLimit(t *testing.T) {
	p := &fakePlanner{decide: func(call int, _ *planner.Request) (*planner.Decision, error) {
		return &planner.Decision{Kind: planner.DecisionCalls, Calls: []capability.CallRequest{
			devicesCall(fmt.Sprintf("Location %d", call)),
		}}, nil
	}}
	provider := &stubProvider{name: "inventory", caps: inventoryCaps(), handler: inventoryHandler}
	o := newTestOrchestrator(t, p, provider, Config{MaxRounds: 2})

	turn, err := o.ProcessTurn(context.Background(), session.New(), "keep digging")
	require.NoError(t, err)

	assert.True(t, turn.Incomplete)
	assert.Equal(t, session.AbortRoundLimit, turn.AbortReason)
	assert.Equal(t, 2, turn.Rounds)
	assert.Len(t, turn.Citations, 2, "citations from executed rounds survive the abort")
	assert.Equal(t, 2, p.callCount(), "the budget check fires before a third planning pass")
	assert.Contains(t, turn.Text, "limit")
}

func TestProcessTurnPlannerFailure(t *testing.T) {
	p := &fakePlanner{decide: func(int, *planner.Request) (*planner.Decision, error) {
		return nil, errors.New("model exploded")
	}}
	provider := &stubProvider{name: "inventory", caps: inventoryCaps(), handler: inventoryHandler}
	o := newTestOrchestrator(t, p, provider, Config{})

	sess := session.New()
	turn, err := o.ProcessTurn(context.Background(), sess, "hello")
	require.NoError(t, err)

	assert.True(t, turn.Incomplete)
	assert.Equal(t, session.AbortPlannerFailure, turn.AbortReason)
	assert.Empty(t, turn.Citations)
	assert.Equal(t, 0, turn.Rounds)
	assert.Equal(t, 2, sess.Len(), "user and aborted assistant turns are both kept")
}

func TestProcessTurnEmptyDecisionReplans(t *testing.T) {
	p := &fakePlanner{decide: func(call int, _ *planner.Request) (*planner.Decision, error) {
		if call == 0 {
			return &planner.Decision{Kind: planner.DecisionCalls}, nil
		}
		return &planner.Decision{Kind: planner.DecisionFinal, Answer: "second thoughts produced an answer"}, nil
	}}
	provider := &stubProvider{name: "inventory", caps: inventoryCaps(), handler: inventoryHandler}
	o := newTestOrchestrator(t, p, provider, Config{})

	turn, err := o.ProcessTurn(context.Background(), session.New(), "hmm")
	require.NoError(t, err)

	assert.False(t, turn.Incomplete)
	assert.Equal(t, "second thoughts produced an answer", turn.Text)
	assert.Equal(t, 0, turn.Rounds)
	assert.Equal(t, 2, p.callCount())
}

func TestProcessTurnFinalOnFirstRound(t *testing.T) {
	p := &fakePlanner{decide: func(int, *planner.Request) (*planner.Decision, error) {
		return &planner.Decision{Kind: planner.DecisionFinal, Answer: "Hello! How can I help?"}, nil
	}}
	provider := &stubProvider{name: "inventory", caps: inventoryCaps(), handler: inventoryHandler}
	o := newTestOrchestrator(t, p, provider, Config{})

	turn, err := o.ProcessTurn(context.Background(), session.New(), "hi")
	require.NoError(t, err)

	assert.False(t, turn.Incomplete)
	assert.Equal(t, 0, turn.Rounds)
	assert.Empty(t, turn.Citations)
	assert.Equal(t, "Hello! How can I help?", turn.Text)
}

// Cancelling mid-round aborts the turn with only completed or
// explicitly-cancelled results in the citations.
func TestProcessTurnCancellation(t *testing.T) {
	p := &fakePlanner{decide: func(int, *planner.Request) (*planner.Decision, error) {
		return &planner.Decision{Kind: planner.DecisionCalls, Calls: []capability.CallRequest{devicesCall("HQ-Dallas")}}, nil
	}}
	blocking := &stubProvider{name: "inventory", caps: inventoryCaps(),
		handler: func(ctx context.Context, _ string, _ map[string]any) (map[string]any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	o := newTestOrchestrator(t, p, blocking, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	turn, err := o.ProcessTurn(ctx, session.New(), "devices at HQ-Dallas?")
	require.NoError(t, err)

	assert.True(t, turn.Incomplete)
	assert.Equal(t, session.AbortCancelled, turn.AbortReason)
	require.Len(t, turn.Citations, 1)
	assert.Equal(t, capability.ResultFailure, turn.Citations[0].Result.Kind)
	assert.Equal(t, capability.FailureCancelled, turn.Citations[0].Result.FailureKind)
	assert.Equal(t, 1, p.callCount(), "no planning pass after cancellation")
}

func TestProcessTurnDeadline(t *testing.T) {
	p := &fakePlanner{decide: func(int, *planner.Request) (*planner.Decision, error) {
		return &planner.Decision{Kind: planner.DecisionCalls, Calls: []capability.CallRequest{devicesCall("HQ-Dallas")}}, nil
	}}
	slow := &stubProvider{name: "inventory", caps: inventoryCaps(),
		handler: func(ctx context.Context, _ string, _ map[string]any) (map[string]any, error) {
			select {
			case <-time.After(5 * time.Second):
				return map[string]any{"success": true}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	o := newTestOrchestrator(t, p, slow, Config{TurnDeadline: 50 * time.Millisecond})

	turn, err := o.ProcessTurn(context.Background(), session.New(), "devices at HQ-Dallas?")
	require.NoError(t, err)

	assert.True(t, turn.Incomplete)
	assert.Equal(t, session.AbortDeadline, turn.AbortReason)
	require.Len(t, turn.Citations, 1)
	assert.Equal(t, capability.FailureTimeout, turn.Citations[0].Result.FailureKind)
}

func TestProcessTurnRegistryUnavailable(t *testing.T) {
	p := &fakePlanner{decide: func(int, *planner.Request) (*planner.Decision, error) {
		return &planner.Decision{Kind: planner.DecisionFinal, Answer: "unused"}, nil
	}}
	broken := &stubProvider{name: "inventory", caps: nil,
		handler: func(context.Context, string, map[string]any) (map[string]any, error) {
			return nil, errors.New("unreachable")
		},
	}
	reg := registry.New([]registry.Provider{&failingDiscovery{broken}}, nil)
	exec := executor.New(executor.Config{}, nil, nil)
	o := New(p, reg, exec, Config{}, nil, nil, nil)

	sess := session.New()
	turn, err := o.ProcessTurn(context.Background(), sess, "anything there?")
	require.NoError(t, err)

	assert.True(t, turn.Incomplete)
	assert.Equal(t, session.AbortRegistryUnavailable, turn.AbortReason)
	assert.Empty(t, turn.Citations)
	assert.Equal(t, 0, p.callCount(), "planning never starts without a catalog")
	assert.Equal(t, 2, sess.Len())
}

func TestProcessTurnNilSession(t *testing.T) {
	p := &fakePlanner{decide: func(int, *planner.Request) (*planner.Decision, error) {
		return &planner.Decision{Kind: planner.DecisionFinal, Answer: "x"}, nil
	}}
	provider := &stubProvider{name: "inventory", caps: inventoryCaps(), handler: inventoryHandler}
	o := newTestOrchestrator(t, p, provider, Config{})

	_, err := o.ProcessTurn(context.Background(), nil, "hi")
	assert.Error(t, err)
}

// failingDiscovery wraps a provider so discovery always errors, leaving the
// registry with no ready snapshot.
type failingDiscovery struct {
	inner *stubProvider
}

func (f *failingDiscovery) Name() string { return f.inner.Name() }

func (f *failingDiscovery) Discover(context.Context) ([]capability.Capability, error) {
	return nil, errors.New("discovery refused")
}

func (f *failingDiscovery) Invoke(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	return f.inner.Invoke(ctx, name, args)
}

package executor

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ColtMercer/nautobot-mcp/pkg/cache"
	"github.com/ColtMercer/nautobot-mcp/pkg/capability"
	"github.com/ColtMercer/nautobot-mcp/pkg/registry"
)

// stubProvider implements registry.Provider with a scriptable handler and
// per-capability invocation counting.
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

func stringArg(name string) capability.Capability {
	return capability.Capability{
		Name: name,
		InputSchema: capability.InputSchema{
			Type: "object",
			Properties: map[string]capability.Property{
				"location_name": {Type: "string"},
			},
			Required: []string{"location_name"},
		},
	}
}

func numberArg(name string) capability.Capability {
	return capability.Capability{
		Name: name,
		InputSchema: capability.InputSchema{
			Type: "object",
			Properties: map[string]capability.Property{
				"i": {Type: "integer"},
			},
			Required: []string{"i"},
		},
	}
}

func buildSnapshot(t *testing.T, p registry.Provider) *registry.Snapshot {
	t.Helper()
	r := registry.New([]registry.Provider{p}, nil)
	require.NoError(t, r.Refresh(context.Background()))
	return r.Snapshot()
}

func okHandler(_ context.Context, _ string, args map[string]any) (map[string]any, error) {
	return map[string]any{"success": true, "echo": args}, nil
}

func TestExecuteEmptyBatch(t *testing.T) {
	exec := New(Config{}, nil, nil)
	results := exec.Execute(context.Background(), Batch{Cache: cache.New()})
	require.NotNil(t, results)
	assert.Empty(t, results)
}

func TestExecuteResultsAlignWithRequests(t *testing.T) {
	provider := &stubProvider{
		name: "inventory",
		caps: []capability.Capability{numberArg("lookup")},
		handler: func(_ context.Context, _ string, args map[string]any) (map[string]any, error) {
			// Randomized latency so completion order differs from submit order.
			time.Sleep(time.Duration(rand.Intn(30)) * time.Millisecond) //nolint:gosec // test jitter
			return map[string]any{"i": args["i"]}, nil
		},
	}
	snap := buildSnapshot(t, provider)
	exec := New(Config{MaxConcurrentCalls: 3}, nil, nil)

	requests := make([]capability.CallRequest, 6)
	for i := range requests {
		requests[i] = capability.CallRequest{
			CapabilityName: "lookup",
			Arguments:      map[string]any{"i": i},
			RoundIndex:     0,
		}
	}

	results := exec.Execute(context.Background(), Batch{
		SessionID: "sess", Snapshot: snap, Cache: cache.New(), Requests: requests,
	})

	require.Len(t, results, 6)
	for i, res := range results {
		require.Equal(t, capability.ResultSuccess, res.Kind, "call %d", i)
		assert.Equal(t, i, res.Payload["i"], "result %d must hold the payload of request %d", i, i)
	}
}

func TestExecuteCacheHitSkipsBackend(t *testing.T) {
	provider := &stubProvider{
		name:    "inventory",
		caps:    []capability.Capability{stringArg("get_devices_by_location")},
		handler: okHandler,
	}
	snap := buildSnapshot(t, provider)
	exec := New(Config{}, nil, nil)
	store := cache.New()

	args := map[string]any{"location_name": "Branch Office 3"}
	first := exec.Execute(context.Background(), Batch{
		SessionID: "sess", Snapshot: snap, Cache: store,
		Requests: []capability.CallRequest{{CapabilityName: "get_devices_by_location", Arguments: args, RoundIndex: 0}},
	})
	require.Equal(t, capability.ResultSuccess, first[0].Kind)
	require.Equal(t, 1, provider.count("get_devices_by_location"))

	// Same capability and arguments three rounds later.
	second := exec.Execute(context.Background(), Batch{
		SessionID: "sess", Snapshot: snap, Cache: store,
		Requests: []capability.CallRequest{{CapabilityName: "get_devices_by_location", Arguments: args, RoundIndex: 3}},
	})
	require.Equal(t, capability.ResultCacheHit, second[0].Kind)
	assert.Equal(t, 0, second[0].OriginalRound)
	assert.Equal(t, 1, provider.count("get_devices_by_location"), "cache hit must not reach the backend")
	assert.Equal(t, first[0].Payload, second[0].Payload)
}

func TestExecuteFailuresNotCached(t *testing.T) {
	provider := &stubProvider{
		name: "inventory",
		caps: []capability.Capability{stringArg("get_devices_by_location")},
		handler: func(_ context.Context, _ string, _ map[string]any) (map[string]any, error) {
			return nil, errors.New("nautobot returned 502")
		},
	}
	snap := buildSnapshot(t, provider)
	exec := New(Config{}, nil, nil)
	store := cache.New()

	batch := Batch{
		SessionID: "sess", Snapshot: snap, Cache: store,
		Requests: []capability.CallRequest{{CapabilityName: "get_devices_by_location", Arguments: map[string]any{"location_name": "HQ"}, RoundIndex: 0}},
	}

	results := exec.Execute(context.Background(), batch)
	require.Equal(t, capability.ResultFailure, results[0].Kind)
	assert.Equal(t, capability.FailureBackend, results[0].FailureKind)
	assert.Equal(t, 0, store.Len(), "failed calls must not be cached")

	// A retry goes back to the backend rather than replaying the failure.
	exec.Execute(context.Background(), batch)
	assert.Equal(t, 2, provider.count("get_devices_by_location"))
}

func TestExecutePartialFailureIsolation(t *testing.T) {
	provider := &stubProvider{
		name: "inventory",
		caps: []capability.Capability{stringArg("healthy"), stringArg("broken")},
		handler: func(_ context.Context, name string, args map[string]any) (map[string]any, error) {
			if name == "broken" {
				return nil, errors.New("boom")
			}
			return map[string]any{"success": true, "echo": args}, nil
		},
	}
	snap := buildSnapshot(t, provider)
	exec := New(Config{}, nil, nil)

	results := exec.Execute(context.Background(), Batch{
		SessionID: "sess", Snapshot: snap, Cache: cache.New(),
		Requests: []capability.CallRequest{
			{CapabilityName: "healthy", Arguments: map[string]any{"location_name": "A"}},
			{CapabilityName: "broken", Arguments: map[string]any{"location_name": "B"}},
			{CapabilityName: "healthy", Arguments: map[string]any{"location_name": "C"}},
		},
	})

	require.Len(t, results, 3)
	assert.Equal(t, capability.ResultSuccess, results[0].Kind)
	assert.Equal(t, capability.ResultFailure, results[1].Kind)
	assert.Equal(t, capability.FailureBackend, results[1].FailureKind)
	assert.Equal(t, capability.ResultSuccess, results[2].Kind)
}

func TestExecuteCallTimeout(t *testing.T) {
	provider := &stubProvider{
		name: "inventory",
		caps: []capability.Capability{stringArg("slow")},
		handler: func(ctx context.Context, _ string, _ map[string]any) (map[string]any, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(2 * time.Second):
				return map[string]any{"success": true}, nil
			}
		},
	}
	snap := buildSnapshot(t, provider)
	exec := New(Config{CallTimeout: 30 * time.Millisecond}, nil, nil)

	results := exec.Execute(context.Background(), Batch{
		SessionID: "sess", Snapshot: snap, Cache: cache.New(),
		Requests: []capability.CallRequest{{CapabilityName: "slow", Arguments: map[string]any{"location_name": "HQ"}}},
	})

	require.Equal(t, capability.ResultFailure, results[0].Kind)
	assert.Equal(t, capability.FailureTimeout, results[0].FailureKind)
	assert.GreaterOrEqual(t, results[0].Elapsed, 30*time.Millisecond)
}

func TestExecuteBoundedConcurrency(t *testing.T) {
	var inFlight, maxSeen int64
	provider := &stubProvider{
		name: "inventory",
		caps: []capability.Capability{numberArg("lookup")},
		handler: func(_ context.Context, _ string, _ map[string]any) (map[string]any, error) {
			cur := atomic.AddInt64(&inFlight, 1)
			for {
				prev := atomic.LoadInt64(&maxSeen)
				if cur <= prev || atomic.CompareAndSwapInt64(&maxSeen, prev, cur) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt64(&inFlight, -1)
			return map[string]any{"success": true}, nil
		},
	}
	snap := buildSnapshot(t, provider)
	exec := New(Config{MaxConcurrentCalls: 2}, nil, nil)

	requests := make([]capability.CallRequest, 8)
	for i := range requests {
		requests[i] = capability.CallRequest{CapabilityName: "lookup", Arguments: map[string]any{"i": i}}
	}

	results := exec.Execute(context.Background(), Batch{
		SessionID: "sess", Snapshot: snap, Cache: cache.New(), Requests: requests,
	})

	for _, res := range results {
		require.Equal(t, capability.ResultSuccess, res.Kind)
	}
	assert.LessOrEqual(t, atomic.LoadInt64(&maxSeen), int64(2), "no more than MaxConcurrentCalls may be in flight")
	assert.Equal(t, 8, provider.count("lookup"))
}

func TestExecuteValidationNeverDispatches(t *testing.T) {
	provider := &stubProvider{
		name:    "inventory",
		caps:    []capability.Capability{stringArg("get_devices_by_location")},
		handler: okHandler,
	}
	snap := buildSnapshot(t, provider)
	exec := New(Config{}, nil, nil)

	results := exec.Execute(context.Background(), Batch{
		SessionID: "sess", Snapshot: snap, Cache: cache.New(),
		Requests: []capability.CallRequest{
			// Missing required location_name.
			{CapabilityName: "get_devices_by_location", Arguments: map[string]any{}},
			// Wrong type.
			{CapabilityName: "get_devices_by_location", Arguments: map[string]any{"location_name": 42}},
			// Not in the catalog at all.
			{CapabilityName: "reboot_datacenter", Arguments: map[string]any{}},
		},
	})

	require.Len(t, results, 3)
	for i, res := range results {
		assert.Equal(t, capability.ResultFailure, res.Kind, "call %d", i)
		assert.Equal(t, capability.FailureValidation, res.FailureKind, "call %d", i)
	}
	assert.Equal(t, 0, provider.count("get_devices_by_location"), "invalid calls must never reach the backend")
}

func TestExecuteCancellationMidRound(t *testing.T) {
	started := make(chan struct{}, 1)
	provider := &stubProvider{
		name: "inventory",
		caps: []capability.Capability{numberArg("lookup")},
		handler: func(ctx context.Context, _ string, _ map[string]any) (map[string]any, error) {
			select {
			case started <- struct{}{}:
			default:
			}
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	snap := buildSnapshot(t, provider)
	exec := New(Config{MaxConcurrentCalls: 1, CallTimeout: 5 * time.Second}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	results := exec.Execute(ctx, Batch{
		SessionID: "sess", Snapshot: snap, Cache: cache.New(),
		Requests: []capability.CallRequest{
			{CapabilityName: "lookup", Arguments: map[string]any{"i": 1}},
			{CapabilityName: "lookup", Arguments: map[string]any{"i": 2}},
			{CapabilityName: "lookup", Arguments: map[string]any{"i": 3}},
		},
	})

	require.Len(t, results, 3)
	for i, res := range results {
		require.Equal(t, capability.ResultFailure, res.Kind, "call %d", i)
		assert.Equal(t, capability.FailureCancelled, res.FailureKind, "call %d", i)
	}
}

func TestExecuteDuplicateRequestsInOneRound(t *testing.T) {
	provider := &stubProvider{
		name:    "inventory",
		caps:    []capability.Capability{stringArg("get_devices_by_location")},
		handler: okHandler,
	}
	snap := buildSnapshot(t, provider)
	exec := New(Config{}, nil, nil)
	store := cache.New()

	args := map[string]any{"location_name": "HQ"}
	results := exec.Execute(context.Background(), Batch{
		SessionID: "sess", Snapshot: snap, Cache: store,
		Requests: []capability.CallRequest{
			{CapabilityName: "get_devices_by_location", Arguments: args, RoundIndex: 1},
			{CapabilityName: "get_devices_by_location", Arguments: args, RoundIndex: 1},
		},
	})

	// Duplicates within a round race the backend independently; the cache
	// only wins for hits recorded before the round began.
	assert.Equal(t, capability.ResultSuccess, results[0].Kind)
	assert.Equal(t, capability.ResultSuccess, results[1].Kind)
	assert.Equal(t, 2, provider.count("get_devices_by_location"))
	assert.Equal(t, 1, store.Len())
}

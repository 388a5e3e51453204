// Package executor dispatches planned capability calls against the live
// catalog snapshot, enforcing per-call timeouts and a bound on in-flight
// backend invocations. Results stay index-aligned with the submitted batch.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ColtMercer/nautobot-mcp/pkg/cache"
	"github.com/ColtMercer/nautobot-mcp/pkg/capability"
	"github.com/ColtMercer/nautobot-mcp/pkg/logx"
	"github.com/ColtMercer/nautobot-mcp/pkg/metrics"
	"github.com/ColtMercer/nautobot-mcp/pkg/registry"
)

const (
	// DefaultMaxConcurrentCalls bounds simultaneous backend invocations.
	DefaultMaxConcurrentCalls = 4

	// DefaultCallTimeout bounds a single backend invocation.
	DefaultCallTimeout = 10 * time.Second
)

// Config controls executor concurrency and timeouts.
type Config struct {
	MaxConcurrentCalls int
	CallTimeout        time.Duration
}

// Executor runs rounds of capability calls. Safe for concurrent use; all
// per-session state arrives through the Batch.
type Executor struct {
	logger  *logx.Logger
	metrics metrics.Recorder
	cfg     Config
}

// New creates an executor. Zero config fields fall back to defaults; nil
// logger and recorder fall back to a component logger and a no-op recorder.
func New(cfg Config, logger *logx.Logger, rec metrics.Recorder) *Executor {
	if cfg.MaxConcurrentCalls <= 0 {
		cfg.MaxConcurrentCalls = DefaultMaxConcurrentCalls
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if logger == nil {
		logger = logx.NewLogger("executor")
	}
	if rec == nil {
		rec = metrics.Nop()
	}
	return &Executor{cfg: cfg, logger: logger, metrics: rec}
}

// Batch bundles one round of planned calls with the session state they run
// against.
type Batch struct {
	SessionID string
	Snapshot  *registry.Snapshot
	Cache     *cache.Cache
	Requests  []capability.CallRequest
}

// pending is a call that missed the cache and passed validation.
type pending struct {
	index       int
	fingerprint string
	request     *capability.CallRequest
}

// Execute runs all requests in the batch and returns one result per request,
// in request order. Cache hits are served without touching a backend or
// consuming a concurrency slot. Misses are validated against the snapshot
// schema, then dispatched concurrently up to MaxConcurrentCalls at a time,
// each under its own timeout. A failed call never prevents its siblings from
// completing. Execute returns only after every dispatched call has settled,
// even when ctx is cancelled mid-round.
func (e *Executor) Execute(ctx context.Context, batch Batch) []capability.CallResult {
	results := make([]capability.CallResult, len(batch.Requests))
	if len(batch.Requests) == 0 {
		return results
	}

	var dispatch []pending
	hits := 0
	for i := range batch.Requests {
		req := &batch.Requests[i]
		fp := capability.Fingerprint(req.CapabilityName, req.Arguments)

		if entry, ok := batch.Cache.Get(fp); ok {
			results[i] = capability.NewCacheHit(entry.Payload, entry.RoundIndex)
			e.metrics.IncCacheHit(batch.SessionID, req.CapabilityName)
			hits++
			continue
		}

		// Invalid calls are rejected here and never reach a backend.
		if err := e.validate(batch.Snapshot, req); err != nil {
			results[i] = capability.NewFailure(capability.FailureValidation, err.Error(), 0)
			e.metrics.ObserveCall(batch.SessionID, req.CapabilityName, string(capability.FailureValidation), 0)
			e.logger.Warn("⚠️  Rejected call to %s: %v", req.CapabilityName, err)
			continue
		}

		dispatch = append(dispatch, pending{index: i, fingerprint: fp, request: req})
	}

	e.logger.Debug("🔧 Executing batch: %d requests, %d cache hits, %d dispatched",
		len(batch.Requests), hits, len(dispatch))

	if len(dispatch) == 0 {
		return results
	}

	sem := make(chan struct{}, e.cfg.MaxConcurrentCalls)
	var wg sync.WaitGroup
	for _, p := range dispatch {
		wg.Add(1)
		go func(p pending) {
			defer wg.Done()
			results[p.index] = e.dispatch(ctx, sem, batch, p)
		}(p)
	}
	wg.Wait()

	return results
}

// dispatch runs a single validated call: waits for a concurrency slot, invokes
// the owning provider under the per-call timeout, and caches the payload on
// success.
func (e *Executor) dispatch(ctx context.Context, sem chan struct{}, batch Batch, p pending) capability.CallResult {
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		kind := capability.FailureCancelled
		msg := "call cancelled before dispatch"
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = capability.FailureTimeout
			msg = "deadline elapsed before dispatch"
		}
		e.metrics.ObserveCall(batch.SessionID, p.request.CapabilityName, string(kind), 0)
		return capability.NewFailure(kind, msg, 0)
	}
	defer func() { <-sem }()

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	payload, err := batch.Snapshot.Invoke(callCtx, p.request.CapabilityName, p.request.Arguments)
	elapsed := time.Since(start)

	if err != nil {
		kind := classifyFailure(ctx, callCtx, err)
		e.metrics.ObserveCall(batch.SessionID, p.request.CapabilityName, string(kind), elapsed)
		e.logger.Warn("⚠️  Call %s failed after %s (%s): %v", p.request.CapabilityName, elapsed.Round(time.Millisecond), kind, err)
		return capability.NewFailure(kind, err.Error(), elapsed)
	}

	batch.Cache.Put(p.fingerprint, payload, p.request.RoundIndex)
	e.metrics.ObserveCall(batch.SessionID, p.request.CapabilityName, "success", elapsed)
	return capability.NewSuccess(payload, elapsed)
}

// validate checks that the capability exists in the snapshot and that the
// arguments satisfy its input schema.
func (e *Executor) validate(snap *registry.Snapshot, req *capability.CallRequest) error {
	c, ok := snap.Lookup(req.CapabilityName)
	if !ok {
		return fmt.Errorf("unknown capability %q", req.CapabilityName)
	}
	return capability.ValidateArgs(&c, req.Arguments)
}

// classifyFailure maps an invocation error to a failure kind. External
// cancellation wins over deadlines so aborted rounds report cancelled; a
// deadline on either the turn or the call reports timeout.
func classifyFailure(parent, callCtx context.Context, err error) capability.FailureKind {
	switch {
	case errors.Is(parent.Err(), context.Canceled):
		return capability.FailureCancelled
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return capability.FailureTimeout
	default:
		return capability.FailureBackend
	}
}

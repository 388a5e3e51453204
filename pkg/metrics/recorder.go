// Package metrics provides metrics recording and querying for orchestration operations.
package metrics

import (
	"time"
)

// Recorder defines the interface for recording orchestration metrics.
type Recorder interface {
	// ObserveCall records a completed capability invocation. Status is
	// "success", a failure kind (validation, timeout, backend, cancelled),
	// or "error" for provider-side failures.
	ObserveCall(sessionID, capabilityName, status string, duration time.Duration)

	// IncCacheHit increments the cache hit counter for a capability.
	IncCacheHit(sessionID, capabilityName string)

	// ObserveTurn records a completed turn. Outcome is "done" or "aborted";
	// reason is empty for completed turns and the abort reason otherwise.
	ObserveTurn(outcome, reason string, rounds int, duration time.Duration)

	// ObservePlanner records a planner completion request.
	ObservePlanner(provider, status string, duration time.Duration)

	// IncThrottle increments the planner throttle counter.
	// Reason is "rate_limit" or "cancelled".
	IncThrottle(provider, reason string)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveCall does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveCall(_, _, _ string, _ time.Duration) {
	// No-op
}

// IncCacheHit does nothing in the no-op recorder.
func (n *NoopRecorder) IncCacheHit(_, _ string) {
	// No-op
}

// ObserveTurn does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveTurn(_, _ string, _ int, _ time.Duration) {
	// No-op
}

// ObservePlanner does nothing in the no-op recorder.
func (n *NoopRecorder) ObservePlanner(_, _ string, _ time.Duration) {
	// No-op
}

// IncThrottle does nothing in the no-op recorder.
func (n *NoopRecorder) IncThrottle(_, _ string) {
	// No-op
}

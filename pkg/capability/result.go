package capability

import (
	"encoding/json"
	"fmt"
	"time"
)

// ResultKind categorizes a CallResult.
type ResultKind int

const (
	// ResultSuccess indicates the backend returned a payload.
	ResultSuccess ResultKind = iota

	// ResultFailure indicates the call failed locally or at the backend.
	// FailureKind and Message describe what went wrong.
	ResultFailure

	// ResultCacheHit indicates the payload was served from the session cache.
	// OriginalRound references the round that produced the cached payload.
	ResultCacheHit
)

// String returns a human-readable name for the ResultKind.
func (k ResultKind) String() string {
	switch k {
	case ResultSuccess:
		return "Success"
	case ResultFailure:
		return "Failure"
	case ResultCacheHit:
		return "CacheHit"
	default:
		return fmt.Sprintf("ResultKind(%d)", k)
	}
}

// MarshalJSON encodes the kind as its wire name ("success", "failure",
// "cache_hit") so persisted citations stay readable.
func (k ResultKind) MarshalJSON() ([]byte, error) {
	switch k {
	case ResultSuccess:
		return json.Marshal("success")
	case ResultFailure:
		return json.Marshal("failure")
	case ResultCacheHit:
		return json.Marshal("cache_hit")
	default:
		return nil, fmt.Errorf("unknown result kind %d", int(k))
	}
}

// UnmarshalJSON decodes a wire name back into a ResultKind.
func (k *ResultKind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "success":
		*k = ResultSuccess
	case "failure":
		*k = ResultFailure
	case "cache_hit":
		*k = ResultCacheHit
	default:
		return fmt.Errorf("unknown result kind %q", name)
	}
	return nil
}

// FailureKind classifies a failed call. Per-call failures never abort sibling
// calls in the same round; they are folded into context as failure notices.
type FailureKind string

const (
	// FailureValidation: arguments failed the capability's input schema.
	// Validation failures are resolved locally and never reach a backend.
	FailureValidation FailureKind = "validation"

	// FailureTimeout: the per-call timeout or round deadline elapsed.
	FailureTimeout FailureKind = "timeout"

	// FailureBackend: the provider returned an error or a non-success response.
	FailureBackend FailureKind = "backend"

	// FailureCancelled: the turn was cancelled while the call was in flight.
	FailureCancelled FailureKind = "cancelled"
)

// CallResult is the outcome of one CallRequest. Immutable once produced.
//
//nolint:govet // fieldalignment: fields grouped by variant for clarity
type CallResult struct {
	Kind ResultKind `json:"kind"`

	// Payload holds the backend result envelope for Success and CacheHit.
	Payload map[string]any `json:"payload,omitempty"`

	// FailureKind and Message are set for Failure results.
	FailureKind FailureKind `json:"failure_kind,omitempty"`
	Message     string      `json:"message,omitempty"`

	// Elapsed is the wall time spent producing this result. Zero for cache hits.
	Elapsed time.Duration `json:"elapsed_ns"`

	// OriginalRound is the round whose dispatch populated the cache entry.
	// Only meaningful for CacheHit results.
	OriginalRound int `json:"original_round,omitempty"`
}

// NewSuccess builds a successful result carrying the backend payload.
func NewSuccess(payload map[string]any, elapsed time.Duration) CallResult {
	return CallResult{Kind: ResultSuccess, Payload: payload, Elapsed: elapsed}
}

// NewFailure builds a failed result. The failure is local to its call.
func NewFailure(kind FailureKind, message string, elapsed time.Duration) CallResult {
	return CallResult{Kind: ResultFailure, FailureKind: kind, Message: message, Elapsed: elapsed}
}

// NewCacheHit builds a result served from the session cache, citing the round
// whose backend call produced the payload.
func NewCacheHit(payload map[string]any, originalRound int) CallResult {
	return CallResult{Kind: ResultCacheHit, Payload: payload, OriginalRound: originalRound}
}

// OK reports whether the result carries a usable payload.
func (r *CallResult) OK() bool {
	return r.Kind == ResultSuccess || r.Kind == ResultCacheHit
}

// ResultCount extracts the item count from the conventional payload envelope
// ({"success": bool, "message": string, "count": n, "data": [...]}).
// Returns 0 when the payload carries no count.
func (r *CallResult) ResultCount() int {
	if r.Payload == nil {
		return 0
	}
	switch v := r.Payload["count"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// ResultSummary extracts the human-readable message from the payload envelope,
// or the failure message for failed results.
func (r *CallResult) ResultSummary() string {
	if r.Kind == ResultFailure {
		return r.Message
	}
	if r.Payload == nil {
		return ""
	}
	if msg, ok := r.Payload["message"].(string); ok {
		return msg
	}
	if errMsg, ok := r.Payload["error"].(string); ok {
		return errMsg
	}
	return ""
}

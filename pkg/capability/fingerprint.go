package capability

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Fingerprint derives the deterministic cache key for a capability call.
// Arguments are canonicalized first: mapping keys are emitted in sorted order
// (encoding/json sorts map keys) and all numeric scalars collapse to one
// textual form, so semantically identical calls collide regardless of
// argument ordering or whether a count arrived as int or float64.
func Fingerprint(name string, args map[string]any) string {
	data, err := json.Marshal(canonicalize(args))
	if err != nil {
		// Arguments originate from JSON decoding in practice; this path only
		// triggers for exotic hand-built values.
		data = []byte(fmt.Sprintf("%v", args))
	}
	sum := sha256.Sum256(data)
	return name + ":" + hex.EncodeToString(sum[:])
}

// canonicalize normalizes scalar formatting recursively. All integer and
// float types become float64 so json.Marshal renders them identically
// (float64(2) marshals as "2", matching a JSON-decoded 2).
func canonicalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = canonicalize(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = canonicalize(inner)
		}
		return out
	case int:
		return float64(val)
	case int8:
		return float64(val)
	case int16:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case uint:
		return float64(val)
	case uint8:
		return float64(val)
	case uint16:
		return float64(val)
	case uint32:
		return float64(val)
	case uint64:
		return float64(val)
	case float32:
		return float64(val)
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	default:
		return v
	}
}

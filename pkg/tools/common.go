package tools

import (
	"context"
	"errors"
	"fmt"
)

// successResult builds the success envelope every tool returns.
func successResult(message string, count int, data any) map[string]any {
	return map[string]any{
		"success": true,
		"message": message,
		"count":   count,
		"data":    data,
	}
}

// errorResult builds the failure envelope. Domain failures stay inside the
// envelope so callers always get a decodable result.
func errorResult(format string, args ...any) map[string]any {
	return map[string]any{
		"success": false,
		"error":   fmt.Sprintf(format, args...),
		"data":    []any{},
		"count":   0,
	}
}

// failureResult wraps a backend error into the failure envelope unless the
// context was cancelled, which must propagate so the caller can classify the
// call as timed out or cancelled rather than failed.
func failureResult(err error, format string, args ...any) (map[string]any, error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	return errorResult(format, args...), nil
}

// stringArg extracts a required non-empty string argument.
func stringArg(args map[string]any, key string) (string, bool) {
	raw, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// optionalString extracts an optional string argument with a default.
func optionalString(args map[string]any, key, fallback string) string {
	if s, ok := args[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

// stringListArg extracts a required list-of-strings argument. JSON decoding
// hands lists over as []any; direct in-process callers may pass []string.
func stringListArg(args map[string]any, key string) ([]string, bool) {
	switch raw := args[key].(type) {
	case []string:
		if len(raw) == 0 {
			return nil, false
		}
		return raw, true
	case []any:
		if len(raw) == 0 {
			return nil, false
		}
		out := make([]string, 0, len(raw))
		for _, item := range raw {
			s, ok := item.(string)
			if !ok || s == "" {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

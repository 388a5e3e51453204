package llmerrors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// TestErrorTypeString tests the string representation of error types.
func TestErrorTypeString(t *testing.T) {
	tests := []struct {
		errorType ErrorType
		expected  string
	}{
		{ErrorTypeRateLimit, "rate_limit"},
		{ErrorTypeTransient, "transient"},
		{ErrorTypeEmptyResponse, "empty_response"},
		{ErrorTypeAuth, "auth"},
		{ErrorTypeBadPrompt, "bad_prompt"},
		{ErrorTypeUnknown, "unknown"},
		{ErrorTypeServiceUnavailable, "service_unavailable"},
		{ErrorType(99), "invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.errorType.String(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

// TestIsRetryable tests the blocklist retry classification.
func TestIsRetryable(t *testing.T) {
	tests := []struct {
		errorType ErrorType
		retryable bool
	}{
		{ErrorTypeRateLimit, true},
		{ErrorTypeTransient, true},
		{ErrorTypeEmptyResponse, true},
		{ErrorTypeUnknown, true},
		{ErrorTypeAuth, false},
		{ErrorTypeBadPrompt, false},
		{ErrorTypeServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.errorType.String(), func(t *testing.T) {
			err := NewError(tt.errorType, "test")
			if err.IsRetryable() != tt.retryable {
				t.Errorf("expected IsRetryable=%v for %s", tt.retryable, tt.errorType)
			}
		})
	}
}

// TestErrorMessage tests the error string formats.
func TestErrorMessage(t *testing.T) {
	withMessage := NewError(ErrorTypeRateLimit, "quota exceeded")
	if withMessage.Error() != "LLM error (rate_limit): quota exceeded" {
		t.Errorf("unexpected error string: %q", withMessage.Error())
	}

	cause := errors.New("connection reset")
	withCause := &Error{Type: ErrorTypeTransient, Err: cause}
	if withCause.Error() != "LLM error (transient): connection reset" {
		t.Errorf("unexpected error string: %q", withCause.Error())
	}

	withStatus := &Error{Type: ErrorTypeAuth, StatusCode: 401}
	if withStatus.Error() != "LLM error (auth): status 401" {
		t.Errorf("unexpected error string: %q", withStatus.Error())
	}
}

// TestUnwrap tests error unwrapping through wrapped chains.
func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	llmErr := NewErrorWithCause(ErrorTypeTransient, cause, "wrapped")

	if !errors.Is(llmErr, cause) {
		t.Error("expected errors.Is to find the root cause")
	}

	// Wrapping the classified error preserves classification
	outer := fmt.Errorf("outer: %w", llmErr)
	if !Is(outer, ErrorTypeTransient) {
		t.Error("expected Is to classify through wrapping")
	}
	if TypeOf(outer) != ErrorTypeTransient {
		t.Errorf("expected TypeOf transient, got %s", TypeOf(outer))
	}
}

// TestTypeOfUnclassified tests that plain errors report as unknown.
func TestTypeOfUnclassified(t *testing.T) {
	if TypeOf(errors.New("plain")) != ErrorTypeUnknown {
		t.Error("expected plain error to report as unknown")
	}
	if Is(errors.New("plain"), ErrorTypeRateLimit) {
		t.Error("expected plain error not to match rate_limit")
	}
}

// TestGetRetryConfig tests per-type retry configuration lookup.
func TestGetRetryConfig(t *testing.T) {
	rateLimit := NewError(ErrorTypeRateLimit, "test")
	cfg := rateLimit.GetRetryConfig()
	if cfg.MaxRetries != DefaultRateLimitRetries {
		t.Errorf("expected %d retries for rate_limit, got %d", DefaultRateLimitRetries, cfg.MaxRetries)
	}

	auth := NewError(ErrorTypeAuth, "test")
	if auth.GetRetryConfig().MaxRetries != 0 {
		t.Error("expected 0 retries for auth errors")
	}
}

// TestServiceUnavailable tests the exhaustion error constructor.
func TestServiceUnavailable(t *testing.T) {
	cause := NewError(ErrorTypeTransient, "backend flapping")
	err := NewServiceUnavailableError(cause, 4)

	if !IsServiceUnavailable(err) {
		t.Error("expected IsServiceUnavailable=true")
	}
	if err.IsRetryable() {
		t.Error("service unavailable must not be retryable")
	}
	if !strings.Contains(err.Error(), "4 retry attempts") {
		t.Errorf("expected attempt count in message, got %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be preserved")
	}
}

// TestSanitizePrompt tests prompt truncation for logging.
func TestSanitizePrompt(t *testing.T) {
	short := "short prompt"
	if SanitizePrompt(short, 100) != short {
		t.Error("short prompts should pass through unchanged")
	}

	long := strings.Repeat("x", 2000)
	sanitized := SanitizePrompt(long, 400)
	if len(sanitized) >= len(long) {
		t.Error("expected sanitized prompt to be shorter than original")
	}
	if !strings.Contains(sanitized, "2000 chars") {
		t.Errorf("expected length marker, got %q", sanitized)
	}
	if !strings.Contains(sanitized, "hash:") {
		t.Errorf("expected hash marker, got %q", sanitized)
	}
}

// TestNewErrorWithStatus tests status code construction.
func TestNewErrorWithStatus(t *testing.T) {
	err := NewErrorWithStatus(ErrorTypeRateLimit, 429, "too many requests")
	if err.StatusCode != 429 {
		t.Errorf("expected status 429, got %d", err.StatusCode)
	}
	if err.Type != ErrorTypeRateLimit {
		t.Errorf("expected rate_limit type, got %s", err.Type)
	}
}

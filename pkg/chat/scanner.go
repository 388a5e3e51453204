// Package chat runs conversations: it prepares user messages (length
// enforcement, credential redaction), drives the orchestrator, and keeps
// the persisted history and transcript exports in sync.
package chat

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// SecretScanner checks text for credentials before it reaches the planner
// or the database.
type SecretScanner interface {
	// Scan returns the redacted text and whether any redactions occurred.
	Scan(ctx context.Context, text string) (redactedText string, hadRedactions bool, err error)
}

// PatternScanner is a pattern-based secret scanner. Users paste Nautobot
// tokens and planner API keys into chat more often than you would hope;
// redacting them here keeps credentials out of transcripts, the history
// database, and LLM requests.
type PatternScanner struct {
	patterns []*regexp.Regexp
	timeout  time.Duration
}

// NewPatternScanner creates a scanner with the default patterns.
func NewPatternScanner(timeoutMs int) *PatternScanner {
	return &PatternScanner{
		patterns: compileDefaultPatterns(),
		timeout:  time.Duration(timeoutMs) * time.Millisecond,
	}
}

func compileDefaultPatterns() []*regexp.Regexp {
	patterns := []string{
		// OpenAI API keys
		`sk-[A-Za-z0-9]{48}`,
		`sk-proj-[A-Za-z0-9_-]{48,}`,

		// Anthropic API keys
		`sk-ant-[A-Za-z0-9_-]{95,}`,

		// Google AI API keys
		`AIza[0-9A-Za-z_-]{35}`,

		// AWS access keys
		`AKIA[0-9A-Z]{16}`,

		// Nautobot REST tokens: 40 hex chars, usually pasted as the whole
		// Authorization header value.
		`(?i)token\s+[0-9a-f]{40}`,
		`(?i)nautobot[_-]?token[_-]?[:=]\s*['\"]?[0-9a-f]{40}['\"]?`,

		// Generic API key and secret assignments
		`api[_-]?key[_-]?[:=]\s*['\"]?[A-Za-z0-9_-]{20,}['\"]?`,
		`apikey[_-]?[:=]\s*['\"]?[A-Za-z0-9_-]{20,}['\"]?`,
		`secret[_-]?[:=]\s*['\"]?[A-Za-z0-9_-]{20,}['\"]?`,

		// Bearer tokens
		`Bearer\s+[A-Za-z0-9_-]{20,}`,

		// Private keys (PEM format)
		`-----BEGIN\s+(?:RSA|DSA|EC|OPENSSH|PGP)\s+PRIVATE\s+KEY-----`,
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err == nil {
			compiled = append(compiled, re)
		}
	}

	return compiled
}

// Scan checks the text for secrets and redacts them.
func (s *PatternScanner) Scan(ctx context.Context, text string) (string, bool, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	hadRedactions := false
	redactedText := text

	for _, pattern := range s.patterns {
		// Check for cancellation between patterns
		select {
		case <-ctx.Done():
			return "", false, fmt.Errorf("context cancelled during pattern matching: %w", ctx.Err())
		default:
		}

		matches := pattern.FindAllStringIndex(redactedText, -1)
		if len(matches) > 0 {
			hadRedactions = true

			// Replace matches from end to start to preserve indices
			for i := len(matches) - 1; i >= 0; i-- {
				start, end := matches[i][0], matches[i][1]
				redactedText = redactedText[:start] + "[redacted]" + redactedText[end:]
			}
		}
	}

	return redactedText, hadRedactions, nil
}

// RedactSecrets applies the scanner and appends a redaction note when
// anything was removed. Scanner errors fail open: the original text comes
// back along with the error.
func RedactSecrets(ctx context.Context, scanner SecretScanner, text string) (string, error) {
	redacted, hadRedactions, err := scanner.Scan(ctx, text)
	if err != nil {
		return text, fmt.Errorf("secret scanner error: %w", err)
	}

	if hadRedactions {
		note := " (Note: content redacted by scanner)"
		if !strings.HasSuffix(redacted, note) {
			redacted += note
		}
	}

	return redacted, nil
}

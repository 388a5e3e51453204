package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ColtMercer/nautobot-mcp/pkg/logx"
	"github.com/ColtMercer/nautobot-mcp/pkg/orchestrator"
	"github.com/ColtMercer/nautobot-mcp/pkg/persistence"
	"github.com/ColtMercer/nautobot-mcp/pkg/session"
	"github.com/ColtMercer/nautobot-mcp/pkg/transcript"
)

const (
	// DefaultMaxMessageChars is the default maximum length for a chat message.
	DefaultMaxMessageChars = 4096

	// TruncationSuffix is appended to messages that exceed the max length.
	TruncationSuffix = " … [truncated]"
)

// Export format names accepted by Export.
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// Service runs conversations end to end: message preparation, one
// orchestrated turn per user message, history persistence, and transcript
// export. The HTTP API and the REPL both sit on top of it.
type Service struct {
	orch     *orchestrator.Orchestrator
	sessions *session.Manager
	store    *persistence.Store
	exporter *transcript.Exporter
	scanner  SecretScanner
	logger   *logx.Logger
	maxChars int

	// mu serializes session rehydration so concurrent first requests for
	// the same session cannot double-load stored history.
	mu sync.Mutex
}

// Options configures optional service collaborators. A nil Store keeps
// history in memory only; a nil Scanner disables redaction.
type Options struct {
	Store           *persistence.Store
	Exporter        *transcript.Exporter
	Scanner         SecretScanner
	Logger          *logx.Logger
	MaxMessageChars int
}

// NewService creates a chat service around an orchestrator.
func NewService(orch *orchestrator.Orchestrator, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = logx.NewLogger("chat")
	}
	exporter := opts.Exporter
	if exporter == nil {
		exporter = transcript.New("")
	}
	maxChars := opts.MaxMessageChars
	if maxChars <= 0 {
		maxChars = DefaultMaxMessageChars
	}

	if opts.Scanner == nil {
		logger.Warn("Chat secret scanner disabled")
	}
	if opts.Store == nil {
		logger.Warn("Chat persistence disabled, history is in-memory only")
	}

	return &Service{
		orch:     orch,
		sessions: session.NewManager(),
		store:    opts.Store,
		exporter: exporter,
		scanner:  opts.Scanner,
		logger:   logger,
		maxChars: maxChars,
	}
}

// Post runs one full turn: the prepared user message goes through the
// orchestrator and both resulting turns are persisted. The returned turn is
// the assistant's answer; an aborted turn comes back incomplete, not as an
// error.
func (s *Service) Post(ctx context.Context, sessionID, text string) (*session.Turn, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("message text is required")
	}

	text = s.prepare(ctx, text)

	sess, err := s.sessionFor(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	turn, err := s.orch.ProcessTurn(ctx, sess, text)
	if err != nil {
		return nil, err
	}

	// The answer is already produced; a persistence failure must not eat it.
	s.persistLatest(ctx, sess)

	return turn, nil
}

// History returns the session's turns, oldest first. Unknown sessions have
// empty history.
func (s *Service) History(ctx context.Context, sessionID string) ([]session.Turn, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}
	sess, err := s.sessionFor(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Turns(), nil
}

// Clear wipes the session's history and result cache, in memory and in the
// database.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}
	if sess, ok := s.sessions.Get(sessionID); ok {
		sess.Reset()
	}
	if s.store != nil {
		return s.store.ClearSession(ctx, sessionID)
	}
	return nil
}

// Export writes the session transcript to disk and returns the file path.
// Format is "json" or "markdown".
func (s *Service) Export(ctx context.Context, sessionID, format string) (string, error) {
	sess, err := s.sessionFor(ctx, sessionID)
	if err != nil {
		return "", err
	}
	turns := sess.Turns()
	if len(turns) == 0 {
		return "", fmt.Errorf("session %s has no history to export", sessionID)
	}

	switch format {
	case FormatJSON:
		return s.exporter.ExportJSON(turns, "")
	case FormatMarkdown, "md":
		return s.exporter.ExportMarkdown(turns, "")
	default:
		return "", fmt.Errorf("unsupported export format %q", format)
	}
}

// Sessions lists persisted sessions, most recently active first. Without a
// store there is nothing durable to list.
func (s *Service) Sessions(ctx context.Context) ([]persistence.SessionInfo, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.Sessions(ctx)
}

// ContextInfo describes what the orchestrator currently holds for a session.
type ContextInfo struct {
	SessionID         string   `json:"session_id"`
	Turns             int      `json:"turns"`
	CacheEntries      int      `json:"cache_entries"`
	CacheFingerprints []string `json:"cache_fingerprints,omitempty"`
}

// Context reports the session's history length and result-cache contents.
func (s *Service) Context(ctx context.Context, sessionID string) (*ContextInfo, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}
	sess, err := s.sessionFor(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &ContextInfo{
		SessionID:         sess.ID(),
		Turns:             sess.Len(),
		CacheEntries:      sess.Cache().Len(),
		CacheFingerprints: sess.Cache().Summary(),
	}, nil
}

// prepare enforces the message size limit and redacts credentials.
func (s *Service) prepare(ctx context.Context, text string) string {
	if len(text) > s.maxChars {
		original := len(text)
		text = text[:s.maxChars-len(TruncationSuffix)] + TruncationSuffix
		s.logger.Debug("Truncated message (original: %d chars, max: %d)", original, s.maxChars)
	}

	if s.scanner != nil {
		redacted, err := RedactSecrets(ctx, s.scanner, text)
		if err != nil {
			// Fail-open: log and continue with the original text.
			s.logger.Error("Secret scanner failed: %v (using original text)", err)
		} else {
			text = redacted
		}
	}

	return text
}

// sessionFor returns the live session, rehydrating stored history the first
// time a persisted session is seen after a restart.
func (s *Service) sessionFor(ctx context.Context, sessionID string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessions.GetOrCreate(sessionID)
	if s.store == nil || sess.Len() > 0 {
		return sess, nil
	}

	stored, err := s.store.Turns(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to restore session %s: %w", sessionID, err)
	}
	for _, turn := range stored {
		sess.AppendTurn(turn)
	}
	if len(stored) > 0 {
		s.logger.Info("🔄 Restored %d turns for session %s", len(stored), sessionID)
	}
	return sess, nil
}

// persistLatest saves the user/assistant turn pair the orchestrator just
// appended.
func (s *Service) persistLatest(ctx context.Context, sess *session.Session) {
	if s.store == nil {
		return
	}
	turns := sess.Turns()
	if len(turns) < 2 {
		return
	}
	for _, turn := range turns[len(turns)-2:] {
		if err := s.store.SaveTurn(ctx, sess.ID(), turn); err != nil {
			s.logger.Warn("⚠️  Failed to persist turn %s for session %s: %v", turn.ID, sess.ID(), err)
		}
	}
}

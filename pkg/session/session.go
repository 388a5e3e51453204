// Package session owns per-conversation state: the ordered turn sequence,
// the session result cache, and the recorder that accumulates citations for
// an in-progress assistant turn. The orchestrator is the sole mutator of a
// session; other components read finished turns through copies or go through
// the cache's own synchronized interface.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ColtMercer/nautobot-mcp/pkg/cache"
)

// Session holds one conversation: its turns and its result cache. The cache
// lives exactly as long as the session and is cleared on reset, never shared
// across sessions.
type Session struct {
	mu        sync.RWMutex
	id        string
	turns     []Turn
	cache     *cache.Cache
	createdAt time.Time
}

// New creates an empty session with a generated ID.
func New() *Session {
	return NewWithID(uuid.New().String())
}

// NewWithID creates an empty session under a caller-chosen ID.
func NewWithID(id string) *Session {
	return &Session{
		id:        id,
		cache:     cache.New(),
		createdAt: time.Now().UTC(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Cache returns the session result cache. The cache is safe for concurrent
// use on its own; it never outlives the session.
func (s *Session) Cache() *cache.Cache {
	return s.cache
}

// AppendTurn adds a finalized turn to the history.
func (s *Session) AppendTurn(turn Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, turn)
}

// Turns returns a copy of the turn history, safe to read while a turn is in
// progress.
func (s *Session) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := make([]Turn, len(s.turns))
	copy(turns, s.turns)
	return turns
}

// Len returns the number of finalized turns.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.turns)
}

// Reset drops the turn history and clears the result cache.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = nil
	s.cache.Clear()
}

// Manager tracks live sessions by ID for the chat service.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the session for the ID, creating it on first use. An
// empty ID creates a session under a fresh generated ID.
func (m *Manager) GetOrCreate(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		s := New()
		m.sessions[s.ID()] = s
		return s
	}
	if s, ok := m.sessions[id]; ok {
		return s
	}
	s := NewWithID(id)
	m.sessions[id] = s
	return s
}

// Get returns the session for the ID, if it exists.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	return s, ok
}

// Delete removes a session. The session's cache dies with it.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.sessions)
}

package dialogue

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/arguendo/arguendo/pkg/inference"
)

// ErrSessionNotFound is returned when an operation names a session that
// does not exist.
var ErrSessionNotFound = errors.New("dialogue: session not found")

// Manager owns the live sessions. Sessions are created lazily on first
// use, so submitting a turn for a new session id just works; lookups
// that must not create (history reads, teardown) use Lookup.
type Manager struct {
	systemPrompt string
	provider     inference.Provider
	logger       *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager.
func NewManager(systemPrompt string, provider inference.Provider, logger *slog.Logger) *Manager {
	return &Manager{
		systemPrompt: systemPrompt,
		provider:     provider,
		logger:       logger.With("component", "dialogue.manager"),
		sessions:     make(map[string]*Session),
	}
}

// Session returns the session with the given id, creating it if needed.
func (m *Manager) Session(id string) *Session {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s
	}
	s = NewSession(id, m.systemPrompt, m.provider, m.logger)
	m.sessions[id] = s
	m.logger.Info("session created", "session_id", id)
	return s
}

// Lookup returns an existing session without creating one.
func (m *Manager) Lookup(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Remove tears down a session and its transcript.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	m.logger.Info("session removed", "session_id", id)
	return nil
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

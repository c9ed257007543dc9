package session

import (
	"sync"
	"time"

	"classboard/pkg/types"
)

// Manager holds the per-connection session written at join time
// FUNCTIONAL DISCOVERY: A session is set once, read many times and discarded on
// disconnect; nothing is ever updated in place
type Manager struct {
	sessions map[string]types.ConnectionSession // connectionID -> session
	mu       sync.RWMutex
}

// NewManager creates a new session manager
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]types.ConnectionSession),
	}
}

// Set records the session for a connection. A second Set for the same
// connection returns ErrSessionAlreadySet and leaves the first one intact.
func (m *Manager) Set(session types.ConnectionSession) error {
	if session.ConnectionID == "" || session.RoomID == "" {
		return ErrInvalidSession
	}
	if session.Role != types.RoleEditor && session.Role != types.RoleViewer {
		return ErrInvalidSession
	}
	if session.JoinedAt.IsZero() {
		session.JoinedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[session.ConnectionID]; exists {
		return ErrSessionAlreadySet
	}
	m.sessions[session.ConnectionID] = session
	return nil
}

// Get returns the session for a connection
func (m *Manager) Get(connectionID string) (types.ConnectionSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[connectionID]
	return session, ok
}

// Discard removes a connection's session and returns it. Safe to call twice.
func (m *Manager) Discard(connectionID string) (types.ConnectionSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[connectionID]
	if ok {
		delete(m.sessions, connectionID)
	}
	return session, ok
}

// Count returns the number of connections that have joined a room
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

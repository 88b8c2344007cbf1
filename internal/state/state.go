// Package state persists scan sessions and deduplicates discovered endpoints.
package state

import (
	"time"

	"github.com/google/uuid"
)

// Store defines the interface for session storage.
type Store interface {
	Save(state *SessionState) error
	Load() (*SessionState, error)
	Close() error
}

// Manager owns the session identity, the endpoint deduplicator and the
// optional store.
type Manager struct {
	store     Store
	dedup     *Deduplicator
	sessionID string
	target    string
	startTime time.Time
}

// NewManager creates a new state manager. store may be nil.
func NewManager(store Store, estimatedEndpoints int) *Manager {
	return &Manager{
		store:     store,
		dedup:     NewDeduplicator(estimatedEndpoints),
		sessionID: uuid.NewString(),
		startTime: time.Now(),
	}
}

// Start begins a new session against target and returns its ID.
func (m *Manager) Start(target string) string {
	m.target = target
	m.sessionID = uuid.NewString()
	m.startTime = time.Now()
	m.dedup.Reset()
	return m.sessionID
}

// SessionID returns the current session ID.
func (m *Manager) SessionID() string {
	return m.sessionID
}

// Target returns the session target.
func (m *Manager) Target() string {
	return m.target
}

// StartTime returns when the session started.
func (m *Manager) StartTime() time.Time {
	return m.startTime
}

// MarkEndpoint records an endpoint and reports whether it was new.
func (m *Manager) MarkEndpoint(method, path string) bool {
	return m.dedup.Add(EndpointKey(method, path))
}

// HasEndpoint checks if an endpoint has been recorded.
func (m *Manager) HasEndpoint(method, path string) bool {
	return m.dedup.HasSeen(EndpointKey(method, path))
}

// Save stamps and persists the session state.
func (m *Manager) Save(state *SessionState) error {
	if m.store == nil {
		return nil
	}
	if state.ID == "" {
		state.ID = m.sessionID
	}
	if state.Target == "" {
		state.Target = m.target
	}
	if state.StartedAt.IsZero() {
		state.StartedAt = m.startTime
	}
	state.UpdatedAt = time.Now()
	state.Stats.Duration = state.UpdatedAt.Sub(state.StartedAt)
	return m.store.Save(state)
}

// Load loads the last saved session.
func (m *Manager) Load() (*SessionState, error) {
	if m.store == nil {
		return nil, nil
	}
	return m.store.Load()
}


// GetDeduplicator returns the endpoint deduplicator.
func (m *Manager) GetDeduplicator() *Deduplicator {
	return m.dedup
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	if m.store == nil {
		return nil
	}
	return m.store.Close()
}

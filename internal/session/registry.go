package session

import (
	"sync"

	"github.com/google/uuid"
)

// Registry keeps isolated in-memory sessions keyed by UUID.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: map[uuid.UUID]*Session{}}
}

// Create registers a fresh session.
func (r *Registry) Create() *Session {
	s := New()
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

// Get looks a session up by its string UUID.
func (r *Registry) Get(id string) (*Session, bool) {
	u, err := uuid.Parse(id)
	if err != nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[u]
	return s, ok
}

// Delete removes a session; it reports whether one existed.
func (r *Registry) Delete(id string) bool {
	u, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[u]
	delete(r.sessions, u)
	return ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

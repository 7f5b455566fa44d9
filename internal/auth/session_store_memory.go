package auth

import (
	"context"
	"sync"
)

// NewInMemorySessionStore returns a SessionStore backed by an in-memory map.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[string]Session)}
}

// InMemorySessionStore implements SessionStore for tests and single-instance deployments.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// Save persists the provided session record.
func (s *InMemorySessionStore) Save(_ context.Context, session Session) error {
	s.mu.Lock()
	s.sessions[session.TokenDigest] = session
	s.mu.Unlock()
	return nil
}

// Find retrieves a session by token digest.
func (s *InMemorySessionStore) Find(_ context.Context, tokenDigest string) (Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[tokenDigest]
	s.mu.RUnlock()
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

// Delete removes the session stored under the token digest.
func (s *InMemorySessionStore) Delete(_ context.Context, tokenDigest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[tokenDigest]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, tokenDigest)
	return nil
}

// Len reports the number of stored sessions. Useful for tests.
func (s *InMemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package session provides SessionStore implementations: an in-process
// map for single-instance deployments and tests, and a Redis store for
// deployments where sessions must survive restarts or be shared.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/auth"
)

type memoryEntry struct {
	session  auth.Session
	deadline time.Time
}

// MemoryStore keeps sessions in an in-process map. Expired entries are
// dropped lazily on read; the store holds one entry per live client, so
// no background sweeper is needed at this scale.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]memoryEntry)}
}

// Get retrieves a session by hashed key.
func (s *MemoryStore) Get(_ context.Context, hashedKey string) (*auth.Session, error) {
	s.mu.RLock()
	entry, ok := s.sessions[hashedKey]
	s.mu.RUnlock()

	if !ok {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if time.Now().After(entry.deadline) {
		s.mu.Lock()
		delete(s.sessions, hashedKey)
		s.mu.Unlock()
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}

	// Copy so callers cannot mutate stored state without Put.
	session := entry.session
	return &session, nil
}

// Put stores a session under the hashed key with the given ttl.
func (s *MemoryStore) Put(_ context.Context, hashedKey string, session *auth.Session, ttl time.Duration) error {
	if session == nil {
		return oops.Code("SESSION_INVALID").Errorf("session cannot be nil")
	}
	if ttl <= 0 {
		return oops.Code("SESSION_INVALID_TTL").With("ttl", ttl).Errorf("ttl must be positive")
	}

	s.mu.Lock()
	s.sessions[hashedKey] = memoryEntry{session: *session, deadline: time.Now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// Delete removes a session. Deleting a missing key is not an error.
func (s *MemoryStore) Delete(_ context.Context, hashedKey string) error {
	s.mu.Lock()
	delete(s.sessions, hashedKey)
	s.mu.Unlock()
	return nil
}

// Len reports the number of live entries, counting expired ones that
// have not been read yet.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Compile-time interface check.
var _ auth.SessionStore = (*MemoryStore)(nil)

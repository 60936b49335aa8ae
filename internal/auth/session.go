// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session key configuration.
const (
	// SessionKeyBytes is the entropy of the opaque key held by the
	// client (32 bytes = 64 hex chars).
	SessionKeyBytes = 32

	// DefaultSessionTTL bounds how long a session lives in the store.
	DefaultSessionTTL = 12 * time.Hour
)

// Session is server-side per-client state. The client holds only the
// opaque key; the store is addressed by the key's SHA-256 hash.
//
// A session starts anonymous (Authenticated=false, zero UserID), is
// promoted by SessionManager.Authenticate under a fresh key, and is
// destroyed by Terminate. There is no transition back to anonymous
// other than terminating and beginning a new session.
type Session struct {
	ID            ulid.ULID `json:"id"`
	UserID        int64     `json:"user_id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	Authenticated bool      `json:"authenticated"`
	CSRFToken     string    `json:"csrf_token"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// SessionStore persists sessions under opaque hashed keys. Implementations
// live in internal/session. Get must return an error wrapping ErrNotFound
// for missing or expired entries; Delete on a missing key is not an error.
type SessionStore interface {
	Get(ctx context.Context, hashedKey string) (*Session, error)
	Put(ctx context.Context, hashedKey string, session *Session, ttl time.Duration) error
	Delete(ctx context.Context, hashedKey string) error
}

// GenerateSessionKey creates a secure random client key and its hash.
// The plaintext key goes into the client's cookie; only the hash is
// used to address the store.
func GenerateSessionKey() (key, hash string, err error) {
	buf := make([]byte, SessionKeyBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", "", oops.Code("SESSION_KEY_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			Wrap(err)
	}
	key = hex.EncodeToString(buf)
	return key, HashSessionKey(key), nil
}

// HashSessionKey computes the SHA-256 hash of a client session key.
func HashSessionKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// SessionManager owns session lifecycle: creation, lookup, promotion on
// login with key regeneration, and termination.
type SessionManager struct {
	store SessionStore
	ttl   time.Duration
}

// NewSessionManager creates a SessionManager. A non-positive ttl falls
// back to DefaultSessionTTL.
func NewSessionManager(store SessionStore, ttl time.Duration) (*SessionManager, error) {
	if store == nil {
		return nil, oops.Code("SESSION_MANAGER_INVALID").Errorf("session store is required")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{store: store, ttl: ttl}, nil
}

// Begin creates a new anonymous session and returns it with the client key.
func (m *SessionManager) Begin(ctx context.Context) (*Session, string, error) {
	key, hash, err := GenerateSessionKey()
	if err != nil {
		return nil, "", err
	}

	now := time.Now()
	session := &Session{
		ID:        ulid.Make(),
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.Put(ctx, hash, session, m.ttl); err != nil {
		return nil, "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "persist session").
			Wrap(err)
	}
	return session, key, nil
}

// Lookup resolves a client key to its session. Returns an error wrapping
// ErrNotFound for unknown keys and expired sessions.
func (m *SessionManager) Lookup(ctx context.Context, key string) (*Session, error) {
	if key == "" {
		return nil, oops.Code("SESSION_INVALID_KEY").Wrap(ErrNotFound)
	}
	session, err := m.store.Get(ctx, HashSessionKey(key))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("SESSION_NOT_FOUND").Wrap(err)
		}
		return nil, oops.Code("SESSION_LOOKUP_FAILED").
			With("operation", "get session by key hash").
			Wrap(err)
	}
	if session.IsExpired() {
		_ = m.store.Delete(ctx, HashSessionKey(key))
		return nil, oops.Code("SESSION_EXPIRED").Wrap(ErrNotFound)
	}
	return session, nil
}

// Save persists mutations to an existing session (e.g. a rotated CSRF
// token) under its current key.
func (m *SessionManager) Save(ctx context.Context, key string, session *Session) error {
	if key == "" {
		return oops.Code("SESSION_INVALID_KEY").Errorf("session key cannot be empty")
	}
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return oops.Code("SESSION_EXPIRED").Wrap(ErrNotFound)
	}
	if err := m.store.Put(ctx, HashSessionKey(key), session, ttl); err != nil {
		return oops.Code("SESSION_SAVE_FAILED").
			With("operation", "persist session").
			Wrap(err)
	}
	return nil
}

// Authenticate promotes a session to the authenticated state for user.
// The session identifier and client key are regenerated and the previous
// key is invalidated, defeating session fixation. oldKey may be empty
// when the client arrives without a session.
func (m *SessionManager) Authenticate(ctx context.Context, oldKey string, user *User) (*Session, string, error) {
	if user == nil {
		return nil, "", oops.Code("SESSION_INVALID_USER").Errorf("user is required")
	}

	key, hash, err := GenerateSessionKey()
	if err != nil {
		return nil, "", err
	}

	now := time.Now()
	session := &Session{
		ID:            ulid.Make(),
		UserID:        user.ID,
		Username:      user.Username,
		Email:         user.Email,
		Authenticated: true,
		CreatedAt:     now,
		ExpiresAt:     now.Add(m.ttl),
	}
	if err := m.store.Put(ctx, hash, session, m.ttl); err != nil {
		return nil, "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "persist authenticated session").
			Wrap(err)
	}

	// Drop the pre-login session only after the new one is in place.
	if oldKey != "" {
		if err := m.store.Delete(ctx, HashSessionKey(oldKey)); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, "", oops.Code("SESSION_ROTATE_FAILED").
				With("operation", "invalidate previous session").
				Wrap(err)
		}
	}

	return session, key, nil
}

// Terminate destroys the session for key. Terminating an unknown or
// already-terminated session is not an error.
func (m *SessionManager) Terminate(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := m.store.Delete(ctx, HashSessionKey(key)); err != nil && !errors.Is(err, ErrNotFound) {
		return oops.Code("SESSION_TERMINATE_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}
	return nil
}

// IsAuthenticated resolves key and reports whether it belongs to an
// authenticated session. The database is not consulted.
func (m *SessionManager) IsAuthenticated(ctx context.Context, key string) bool {
	session, err := m.Lookup(ctx, key)
	if err != nil {
		return false
	}
	return session.Authenticated
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/auth"
)

// keyPrefix namespaces session entries in a shared Redis instance.
const keyPrefix = "authgate:session:"

// RedisStore persists sessions in Redis as JSON values with a TTL, so
// expiry is enforced server-side and state survives process restarts.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a RedisStore on an existing client.
func NewRedisStore(client redis.UniversalClient) (*RedisStore, error) {
	if client == nil {
		return nil, oops.Code("SESSION_STORE_INVALID").Errorf("redis client is required")
	}
	return &RedisStore{client: client}, nil
}

// Get retrieves a session by hashed key.
func (s *RedisStore) Get(ctx context.Context, hashedKey string) (*auth.Session, error) {
	data, err := s.client.Get(ctx, keyPrefix+hashedKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
		}
		return nil, oops.Code("SESSION_GET_FAILED").
			With("operation", "redis get").
			Wrap(err)
	}

	var session auth.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, oops.Code("SESSION_DECODE_FAILED").
			With("operation", "unmarshal session").
			Wrap(err)
	}
	return &session, nil
}

// Put stores a session under the hashed key with the given ttl.
func (s *RedisStore) Put(ctx context.Context, hashedKey string, session *auth.Session, ttl time.Duration) error {
	if session == nil {
		return oops.Code("SESSION_INVALID").Errorf("session cannot be nil")
	}
	if ttl <= 0 {
		return oops.Code("SESSION_INVALID_TTL").With("ttl", ttl).Errorf("ttl must be positive")
	}

	data, err := json.Marshal(session)
	if err != nil {
		return oops.Code("SESSION_ENCODE_FAILED").
			With("operation", "marshal session").
			Wrap(err)
	}
	if err := s.client.Set(ctx, keyPrefix+hashedKey, data, ttl).Err(); err != nil {
		return oops.Code("SESSION_PUT_FAILED").
			With("operation", "redis set").
			Wrap(err)
	}
	return nil
}

// Delete removes a session. Deleting a missing key is not an error.
func (s *RedisStore) Delete(ctx context.Context, hashedKey string) error {
	if err := s.client.Del(ctx, keyPrefix+hashedKey).Err(); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "redis del").
			Wrap(err)
	}
	return nil
}

// Compile-time interface check.
var _ auth.SessionStore = (*RedisStore)(nil)

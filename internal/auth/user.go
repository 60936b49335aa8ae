// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"context"
	"regexp"
	"time"

	"github.com/samber/oops"
)

// Username validation constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 50
)

// usernameRegex limits usernames to ASCII letters, digits and underscores.
var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// User is a persistent account record. PasswordHash never leaves the
// credential store boundary except to be handed to a PasswordHasher.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// PublicUser is the hash-free view of a User, safe to hand to callers
// and render layers.
type PublicUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Public returns the hash-free view of the user.
func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Username: u.Username, Email: u.Email}
}

// ValidateUsername validates a username against rules.
// Username requirements:
// - Length: MinUsernameLength to MaxUsernameLength characters
// - Characters limited to ASCII letters, digits, and underscores
func ValidateUsername(username string) error {
	if len(username) < MinUsernameLength {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("min", MinUsernameLength).
			Errorf("username must be at least %d characters", MinUsernameLength)
	}
	if len(username) > MaxUsernameLength {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("max", MaxUsernameLength).
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return oops.Code("AUTH_INVALID_USERNAME").
			Errorf("username may contain only letters, numbers, and underscores")
	}
	return nil
}

// UserRepository manages user persistence. Implementations must rely on
// the storage layer's unique constraints as the source of truth for
// username/email uniqueness: a concurrent duplicate insert must surface
// as ErrDuplicate, not succeed because a prior existence check passed.
type UserRepository interface {
	// Insert stores a new user and returns the assigned id.
	// Returns an error wrapping ErrDuplicate when the username or email
	// is already taken.
	Insert(ctx context.Context, username, email, passwordHash string) (int64, error)

	// FindByUsername retrieves a full user record, hash included, for
	// credential verification. Returns an error wrapping ErrNotFound
	// when no such user exists.
	FindByUsername(ctx context.Context, username string) (*User, error)

	// FindByUsernameOrEmail retrieves a user matching either value.
	// Used for the pre-insert uniqueness check.
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*User, error)

	// ListAll returns all users in insertion order, hash excluded.
	ListAll(ctx context.Context) ([]PublicUser, error)
}

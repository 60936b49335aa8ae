// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"
)

// Service orchestrates registration, login, logout and user listing.
// It is the composition root for the authentication core: input
// sanitation, policy checks, credential verification and session
// mutation all happen here, in a fixed order.
type Service struct {
	users    UserRepository
	sessions *SessionManager
	hasher   PasswordHasher
	logger   *slog.Logger
}

// NewService creates a Service.
func NewService(users UserRepository, sessions *SessionManager, hasher PasswordHasher) (*Service, error) {
	return NewServiceWithLogger(users, sessions, hasher, slog.Default())
}

// NewServiceWithLogger creates a Service with an explicit logger.
func NewServiceWithLogger(users UserRepository, sessions *SessionManager, hasher PasswordHasher, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("user repository is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("session manager is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password hasher is required")
	}
	if logger == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("logger is required")
	}
	return &Service{users: users, sessions: sessions, hasher: hasher, logger: logger}, nil
}

// dummyPasswordHash is verified against when the username does not exist,
// so a failed login costs the same whether or not the account is real.
// It is a hash of random bytes and matches no account.
//
//nolint:gosec // G101: fake hash for timing-attack prevention, not a credential.
const dummyPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Register creates a new account. Checks run in order and the first
// failure is returned: all fields present, password confirmation
// matches, email syntax, username syntax, password strength, and
// finally uniqueness. The pre-insert existence check gives a friendly
// error for the common case; the storage layer's unique constraint is
// authoritative and catches the check-then-insert race, so a concurrent
// duplicate still fails cleanly with AUTH_DUPLICATE_USER and no partial
// write.
//
// Registration does not log the user in; see RegisterAndLogin.
func (s *Service) Register(ctx context.Context, username, password, passwordConfirmation, email string) error {
	username = Sanitize(username)
	email = Sanitize(email)

	if username == "" || password == "" || passwordConfirmation == "" || email == "" {
		return oops.Code("AUTH_MISSING_FIELDS").Errorf("all fields are required")
	}
	if password != passwordConfirmation {
		return oops.Code("AUTH_PASSWORD_MISMATCH").Errorf("passwords do not match")
	}
	if !ValidateEmail(email) {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("email address is not valid")
	}
	if err := ValidateUsername(username); err != nil {
		return err
	}
	if err := ValidatePasswordStrength(password); err != nil {
		return err
	}

	existing, err := s.users.FindByUsernameOrEmail(ctx, username, email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "check existing user").
			Wrap(err)
	}
	if existing != nil {
		return oops.Code("AUTH_DUPLICATE_USER").
			With("username", username).
			Wrap(ErrDuplicate)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	id, err := s.users.Insert(ctx, username, email, hash)
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			// Lost the race against a concurrent identical registration.
			return oops.Code("AUTH_DUPLICATE_USER").
				With("username", username).
				Wrap(err)
		}
		return oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "insert user").
			Wrap(err)
	}

	s.logger.Info("user registered", "user_id", id, "username", username)
	return nil
}

// RegisterAndLogin registers the account and, on success, immediately
// authenticates it. The chaining is an explicit contract here rather
// than a side effect of the registration handler.
func (s *Service) RegisterAndLogin(ctx context.Context, currentKey, username, password, passwordConfirmation, email string) (*Session, string, error) {
	if err := s.Register(ctx, username, password, passwordConfirmation, email); err != nil {
		return nil, "", err
	}
	return s.Login(ctx, currentKey, username, password)
}

// Login verifies credentials and promotes the client's session to the
// authenticated state under a regenerated key. currentKey is the
// client's pre-login session key and may be empty.
//
// An unknown username and a wrong password produce the same
// AUTH_INVALID_CREDENTIALS error, and the password is verified against
// a dummy hash when the user does not exist, so neither the response
// nor its timing reveals which accounts are registered.
func (s *Service) Login(ctx context.Context, currentKey, username, password string) (*Session, string, error) {
	username = Sanitize(username)
	if username == "" || password == "" {
		return nil, "", oops.Code("AUTH_MISSING_FIELDS").Errorf("username and password are required")
	}

	user, lookupErr := s.users.FindByUsername(ctx, username)

	targetHash := dummyPasswordHash
	userExists := false
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
		userExists = true
	case errors.Is(lookupErr, ErrNotFound):
		// Fall through with the dummy hash to keep timing uniform.
	default:
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "find user by username").
			Wrap(lookupErr)
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if !userExists {
			return nil, "", s.invalidCredentials()
		}
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr)
	}
	if !userExists || !valid {
		return nil, "", s.invalidCredentials()
	}

	session, key, err := s.sessions.Authenticate(ctx, currentKey, user)
	if err != nil {
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "promote session").
			Wrap(err)
	}

	s.logger.Info("user logged in", "user_id", user.ID, "username", user.Username)
	return session, key, nil
}

func (s *Service) invalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("invalid username or password")
}

// Logout terminates the session for key. Idempotent: logging out with
// no active session is not an error.
func (s *Service) Logout(ctx context.Context, key string) error {
	if err := s.sessions.Terminate(ctx, key); err != nil {
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "terminate session").
			Wrap(err)
	}
	return nil
}

// IsAuthenticated reports whether key belongs to an authenticated
// session. The user record is not re-validated per request.
func (s *Service) IsAuthenticated(ctx context.Context, key string) bool {
	return s.sessions.IsAuthenticated(ctx, key)
}

// ListUsers returns all registered users, hash excluded, in insertion
// order. Access control is the caller's responsibility.
func (s *Service) ListUsers(ctx context.Context) ([]PublicUser, error) {
	users, err := s.users.ListAll(ctx)
	if err != nil {
		return nil, oops.Code("AUTH_LIST_USERS_FAILED").
			With("operation", "list users").
			Wrap(err)
	}
	return users, nil
}

// Sessions exposes the session manager for collaborators that mutate
// session state directly (e.g. CSRF token rotation in the web layer).
func (s *Service) Sessions() *SessionManager {
	return s.sessions
}

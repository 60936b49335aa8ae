// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package postgres implements auth repositories using PostgreSQL.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/auth"
)

// poolIface is the subset of pgxpool.Pool the repository needs. Tests
// substitute a pgxmock pool.
type poolIface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool poolIface
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool poolIface) *UserRepository {
	return &UserRepository{pool: pool}
}

// Insert stores a new user and returns the assigned id. The unique
// constraints on username and email are the source of truth for
// uniqueness: a violation, including one raised by a concurrent insert
// that won the race, surfaces as auth.ErrDuplicate.
func (r *UserRepository) Insert(ctx context.Context, username, email, passwordHash string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (username, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id
	`, username, email, passwordHash).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, oops.Code("USER_DUPLICATE").
				With("username", username).
				With("constraint", pgErr.ConstraintName).
				Wrap(auth.ErrDuplicate)
		}
		return 0, oops.Code("USER_INSERT_FAILED").
			With("operation", "insert user").
			With("username", username).
			Wrap(err)
	}
	return id, nil
}

// FindByUsername retrieves a full user record, hash included. The hash
// must not travel past the caller's verification step.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, username, email, password_hash, created_at
		FROM users
		WHERE username = $1
	`, username)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("username", username).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_USERNAME_FAILED").
			With("operation", "get user by username").
			With("username", username).
			Wrap(err)
	}
	return user, nil
}

// FindByUsernameOrEmail retrieves a user matching either value. Used by
// the registration pre-check.
func (r *UserRepository) FindByUsernameOrEmail(ctx context.Context, username, email string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, username, email, password_hash, created_at
		FROM users
		WHERE username = $1 OR email = $2
	`, username, email)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("username", username).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by username or email").
			With("username", username).
			Wrap(err)
	}
	return user, nil
}

// ListAll returns every user in insertion order, hash excluded. The
// result is fully materialized; the user table is assumed small.
func (r *UserRepository) ListAll(ctx context.Context) ([]auth.PublicUser, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, username, email
		FROM users
		ORDER BY id
	`)
	if err != nil {
		return nil, oops.Code("USER_LIST_FAILED").
			With("operation", "list users").
			Wrap(err)
	}
	defer rows.Close()

	var users []auth.PublicUser
	for rows.Next() {
		var u auth.PublicUser
		if err := rows.Scan(&u.ID, &u.Username, &u.Email); err != nil {
			return nil, oops.Code("USER_SCAN_FAILED").
				With("operation", "scan user row").
				Wrap(err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("USER_ROWS_ERROR").
			With("operation", "iterate user rows").
			Wrap(err)
	}
	return users, nil
}

// scanUser scans a single row into a User. Callers are responsible for
// handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var u auth.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("USER_SCAN_FAILED").
			With("operation", "scan user").
			Wrap(err)
	}
	return &u, nil
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)

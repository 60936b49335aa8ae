// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import "errors"

// Sentinel errors for callers that branch with errors.Is. Service and
// repository methods wrap these with oops codes and context.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when an insert violates the uniqueness
	// constraint on username or email.
	ErrDuplicate = errors.New("duplicate user")
)

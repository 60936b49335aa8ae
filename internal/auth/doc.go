// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package auth provides the authentication core for Authgate.
//
// # Domain Types
//
// User is the persistent account record. Session is the server-side
// per-client state, created through SessionManager rather than direct
// struct initialization so that identifiers and expiry are always set.
//
// # Services
//
// Service orchestrates registration, login, logout and user listing on
// top of a UserRepository, a PasswordHasher and a SessionManager. The
// HTTP layer in internal/web is a thin collaborator: it calls Service
// operations and renders their results.
package auth

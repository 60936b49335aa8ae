// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"

	"github.com/samber/oops"
)

// CSRFTokenBytes is the entropy of a CSRF token (32 bytes = 64 hex chars).
const CSRFTokenBytes = 32

// IssueCSRFToken generates a fresh anti-forgery token and stores it in
// the session, overwriting any previous token. The caller is responsible
// for persisting the session and embedding the token in the next
// rendered form. A session holds at most one active token.
func IssueCSRFToken(session *Session) (string, error) {
	buf := make([]byte, CSRFTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", oops.Code("CSRF_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			Wrap(err)
	}
	token := hex.EncodeToString(buf)
	session.CSRFToken = token
	return token, nil
}

// VerifyCSRFToken reports whether submitted matches the session's current
// token. Returns false when the session holds no token. The comparison is
// constant-time. Verification does not consume the token; rotation
// happens on the next IssueCSRFToken call.
func VerifyCSRFToken(session *Session, submitted string) bool {
	if session == nil || session.CSRFToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(session.CSRFToken), []byte(submitted)) == 1
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"unicode"

	"github.com/samber/oops"
)

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 8

// ValidatePasswordStrength checks a password against the strength policy.
// Rules are evaluated in order and the first failure is reported:
// minimum length, then uppercase, lowercase, and digit requirements.
// Length is checked first, so empty and whitespace-only passwords fail
// with AUTH_PASSWORD_TOO_SHORT.
func ValidatePasswordStrength(password string) error {
	if len(password) < MinPasswordLength {
		return oops.Code("AUTH_PASSWORD_TOO_SHORT").
			With("min", MinPasswordLength).
			Errorf("password must contain at least %d characters", MinPasswordLength)
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	if !hasUpper {
		return oops.Code("AUTH_PASSWORD_NO_UPPER").
			Errorf("password must contain an uppercase letter")
	}
	if !hasLower {
		return oops.Code("AUTH_PASSWORD_NO_LOWER").
			Errorf("password must contain a lowercase letter")
	}
	if !hasDigit {
		return oops.Code("AUTH_PASSWORD_NO_DIGIT").
			Errorf("password must contain a number")
	}
	return nil
}

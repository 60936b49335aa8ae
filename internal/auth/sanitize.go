// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"html"
	"net/mail"
	"strings"
)

// Sanitize trims surrounding whitespace and escapes HTML-significant
// characters (<, >, &, quotes) so the value is safe to store and to
// embed in rendered pages. Applied to username and email before any
// validation or persistence.
func Sanitize(text string) string {
	return html.EscapeString(strings.TrimSpace(text))
}

// ValidateEmail reports whether email has a plausible address shape:
// a single local-part@domain with at least one dot in the domain.
// No DNS or MX verification is performed.
func ValidateEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndex(addr.Address, "@")
	if at < 0 {
		return false
	}
	domain := addr.Address[at+1:]
	return strings.Contains(domain, ".")
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/authgate/authgate/internal/auth"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text untouched", "alice", "alice"},
		{"whitespace trimmed", "  alice \t\n", "alice"},
		{"angle brackets escaped", "<script>alert(1)</script>", "&lt;script&gt;alert(1)&lt;/script&gt;"},
		{"ampersand escaped", "a&b", "a&amp;b"},
		{"quotes escaped", `a"b'c`, "a&#34;b&#39;c"},
		{"whitespace-only becomes empty", "   ", ""},
		{"empty stays empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.Sanitize(tt.input))
		})
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		want  bool
	}{
		{"simple address", "alice@example.com", true},
		{"subdomain", "alice@mail.example.co.uk", true},
		{"plus tag", "alice+tag@example.com", true},
		{"missing at sign", "aliceexample.com", false},
		{"missing domain dot", "alice@localhost", false},
		{"display name form rejected", "Alice <alice@example.com>", false},
		{"spaces rejected", "alice @example.com", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.ValidateEmail(tt.email))
		})
	}
}

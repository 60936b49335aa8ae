// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package web

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/authgate/authgate/internal/auth"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// parseTemplates parses the embedded page templates once at startup.
func parseTemplates() (*template.Template, error) {
	return template.ParseFS(templatesFS, "templates/*.html")
}

// loginPage is the data for login.html.
type loginPage struct {
	CSRFToken string
	Username  string
	Error     string
	Notice    string
}

// registerPage is the data for register.html.
type registerPage struct {
	CSRFToken string
	Username  string
	Email     string
	Error     string
}

// dashboardPage is the data for dashboard.html.
type dashboardPage struct {
	CSRFToken string
	Username  string
	Users     []auth.PublicUser
}

// errorPage is the data for error.html.
type errorPage struct {
	Message string
}

// render writes a template response. Render failures are logged; headers
// are already sent by then, so the client just gets a truncated page.
func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		slog.Error("template render failed", "template", name, "error", err)
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package web

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/pkg/errutil"
)

// serviceUnavailableMessage is shown for any storage or internal
// failure. Details stay in the server log; raw error text never reaches
// the client.
const serviceUnavailableMessage = "The service is temporarily unavailable. Please try again later."

// csrfRejectedMessage is shown when a form token does not match.
const csrfRejectedMessage = "The form has expired. Please try again."

// formMessages maps user-correctable oops codes to inline messages.
var formMessages = map[string]string{
	"AUTH_MISSING_FIELDS":      "All fields are required.",
	"AUTH_PASSWORD_MISMATCH":   "Passwords do not match.",
	"AUTH_INVALID_EMAIL":       "The email address format is not valid.",
	"AUTH_INVALID_USERNAME":    "Usernames are 3-50 characters and may contain only letters, numbers, and underscores.",
	"AUTH_PASSWORD_TOO_SHORT":  "The password must contain at least 8 characters.",
	"AUTH_PASSWORD_NO_UPPER":   "The password must contain an uppercase letter.",
	"AUTH_PASSWORD_NO_LOWER":   "The password must contain a lowercase letter.",
	"AUTH_PASSWORD_NO_DIGIT":   "The password must contain a number.",
	"AUTH_DUPLICATE_USER":      "That username or email is already registered.",
	"AUTH_INVALID_CREDENTIALS": "Invalid username or password.",
}

// formMessage returns the inline message for a user-correctable error,
// or ("", false) for internal failures that must not leak.
func formMessage(err error) (string, bool) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return "", false
	}
	msg, ok := formMessages[fmt.Sprint(oopsErr.Code())]
	return msg, ok
}

// sessionKeyFromRequest extracts the opaque session key from the cookie.
func sessionKeyFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// setSessionCookie installs the session key on the client.
func (s *Server) setSessionCookie(w http.ResponseWriter, key string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    key,
		Path:     "/",
		MaxAge:   int(s.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie expires the session cookie on the client.
func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// ensureSession resolves the client's session, beginning a fresh
// anonymous one (and setting its cookie) when the client has none or it
// has expired.
func (s *Server) ensureSession(w http.ResponseWriter, r *http.Request) (*auth.Session, string, error) {
	manager := s.service.Sessions()

	if key := sessionKeyFromRequest(r); key != "" {
		session, err := manager.Lookup(r.Context(), key)
		if err == nil {
			return session, key, nil
		}
		if !errors.Is(err, auth.ErrNotFound) {
			return nil, "", err
		}
	}

	session, key, err := manager.Begin(r.Context())
	if err != nil {
		return nil, "", err
	}
	s.setSessionCookie(w, key)
	return session, key, nil
}

// issueFormToken rotates the session's CSRF token and persists it.
// Called on every render of a protected form.
func (s *Server) issueFormToken(r *http.Request, session *auth.Session, key string) (string, error) {
	token, err := auth.IssueCSRFToken(session)
	if err != nil {
		return "", err
	}
	if err := s.service.Sessions().Save(r.Context(), key, session); err != nil {
		return "", err
	}
	return token, nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.service.IsAuthenticated(r.Context(), sessionKeyFromRequest(r)) {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	//nolint:errcheck // health check write error is acceptable
	w.Write([]byte("ok\n"))
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	if s.service.IsAuthenticated(r.Context(), sessionKeyFromRequest(r)) {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}

	session, key, err := s.ensureSession(w, r)
	if err != nil {
		s.renderServiceError(w, "prepare login form", err)
		return
	}
	token, err := s.issueFormToken(r, session, key)
	if err != nil {
		s.renderServiceError(w, "issue login form token", err)
		return
	}

	page := loginPage{CSRFToken: token}
	if r.URL.Query().Get("out") == "1" {
		page.Notice = "You have been signed out."
	}
	s.render(w, http.StatusOK, "login.html", page)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	session, key, ok := s.checkFormToken(w, r)
	if !ok {
		return
	}

	_, newKey, err := s.service.Login(r.Context(), key, username, password)
	if err != nil {
		s.metrics.LoginsTotal.WithLabelValues("failure").Inc()
		if msg, userErr := formMessage(err); userErr {
			s.rerenderLogin(w, r, session, key, username, msg)
			return
		}
		s.renderServiceError(w, "login", err)
		return
	}

	s.metrics.LoginsTotal.WithLabelValues("success").Inc()
	s.setSessionCookie(w, newKey)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *Server) handleRegisterForm(w http.ResponseWriter, r *http.Request) {
	if s.service.IsAuthenticated(r.Context(), sessionKeyFromRequest(r)) {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}

	session, key, err := s.ensureSession(w, r)
	if err != nil {
		s.renderServiceError(w, "prepare register form", err)
		return
	}
	token, err := s.issueFormToken(r, session, key)
	if err != nil {
		s.renderServiceError(w, "issue register form token", err)
		return
	}

	s.render(w, http.StatusOK, "register.html", registerPage{CSRFToken: token})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	username := r.PostFormValue("username")
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")
	confirmation := r.PostFormValue("password_confirmation")

	session, key, ok := s.checkFormToken(w, r)
	if !ok {
		return
	}

	// Registration chains straight into login; the plaintext password is
	// still in hand and the user lands on the dashboard in one step.
	_, newKey, err := s.service.RegisterAndLogin(r.Context(), key, username, password, confirmation, email)
	if err != nil {
		s.metrics.RegistrationsTotal.WithLabelValues("failure").Inc()
		if msg, userErr := formMessage(err); userErr {
			s.rerenderRegister(w, r, session, key, username, email, msg)
			return
		}
		s.renderServiceError(w, "register", err)
		return
	}

	s.metrics.RegistrationsTotal.WithLabelValues("success").Inc()
	s.setSessionCookie(w, newKey)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	key := sessionKeyFromRequest(r)
	session, err := s.service.Sessions().Lookup(r.Context(), key)
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	users, err := s.service.ListUsers(r.Context())
	if err != nil {
		s.renderServiceError(w, "list users", err)
		return
	}

	token, err := s.issueFormToken(r, session, key)
	if err != nil {
		s.renderServiceError(w, "issue dashboard token", err)
		return
	}

	s.render(w, http.StatusOK, "dashboard.html", dashboardPage{
		CSRFToken: token,
		Username:  session.Username,
		Users:     users,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	key := sessionKeyFromRequest(r)
	if key != "" {
		session, err := s.service.Sessions().Lookup(r.Context(), key)
		if err == nil && !auth.VerifyCSRFToken(session, r.PostFormValue("csrf_token")) {
			s.render(w, http.StatusForbidden, "error.html", errorPage{Message: csrfRejectedMessage})
			return
		}
	}

	// Logout is idempotent: a missing or stale session still clears the
	// cookie and lands on the login page.
	if err := s.service.Logout(r.Context(), key); err != nil {
		s.renderServiceError(w, "logout", err)
		return
	}
	s.clearSessionCookie(w)
	http.Redirect(w, r, "/login?out=1", http.StatusSeeOther)
}

// checkFormToken validates the submitted CSRF token against the
// client's session before any credentials are processed. Returns the
// session and key on success; otherwise it has already written the 403
// response.
func (s *Server) checkFormToken(w http.ResponseWriter, r *http.Request) (*auth.Session, string, bool) {
	key := sessionKeyFromRequest(r)
	if key == "" {
		s.render(w, http.StatusForbidden, "error.html", errorPage{Message: csrfRejectedMessage})
		return nil, "", false
	}
	session, err := s.service.Sessions().Lookup(r.Context(), key)
	if err != nil {
		s.render(w, http.StatusForbidden, "error.html", errorPage{Message: csrfRejectedMessage})
		return nil, "", false
	}
	if !auth.VerifyCSRFToken(session, r.PostFormValue("csrf_token")) {
		s.render(w, http.StatusForbidden, "error.html", errorPage{Message: csrfRejectedMessage})
		return nil, "", false
	}
	return session, key, true
}

// rerenderLogin shows the login form again with an inline error and a
// rotated token.
func (s *Server) rerenderLogin(w http.ResponseWriter, r *http.Request, session *auth.Session, key, username, msg string) {
	token, err := s.issueFormToken(r, session, key)
	if err != nil {
		s.renderServiceError(w, "reissue login token", err)
		return
	}
	s.render(w, http.StatusUnauthorized, "login.html", loginPage{
		CSRFToken: token,
		Username:  username,
		Error:     msg,
	})
}

// rerenderRegister shows the registration form again with an inline
// error and a rotated token.
func (s *Server) rerenderRegister(w http.ResponseWriter, r *http.Request, session *auth.Session, key, username, email, msg string) {
	token, err := s.issueFormToken(r, session, key)
	if err != nil {
		s.renderServiceError(w, "reissue register token", err)
		return
	}
	s.render(w, http.StatusUnprocessableEntity, "register.html", registerPage{
		CSRFToken: token,
		Username:  username,
		Email:     email,
		Error:     msg,
	})
}

// renderServiceError logs the detailed failure and shows the generic
// unavailable page.
func (s *Server) renderServiceError(w http.ResponseWriter, operation string, err error) {
	errutil.LogError(slog.Default(), operation+" failed", err)
	s.render(w, http.StatusServiceUnavailable, "error.html", errorPage{Message: serviceUnavailableMessage})
}

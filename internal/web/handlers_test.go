// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package web_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/auth/mocks"
	"github.com/authgate/authgate/internal/observability"
	"github.com/authgate/authgate/internal/session"
	"github.com/authgate/authgate/internal/web"
)

var csrfInputRe = regexp.MustCompile(`name="csrf_token" value="([0-9a-f]{64})"`)

type testApp struct {
	server *web.Server
	router http.Handler
	users  *mocks.MockUserRepository
	hasher *mocks.MockPasswordHasher
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	users := mocks.NewMockUserRepository(t)
	hasher := mocks.NewMockPasswordHasher(t)
	sessions, err := auth.NewSessionManager(session.NewMemoryStore(), time.Hour)
	require.NoError(t, err)
	service, err := auth.NewService(users, sessions, hasher)
	require.NoError(t, err)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	server, err := web.NewServer("127.0.0.1:0", service, metrics, false, time.Hour)
	require.NoError(t, err)

	return &testApp{server: server, router: server.Router(), users: users, hasher: hasher}
}

func (a *testApp) get(t *testing.T, path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) post(t *testing.T, path string, form url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == web.SessionCookieName {
			return c
		}
	}
	return nil
}

func csrfToken(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	m := csrfInputRe.FindStringSubmatch(rec.Body.String())
	require.NotNil(t, m, "no csrf token in page:\n%s", rec.Body.String())
	return m[1]
}

// openForm fetches a form page anonymously and returns the session
// cookie and embedded token.
func (a *testApp) openForm(t *testing.T, path string) (*http.Cookie, string) {
	t.Helper()
	rec := a.get(t, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(t, rec)
	require.NotNil(t, cookie, "form page should begin a session")
	return cookie, csrfToken(t, rec)
}

func TestIndexRedirects(t *testing.T) {
	app := newTestApp(t)

	rec := app.get(t, "/", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestLoginFormPage(t *testing.T) {
	app := newTestApp(t)

	rec := app.get(t, "/login", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	cookie := sessionCookie(t, rec)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Len(t, cookie.Value, 64)

	assert.NotEmpty(t, csrfToken(t, rec))
}

func TestLoginFormReusesExistingSession(t *testing.T) {
	app := newTestApp(t)

	cookie, _ := app.openForm(t, "/login")

	rec := app.get(t, "/login", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, sessionCookie(t, rec), "existing session should be reused, not replaced")
}

func TestLogin(t *testing.T) {
	user := &auth.User{ID: 1, Username: "alice", Email: "alice@example.com", PasswordHash: "$2a$10$stored"}

	t.Run("successful login rotates the session cookie", func(t *testing.T) {
		app := newTestApp(t)
		cookie, token := app.openForm(t, "/login")

		app.users.On("FindByUsername", mock.Anything, "alice").Return(user, nil)
		app.hasher.On("Verify", "Password1", user.PasswordHash).Return(true, nil)

		rec := app.post(t, "/login", url.Values{
			"csrf_token": {token},
			"username":   {"alice"},
			"password":   {"Password1"},
		}, cookie)

		require.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/dashboard", rec.Header().Get("Location"))

		newCookie := sessionCookie(t, rec)
		require.NotNil(t, newCookie)
		assert.NotEqual(t, cookie.Value, newCookie.Value)
	})

	t.Run("bad credentials re-render the form with a uniform message", func(t *testing.T) {
		app := newTestApp(t)
		cookie, token := app.openForm(t, "/login")

		app.users.On("FindByUsername", mock.Anything, "ghost").Return(nil, auth.ErrNotFound)
		app.hasher.On("Verify", "wrong", mock.AnythingOfType("string")).Return(false, nil)

		rec := app.post(t, "/login", url.Values{
			"csrf_token": {token},
			"username":   {"ghost"},
			"password":   {"wrong"},
		}, cookie)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Invalid username or password.")
		// A fresh token is embedded for the retry.
		assert.NotEqual(t, token, csrfToken(t, rec))
	})

	t.Run("missing csrf token is rejected before credentials", func(t *testing.T) {
		app := newTestApp(t)
		cookie, _ := app.openForm(t, "/login")

		rec := app.post(t, "/login", url.Values{
			"username": {"alice"},
			"password": {"Password1"},
		}, cookie)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("stale csrf token is rejected", func(t *testing.T) {
		app := newTestApp(t)
		cookie, oldToken := app.openForm(t, "/login")
		// Re-rendering the form rotates the token; the old one is dead.
		_ = app.get(t, "/login", cookie)

		rec := app.post(t, "/login", url.Values{
			"csrf_token": {oldToken},
			"username":   {"alice"},
			"password":   {"Password1"},
		}, cookie)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("post without a session is rejected", func(t *testing.T) {
		app := newTestApp(t)

		rec := app.post(t, "/login", url.Values{
			"csrf_token": {strings.Repeat("a", 64)},
			"username":   {"alice"},
			"password":   {"Password1"},
		}, nil)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestRegister(t *testing.T) {
	t.Run("successful registration logs in and redirects", func(t *testing.T) {
		app := newTestApp(t)
		cookie, token := app.openForm(t, "/register")

		registered := &auth.User{ID: 5, Username: "alice", Email: "alice@example.com", PasswordHash: "$2a$10$h"}
		app.users.On("FindByUsernameOrEmail", mock.Anything, "alice", "alice@example.com").Return(nil, auth.ErrNotFound)
		app.hasher.On("Hash", "Password1").Return("$2a$10$h", nil)
		app.users.On("Insert", mock.Anything, "alice", "alice@example.com", "$2a$10$h").Return(int64(5), nil)
		app.users.On("FindByUsername", mock.Anything, "alice").Return(registered, nil)
		app.hasher.On("Verify", "Password1", "$2a$10$h").Return(true, nil)

		rec := app.post(t, "/register", url.Values{
			"csrf_token":            {token},
			"username":              {"alice"},
			"email":                 {"alice@example.com"},
			"password":              {"Password1"},
			"password_confirmation": {"Password1"},
		}, cookie)

		require.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/dashboard", rec.Header().Get("Location"))

		newCookie := sessionCookie(t, rec)
		require.NotNil(t, newCookie)
		assert.NotEqual(t, cookie.Value, newCookie.Value)
	})

	t.Run("validation failure re-renders with message and kept input", func(t *testing.T) {
		app := newTestApp(t)
		cookie, token := app.openForm(t, "/register")

		rec := app.post(t, "/register", url.Values{
			"csrf_token":            {token},
			"username":              {"alice"},
			"email":                 {"alice@example.com"},
			"password":              {"Password1"},
			"password_confirmation": {"Password2"},
		}, cookie)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "Passwords do not match.")
		assert.Contains(t, rec.Body.String(), `value="alice"`)
	})

	t.Run("duplicate user message", func(t *testing.T) {
		app := newTestApp(t)
		cookie, token := app.openForm(t, "/register")

		existing := &auth.User{ID: 1, Username: "alice"}
		app.users.On("FindByUsernameOrEmail", mock.Anything, "alice", "alice@example.com").Return(existing, nil)

		rec := app.post(t, "/register", url.Values{
			"csrf_token":            {token},
			"username":              {"alice"},
			"email":                 {"alice@example.com"},
			"password":              {"Password1"},
			"password_confirmation": {"Password1"},
		}, cookie)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "already registered")
	})

	t.Run("repository failure shows the generic error page", func(t *testing.T) {
		app := newTestApp(t)
		cookie, token := app.openForm(t, "/register")

		app.users.On("FindByUsernameOrEmail", mock.Anything, "alice", "alice@example.com").
			Return(nil, assert.AnError)

		rec := app.post(t, "/register", url.Values{
			"csrf_token":            {token},
			"username":              {"alice"},
			"email":                 {"alice@example.com"},
			"password":              {"Password1"},
			"password_confirmation": {"Password1"},
		}, cookie)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "temporarily unavailable")
		assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
	})
}

func TestDashboard(t *testing.T) {
	login := func(t *testing.T, app *testApp) *http.Cookie {
		t.Helper()
		cookie, token := app.openForm(t, "/login")

		user := &auth.User{ID: 1, Username: "alice", Email: "alice@example.com", PasswordHash: "$2a$10$stored"}
		app.users.On("FindByUsername", mock.Anything, "alice").Return(user, nil).Once()
		app.hasher.On("Verify", "Password1", user.PasswordHash).Return(true, nil).Once()

		rec := app.post(t, "/login", url.Values{
			"csrf_token": {token},
			"username":   {"alice"},
			"password":   {"Password1"},
		}, cookie)
		require.Equal(t, http.StatusSeeOther, rec.Code)

		authed := sessionCookie(t, rec)
		require.NotNil(t, authed)
		return authed
	}

	t.Run("unauthenticated access redirects to login", func(t *testing.T) {
		app := newTestApp(t)
		rec := app.get(t, "/dashboard", nil)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/login", rec.Header().Get("Location"))
	})

	t.Run("anonymous session redirects to login", func(t *testing.T) {
		app := newTestApp(t)
		cookie, _ := app.openForm(t, "/login")
		rec := app.get(t, "/dashboard", cookie)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
	})

	t.Run("lists users without hashes", func(t *testing.T) {
		app := newTestApp(t)
		cookie := login(t, app)

		app.users.On("ListAll", mock.Anything).Return([]auth.PublicUser{
			{ID: 1, Username: "alice", Email: "alice@example.com"},
			{ID: 2, Username: "bob", Email: "bob@example.com"},
		}, nil)

		rec := app.get(t, "/dashboard", cookie)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "alice")
		assert.Contains(t, rec.Body.String(), "bob@example.com")
		assert.NotContains(t, rec.Body.String(), "$2a$10$")
	})

	t.Run("login page redirects authenticated users to dashboard", func(t *testing.T) {
		app := newTestApp(t)
		cookie := login(t, app)

		rec := app.get(t, "/login", cookie)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
	})
}

func TestLogout(t *testing.T) {
	login := func(t *testing.T, app *testApp) *http.Cookie {
		t.Helper()
		cookie, token := app.openForm(t, "/login")

		user := &auth.User{ID: 1, Username: "alice", Email: "alice@example.com", PasswordHash: "$2a$10$stored"}
		app.users.On("FindByUsername", mock.Anything, "alice").Return(user, nil).Once()
		app.hasher.On("Verify", "Password1", user.PasswordHash).Return(true, nil).Once()

		rec := app.post(t, "/login", url.Values{
			"csrf_token": {token},
			"username":   {"alice"},
			"password":   {"Password1"},
		}, cookie)
		require.Equal(t, http.StatusSeeOther, rec.Code)
		return sessionCookie(t, rec)
	}

	t.Run("logout destroys the session and clears the cookie", func(t *testing.T) {
		app := newTestApp(t)
		cookie := login(t, app)

		app.users.On("ListAll", mock.Anything).Return([]auth.PublicUser{}, nil)
		dashboard := app.get(t, "/dashboard", cookie)
		require.Equal(t, http.StatusOK, dashboard.Code)
		token := csrfToken(t, dashboard)

		rec := app.post(t, "/logout", url.Values{"csrf_token": {token}}, cookie)
		require.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/login?out=1", rec.Header().Get("Location"))

		cleared := sessionCookie(t, rec)
		require.NotNil(t, cleared)
		assert.Equal(t, -1, cleared.MaxAge)

		after := app.get(t, "/dashboard", cookie)
		assert.Equal(t, http.StatusSeeOther, after.Code, "session should be gone")
	})

	t.Run("logout with wrong csrf token is rejected", func(t *testing.T) {
		app := newTestApp(t)
		cookie := login(t, app)

		app.users.On("ListAll", mock.Anything).Return([]auth.PublicUser{}, nil)
		dashboard := app.get(t, "/dashboard", cookie)
		require.Equal(t, http.StatusOK, dashboard.Code)

		rec := app.post(t, "/logout", url.Values{"csrf_token": {strings.Repeat("f", 64)}}, cookie)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("logout without a session still redirects", func(t *testing.T) {
		app := newTestApp(t)
		rec := app.post(t, "/logout", nil, nil)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
	})
}

func TestHealthz(t *testing.T) {
	app := newTestApp(t)
	rec := app.get(t, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
}

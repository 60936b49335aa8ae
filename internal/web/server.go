// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package web is the rendering/routing collaborator for the auth core.
// It translates HTTP requests into Service operations and Service
// results into HTML pages, redirects and cookies; no business rules
// live here.
package web

import (
	"context"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/observability"
)

// SessionCookieName is the cookie carrying the opaque session key.
const SessionCookieName = "authgate_session"

// Server is the public HTTP server.
type Server struct {
	addr          string
	service       *auth.Service
	metrics       *observability.Metrics
	templates     *template.Template
	secureCookies bool
	sessionTTL    time.Duration

	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates the public HTTP server.
func NewServer(addr string, service *auth.Service, metrics *observability.Metrics, secureCookies bool, sessionTTL time.Duration) (*Server, error) {
	if service == nil {
		return nil, oops.Code("WEB_SERVER_INVALID").Errorf("auth service is required")
	}
	if metrics == nil {
		return nil, oops.Code("WEB_SERVER_INVALID").Errorf("metrics are required")
	}

	templates, err := parseTemplates()
	if err != nil {
		return nil, oops.Code("WEB_TEMPLATES_INVALID").
			With("operation", "parse templates").
			Wrap(err)
	}

	return &Server{
		addr:          addr,
		service:       service,
		metrics:       metrics,
		templates:     templates,
		secureCookies: secureCookies,
		sessionTTL:    sessionTTL,
	}, nil
}

// Router builds the route table. Exposed for handler tests.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.instrument)

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/register", s.handleRegisterForm).Methods(http.MethodGet)
	r.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/login", s.handleLoginForm).Methods(http.MethodGet)
	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	r.Handle("/dashboard", s.requireAuth(http.HandlerFunc(s.handleDashboard))).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.PathPrefix("/static/").Handler(http.FileServer(http.FS(staticFS))).Methods(http.MethodGet)

	return r
}

// Start begins serving. It returns a channel that receives any error
// from the HTTP server after startup; the channel is closed on graceful
// shutdown.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("web server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("web server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("web server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the web server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown web server").Wrap(err)
		}
	}

	slog.Info("web server stopped")
	return nil
}

// Addr returns the listen address, or empty when not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/authgate/authgate/internal/auth"
	authpg "github.com/authgate/authgate/internal/auth/postgres"
	"github.com/authgate/authgate/internal/config"
	"github.com/authgate/authgate/internal/logging"
	"github.com/authgate/authgate/internal/observability"
	"github.com/authgate/authgate/internal/session"
	"github.com/authgate/authgate/internal/store"
	"github.com/authgate/authgate/internal/web"
)

const shutdownTimeout = 5 * time.Second

// newServeCmd creates the serve subcommand with all flags configured.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication server",
		Long: `Start the HTTP server serving the registration, login, dashboard,
and logout pages, plus a separate metrics/health listener.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd)
		},
	}

	// Flag names mirror config file keys so posflag can merge them.
	cmd.Flags().String("server.addr", ":8080", "public HTTP listen address")
	cmd.Flags().Bool("server.secure_cookies", false, "set the Secure attribute on session cookies")
	cmd.Flags().String("database.url", "", "PostgreSQL connection URL")
	cmd.Flags().String("session.backend", config.SessionBackendMemory, "session store backend (memory or redis)")
	cmd.Flags().Duration("session.ttl", auth.DefaultSessionTTL, "session lifetime")
	cmd.Flags().String("session.redis_addr", "127.0.0.1:6379", "redis address for the redis session backend")
	cmd.Flags().Int("auth.bcrypt_cost", 10, "bcrypt cost for password hashing")
	cmd.Flags().String("metrics.addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log.format", "json", "log format (json or text)")

	return cmd
}

// runServe wires the stores, service, and servers, then blocks until a
// shutdown signal arrives.
func runServe(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	logging.SetDefault("authgate", version, cfg.Log.Format)

	slog.Info("starting authgate",
		"addr", cfg.Server.Addr,
		"session_backend", cfg.Session.Backend,
		"log_format", cfg.Log.Format,
	)

	if cfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database.url (or DATABASE_URL) is required")
	}

	pool, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	sessionStore, closeSessions, err := newSessionStore(cfg)
	if err != nil {
		return err
	}
	defer closeSessions()

	sessions, err := auth.NewSessionManager(sessionStore, cfg.Session.TTL)
	if err != nil {
		return err
	}

	service, err := auth.NewService(authpg.NewUserRepository(pool), sessions, auth.NewBcryptHasher(cfg.Auth.BcryptCost))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obsServer *observability.Server
	var obsErrCh <-chan error
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = observability.NewServer(cfg.Metrics.Addr, func() bool {
			pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer pingCancel()
			return pool.Ping(pingCtx) == nil
		})
		obsErrCh, err = obsServer.Start()
		if err != nil {
			return err
		}
		metrics = obsServer.Metrics()
	} else {
		// Metrics still record; they are just not exported anywhere.
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	webServer, err := web.NewServer(cfg.Server.Addr, service, metrics, cfg.Server.SecureCookies, cfg.Session.TTL)
	if err != nil {
		return err
	}
	webErrCh, err := webServer.Start()
	if err != nil {
		stopServers(obsServer, nil)
		return err
	}

	cmd.Println("Authgate started on " + webServer.Addr())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case serveErr := <-webErrCh:
		if serveErr != nil {
			slog.Error("web server failed", "error", serveErr)
		}
	case obsErr := <-errChOrBlock(obsErrCh):
		if obsErr != nil {
			slog.Error("observability server failed", "error", obsErr)
		}
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	slog.Info("shutting down...")
	stopServers(obsServer, webServer)
	slog.Info("shutdown complete")
	return nil
}

// newSessionStore builds the configured session backend. The returned
// close function releases backend resources; it is safe to call even
// when there are none.
func newSessionStore(cfg *config.Config) (auth.SessionStore, func(), error) {
	switch cfg.Session.Backend {
	case config.SessionBackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.Session.RedisAddr})
		redisStore, err := session.NewRedisStore(client)
		if err != nil {
			return nil, nil, err
		}
		return redisStore, func() {
			if closeErr := client.Close(); closeErr != nil {
				slog.Warn("error closing redis client", "error", closeErr)
			}
		}, nil
	default:
		return session.NewMemoryStore(), func() {}, nil
	}
}

// errChOrBlock makes a nil error channel safe to select on.
func errChOrBlock(ch <-chan error) <-chan error {
	if ch != nil {
		return ch
	}
	return make(chan error)
}

// stopServers shuts both servers down within the shutdown timeout.
func stopServers(obs *observability.Server, webSrv *web.Server) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if webSrv != nil {
		if err := webSrv.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping web server", "error", err)
		}
	}
	if obs != nil {
		if err := obs.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package config loads Authgate configuration from defaults, an optional
// YAML file, command-line flags, and the DATABASE_URL environment
// variable, in that order of precedence (later wins).
package config

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Session backends.
const (
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

// Config holds all Authgate settings.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Session  SessionConfig  `koanf:"session"`
	Auth     AuthConfig     `koanf:"auth"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
}

// ServerConfig configures the public HTTP server.
type ServerConfig struct {
	Addr          string `koanf:"addr"`
	SecureCookies bool   `koanf:"secure_cookies"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// SessionConfig configures session storage.
type SessionConfig struct {
	Backend   string        `koanf:"backend"`
	TTL       time.Duration `koanf:"ttl"`
	RedisAddr string        `koanf:"redis_addr"`
}

// AuthConfig configures the password hasher.
type AuthConfig struct {
	BcryptCost int `koanf:"bcrypt_cost"`
}

// MetricsConfig configures the observability listener.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Format string `koanf:"format"` // "json" or "text"
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server:  ServerConfig{Addr: ":8080"},
		Session: SessionConfig{Backend: SessionBackendMemory, TTL: 12 * time.Hour, RedisAddr: "127.0.0.1:6379"},
		Auth:    AuthConfig{BcryptCost: 10},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Log:     LogConfig{Format: "json"},
	}
}

// Load builds the effective configuration. path may be empty (no file);
// flags may be nil. Flag names mirror koanf key paths (e.g. server.addr)
// and only explicitly set flags override file values. DATABASE_URL, when
// present, overrides database.url last.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("operation", "merge flags").
				Wrap(err)
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").
			With("operation", "unmarshal config").
			Wrap(err)
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that have no usable zero value.
func (c *Config) Validate() error {
	switch c.Session.Backend {
	case SessionBackendMemory, SessionBackendRedis:
	default:
		return oops.Code("CONFIG_INVALID").
			With("session.backend", c.Session.Backend).
			Errorf("session backend must be %q or %q", SessionBackendMemory, SessionBackendRedis)
	}
	if c.Session.TTL <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("session.ttl", c.Session.TTL.String()).
			Errorf("session ttl must be positive")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID").
			With("log.format", c.Log.Format).
			Errorf("log format must be json or text")
	}
	return nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads the service configuration once at startup.
//
// Values are layered lowest to highest: built-in defaults, an optional YAML
// file, environment variables, then command-line flags the user set.
package config

import (
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"
)

// Defaults.
const (
	DefaultPort            = 3000
	DefaultLogFormat       = "json"
	DefaultLogLevel        = "info"
	DefaultMetricsAddr     = "127.0.0.1:9100"
	DefaultTokenTTL        = time.Hour
	DefaultBcryptCost      = 10
	DefaultConnectAttempts = 5
	DefaultShutdownTimeout = 5 * time.Second
)

const redacted = "[REDACTED]"

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server" yaml:"server"`
	Auth     AuthConfig     `koanf:"auth" yaml:"auth"`
	Database DatabaseConfig `koanf:"database" yaml:"database"`
	Log      LogConfig      `koanf:"log" yaml:"log"`
	Metrics  MetricsConfig  `koanf:"metrics" yaml:"metrics"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host" yaml:"host"`
	Port            int           `koanf:"port" yaml:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// AuthConfig configures password hashing and session tokens.
type AuthConfig struct {
	JWTSecret  string        `koanf:"jwt_secret" yaml:"jwt_secret"`
	TokenTTL   time.Duration `koanf:"token_ttl" yaml:"token_ttl"`
	BcryptCost int           `koanf:"bcrypt_cost" yaml:"bcrypt_cost"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	URL             string `koanf:"url" yaml:"url"`
	AutoMigrate     bool   `koanf:"auto_migrate" yaml:"auto_migrate"`
	ConnectAttempts int    `koanf:"connect_attempts" yaml:"connect_attempts"`
}

// LogConfig configures the default logger.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format"`
	Level  string `koanf:"level" yaml:"level"`
}

// MetricsConfig configures the observability server. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

// envKeys maps recognized environment variables to config keys.
var envKeys = map[string]string{
	"HOST":             "server.host",
	"PORT":             "server.port",
	"JWT_SECRET":       "auth.jwt_secret",
	"TOKEN_TTL":        "auth.token_ttl",
	"BCRYPT_COST":      "auth.bcrypt_cost",
	"DATABASE_URL":     "database.url",
	"AUTO_MIGRATE":     "database.auto_migrate",
	"CONNECT_ATTEMPTS": "database.connect_attempts",
	"LOG_FORMAT":       "log.format",
	"LOG_LEVEL":        "log.level",
	"METRICS_ADDR":     "metrics.addr",
}

// flagKeys maps the flags registered by RegisterFlags to config keys.
var flagKeys = map[string]string{
	"host":         "server.host",
	"port":         "server.port",
	"database-url": "database.url",
	"auto-migrate": "database.auto_migrate",
	"token-ttl":    "auth.token_ttl",
	"log-format":   "log.format",
	"log-level":    "log.level",
	"metrics-addr": "metrics.addr",
}

func defaults() map[string]any {
	return map[string]any{
		"server.host":               "",
		"server.port":               DefaultPort,
		"server.shutdown_timeout":   DefaultShutdownTimeout,
		"auth.jwt_secret":           "",
		"auth.token_ttl":            DefaultTokenTTL,
		"auth.bcrypt_cost":          DefaultBcryptCost,
		"database.url":              "",
		"database.auto_migrate":     true,
		"database.connect_attempts": DefaultConnectAttempts,
		"log.format":                DefaultLogFormat,
		"log.level":                 DefaultLogLevel,
		"metrics.addr":              DefaultMetricsAddr,
	}
}

// RegisterFlags adds the overridable settings to fs. The JWT secret has no
// flag; it comes from the file or the environment only.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("host", "", "HTTP listen host (empty = all interfaces)")
	fs.Int("port", DefaultPort, "HTTP listen port")
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.Bool("auto-migrate", true, "apply pending migrations on startup")
	fs.Duration("token-ttl", DefaultTokenTTL, "session token lifetime")
	fs.String("log-format", DefaultLogFormat, "log format (json or text)")
	fs.String("log-level", DefaultLogLevel, "log level (debug, info, warn, error)")
	fs.String("metrics-addr", DefaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty), the environment and the flags in fs that were set.
// fs may be nil.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")
	for key, val := range defaults() {
		if err := k.Set(key, val); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("key", key).Wrap(err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_INVALID").With("path", path).Wrap(err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_ENV_INVALID").Wrap(err)
	}

	if fs != nil {
		flagKey := func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		}
		if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, flagKey), nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	return &cfg, nil
}

// envKey returns "" for variables the service does not read, which the
// provider skips.
func envKey(name string) string {
	return envKeys[name]
}

// Validate reports the first setting that would prevent the server from
// starting. A missing JWT secret is always fatal.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return oops.Code("CONFIG_MISSING_SECRET").Errorf("JWT_SECRET is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return oops.Code("CONFIG_INVALID_TOKEN_TTL").With("token_ttl", c.Auth.TokenTTL.String()).
			Errorf("token TTL must be positive")
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		return oops.Code("CONFIG_INVALID_BCRYPT_COST").With("bcrypt_cost", c.Auth.BcryptCost).
			Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if err := c.ValidateDatabase(); err != nil {
		return err
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return oops.Code("CONFIG_INVALID_PORT").With("port", c.Server.Port).Errorf("port out of range")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return oops.Code("CONFIG_INVALID_SHUTDOWN_TIMEOUT").Errorf("shutdown timeout must be positive")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID_LOG_FORMAT").With("log_format", c.Log.Format).
			Errorf("log format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// ValidateDatabase checks only the settings the migrate command needs.
func (c *Config) ValidateDatabase() error {
	if c.Database.URL == "" {
		return oops.Code("CONFIG_MISSING_DATABASE_URL").Errorf("DATABASE_URL is required")
	}
	if c.Database.ConnectAttempts < 1 {
		return oops.Code("CONFIG_INVALID_CONNECT_ATTEMPTS").With("connect_attempts", c.Database.ConnectAttempts).
			Errorf("connect attempts must be at least 1")
	}
	return nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, oops.Code("CONFIG_INVALID_LOG_LEVEL").With("log_level", l.Level).Wrap(err)
	}
	return level, nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Redacted returns a copy safe to print. The secret and any database
// password are masked.
func (c *Config) Redacted() Config {
	out := *c
	if out.Auth.JWTSecret != "" {
		out.Auth.JWTSecret = redacted
	}
	out.Database.URL = redactURL(out.Database.URL)
	return out
}

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return redacted
	}
	return u.Redacted()
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

// Package config loads Warden configuration from flags, a YAML file and
// WARDEN_* environment variables.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/wardenauth/warden/internal/auth"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "WARDEN_"

// Default values.
const (
	DefaultConnectRetries = 5
	DefaultIssuer         = "warden"
	DefaultSweepInterval  = time.Hour
	DefaultMetricsAddr    = "127.0.0.1:9100"
	DefaultLogFormat      = "json"
)

// Config is the complete Warden configuration.
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Token    TokenConfig    `koanf:"token"`
	Lockout  LockoutConfig  `koanf:"lockout"`
	Session  SessionConfig  `koanf:"session"`
	Sweep    SweepConfig    `koanf:"sweep"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	URL            string `koanf:"url"`
	ConnectRetries uint64 `koanf:"connect-retries"`
}

// TokenConfig configures JWT signing.
type TokenConfig struct {
	AccessSecret  string        `koanf:"access-secret"`
	RefreshSecret string        `koanf:"refresh-secret"`
	AccessTTL     time.Duration `koanf:"access-ttl"`
	RefreshTTL    time.Duration `koanf:"refresh-ttl"`
	Issuer        string        `koanf:"issuer"`
}

// LockoutConfig configures failed-login lockout.
type LockoutConfig struct {
	Threshold int           `koanf:"threshold"`
	Duration  time.Duration `koanf:"duration"`
}

// SessionConfig configures session revocation behaviour.
type SessionConfig struct {
	RevokeOnSecretChange bool `koanf:"revoke-on-secret-change"`
}

// SweepConfig configures the expiry sweeper.
type SweepConfig struct {
	Interval time.Duration `koanf:"interval"`
}

// MetricsConfig configures the observability listener.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format"`
}

// Default returns a Config populated with every default.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{ConnectRetries: DefaultConnectRetries},
		Token: TokenConfig{
			AccessTTL:  auth.DefaultAccessTokenTTL,
			RefreshTTL: auth.DefaultRefreshTokenTTL,
			Issuer:     DefaultIssuer,
		},
		Lockout: LockoutConfig{
			Threshold: auth.DefaultLockoutThreshold,
			Duration:  auth.DefaultLockoutDuration,
		},
		Session: SessionConfig{RevokeOnSecretChange: true},
		Sweep:   SweepConfig{Interval: DefaultSweepInterval},
		Metrics: MetricsConfig{Addr: DefaultMetricsAddr},
		Log:     LogConfig{Format: DefaultLogFormat},
	}
}

// flagKeys maps CLI flag names to configuration keys.
var flagKeys = map[string]string{
	"database-url":            "database.url",
	"connect-retries":         "database.connect-retries",
	"access-ttl":              "token.access-ttl",
	"refresh-ttl":             "token.refresh-ttl",
	"issuer":                  "token.issuer",
	"lockout-threshold":       "lockout.threshold",
	"lockout-duration":        "lockout.duration",
	"revoke-on-secret-change": "session.revoke-on-secret-change",
	"sweep-interval":          "sweep.interval",
	"metrics-addr":            "metrics.addr",
	"log-format":              "log.format",
}

// RegisterFlags adds the configuration flags to fs. Secrets have no flags
// so they never appear in process listings.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("database-url", "", "PostgreSQL connection URL (default: $DATABASE_URL)")
	fs.Uint64("connect-retries", d.Database.ConnectRetries, "database ping retries at startup")
	fs.Duration("access-ttl", d.Token.AccessTTL, "access token lifetime")
	fs.Duration("refresh-ttl", d.Token.RefreshTTL, "refresh token lifetime")
	fs.String("issuer", d.Token.Issuer, "JWT issuer claim")
	fs.Int("lockout-threshold", d.Lockout.Threshold, "consecutive failures before lockout")
	fs.Duration("lockout-duration", d.Lockout.Duration, "lockout length")
	fs.Bool("revoke-on-secret-change", d.Session.RevokeOnSecretChange, "revoke sessions and refresh tokens when a secret changes")
	fs.Duration("sweep-interval", d.Sweep.Interval, "interval between expiry sweeps")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
}

// Load builds a Config. Precedence, lowest first: defaults, the YAML file at
// path (if non-empty), WARDEN_* variables, flags explicitly set on fs.
// DATABASE_URL is used when no database URL is configured.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("operation", "load config file").
				With("path", path).
				Wrap(err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "load environment").Wrap(err)
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "load flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "decode config").Wrap(err)
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DATABASE_URL")
	}
	return cfg, nil
}

// envKey maps WARDEN_TOKEN_ACCESS_SECRET to token.access-secret: the first
// underscore separates the section, the rest become dashes.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, rest, found := strings.Cut(s, "_")
	if !found {
		return section
	}
	return section + "." + strings.ReplaceAll(rest, "_", "-")
}

// ValidateDatabase checks the settings every database command needs.
func (c *Config) ValidateDatabase() error {
	if c.Database.URL == "" {
		return invalid("database.url", "database URL is required (set database.url, WARDEN_DATABASE_URL or DATABASE_URL)")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log format must be 'json' or 'text', got %q", c.Log.Format)
	}
	return nil
}

// Validate checks the full configuration needed to serve.
func (c *Config) Validate() error {
	if err := c.ValidateDatabase(); err != nil {
		return err
	}
	if len(c.Token.AccessSecret) < auth.MinSecretLength {
		return invalid("token.access-secret", "access secret must be at least %d bytes", auth.MinSecretLength)
	}
	if len(c.Token.RefreshSecret) < auth.MinSecretLength {
		return invalid("token.refresh-secret", "refresh secret must be at least %d bytes", auth.MinSecretLength)
	}
	if c.Token.AccessSecret == c.Token.RefreshSecret {
		return invalid("token.refresh-secret", "access and refresh secrets must differ")
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return invalid("token.access-ttl", "token lifetimes must be positive")
	}
	if c.Token.Issuer == "" {
		return invalid("token.issuer", "issuer is required")
	}
	if c.Lockout.Threshold < 1 {
		return invalid("lockout.threshold", "lockout threshold must be at least 1, got %d", c.Lockout.Threshold)
	}
	if c.Lockout.Duration <= 0 {
		return invalid("lockout.duration", "lockout duration must be positive")
	}
	if c.Sweep.Interval <= 0 {
		return invalid("sweep.interval", "sweep interval must be positive")
	}
	return nil
}

func invalid(key, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
}

// TokenConfig returns the token issuer settings.
func (c *Config) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		AccessSecret:  []byte(c.Token.AccessSecret),
		RefreshSecret: []byte(c.Token.RefreshSecret),
		AccessTTL:     c.Token.AccessTTL,
		RefreshTTL:    c.Token.RefreshTTL,
	}
}

// LockoutConfig returns the lockout policy settings.
func (c *Config) LockoutConfig() auth.LockoutConfig {
	return auth.LockoutConfig{
		Threshold: c.Lockout.Threshold,
		Duration:  c.Lockout.Duration,
	}
}

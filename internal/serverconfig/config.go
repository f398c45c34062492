// Package serverconfig loads the configuration of the portalauth server from
// a YAML file overlaid with PORTALAUTH_* environment variables.
package serverconfig

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/portalauth"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds all server configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Storage      StorageConfig      `yaml:"storage"`
	Auth         AuthConfig         `yaml:"auth"`
	Mail         MailConfig         `yaml:"mail"`
	Housekeeping HousekeepingConfig `yaml:"housekeeping"`
	Log          LogConfig          `yaml:"log"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// TrustProxy reads the client IP from X-Forwarded-For.
	TrustProxy bool `yaml:"trust_proxy"`
}

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// StorageConfig selects the user/token store. In memory mode Redis is
// replaced by an embedded miniredis unless RedisAddr is set.
type StorageConfig struct {
	Mode        string `yaml:"mode"`
	PostgresURL string `yaml:"postgres_url"`
	Migrate     bool   `yaml:"migrate"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisPass   string `yaml:"redis_password"`
	RedisDB     int    `yaml:"redis_db"`
}

type AuthConfig struct {
	AccessSecret         string        `yaml:"access_secret"`
	RefreshSecret        string        `yaml:"refresh_secret"`
	AccessTTL            time.Duration `yaml:"access_ttl"`
	RefreshTTL           time.Duration `yaml:"refresh_ttl"`
	RememberMeRefreshTTL time.Duration `yaml:"remember_me_refresh_ttl"`
	Issuer               string        `yaml:"issuer"`
	MaxSessionsPerUser   int           `yaml:"max_sessions_per_user"`
	MaxFailedAttempts    int           `yaml:"max_failed_attempts"`
	LockoutDuration      time.Duration `yaml:"lockout_duration"`
	TOTPIssuer           string        `yaml:"totp_issuer"`
	DependencyTimeout    time.Duration `yaml:"dependency_timeout"`
}

type MailConfig struct {
	// Provider is "log" or "postmark".
	Provider      string `yaml:"provider"`
	PostmarkToken string `yaml:"postmark_token"`
	From          string `yaml:"from"`
	FrontendURL   string `yaml:"frontend_url"`
	AppName       string `yaml:"app_name"`
	// RevealLinks makes the log mailer print verification and reset links.
	RevealLinks bool `yaml:"reveal_links"`
}

type HousekeepingConfig struct {
	Schedule string        `yaml:"schedule"`
	Timeout  time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled    bool `yaml:"enabled"`
	Histograms bool `yaml:"histograms"`
}

// Default returns the configuration used when neither file nor environment
// override a value. Secrets are left empty and must be supplied.
func Default() Config {
	engine := portalauth.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Mode:    StorageMemory,
			Migrate: true,
		},
		Auth: AuthConfig{
			AccessTTL:            engine.JWT.AccessTTL,
			RefreshTTL:           engine.JWT.RefreshTTL,
			RememberMeRefreshTTL: engine.JWT.RememberMeRefreshTTL,
			Issuer:               engine.JWT.Issuer,
			MaxSessionsPerUser:   engine.Session.MaxSessionsPerUser,
			MaxFailedAttempts:    engine.Lockout.MaxFailedAttempts,
			LockoutDuration:      engine.Lockout.Duration,
			TOTPIssuer:           engine.TOTP.Issuer,
			DependencyTimeout:    engine.Dependencies.Timeout,
		},
		Mail: MailConfig{
			Provider:    "log",
			From:        "no-reply@localhost",
			FrontendURL: "http://localhost:3000",
			AppName:     "Portal",
		},
		Housekeeping: HousekeepingConfig{
			Schedule: "@hourly",
			Timeout:  time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load reads path (if non-empty), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	env := envReader{lookup: lookup}

	env.str("PORTALAUTH_ADDR", &cfg.Server.Addr)
	env.boolean("PORTALAUTH_TRUST_PROXY", &cfg.Server.TrustProxy)
	env.duration("PORTALAUTH_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	env.str("PORTALAUTH_STORAGE_MODE", &cfg.Storage.Mode)
	env.str("PORTALAUTH_POSTGRES_URL", &cfg.Storage.PostgresURL)
	env.boolean("PORTALAUTH_MIGRATE", &cfg.Storage.Migrate)
	env.str("PORTALAUTH_REDIS_ADDR", &cfg.Storage.RedisAddr)
	env.str("PORTALAUTH_REDIS_PASSWORD", &cfg.Storage.RedisPass)
	env.integer("PORTALAUTH_REDIS_DB", &cfg.Storage.RedisDB)

	env.str("PORTALAUTH_JWT_ACCESS_SECRET", &cfg.Auth.AccessSecret)
	env.str("PORTALAUTH_JWT_REFRESH_SECRET", &cfg.Auth.RefreshSecret)
	env.duration("PORTALAUTH_ACCESS_TTL", &cfg.Auth.AccessTTL)
	env.duration("PORTALAUTH_REFRESH_TTL", &cfg.Auth.RefreshTTL)
	env.integer("PORTALAUTH_MAX_SESSIONS", &cfg.Auth.MaxSessionsPerUser)

	env.str("PORTALAUTH_MAIL_PROVIDER", &cfg.Mail.Provider)
	env.str("PORTALAUTH_POSTMARK_TOKEN", &cfg.Mail.PostmarkToken)
	env.str("PORTALAUTH_MAIL_FROM", &cfg.Mail.From)
	env.str("PORTALAUTH_FRONTEND_URL", &cfg.Mail.FrontendURL)

	env.str("PORTALAUTH_PURGE_SCHEDULE", &cfg.Housekeeping.Schedule)
	env.str("PORTALAUTH_LOG_LEVEL", &cfg.Log.Level)
	env.str("PORTALAUTH_LOG_FORMAT", &cfg.Log.Format)
	env.boolean("PORTALAUTH_METRICS_ENABLED", &cfg.Metrics.Enabled)

	return env.err
}

type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) fail(key, value string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) boolean(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) integer(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = d
	}
}

// Validate checks the server-level settings. Engine settings are validated
// again by the engine builder.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server addr is required")
	}
	if c.Auth.AccessSecret == "" || c.Auth.RefreshSecret == "" {
		return errors.New("both JWT access and refresh secrets are required")
	}
	if c.Auth.AccessSecret == c.Auth.RefreshSecret {
		return errors.New("JWT access and refresh secrets must differ")
	}

	switch c.Storage.Mode {
	case StorageMemory:
	case StoragePostgres:
		if c.Storage.PostgresURL == "" {
			return errors.New("postgres url is required for postgres storage")
		}
		if c.Storage.RedisAddr == "" {
			return errors.New("redis addr is required for postgres storage")
		}
	default:
		return fmt.Errorf("unknown storage mode %q", c.Storage.Mode)
	}

	switch c.Mail.Provider {
	case "log":
	case "postmark":
		if c.Mail.PostmarkToken == "" {
			return errors.New("postmark token is required for the postmark mail provider")
		}
	default:
		return fmt.Errorf("unknown mail provider %q", c.Mail.Provider)
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// EngineConfig maps the auth section onto a portalauth.Config.
func (c *Config) EngineConfig() portalauth.Config {
	cfg := portalauth.DefaultConfig()
	cfg.JWT.AccessSecret = []byte(c.Auth.AccessSecret)
	cfg.JWT.RefreshSecret = []byte(c.Auth.RefreshSecret)
	cfg.JWT.AccessTTL = c.Auth.AccessTTL
	cfg.JWT.RefreshTTL = c.Auth.RefreshTTL
	cfg.JWT.RememberMeRefreshTTL = c.Auth.RememberMeRefreshTTL
	cfg.JWT.Issuer = c.Auth.Issuer
	cfg.Session.MaxSessionsPerUser = c.Auth.MaxSessionsPerUser
	cfg.Lockout.MaxFailedAttempts = c.Auth.MaxFailedAttempts
	cfg.Lockout.Duration = c.Auth.LockoutDuration
	cfg.TOTP.Issuer = c.Auth.TOTPIssuer
	cfg.Dependencies.Timeout = c.Auth.DependencyTimeout
	cfg.Metrics.Enabled = c.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = c.Metrics.Enabled && c.Metrics.Histograms
	return cfg
}

// NewLogger builds the process logger described by the log section.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(c.Log.Level); err == nil {
		logger.SetLevel(level)
	}
	if c.Log.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

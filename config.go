package portalauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/portalauth/password"
)

// Config is the complete engine configuration. Start from DefaultConfig and
// override what the deployment needs; Build validates it.
type Config struct {
	JWT          JWTConfig
	Session      SessionConfig
	Password     PasswordConfig
	Lockout      LockoutConfig
	Tokens       TokensConfig
	TOTP         TOTPConfig
	Dependencies DependenciesConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds the two HS256 secrets and token lifetimes. Both secrets are
// required; there is no built-in fallback.
type JWTConfig struct {
	AccessSecret         []byte
	RefreshSecret        []byte
	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	RememberMeRefreshTTL time.Duration
	Issuer               string
	Audience             string
	Leeway               time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the Redis session registry.
type SessionConfig struct {
	SessionPrefix      string
	UserPrefix         string
	TTL                time.Duration
	RememberMeTTL      time.Duration
	MaxSessionsPerUser int
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id cost parameters and the strength policy.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool

	MinLength int
	Symbols   string
}

// LockoutConfig controls account lockout after repeated password failures.
type LockoutConfig struct {
	MaxFailedAttempts int
	Duration          time.Duration
}

// TokensConfig holds lifetimes of single-use verification and reset tokens.
type TokensConfig struct {
	EmailVerificationTTL time.Duration
	PasswordResetTTL     time.Duration
}

// TOTPConfig controls the two-factor engine and its failure throttle.
type TOTPConfig struct {
	Issuer    string
	Digits    int
	Period    int
	Algorithm string
	// Skew is the accepted drift in steps on either side of now.
	Skew int

	MaxFailures   int
	FailureWindow time.Duration
}

// DependenciesConfig bounds every store, registry and mailer call.
type DependenciesConfig struct {
	Timeout time.Duration
}

// AuditConfig controls asynchronous audit dispatch.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// CriticalEvents are never dropped, even with DropIfFull set.
	CriticalEvents []string
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults. JWT secrets are left empty and
// must be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:            15 * time.Minute,
			RefreshTTL:           7 * 24 * time.Hour,
			RememberMeRefreshTTL: 30 * 24 * time.Hour,
			Issuer:               "portalauth",
		},
		Session: SessionConfig{
			SessionPrefix:      "session:",
			UserPrefix:         "user_sessions:",
			TTL:                7 * 24 * time.Hour,
			RememberMeTTL:      30 * 24 * time.Hour,
			MaxSessionsPerUser: 5,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
			MinLength:      8,
			Symbols:        password.DefaultSymbols,
		},
		Lockout: LockoutConfig{
			MaxFailedAttempts: 5,
			Duration:          15 * time.Minute,
		},
		Tokens: TokensConfig{
			EmailVerificationTTL: 24 * time.Hour,
			PasswordResetTTL:     time.Hour,
		},
		TOTP: TOTPConfig{
			Issuer:        "Portal",
			Digits:        6,
			Period:        30,
			Algorithm:     "SHA1",
			Skew:          2,
			MaxFailures:   5,
			FailureWindow: 5 * time.Minute,
		},
		Dependencies: DependenciesConfig{
			Timeout: 3 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
			CriticalEvents: []string{
				auditEventAccountLocked,
				auditEventPasswordResetConfirm,
				auditEventTwoFactorDisabled,
				auditEventAccountDeactivated,
				auditEventLogoutAll,
			},
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	out.Audit.CriticalEvents = append([]string(nil), cfg.Audit.CriticalEvents...)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c *Config) passwordHashConfig() password.Config {
	return password.Config{
		Memory:      c.Password.Memory,
		Time:        c.Password.Time,
		Parallelism: c.Password.Parallelism,
		SaltLength:  c.Password.SaltLength,
		KeyLength:   c.Password.KeyLength,
	}
}

func (c *Config) passwordPolicy() password.Policy {
	return password.Policy{MinLength: c.Password.MinLength, Symbols: c.Password.Symbols}
}

// longestSessionTTL is the TTL given to each user's session index.
func (c *Config) longestSessionTTL() time.Duration {
	if c.Session.RememberMeTTL > c.Session.TTL {
		return c.Session.RememberMeTTL
	}
	return c.Session.TTL
}

func (c *Config) sessionTTL(rememberMe bool) time.Duration {
	if rememberMe {
		return c.Session.RememberMeTTL
	}
	return c.Session.TTL
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.AccessSecret) < 32 {
		return errors.New("JWT AccessSecret must be at least 32 bytes")
	}
	if len(c.JWT.RefreshSecret) < 32 {
		return errors.New("JWT RefreshSecret must be at least 32 bytes")
	}
	if string(c.JWT.AccessSecret) == string(c.JWT.RefreshSecret) {
		return errors.New("JWT AccessSecret and RefreshSecret must differ")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RememberMeRefreshTTL < c.JWT.RefreshTTL {
		return errors.New("JWT RememberMeRefreshTTL must be >= RefreshTTL")
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return errors.New("JWT AccessTTL must be shorter than RefreshTTL")
	}

	// Session
	if strings.TrimSpace(c.Session.SessionPrefix) == "" || strings.TrimSpace(c.Session.UserPrefix) == "" {
		return errors.New("Session prefixes must not be empty")
	}
	if c.Session.SessionPrefix == c.Session.UserPrefix {
		return errors.New("Session SessionPrefix and UserPrefix must differ")
	}
	if c.Session.TTL <= 0 || c.Session.RememberMeTTL <= 0 {
		return errors.New("Session TTL and RememberMeTTL must be > 0")
	}
	if c.Session.MaxSessionsPerUser < 1 {
		return errors.New("Session MaxSessionsPerUser must be >= 1")
	}

	// Password
	if _, err := password.NewArgon2(c.passwordHashConfig()); err != nil {
		return fmt.Errorf("Password: %w", err)
	}
	if c.Password.MinLength < 8 {
		return errors.New("Password MinLength must be >= 8")
	}
	if c.Password.Symbols == "" {
		return errors.New("Password Symbols must not be empty")
	}

	// Lockout
	if c.Lockout.MaxFailedAttempts < 1 {
		return errors.New("Lockout MaxFailedAttempts must be >= 1")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	// Tokens
	if c.Tokens.EmailVerificationTTL <= 0 || c.Tokens.PasswordResetTTL <= 0 {
		return errors.New("Tokens TTLs must be > 0")
	}

	// TOTP
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("TOTP Period must be > 0")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 4 {
		return errors.New("TOTP Skew must be between 0 and 4")
	}
	switch c.TOTP.Algorithm {
	case "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("TOTP Algorithm must be SHA1, SHA256 or SHA512")
	}
	if strings.TrimSpace(c.TOTP.Issuer) == "" {
		return errors.New("TOTP Issuer must not be empty")
	}
	if c.TOTP.MaxFailures < 1 || c.TOTP.FailureWindow <= 0 {
		return errors.New("TOTP MaxFailures and FailureWindow must be > 0")
	}

	// Dependencies
	if c.Dependencies.Timeout <= 0 {
		return errors.New("Dependencies Timeout must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}

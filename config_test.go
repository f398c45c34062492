package portalauth

import (
	"testing"
	"time"
)

func validTestConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-0123456789abcdefghijkl")
	cfg.JWT.RefreshSecret = []byte("refresh-secret-0123456789abcdefghijk")
	return cfg
}

func TestDefaultConfigNeedsSecrets(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected default config without secrets to be rejected")
	}

	cfg = validTestConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "short access secret",
			mutate:    func(c *Config) { c.JWT.AccessSecret = []byte("short") },
			wantValid: false,
		},
		{
			name:      "identical secrets",
			mutate:    func(c *Config) { c.JWT.RefreshSecret = cloneBytes(c.JWT.AccessSecret) },
			wantValid: false,
		},
		{
			name:      "remember me refresh shorter than refresh",
			mutate:    func(c *Config) { c.JWT.RememberMeRefreshTTL = time.Hour },
			wantValid: false,
		},
		{
			name:      "access ttl not shorter than refresh",
			mutate:    func(c *Config) { c.JWT.AccessTTL = c.JWT.RefreshTTL },
			wantValid: false,
		},
		{
			name:      "same session prefixes",
			mutate:    func(c *Config) { c.Session.UserPrefix = c.Session.SessionPrefix },
			wantValid: false,
		},
		{
			name:      "zero session cap",
			mutate:    func(c *Config) { c.Session.MaxSessionsPerUser = 0 },
			wantValid: false,
		},
		{
			name:      "argon2 memory too low",
			mutate:    func(c *Config) { c.Password.Memory = 1024 },
			wantValid: false,
		},
		{
			name:      "min length below eight",
			mutate:    func(c *Config) { c.Password.MinLength = 6 },
			wantValid: false,
		},
		{
			name:      "longer min length",
			mutate:    func(c *Config) { c.Password.MinLength = 12 },
			wantValid: true,
		},
		{
			name:      "zero lockout threshold",
			mutate:    func(c *Config) { c.Lockout.MaxFailedAttempts = 0 },
			wantValid: false,
		},
		{
			name:      "totp seven digits",
			mutate:    func(c *Config) { c.TOTP.Digits = 7 },
			wantValid: false,
		},
		{
			name:      "totp sha256",
			mutate:    func(c *Config) { c.TOTP.Algorithm = "SHA256" },
			wantValid: true,
		},
		{
			name:      "totp skew too wide",
			mutate:    func(c *Config) { c.TOTP.Skew = 5 },
			wantValid: false,
		},
		{
			name:      "zero dependency timeout",
			mutate:    func(c *Config) { c.Dependencies.Timeout = 0 },
			wantValid: false,
		},
		{
			name: "audit enabled without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestSessionTTLSelection(t *testing.T) {
	cfg := validTestConfig()
	if got := cfg.sessionTTL(false); got != 7*24*time.Hour {
		t.Fatalf("sessionTTL(false) = %v", got)
	}
	if got := cfg.sessionTTL(true); got != 30*24*time.Hour {
		t.Fatalf("sessionTTL(true) = %v", got)
	}
	if got := cfg.longestSessionTTL(); got != 30*24*time.Hour {
		t.Fatalf("longestSessionTTL() = %v", got)
	}
}

func TestCloneConfigCopiesSecrets(t *testing.T) {
	cfg := validTestConfig()
	clone := cloneConfig(cfg)
	clone.JWT.AccessSecret[0] = 'X'
	if cfg.JWT.AccessSecret[0] == 'X' {
		t.Fatal("clone shares secret backing array")
	}
}

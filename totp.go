package portalauth

import (
	"errors"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const totpSecretBytes = 20

var errEmptyTOTPSecret = errors.New("empty totp secret")

type totpManager struct {
	config TOTPConfig
	opts   totp.ValidateOpts
}

func newTOTPManager(cfg TOTPConfig) *totpManager {
	if cfg.Algorithm == "" {
		cfg.Algorithm = "SHA1"
	}
	return &totpManager{
		config: cfg,
		opts: totp.ValidateOpts{
			Period:    uint(cfg.Period),
			Skew:      uint(cfg.Skew),
			Digits:    otp.Digits(cfg.Digits),
			Algorithm: otpAlgorithm(cfg.Algorithm),
		},
	}
}

func otpAlgorithm(name string) otp.Algorithm {
	switch strings.ToUpper(name) {
	case "SHA256":
		return otp.AlgorithmSHA256
	case "SHA512":
		return otp.AlgorithmSHA512
	default:
		return otp.AlgorithmSHA1
	}
}

// generateSecret returns a fresh base32 secret and the otpauth URI an
// authenticator app scans to enrol accountLabel.
func (m *totpManager) generateSecret(accountLabel string) (TwoFactorSetup, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.config.Issuer,
		AccountName: accountLabel,
		Period:      m.opts.Period,
		SecretSize:  totpSecretBytes,
		Digits:      m.opts.Digits,
		Algorithm:   m.opts.Algorithm,
	})
	if err != nil {
		return TwoFactorSetup{}, err
	}
	return TwoFactorSetup{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
	}, nil
}

// verifyCode accepts code if it matches any step within ±Skew of now.
// Codes of the wrong shape are a plain mismatch; only an undecodable secret
// is an error.
func (m *totpManager) verifyCode(secretBase32, code string, now time.Time) (bool, error) {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != m.config.Digits || !isNumericString(trimmed) {
		return false, nil
	}
	secret := normalizeTOTPSecret(secretBase32)
	if secret == "" {
		return false, errEmptyTOTPSecret
	}
	return totp.ValidateCustom(trimmed, secret, now, m.opts)
}

// codeAt returns the code for the step containing t.
func (m *totpManager) codeAt(secretBase32 string, t time.Time) (string, error) {
	secret := normalizeTOTPSecret(secretBase32)
	if secret == "" {
		return "", errEmptyTOTPSecret
	}
	return totp.GenerateCodeCustom(secret, t, m.opts)
}

func normalizeTOTPSecret(secretBase32 string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(secretBase32), " ", "")
	return strings.ToUpper(strings.TrimRight(normalized, "="))
}

func isNumericString(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

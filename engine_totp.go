package portalauth

import (
	"context"
	"strings"
)

// SetupTwoFactor generates a candidate TOTP secret for a verified user. The
// secret is not stored; the caller returns it to the client, which proves
// possession through [Engine.EnableTwoFactor].
func (e *Engine) SetupTwoFactor(ctx context.Context, userID string) (*TwoFactorSetup, error) {
	if e == nil || e.users == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.users.findByID(ctx, userID)
	if err != nil {
		return nil, e.dependencyFailed("two_factor.setup", err)
	}
	if !user.IsVerified {
		return nil, ErrEmailNotVerified
	}
	if user.TwoFactorEnabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	setup, err := e.totp.generateSecret(user.Email)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventTwoFactorSetupRequested, true, user.ID, "", nil, nil)
	return &setup, nil
}

// EnableTwoFactor persists secret after code proves the client holds it.
func (e *Engine) EnableTwoFactor(ctx context.Context, userID, secret, code string) error {
	if e == nil || e.users == nil || e.totp == nil {
		return ErrEngineNotReady
	}
	secret = strings.ToUpper(strings.TrimSpace(secret))
	if secret == "" || code == "" {
		return ErrValidation
	}

	user, err := e.users.findByID(ctx, userID)
	if err != nil {
		return e.dependencyFailed("two_factor.enable", err)
	}
	if !user.IsVerified {
		return ErrEmailNotVerified
	}
	if user.TwoFactorEnabled {
		e.emitAudit(ctx, auditEventTwoFactorEnabled, false, user.ID, "", ErrTwoFactorAlreadyEnabled, nil)
		return ErrTwoFactorAlreadyEnabled
	}

	if err := e.checkTwoFactor(ctx, user.ID, secret, code); err != nil {
		e.emitAudit(ctx, auditEventTwoFactorEnabled, false, user.ID, "", err, nil)
		return e.dependencyFailed("two_factor.enable", err)
	}

	if err := e.users.setTwoFactor(ctx, user.ID, true, secret); err != nil {
		return e.dependencyFailed("two_factor.enable", err)
	}

	e.metricInc(MetricTwoFactorEnabled)
	e.emitAudit(ctx, auditEventTwoFactorEnabled, true, user.ID, "", nil, nil)
	return nil
}

// DisableTwoFactor clears the TOTP secret after re-checking the password.
func (e *Engine) DisableTwoFactor(ctx context.Context, userID, rawPassword string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}
	if rawPassword == "" {
		return ErrValidation
	}

	user, err := e.users.findByID(ctx, userID)
	if err != nil {
		return e.dependencyFailed("two_factor.disable", err)
	}
	if !user.IsVerified {
		return ErrEmailNotVerified
	}
	if !user.TwoFactorEnabled {
		e.emitAudit(ctx, auditEventTwoFactorDisabled, false, user.ID, "", ErrTwoFactorNotEnabled, nil)
		return ErrTwoFactorNotEnabled
	}

	ok, err := e.users.verifyPassword(user, rawPassword)
	if err != nil || !ok {
		e.emitAudit(ctx, auditEventTwoFactorDisabled, false, user.ID, "", ErrInvalidPassword, nil)
		return ErrInvalidPassword
	}

	if err := e.users.setTwoFactor(ctx, user.ID, false, ""); err != nil {
		return e.dependencyFailed("two_factor.disable", err)
	}

	e.metricInc(MetricTwoFactorDisabled)
	e.emitAudit(ctx, auditEventTwoFactorDisabled, true, user.ID, "", nil, nil)
	return nil
}

package portalauth

import (
	"context"
	"errors"
	"fmt"
)

// Register creates an unverified account and sends a verification email.
//
// The duplicate-email check runs before the password policy so an existing
// address is reported as such regardless of the submitted password. A failure
// to issue or deliver the verification token does not fail the registration;
// the user can ask for a new one through [Engine.ResendVerification].
func (e *Engine) Register(ctx context.Context, email, rawPassword string, profile Profile) (*PublicProfile, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if email == "" || rawPassword == "" {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", ErrValidation, nil)
		return nil, ErrValidation
	}

	existing, err := e.users.findByEmail(ctx, email)
	switch {
	case err == nil && existing != nil:
		e.metricInc(MetricRegisterDuplicate)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", ErrDuplicateEmail, nil)
		return nil, ErrDuplicateEmail
	case err != nil && !errors.Is(err, ErrUserNotFound):
		return nil, e.dependencyFailed("register.lookup", err)
	}

	if err := e.policy.Check(rawPassword); err != nil {
		e.metricInc(MetricRegisterWeakPassword)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", ErrWeakPassword, nil)
		return nil, fmt.Errorf("%w: %w", ErrWeakPassword, err)
	}

	user, err := e.users.create(ctx, email, rawPassword, profile)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			e.metricInc(MetricRegisterDuplicate)
		}
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", err, nil)
		return nil, e.dependencyFailed("register.create", err)
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, user.ID, "", nil, nil)

	e.sendVerification(ctx, user)

	public := toPublicProfile(user)
	return &public, nil
}

// sendVerification issues a fresh verification token for user and mails it.
// Errors are logged only.
func (e *Engine) sendVerification(ctx context.Context, user *User) {
	tok, err := e.tokens.issue(ctx, user.ID, TokenEmailVerification, e.config.Tokens.EmailVerificationTTL)
	if err != nil {
		e.logger.WithField("user_id", user.ID).WithError(e.dependencyFailed("verification.issue", err)).
			Error("failed to issue email verification token")
		return
	}

	e.metricInc(MetricEmailVerificationRequest)
	e.emitAudit(ctx, auditEventEmailVerificationRequest, true, user.ID, "", nil, nil)

	e.sendMail(ctx, "verification", user.Email, func(ctx context.Context) error {
		return e.mailer.SendVerificationEmail(ctx, user.Email, tok.Token)
	})
}

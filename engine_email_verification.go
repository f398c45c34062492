package portalauth

import (
	"context"
	"errors"
)

// VerifyEmail consumes an email-verification token and marks its owner
// verified. The token is claimed before the user is updated, so two
// concurrent calls with the same token cannot both succeed.
func (e *Engine) VerifyEmail(ctx context.Context, token string) error {
	if e == nil || e.tokens == nil {
		return ErrEngineNotReady
	}

	tok, err := e.tokens.resolve(ctx, token, TokenEmailVerification)
	if err != nil {
		return e.verifyEmailFailed(ctx, "", err)
	}

	claimed, err := e.tokens.consume(ctx, tok.ID)
	if err != nil {
		return e.verifyEmailFailed(ctx, tok.UserID, e.dependencyFailed("verify_email.consume", err))
	}
	if !claimed {
		return e.verifyEmailFailed(ctx, tok.UserID, ErrInvalidOrExpiredToken)
	}

	if err := e.users.setEmailVerified(ctx, tok.UserID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return e.verifyEmailFailed(ctx, tok.UserID, ErrInvalidOrExpiredToken)
		}
		return e.verifyEmailFailed(ctx, tok.UserID, e.dependencyFailed("verify_email.mark", err))
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, auditEventEmailVerificationConfirm, true, tok.UserID, "", nil, nil)
	return nil
}

func (e *Engine) verifyEmailFailed(ctx context.Context, userID string, err error) error {
	e.metricInc(MetricEmailVerificationFailure)
	e.emitAudit(ctx, auditEventEmailVerificationConfirm, false, userID, "", err, nil)
	return err
}

// ResendVerification sends a new verification email when email belongs to an
// unverified account. It succeeds silently for unknown or already verified
// addresses.
func (e *Engine) ResendVerification(ctx context.Context, email string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if email == "" {
		return ErrValidation
	}

	user, err := e.users.findByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return e.dependencyFailed("resend_verification.lookup", err)
	}
	if user.IsVerified || !user.IsActive {
		return nil
	}

	e.sendVerification(ctx, user)
	return nil
}

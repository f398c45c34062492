package portalauth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// RequestPasswordReset mails a reset token when email belongs to a known
// account. Unknown addresses succeed silently.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil || e.users == nil || e.tokens == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if email == "" {
		return ErrValidation
	}

	user, err := e.users.findByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.emitAudit(ctx, auditEventPasswordResetRequest, true, "", "", nil, func() map[string]string {
				return map[string]string{"known": "false"}
			})
			return nil
		}
		return e.dependencyFailed("password_reset.lookup", err)
	}

	tok, err := e.tokens.issue(ctx, user.ID, TokenPasswordReset, e.config.Tokens.PasswordResetTTL)
	if err != nil {
		return e.dependencyFailed("password_reset.issue", err)
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, user.ID, "", nil, nil)

	e.sendMail(ctx, "password_reset", user.Email, func(ctx context.Context) error {
		return e.mailer.SendPasswordResetEmail(ctx, user.Email, tok.Token)
	})
	return nil
}

// ResetPassword sets a new password using a reset token and terminates every
// session of the account. A password that fails the policy leaves the token
// usable.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if e == nil || e.tokens == nil {
		return ErrEngineNotReady
	}

	tok, err := e.tokens.resolve(ctx, token, TokenPasswordReset)
	if err != nil {
		return e.resetFailed(ctx, "", err)
	}

	if err := e.policy.Check(newPassword); err != nil {
		return e.resetFailed(ctx, tok.UserID, fmt.Errorf("%w: %w", ErrWeakPassword, err))
	}

	claimed, err := e.tokens.consume(ctx, tok.ID)
	if err != nil {
		return e.resetFailed(ctx, tok.UserID, e.dependencyFailed("password_reset.consume", err))
	}
	if !claimed {
		return e.resetFailed(ctx, tok.UserID, ErrInvalidOrExpiredToken)
	}

	if err := e.users.setPasswordHash(ctx, tok.UserID, newPassword); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return e.resetFailed(ctx, tok.UserID, ErrInvalidOrExpiredToken)
		}
		return e.resetFailed(ctx, tok.UserID, e.dependencyFailed("password_reset.update", err))
	}

	terminated, err := e.terminateAll(ctx, tok.UserID)
	if err != nil {
		return e.resetFailed(ctx, tok.UserID, e.dependencyFailed("password_reset.terminate", err))
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, tok.UserID, "", nil, func() map[string]string {
		return map[string]string{"sessions_terminated": strconv.Itoa(terminated)}
	})
	return nil
}

func (e *Engine) resetFailed(ctx context.Context, userID string, err error) error {
	e.metricInc(MetricPasswordResetFailure)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, false, userID, "", err, nil)
	return err
}

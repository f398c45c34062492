package portalauth

import (
	"context"
	"errors"
	"strconv"
)

// Refresh exchanges a refresh token for a new token pair on the same session.
//
// Every verification failure, including a revoked or expired session and an
// inactive user, collapses to ErrInvalidRefreshToken. Dependency errors are
// returned as such.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.jwtManager == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParseRefresh(refreshToken)
	if err != nil {
		return nil, e.refreshFailed(ctx, "", "", "malformed")
	}

	sess, err := e.loadSession(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, e.refreshFailed(ctx, claims.UserID, claims.SessionID, "session_missing")
		}
		return nil, e.dependencyFailed("refresh.session", err)
	}
	if sess.UserID != claims.UserID {
		return nil, e.refreshFailed(ctx, claims.UserID, claims.SessionID, "subject_mismatch")
	}

	user, err := e.users.findByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, e.refreshFailed(ctx, claims.UserID, claims.SessionID, "user_missing")
		}
		return nil, e.dependencyFailed("refresh.user", err)
	}
	if !user.IsActive {
		return nil, e.refreshFailed(ctx, user.ID, sess.SessionID, "user_inactive")
	}

	if err := e.touchSession(ctx, sess); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, e.refreshFailed(ctx, user.ID, sess.SessionID, "session_missing")
		}
		return nil, e.dependencyFailed("refresh.touch", err)
	}

	pair, err := e.issueTokenPair(user.ID, user.Email, sess.SessionID, sess.RememberMe)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, user.ID, sess.SessionID, nil, nil)
	return pair, nil
}

func (e *Engine) refreshFailed(ctx context.Context, userID, sessionID, reason string) error {
	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, auditEventRefreshInvalid, false, userID, sessionID, ErrInvalidRefreshToken, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return ErrInvalidRefreshToken
}

// Logout ends one session. Ending an absent session succeeds.
func (e *Engine) Logout(ctx context.Context, userID, sessionID string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if userID == "" || sessionID == "" {
		return ErrValidation
	}

	err := e.deps.run(ctx, func(ctx context.Context) error {
		return e.sessions.Delete(ctx, userID, sessionID)
	})
	if err != nil {
		return e.dependencyFailed("logout", err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, userID, sessionID, nil, nil)
	return nil
}

// LogoutAll ends every session of userID and reports how many were indexed.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}
	if userID == "" {
		return 0, ErrValidation
	}

	n, err := e.terminateAll(ctx, userID)
	if err != nil {
		return 0, e.dependencyFailed("logout_all", err)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", nil, func() map[string]string {
		return map[string]string{"sessions": strconv.Itoa(n)}
	})
	return n, nil
}

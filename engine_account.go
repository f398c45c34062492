package portalauth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/portalauth/jwt"
)

// Authenticate resolves a bearer access token to a [Principal]. The token's
// session must still exist and its user must be active; the session's last
// activity and TTL are refreshed on success. Any unusable token yields
// ErrUnauthorized; dependency failures are returned as such.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	if e == nil || e.jwtManager == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	started := time.Now()
	defer e.metricObserve(MetricAuthenticateLatency, started)

	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		return nil, ErrUnauthorized
	}

	sess, err := e.loadSession(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, e.dependencyFailed("authenticate.session", err)
	}
	if sess.UserID != claims.UserID {
		return nil, ErrUnauthorized
	}

	user, err := e.users.findByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, e.dependencyFailed("authenticate.user", err)
	}
	if !user.IsActive {
		return nil, ErrUnauthorized
	}

	if err := e.touchSession(ctx, sess); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, e.dependencyFailed("authenticate.touch", err)
	}

	return &Principal{
		UserID:     user.ID,
		Email:      user.Email,
		SessionID:  sess.SessionID,
		IsVerified: user.IsVerified,
	}, nil
}

// ValidateAccessToken checks only the access token's signature, expiry and
// kind, without touching the session registry.
func (e *Engine) ValidateAccessToken(accessToken string) (*jwt.Claims, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		return nil, ErrUnauthorized
	}
	return claims, nil
}

// Profile returns the public view of userID.
func (e *Engine) Profile(ctx context.Context, userID string) (*PublicProfile, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}
	profile, err := e.users.publicProfile(ctx, userID)
	if err != nil {
		return nil, e.dependencyFailed("profile", err)
	}
	return profile, nil
}

// DeactivateUser marks an account inactive and ends all of its sessions.
func (e *Engine) DeactivateUser(ctx context.Context, userID string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}

	if err := e.users.deactivate(ctx, userID); err != nil {
		return e.dependencyFailed("deactivate", err)
	}
	if _, err := e.terminateAll(ctx, userID); err != nil {
		return e.dependencyFailed("deactivate.terminate", err)
	}

	e.metricInc(MetricAccountDeactivated)
	e.emitAudit(ctx, auditEventAccountDeactivated, true, userID, "", nil, nil)
	return nil
}

// ListSessions returns the ids of userID's sessions, oldest first.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]string, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	var ids []string
	err := e.deps.run(ctx, func(ctx context.Context) error {
		var err error
		ids, err = e.sessions.ListForUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, e.dependencyFailed("list_sessions", err)
	}
	return ids, nil
}

// PurgeExpiredTokens deletes expired verification and reset tokens.
func (e *Engine) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	if e == nil || e.tokens == nil {
		return 0, ErrEngineNotReady
	}

	n, err := e.tokens.purgeExpired(ctx)
	if err != nil {
		return 0, e.dependencyFailed("purge_tokens", err)
	}

	if n > 0 {
		e.metrics.Add(MetricTokensPurged, uint64(n))
	}
	e.emitAudit(ctx, auditEventExpiredTokensPurged, true, "", "", nil, func() map[string]string {
		return map[string]string{"count": strconv.FormatInt(n, 10)}
	})
	return n, nil
}

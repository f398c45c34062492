package portalauth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/portalauth/internal/rate"
	"github.com/sirupsen/logrus"
)

// LoginRequest carries the credentials submitted to [Engine.Login].
type LoginRequest struct {
	Email         string
	Password      string
	RememberMe    bool
	TwoFactorCode string
}

// Login authenticates a user and opens a session.
//
// Unknown emails and wrong passwords both fail with ErrInvalidCredentials.
// For users with two-factor enabled and no code supplied, Login returns a
// result with RequiresTwoFactor set and issues nothing.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if e == nil || e.users == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	started := time.Now()
	defer e.metricObserve(MetricLoginLatency, started)

	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrValidation, nil)
		return nil, ErrValidation
	}

	user, err := e.users.findByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_, _ = e.users.hasher.Verify(req.Password, e.dummyHash)
			return nil, e.loginFailed(ctx, "", ErrInvalidCredentials)
		}
		return nil, e.dependencyFailed("login.lookup", err)
	}

	if e.users.isLocked(user) {
		return nil, e.loginFailed(ctx, user.ID, ErrAccountLocked)
	}
	if !user.IsActive {
		return nil, e.loginFailed(ctx, user.ID, ErrAccountDeactivated)
	}

	ok, err := e.users.verifyPassword(user, req.Password)
	if err != nil {
		e.logger.WithField("user_id", user.ID).WithError(err).Error("stored password hash unusable")
		return nil, e.loginFailed(ctx, user.ID, ErrInvalidCredentials)
	}
	if !ok {
		attempts, locked, err := e.users.recordFailedAttempt(ctx, user.ID)
		if err != nil {
			return nil, e.dependencyFailed("login.record_failure", err)
		}
		if locked {
			e.metricInc(MetricAccountLocked)
			e.emitAudit(ctx, auditEventAccountLocked, true, user.ID, "", nil, func() map[string]string {
				return map[string]string{"attempts": strconv.Itoa(attempts)}
			})
		}
		return nil, e.loginFailed(ctx, user.ID, ErrInvalidCredentials)
	}

	if user.TwoFactorEnabled {
		if req.TwoFactorCode == "" {
			e.metricInc(MetricLoginTwoFactorRequired)
			e.emitAudit(ctx, auditEventLoginTwoFactorRequired, true, user.ID, "", nil, nil)
			return &LoginResult{RequiresTwoFactor: true}, nil
		}
		if err := e.checkTwoFactor(ctx, user.ID, user.TwoFactorSecret, req.TwoFactorCode); err != nil {
			if errors.Is(err, ErrInvalidTwoFactorCode) || errors.Is(err, ErrTwoFactorRateLimited) {
				return nil, e.loginFailed(ctx, user.ID, err)
			}
			return nil, e.dependencyFailed("login.two_factor", err)
		}
	}

	if err := e.users.recordSuccessfulLogin(ctx, user.ID); err != nil {
		return nil, e.dependencyFailed("login.record_success", err)
	}
	if e.config.Password.UpgradeOnLogin {
		if upgraded, err := e.users.upgradeHash(ctx, user, req.Password); err != nil {
			e.logger.WithField("user_id", user.ID).WithError(err).Warn("password hash upgrade failed")
		} else if upgraded {
			e.logger.WithField("user_id", user.ID).Info("password hash upgraded")
		}
	}

	sess, err := e.createSession(ctx, user, req.RememberMe)
	if err != nil {
		return nil, e.dependencyFailed("login.session", err)
	}

	tokens, err := e.issueTokenPair(user.ID, user.Email, sess.SessionID, req.RememberMe)
	if err != nil {
		_ = e.deps.run(ctx, func(ctx context.Context) error {
			return e.sessions.Delete(ctx, user.ID, sess.SessionID)
		})
		return nil, err
	}

	loginAt := sess.CreatedAt
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLogin = &loginAt
	profile := toPublicProfile(user)

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, sess.SessionID, nil, func() map[string]string {
		if req.RememberMe {
			return map[string]string{"remember_me": "true"}
		}
		return nil
	})

	ip, agent := clientIPFromContext(ctx), userAgentFromContext(ctx)
	e.sendMailAsync(ctx, "login_notification", user.Email, func(ctx context.Context) error {
		return e.mailer.SendLoginNotification(ctx, user.Email, ip, agent)
	})

	return &LoginResult{
		User:      &profile,
		Tokens:    tokens,
		SessionID: sess.SessionID,
	}, nil
}

func (e *Engine) loginFailed(ctx context.Context, userID string, err error) error {
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, "", err, nil)
	if e.logger != nil {
		e.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"reason":  string(auditErrorCode(err)),
		}).Debug("login rejected")
	}
	return err
}

// checkTwoFactor verifies code against secret under the per-user failure
// throttle. Successful verification clears the throttle.
func (e *Engine) checkTwoFactor(ctx context.Context, userID, secret, code string) error {
	rule := e.totpRule()

	err := e.deps.run(ctx, func(ctx context.Context) error {
		return e.limiter.Check(ctx, rule, userID)
	}, rate.ErrRateLimited)
	if errors.Is(err, rate.ErrRateLimited) {
		e.metricInc(MetricTOTPRateLimited)
		e.emitAudit(ctx, auditEventTwoFactorThrottleExceeded, false, userID, "", ErrTwoFactorRateLimited, nil)
		return ErrTwoFactorRateLimited
	}
	if err != nil {
		return err
	}

	ok, verr := e.totp.verifyCode(secret, code, e.now())
	if verr == nil && ok {
		if err := e.deps.run(ctx, func(ctx context.Context) error {
			return e.limiter.Reset(ctx, rule, userID)
		}); err != nil {
			e.logger.WithField("user_id", userID).WithError(err).Warn("failed to reset two-factor throttle")
		}
		return nil
	}

	e.metricInc(MetricTOTPFailure)
	err = e.deps.run(ctx, func(ctx context.Context) error {
		return e.limiter.RecordFailure(ctx, rule, userID)
	}, rate.ErrRateLimited)
	if err != nil && !errors.Is(err, rate.ErrRateLimited) {
		return err
	}
	return ErrInvalidTwoFactorCode
}

package portalauth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrEthical07/portalauth/internal"
	internalaudit "github.com/MrEthical07/portalauth/internal/audit"
	"github.com/MrEthical07/portalauth/internal/rate"
	"github.com/MrEthical07/portalauth/jwt"
	"github.com/MrEthical07/portalauth/password"
	"github.com/MrEthical07/portalauth/session"
	"github.com/sirupsen/logrus"
)

// Engine orchestrates registration, login, session lifecycle, email
// verification, password reset and two-factor enrolment.
//
// An Engine is built once by [Builder.Build] and is safe for concurrent use.
type Engine struct {
	config     Config
	users      *credentialStore
	tokens     *tokenIssuer
	sessions   *session.Store
	limiter    *rate.Limiter
	totp       *totpManager
	jwtManager *jwt.Manager
	policy     password.Policy
	mailer     Mailer
	audit      *internalaudit.Dispatcher
	metrics    *Metrics
	logger     logrus.FieldLogger
	deps       dependencyRunner
	dummyHash  string
	now        func() time.Time

	background sync.WaitGroup
}

// Close waits for pending login notifications and flushes the audit
// dispatcher. The engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.background.Wait()
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditDroppedByEvent breaks AuditDropped down by event type.
func (e *Engine) AuditDroppedByEvent() map[string]uint64 {
	if e == nil || e.audit == nil {
		return map[string]uint64{}
	}
	return e.audit.DroppedByEvent()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, started time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, time.Since(started))
}

// dependencyFailed counts and logs an infrastructure failure before it is
// returned to the caller.
func (e *Engine) dependencyFailed(op string, err error) error {
	if isDependencyError(err) {
		e.metricInc(MetricDependencyFailure)
		e.logger.WithField("op", op).WithError(err).Error("dependency call failed")
	}
	return err
}

func (e *Engine) totpRule() rate.Rule {
	return rate.Rule{
		Name:   "totp",
		Limit:  e.config.TOTP.MaxFailures,
		Window: e.config.TOTP.FailureWindow,
	}
}

// createSession registers a new session for user, evicting the oldest ones
// first so the per-user cap holds once the new one is added.
func (e *Engine) createSession(ctx context.Context, user *User, rememberMe bool) (*session.Session, error) {
	sid, err := newSessionID()
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	sess := &session.Session{
		SessionID:    sid,
		UserID:       user.ID,
		Email:        user.Email,
		RememberMe:   rememberMe,
		CreatedAt:    now,
		LastActivity: now,
	}

	var evicted []string
	if limit := e.config.Session.MaxSessionsPerUser; limit > 0 {
		err = e.deps.run(ctx, func(ctx context.Context) error {
			var err error
			evicted, err = e.sessions.EnforceMax(ctx, user.ID, limit)
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	for _, id := range evicted {
		e.metricInc(MetricSessionEvicted)
		e.emitAudit(ctx, auditEventSessionEvicted, true, user.ID, id, nil, nil)
	}

	err = e.deps.run(ctx, func(ctx context.Context) error {
		return e.sessions.Save(ctx, sess, e.config.sessionTTL(rememberMe))
	})
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricSessionCreated)
	return sess, nil
}

// loadSession fetches a session, mapping a missing key to ErrSessionNotFound.
func (e *Engine) loadSession(ctx context.Context, sessionID string) (*session.Session, error) {
	var sess *session.Session
	err := e.deps.run(ctx, func(ctx context.Context) error {
		var err error
		sess, err = e.sessions.Get(ctx, sessionID)
		return err
	}, session.ErrNotFound, session.ErrCorrupt)
	if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrCorrupt) {
		return nil, ErrSessionNotFound
	}
	return sess, err
}

// touchSession bumps last activity and renews the session TTL. It returns
// ErrSessionNotFound when the session vanished in the meantime.
func (e *Engine) touchSession(ctx context.Context, sess *session.Session) error {
	var touched bool
	err := e.deps.run(ctx, func(ctx context.Context) error {
		var err error
		touched, err = e.sessions.Touch(ctx, sess, e.now().UTC(), e.config.sessionTTL(sess.RememberMe))
		return err
	})
	if err != nil {
		return err
	}
	if !touched {
		return ErrSessionNotFound
	}
	return nil
}

func (e *Engine) terminateAll(ctx context.Context, userID string) (int, error) {
	var n int
	err := e.deps.run(ctx, func(ctx context.Context) error {
		var err error
		n, err = e.sessions.TerminateAll(ctx, userID)
		return err
	})
	return n, err
}

func (e *Engine) issueTokenPair(userID, email, sessionID string, rememberMe bool) (*TokenPair, error) {
	sub := jwt.Subject{UserID: userID, Email: email, SessionID: sessionID}

	access, err := e.jwtManager.CreateAccess(sub)
	if err != nil {
		return nil, err
	}
	refresh, err := e.jwtManager.CreateRefresh(sub, rememberMe)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func newSessionID() (string, error) {
	id, err := internal.NewSessionID()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

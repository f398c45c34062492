package portalauth

import (
	"context"

	"github.com/sirupsen/logrus"
)

// logOnlyMailer is used when no Mailer is configured.
type logOnlyMailer struct {
	logger logrus.FieldLogger
}

func (m logOnlyMailer) SendVerificationEmail(_ context.Context, to, _ string) error {
	m.logger.WithField("email", to).Warn("no mailer configured, verification email not sent")
	return nil
}

func (m logOnlyMailer) SendPasswordResetEmail(_ context.Context, to, _ string) error {
	m.logger.WithField("email", to).Warn("no mailer configured, password reset email not sent")
	return nil
}

func (m logOnlyMailer) SendLoginNotification(_ context.Context, to, _, _ string) error {
	m.logger.WithField("email", to).Debug("no mailer configured, login notification not sent")
	return nil
}

// sendMail delivers one message under the dependency timeout. Failures are
// logged and counted, never returned.
func (e *Engine) sendMail(ctx context.Context, kind, to string, send func(context.Context) error) {
	err := e.deps.run(ctx, send)
	if err == nil {
		return
	}
	e.metricInc(MetricMailFailure)
	e.logger.WithFields(logrus.Fields{
		"email": to,
		"mail":  kind,
	}).WithError(err).Error("failed to send email")
}

// sendMailAsync detaches from the request so cancellation of ctx does not
// abort delivery. Close waits for pending sends.
func (e *Engine) sendMailAsync(ctx context.Context, kind, to string, send func(context.Context) error) {
	detached := context.WithoutCancel(ctx)
	e.background.Add(1)
	go func() {
		defer e.background.Done()
		e.sendMail(detached, kind, to, send)
	}()
}

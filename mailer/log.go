package mailer

import (
	"context"

	"github.com/MrEthical07/portalauth"
	"github.com/sirupsen/logrus"
)

// Log writes emails to a logger instead of delivering them. Links carry
// bearer tokens, so they are only included when RevealLinks is set; use that
// in local development only.
type Log struct {
	logger      logrus.FieldLogger
	tmpl        templates
	RevealLinks bool
}

var _ portalauth.Mailer = (*Log)(nil)

func NewLog(logger logrus.FieldLogger, frontendURL string) *Log {
	return &Log{
		logger: logger,
		tmpl:   templates{appName: "Portal", frontendURL: frontendURL},
	}
}

func (l *Log) SendVerificationEmail(_ context.Context, to, token string) error {
	l.write(to, "email_verification", l.tmpl.verification(token), l.tmpl.link("/verify-email", token))
	return nil
}

func (l *Log) SendPasswordResetEmail(_ context.Context, to, token string) error {
	l.write(to, "password_reset", l.tmpl.passwordReset(token), l.tmpl.link("/reset-password", token))
	return nil
}

func (l *Log) SendLoginNotification(_ context.Context, to, ip, userAgent string) error {
	l.write(to, "login_notification", l.tmpl.loginNotification(ip, userAgent), "")
	return nil
}

func (l *Log) write(to, kind string, msg message, link string) {
	entry := l.logger.WithFields(logrus.Fields{
		"to":      to,
		"kind":    kind,
		"subject": msg.subject,
	})
	if l.RevealLinks && link != "" {
		entry = entry.WithField("link", link)
	}
	entry.Info("email not delivered (log mailer)")
}

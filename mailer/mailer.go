// Package mailer provides portalauth.Mailer implementations: a Postmark
// HTTP client for production and a logrus-backed mailer for development.
package mailer

import (
	"fmt"
	"net/url"
	"strings"
)

type message struct {
	subject string
	text    string
	html    string
}

// templates renders the three account emails around a frontend base URL.
type templates struct {
	appName     string
	frontendURL string
}

func (t templates) link(path, token string) string {
	return strings.TrimRight(t.frontendURL, "/") + path + "?token=" + url.QueryEscape(token)
}

func (t templates) verification(token string) message {
	link := t.link("/verify-email", token)
	return message{
		subject: "Verify Your Email Address",
		text:    fmt.Sprintf("Welcome to %s!\n\nPlease verify your email address by opening the link below:\n\n%s\n\nThis link expires in 24 hours.", t.appName, link),
		html: fmt.Sprintf(
			`<p>Welcome to %s!</p><p>Please verify your email address:</p><p><a href="%s">Verify Email</a></p><p>This link expires in 24 hours.</p>`,
			t.appName, link,
		),
	}
}

func (t templates) passwordReset(token string) message {
	link := t.link("/reset-password", token)
	return message{
		subject: "Password Reset Request",
		text:    fmt.Sprintf("You requested a password reset.\n\nOpen the link below to choose a new password:\n\n%s\n\nThis link expires in 1 hour. If you did not request it, ignore this email.", link),
		html: fmt.Sprintf(
			`<p>You requested a password reset.</p><p><a href="%s">Reset Password</a></p><p>This link expires in 1 hour. If you did not request it, ignore this email.</p>`,
			link,
		),
	}
}

func (t templates) loginNotification(ip, userAgent string) message {
	if ip == "" {
		ip = "unknown"
	}
	if userAgent == "" {
		userAgent = "unknown"
	}
	return message{
		subject: "New Login Detected",
		text:    fmt.Sprintf("A new sign-in to your %s account was detected.\n\nIP address: %s\nDevice: %s\n\nIf this wasn't you, reset your password immediately.", t.appName, ip, userAgent),
		html: fmt.Sprintf(
			`<p>A new sign-in to your %s account was detected.</p><ul><li>IP address: %s</li><li>Device: %s</li></ul><p>If this wasn't you, reset your password immediately.</p>`,
			t.appName, htmlEscape(ip), htmlEscape(userAgent),
		),
	}
}

var htmlReplacer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&#34;", "'", "&#39;")

func htmlEscape(s string) string {
	return htmlReplacer.Replace(s)
}

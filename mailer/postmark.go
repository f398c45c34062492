package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/MrEthical07/portalauth"
)

const defaultPostmarkEndpoint = "https://api.postmarkapp.com/email"

// ErrNotConfigured is returned when the Postmark server token is empty.
var ErrNotConfigured = errors.New("email client not configured: missing server token")

// Postmark sends account emails through the Postmark HTTP API.
type Postmark struct {
	serverToken string
	fromEmail   string
	endpoint    string
	httpClient  *http.Client
	tmpl        templates
}

type Option func(*Postmark)

func WithHTTPClient(c *http.Client) Option {
	return func(p *Postmark) {
		p.httpClient = c
	}
}

// WithEndpoint overrides the Postmark API URL.
func WithEndpoint(endpoint string) Option {
	return func(p *Postmark) {
		p.endpoint = endpoint
	}
}

// WithAppName sets the product name used in email bodies.
func WithAppName(name string) Option {
	return func(p *Postmark) {
		p.tmpl.appName = name
	}
}

// NewPostmark returns a Postmark mailer. Links in emails point at frontendURL.
func NewPostmark(serverToken, fromEmail, frontendURL string, opts ...Option) *Postmark {
	p := &Postmark{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		endpoint:    defaultPostmarkEndpoint,
		httpClient:  http.DefaultClient,
		tmpl:        templates{appName: "Portal", frontendURL: frontendURL},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ portalauth.Mailer = (*Postmark)(nil)

// Configured returns true if the server token is set.
func (p *Postmark) Configured() bool {
	return p.serverToken != ""
}

func (p *Postmark) SendVerificationEmail(ctx context.Context, to, token string) error {
	return p.send(ctx, to, p.tmpl.verification(token))
}

func (p *Postmark) SendPasswordResetEmail(ctx context.Context, to, token string) error {
	return p.send(ctx, to, p.tmpl.passwordReset(token))
}

func (p *Postmark) SendLoginNotification(ctx context.Context, to, ip, userAgent string) error {
	return p.send(ctx, to, p.tmpl.loginNotification(ip, userAgent))
}

type postmarkEmail struct {
	From          string `json:"From"`
	To            string `json:"To"`
	Subject       string `json:"Subject"`
	HtmlBody      string `json:"HtmlBody"`
	TextBody      string `json:"TextBody"`
	MessageStream string `json:"MessageStream"`
}

func (p *Postmark) send(ctx context.Context, to string, msg message) error {
	if !p.Configured() {
		return ErrNotConfigured
	}

	body, err := json.Marshal(postmarkEmail{
		From:          p.fromEmail,
		To:            to,
		Subject:       msg.subject,
		HtmlBody:      msg.html,
		TextBody:      msg.text,
		MessageStream: "outbound",
	})
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", p.serverToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}

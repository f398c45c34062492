package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind distinguishes access tokens from refresh tokens inside the claims.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

const minKeyLength = 32

var (
	// ErrWrongKind is returned when a token of the other kind is presented.
	ErrWrongKind = errors.New("jwt: unexpected token kind")
	// ErrMissingClaims is returned when a verified token lacks a required claim.
	ErrMissingClaims = errors.New("jwt: missing required claims")
)

// Config holds signing keys and lifetimes.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	AccessKey            []byte
	RefreshKey           []byte
	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	RememberMeRefreshTTL time.Duration
	Issuer               string
	Audience             string
	Leeway               time.Duration
}

// Manager signs and parses HS256 tokens. It is safe for concurrent use.
type Manager struct {
	config Config
	now    func() time.Time
}

// Claims is the payload carried by both token kinds.
type Claims struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	SessionID string `json:"sessionId"`
	Kind      Kind   `json:"kind"`
	jwt.RegisteredClaims
}

// Subject identifies whom a token pair is issued to.
type Subject struct {
	UserID    string
	Email     string
	SessionID string
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	switch {
	case cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0:
		return nil, errors.New("invalid TTL configuration")
	case cfg.RememberMeRefreshTTL < cfg.RefreshTTL:
		return nil, errors.New("remember-me refresh TTL must be >= refresh TTL")
	case cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute:
		return nil, errors.New("invalid leeway configuration")
	case len(cfg.AccessKey) < minKeyLength:
		return nil, fmt.Errorf("access key must be at least %d bytes", minKeyLength)
	case len(cfg.RefreshKey) < minKeyLength:
		return nil, fmt.Errorf("refresh key must be at least %d bytes", minKeyLength)
	case string(cfg.AccessKey) == string(cfg.RefreshKey):
		return nil, errors.New("access and refresh keys must differ")
	}

	return &Manager{config: cfg, now: time.Now}, nil
}

// CreateAccess signs a short-lived access token for sub.
func (m *Manager) CreateAccess(sub Subject) (string, error) {
	return m.sign(sub, KindAccess, m.config.AccessTTL, m.config.AccessKey)
}

// CreateRefresh signs a refresh token for sub. Remember-me sessions get the
// extended lifetime.
func (m *Manager) CreateRefresh(sub Subject, rememberMe bool) (string, error) {
	ttl := m.config.RefreshTTL
	if rememberMe {
		ttl = m.config.RememberMeRefreshTTL
	}
	return m.sign(sub, KindRefresh, ttl, m.config.RefreshKey)
}

// AccessTTL reports the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration {
	return m.config.AccessTTL
}

// ParseAccess verifies signature, expiry and kind of an access token.
func (m *Manager) ParseAccess(tokenStr string) (*Claims, error) {
	return m.parse(tokenStr, KindAccess, m.config.AccessKey)
}

// ParseRefresh verifies signature, expiry and kind of a refresh token.
func (m *Manager) ParseRefresh(tokenStr string) (*Claims, error) {
	return m.parse(tokenStr, KindRefresh, m.config.RefreshKey)
}

func (m *Manager) sign(sub Subject, kind Kind, ttl time.Duration, key []byte) (string, error) {
	if sub.UserID == "" || sub.SessionID == "" {
		return "", ErrMissingClaims
	}

	now := m.now()
	claims := Claims{
		UserID:    sub.UserID,
		Email:     sub.Email,
		SessionID: sub.SessionID,
		Kind:      kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

func (m *Manager) parse(tokenStr string, kind Kind, key []byte) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return key, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Kind != kind {
		return nil, ErrWrongKind
	}
	if claims.UserID == "" || claims.SessionID == "" {
		return nil, ErrMissingClaims
	}

	return claims, nil
}

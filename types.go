package portalauth

import (
	"context"
	"time"
)

// TokenType distinguishes the two kinds of single-use bearer tokens.
type TokenType string

const (
	TokenEmailVerification TokenType = "email_verification"
	TokenPasswordReset     TokenType = "password_reset"
)

// Valid reports whether t is one of the known token types.
func (t TokenType) Valid() bool {
	return t == TokenEmailVerification || t == TokenPasswordReset
}

// User is the full credential record as persisted by a [UserStore].
// TwoFactorSecret is empty whenever TwoFactorEnabled is false.
type User struct {
	ID                  string
	Email               string
	PasswordHash        string
	FirstName           string
	LastName            string
	IsVerified          bool
	IsActive            bool
	TwoFactorEnabled    bool
	TwoFactorSecret     string
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLogin           *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// PublicProfile is the only view of a user ever returned to API callers. It
// never carries the password hash or the TOTP secret.
type PublicProfile struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	FirstName           string     `json:"first_name,omitempty"`
	LastName            string     `json:"last_name,omitempty"`
	IsVerified          bool       `json:"is_verified"`
	IsActive            bool       `json:"is_active"`
	TwoFactorEnabled    bool       `json:"two_factor_enabled"`
	FailedLoginAttempts int        `json:"failed_login_attempts"`
	LockedUntil         *time.Time `json:"locked_until,omitempty"`
	LastLogin           *time.Time `json:"last_login,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// NewUser carries the fields a [UserStore] needs to insert a user. The store
// assigns the id and timestamps.
type NewUser struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
}

// Profile holds the optional display-name fields supplied on registration.
type Profile struct {
	FirstName string
	LastName  string
}

// VerificationToken is a single-use, typed, expiring bearer capability.
type VerificationToken struct {
	ID        string
	UserID    string
	Token     string
	Type      TokenType
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// TokenPair is the access/refresh pair issued for one session.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// LoginResult is returned by [Engine.Login]. When RequiresTwoFactor is true
// nothing was issued and both User and Tokens are nil.
type LoginResult struct {
	RequiresTwoFactor bool
	User              *PublicProfile
	Tokens            *TokenPair
	SessionID         string
}

// TwoFactorSetup is the candidate secret returned by [Engine.SetupTwoFactor].
// It is not persisted until [Engine.EnableTwoFactor] proves possession.
type TwoFactorSetup struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"qr_code"`
}

// Principal is the authenticated caller resolved from an access token.
type Principal struct {
	UserID     string
	Email      string
	SessionID  string
	IsVerified bool
}

// UserStore persists users. Implementations return ErrUserNotFound for
// missing rows and ErrDuplicateEmail for unique violations on email. Emails
// are passed already normalised.
type UserStore interface {
	CreateUser(ctx context.Context, input NewUser) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	// IncrementFailedAttempts atomically adds one failure and sets
	// locked_until to lockUntil when the new count reaches threshold. It
	// returns the resulting counter and lock.
	IncrementFailedAttempts(ctx context.Context, id string, threshold int, lockUntil, now time.Time) (int, *time.Time, error)
	RecordSuccessfulLogin(ctx context.Context, id string, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error
	MarkEmailVerified(ctx context.Context, id string, at time.Time) error
	// SetTwoFactor stores enabled and secret together; secret is empty when
	// enabled is false.
	SetTwoFactor(ctx context.Context, id string, enabled bool, secret string, at time.Time) error
	Deactivate(ctx context.Context, id string, at time.Time) error
}

// TokenStore persists verification tokens. FindValidToken returns
// ErrInvalidOrExpiredToken when no usable row matches.
type TokenStore interface {
	// IssueToken marks every unused token of tok.Type for tok.UserID as used
	// and then inserts tok, as one unit.
	IssueToken(ctx context.Context, tok VerificationToken) (*VerificationToken, error)
	FindValidToken(ctx context.Context, token string, typ TokenType, now time.Time) (*VerificationToken, error)
	// ConsumeToken flips used to true and reports whether this call did so.
	ConsumeToken(ctx context.Context, id string) (bool, error)
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// Mailer delivers verification, reset and login-notification messages.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, to, token string) error
	SendPasswordResetEmail(ctx context.Context, to, token string) error
	SendLoginNotification(ctx context.Context, to, ip, userAgent string) error
}

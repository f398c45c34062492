package portalauth

import "errors"

var (
	// ErrValidation is returned when a request is malformed before any business rule runs.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicateEmail is returned by Register when the email is already taken.
	ErrDuplicateEmail = errors.New("user with this email already exists")
	// ErrWeakPassword wraps a *password.PolicyError describing the failed rule.
	ErrWeakPassword = errors.New("weak password")
	// ErrInvalidCredentials is the single failure for unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while locked_until is in the future.
	ErrAccountLocked = errors.New("account is temporarily locked due to too many failed attempts")
	// ErrAccountDeactivated is returned for accounts with is_active=false.
	ErrAccountDeactivated = errors.New("account is deactivated")
	// ErrInvalidTwoFactorCode is returned when a submitted TOTP code does not verify.
	ErrInvalidTwoFactorCode = errors.New("invalid two-factor authentication code")
	// ErrTwoFactorRateLimited is returned when a user exceeded the TOTP failure budget.
	ErrTwoFactorRateLimited = errors.New("too many two-factor attempts")
	// ErrTwoFactorAlreadyEnabled is returned by EnableTwoFactor for users already enrolled.
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor authentication already enabled")
	// ErrTwoFactorNotEnabled is returned by DisableTwoFactor for users without 2FA.
	ErrTwoFactorNotEnabled = errors.New("two-factor authentication not enabled")
	// ErrInvalidRefreshToken collapses every refresh verification failure.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrSessionNotFound is returned when a token references a session that no longer exists.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidOrExpiredToken is returned for unusable verification and reset tokens.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	// ErrInvalidPassword is returned when a password re-check fails on an authenticated flow.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrEmailNotVerified is returned by flows gated on a verified email.
	ErrEmailNotVerified = errors.New("email verification required")
	// ErrUserNotFound is returned by lookups on an authenticated user id.
	ErrUserNotFound = errors.New("user not found")
	// ErrUnauthorized is returned by Authenticate for any unusable access token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrDependencyTimeout marks a store, registry or mailer call that exceeded its deadline.
	ErrDependencyTimeout = errors.New("dependency timeout")
	// ErrDependencyUnavailable marks a store, registry or mailer call that failed.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	// ErrEngineNotReady is returned by methods on a nil or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

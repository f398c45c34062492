package portalauth

import (
	"context"
	"errors"
	"time"

	internalaudit "github.com/MrEthical07/portalauth/internal/audit"
)

const (
	auditEventRegisterSuccess           = "register_success"
	auditEventRegisterFailure           = "register_failure"
	auditEventLoginSuccess              = "login_success"
	auditEventLoginFailure              = "login_failure"
	auditEventLoginTwoFactorRequired    = "login_two_factor_required"
	auditEventAccountLocked             = "account_locked"
	auditEventRefreshSuccess            = "refresh_success"
	auditEventRefreshInvalid            = "refresh_invalid"
	auditEventSessionEvicted            = "session_evicted"
	auditEventLogoutSession             = "logout_session"
	auditEventLogoutAll                 = "logout_all"
	auditEventEmailVerificationRequest  = "email_verification_request"
	auditEventEmailVerificationConfirm  = "email_verification_confirm"
	auditEventPasswordResetRequest      = "password_reset_request"
	auditEventPasswordResetConfirm      = "password_reset_confirm"
	auditEventTwoFactorSetupRequested   = "two_factor_setup_requested"
	auditEventTwoFactorEnabled          = "two_factor_enabled"
	auditEventTwoFactorDisabled         = "two_factor_disabled"
	auditEventAccountDeactivated        = "account_deactivated"
	auditEventRateLimitTriggered        = "rate_limit_triggered"
	auditEventExpiredTokensPurged       = "expired_tokens_purged"
	auditEventTwoFactorThrottleExceeded = "two_factor_throttle_exceeded"
)

// AuditErrorCode is the coarse error classification attached to failed events.
type AuditErrorCode string

const (
	auditErrValidation          AuditErrorCode = "validation"
	auditErrDuplicate           AuditErrorCode = "duplicate"
	auditErrPasswordPolicy      AuditErrorCode = "password_policy"
	auditErrInvalidCredentials  AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked       AuditErrorCode = "account_locked"
	auditErrAccountDeactivated  AuditErrorCode = "account_deactivated"
	auditErrTwoFactorInvalid    AuditErrorCode = "two_factor_invalid"
	auditErrTwoFactorThrottled  AuditErrorCode = "two_factor_rate_limited"
	auditErrTwoFactorState      AuditErrorCode = "two_factor_state"
	auditErrInvalidToken        AuditErrorCode = "invalid_token"
	auditErrSessionNotFound     AuditErrorCode = "session_not_found"
	auditErrUserNotFound        AuditErrorCode = "user_not_found"
	auditErrUnverified          AuditErrorCode = "email_unverified"
	auditErrInvalidPassword     AuditErrorCode = "invalid_password"
	auditErrUnauthorized        AuditErrorCode = "unauthorized"
	auditErrDependencyTimeout   AuditErrorCode = "dependency_timeout"
	auditErrDependencyDown      AuditErrorCode = "dependency_unavailable"
	auditErrInternal            AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := internalaudit.Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

// NoteRateLimited records a throttled request that never reached the engine.
// scope names the throttle, for example "login".
func (e *Engine) NoteRateLimited(ctx context.Context, scope string) {
	if e == nil {
		return
	}
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", nil, func() map[string]string {
		return map[string]string{"scope": scope}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrDuplicateEmail):
		return auditErrDuplicate
	case errors.Is(err, ErrWeakPassword):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountDeactivated):
		return auditErrAccountDeactivated
	case errors.Is(err, ErrInvalidTwoFactorCode):
		return auditErrTwoFactorInvalid
	case errors.Is(err, ErrTwoFactorRateLimited):
		return auditErrTwoFactorThrottled
	case errors.Is(err, ErrTwoFactorAlreadyEnabled),
		errors.Is(err, ErrTwoFactorNotEnabled):
		return auditErrTwoFactorState
	case errors.Is(err, ErrInvalidRefreshToken),
		errors.Is(err, ErrInvalidOrExpiredToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrEmailNotVerified):
		return auditErrUnverified
	case errors.Is(err, ErrInvalidPassword):
		return auditErrInvalidPassword
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrDependencyTimeout):
		return auditErrDependencyTimeout
	case errors.Is(err, ErrDependencyUnavailable):
		return auditErrDependencyDown
	default:
		return auditErrInternal
	}
}

package httpapi

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/portalauth"
	"github.com/MrEthical07/portalauth/middleware"
	"github.com/MrEthical07/portalauth/password"
)

type errorMapping struct {
	err     error
	status  int
	message string
	code    string
}

// Order matters: the first entry whose sentinel matches wins.
var errorTable = []errorMapping{
	{portalauth.ErrValidation, http.StatusBadRequest, "Validation failed", ""},
	{portalauth.ErrDuplicateEmail, http.StatusBadRequest, "User with this email already exists", ""},
	{portalauth.ErrInvalidOrExpiredToken, http.StatusBadRequest, "Invalid or expired token", ""},
	{portalauth.ErrInvalidPassword, http.StatusBadRequest, "Invalid password", ""},
	{portalauth.ErrInvalidTwoFactorCode, http.StatusBadRequest, "Invalid two-factor authentication code", ""},
	{portalauth.ErrTwoFactorAlreadyEnabled, http.StatusBadRequest, "Two-factor authentication is already enabled", ""},
	{portalauth.ErrTwoFactorNotEnabled, http.StatusBadRequest, "Two-factor authentication is not enabled", ""},
	{portalauth.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid credentials", ""},
	{portalauth.ErrAccountLocked, http.StatusUnauthorized, "Account is temporarily locked due to too many failed attempts", ""},
	{portalauth.ErrAccountDeactivated, http.StatusUnauthorized, "Account is deactivated", ""},
	{portalauth.ErrInvalidRefreshToken, http.StatusUnauthorized, "Invalid refresh token", ""},
	{portalauth.ErrUnauthorized, http.StatusUnauthorized, "Invalid or expired token", ""},
	{portalauth.ErrSessionNotFound, http.StatusUnauthorized, "Invalid or expired token", ""},
	{portalauth.ErrEmailNotVerified, http.StatusForbidden, "Email verification required", "EMAIL_NOT_VERIFIED"},
	{portalauth.ErrUserNotFound, http.StatusNotFound, "User not found", ""},
	{portalauth.ErrTwoFactorRateLimited, http.StatusTooManyRequests, "Too many two-factor attempts, please try again later", ""},
	{portalauth.ErrDependencyTimeout, http.StatusServiceUnavailable, "Service temporarily unavailable", ""},
	{portalauth.ErrDependencyUnavailable, http.StatusServiceUnavailable, "Service temporarily unavailable", ""},
	{portalauth.ErrEngineNotReady, http.StatusServiceUnavailable, "Service temporarily unavailable", ""},
}

// errorResponse picks the status and envelope for err. A weak password
// reports the policy rule it failed.
func errorResponse(err error) (int, middleware.Envelope) {
	if errors.Is(err, portalauth.ErrWeakPassword) {
		message := "Password does not meet the strength requirements"
		var policyErr *password.PolicyError
		if errors.As(err, &policyErr) {
			message = policyErr.Reason
		}
		return http.StatusBadRequest, middleware.Envelope{
			Message: message,
			Errors:  []middleware.FieldError{{Field: "password", Message: message}},
		}
	}

	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, middleware.Envelope{Message: m.message, Code: m.code}
		}
	}

	return http.StatusInternalServerError, middleware.Envelope{Message: "Internal server error"}
}

func (a *api) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, env := errorResponse(err)
	if status >= http.StatusInternalServerError {
		a.logger.WithField("op", op).WithField("path", r.URL.Path).WithError(err).Error("request failed")
	}
	middleware.WriteJSON(w, status, env)
}

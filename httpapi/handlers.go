package httpapi

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/portalauth"
	"github.com/MrEthical07/portalauth/middleware"
)

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (a *api) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(w, r, &req); err != nil {
		writeBadBody(w)
		return
	}

	var v validator
	v.email("email", req.Email)
	v.required("password", req.Password, "Password is required")
	v.name("first_name", req.FirstName, "First name")
	v.name("last_name", req.LastName, "Last name")
	if v.failed() {
		writeValidation(w, v.errs)
		return
	}

	user, err := a.svc.Register(r.Context(), req.Email, req.Password, portalauth.Profile{
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		a.writeServiceError(w, r, "register", err)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, middleware.Envelope{
		Success: true,
		Message: "User registered successfully. Please check your email for verification.",
		Data:    map[string]any{"user": user},
	})
}

type loginRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	RememberMe    bool   `json:"remember_me"`
	TwoFactorCode string `json:"two_factor_code"`
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		writeBadBody(w)
		return
	}

	var v validator
	v.email("email", req.Email)
	v.required("password", req.Password, "Password is required")
	v.totp("two_factor_code", req.TwoFactorCode)
	if v.failed() {
		writeValidation(w, v.errs)
		return
	}

	result, err := a.svc.Login(r.Context(), portalauth.LoginRequest{
		Email:         req.Email,
		Password:      req.Password,
		RememberMe:    req.RememberMe,
		TwoFactorCode: req.TwoFactorCode,
	})
	if err != nil {
		// A wrong second factor on login is an authentication failure.
		if errors.Is(err, portalauth.ErrInvalidTwoFactorCode) {
			middleware.WriteError(w, http.StatusUnauthorized, "Invalid two-factor authentication code")
			return
		}
		a.writeServiceError(w, r, "login", err)
		return
	}

	if result.RequiresTwoFactor {
		middleware.WriteJSON(w, http.StatusOK, middleware.Envelope{
			Success:           true,
			Message:           "Two-factor authentication required",
			RequiresTwoFactor: true,
		})
		return
	}

	middleware.WriteJSON(w, http.StatusOK, middleware.Envelope{
		Success: true,
		Message: "Login successful",
		Data: map[string]any{
			"user":   result.User,
			"tokens": result.Tokens,
		},
	})
}

func (a *api) refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decode(w, r, &req); err != nil {
		writeBadBody(w)
		return
	}
	if req.RefreshToken == "" {
		middleware.WriteError(w, http.StatusUnauthorized, "Refresh token required")
		return
	}

	tokens, err := a.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		a.writeServiceError(w, r, "refresh", err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, middleware.Envelope{
		Success: true,
		Message: "Token refreshed successfully",
		Data:    map[string]any{"tokens": tokens},
	})
}

func (a *api) logout(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())
	if err := a.svc.Logout(r.Context(), principal.UserID, principal.SessionID); err != nil {
		a.writeServiceError(w, r, "logout", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, middleware.Envelope{Success: true, Message: "Logout successful"})
}

func (a *api) logoutAll(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())
	n, err := a.svc.LogoutAll(r.Context(), principal.UserID)
	if err != nil {
		a.writeServiceError(w, r, "logout_all", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, middleware.Envelope{
		Success: true,
		Message: "Logged out from all devices",
		Data:    map[string]any{"terminated_sessions": n},
	})
}

func (a *api) profile(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())
	user, err := a.svc.Profile(r.Context(), principal.UserID)
	if err != nil {
		a.writeServiceError(w, r, "profile", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, middleware.Envelope{
		Success: true,
		Data:    map[string]any{"user": user},
	})
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (a *api) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decode(w, r, &req); err != nil {
		writeBadBody(w)
		return
	}
	if req.Token == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Verification token required")
		return
	}

	if err := a.svc.VerifyEmail(r.Context(), req.Token); err != nil {
		a.writeServiceError(w, r, "verify_email", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, middleware.Envelope{Success: true, Message: "Email verified successfully"})
}

type emailRequest struct {
	Email string `json:"email"`
}

func (a *api) resendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decode(w, r, &req); err != nil {
		writeBadBody(w)
		return
	}
	var v validator
	v.email("email", req.Email)
	if v.failed() {
		writeValidation(w, v.errs)
		return
	}

	if err := a.svc.ResendVerification(r.Context(), req.Email); err != nil {
		a.writeServiceError(w, r, "resend_verification", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, middleware.Envelope{
		Success: true,
		Message: "If an unverified account with that email exists, a verification link has been sent.",
	})
}

func (a *api) requestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decode(w, r, &req); err != nil {
		writeBadBody(w)
		return
	}
	var v validator
	v.email("email", req.Email)
	if v.failed() {
		writeValidation(w, v.errs)
		return
	}

	if err := a.svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
		a.writeServiceError(w, r, "request_password_reset", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, middleware.Envelope{
		Success: true,
		Message: "If an account with that email exists, a password reset link has been sent.",
	})
}

func (a *api) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decode(w, r, &req); err != nil {
		writeBadBody(w)
		return
	}
	var v validator
	v.required("token", req.Token, "Reset token is required")
	v.required("password", req.Password, "Password is required")
	if v.failed() {
		writeValidation(w, v.errs)
		return
	}

	if err := a.svc.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		a.writeServiceError(w, r, "reset_password", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, middleware.Envelope{Success: true, Message: "Password reset successfully"})
}

func (a *api) setupTwoFactor(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())
	setup, err := a.svc.SetupTwoFactor(r.Context(), principal.UserID)
	if err != nil {
		a.writeServiceError(w, r, "setup_2fa", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, middleware.Envelope{
		Success: true,
		Message: "Two-factor authentication setup initiated",
		Data:    setup,
	})
}

func (a *api) enableTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Secret string `json:"secret"`
		Token  string `json:"token"`
	}
	if err := decode(w, r, &req); err != nil {
		writeBadBody(w)
		return
	}
	if req.Secret == "" || req.Token == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Secret and token are required")
		return
	}
	var v validator
	v.totp("token", req.Token)
	if v.failed() {
		writeValidation(w, v.errs)
		return
	}

	principal, _ := middleware.PrincipalFromContext(r.Context())
	if err := a.svc.EnableTwoFactor(r.Context(), principal.UserID, req.Secret, req.Token); err != nil {
		a.writeServiceError(w, r, "enable_2fa", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, middleware.Envelope{Success: true, Message: "Two-factor authentication enabled successfully"})
}

func (a *api) disableTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := decode(w, r, &req); err != nil {
		writeBadBody(w)
		return
	}
	if req.Password == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Password is required")
		return
	}

	principal, _ := middleware.PrincipalFromContext(r.Context())
	if err := a.svc.DisableTwoFactor(r.Context(), principal.UserID, req.Password); err != nil {
		a.writeServiceError(w, r, "disable_2fa", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, middleware.Envelope{Success: true, Message: "Two-factor authentication disabled successfully"})
}

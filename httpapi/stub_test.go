package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrEthical07/portalauth"
	"github.com/MrEthical07/portalauth/middleware"
	"github.com/stretchr/testify/require"
)

// stubService answers every call from its fields. Unset results are zero.
type stubService struct {
	principal *portalauth.Principal
	authErr   error

	registerErr error
	loginResult *portalauth.LoginResult
	loginErr    error
	refreshErr  error
	enableErr   error
	disableErr  error
	profileErr  error
	resetErr    error

	lastLogin   portalauth.LoginRequest
	loggedOut   [2]string
	rateLimited []string
}

func (s *stubService) Register(_ context.Context, email, _ string, profile portalauth.Profile) (*portalauth.PublicProfile, error) {
	if s.registerErr != nil {
		return nil, s.registerErr
	}
	return &portalauth.PublicProfile{ID: "u1", Email: email, FirstName: profile.FirstName, IsActive: true}, nil
}

func (s *stubService) Login(_ context.Context, req portalauth.LoginRequest) (*portalauth.LoginResult, error) {
	s.lastLogin = req
	if s.loginErr != nil {
		return nil, s.loginErr
	}
	if s.loginResult != nil {
		return s.loginResult, nil
	}
	return &portalauth.LoginResult{
		User:   &portalauth.PublicProfile{ID: "u1", Email: req.Email},
		Tokens: &portalauth.TokenPair{AccessToken: "a", RefreshToken: "r"},
	}, nil
}

func (s *stubService) Refresh(context.Context, string) (*portalauth.TokenPair, error) {
	if s.refreshErr != nil {
		return nil, s.refreshErr
	}
	return &portalauth.TokenPair{AccessToken: "a2", RefreshToken: "r2"}, nil
}

func (s *stubService) Logout(_ context.Context, userID, sessionID string) error {
	s.loggedOut = [2]string{userID, sessionID}
	return nil
}

func (s *stubService) LogoutAll(context.Context, string) (int, error) { return 2, nil }

func (s *stubService) VerifyEmail(context.Context, string) error { return nil }

func (s *stubService) ResendVerification(context.Context, string) error { return nil }

func (s *stubService) RequestPasswordReset(context.Context, string) error { return nil }

func (s *stubService) ResetPassword(context.Context, string, string) error { return s.resetErr }

func (s *stubService) Profile(_ context.Context, userID string) (*portalauth.PublicProfile, error) {
	if s.profileErr != nil {
		return nil, s.profileErr
	}
	return &portalauth.PublicProfile{ID: userID}, nil
}

func (s *stubService) SetupTwoFactor(context.Context, string) (*portalauth.TwoFactorSetup, error) {
	return &portalauth.TwoFactorSetup{Secret: "JBSWY3DPEHPK3PXP", ProvisioningURI: "otpauth://totp/x"}, nil
}

func (s *stubService) EnableTwoFactor(context.Context, string, string, string) error {
	return s.enableErr
}

func (s *stubService) DisableTwoFactor(context.Context, string, string) error { return s.disableErr }

func (s *stubService) Authenticate(context.Context, string) (*portalauth.Principal, error) {
	if s.authErr != nil {
		return nil, s.authErr
	}
	if s.principal == nil {
		return nil, portalauth.ErrUnauthorized
	}
	return s.principal, nil
}

func (s *stubService) NoteRateLimited(_ context.Context, scope string) {
	s.rateLimited = append(s.rateLimited, scope)
}

func do(t *testing.T, h http.Handler, method, path string, body any, token string) (*httptest.ResponseRecorder, middleware.Envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env middleware.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

package httpapi

import (
	"context"

	"github.com/MrEthical07/portalauth"
)

// Service is the engine surface the HTTP layer drives. *portalauth.Engine
// implements it.
type Service interface {
	Register(ctx context.Context, email, password string, profile portalauth.Profile) (*portalauth.PublicProfile, error)
	Login(ctx context.Context, req portalauth.LoginRequest) (*portalauth.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*portalauth.TokenPair, error)
	Logout(ctx context.Context, userID, sessionID string) error
	LogoutAll(ctx context.Context, userID string) (int, error)
	VerifyEmail(ctx context.Context, token string) error
	ResendVerification(ctx context.Context, email string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	Profile(ctx context.Context, userID string) (*portalauth.PublicProfile, error)
	SetupTwoFactor(ctx context.Context, userID string) (*portalauth.TwoFactorSetup, error)
	EnableTwoFactor(ctx context.Context, userID, secret, code string) error
	DisableTwoFactor(ctx context.Context, userID, password string) error
	Authenticate(ctx context.Context, accessToken string) (*portalauth.Principal, error)
	NoteRateLimited(ctx context.Context, scope string)
}

var _ Service = (*portalauth.Engine)(nil)

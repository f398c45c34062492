package portalauth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/portalauth/password"
)

// credentialStore owns hashing, email normalisation and lockout arithmetic
// on top of a UserStore.
type credentialStore struct {
	store   UserStore
	hasher  *password.Argon2
	lockout LockoutConfig
	deps    dependencyRunner
	now     func() time.Time
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (c *credentialStore) create(ctx context.Context, email, rawPassword string, profile Profile) (*User, error) {
	hash, err := c.hasher.Hash(rawPassword)
	if err != nil {
		return nil, err
	}

	var user *User
	err = c.deps.run(ctx, func(ctx context.Context) error {
		var err error
		user, err = c.store.CreateUser(ctx, NewUser{
			Email:        normalizeEmail(email),
			PasswordHash: hash,
			FirstName:    strings.TrimSpace(profile.FirstName),
			LastName:     strings.TrimSpace(profile.LastName),
		})
		return err
	}, ErrDuplicateEmail)
	return user, err
}

func (c *credentialStore) findByEmail(ctx context.Context, email string) (*User, error) {
	var user *User
	err := c.deps.run(ctx, func(ctx context.Context) error {
		var err error
		user, err = c.store.GetUserByEmail(ctx, normalizeEmail(email))
		return err
	}, ErrUserNotFound)
	return user, err
}

func (c *credentialStore) findByID(ctx context.Context, id string) (*User, error) {
	var user *User
	err := c.deps.run(ctx, func(ctx context.Context) error {
		var err error
		user, err = c.store.GetUserByID(ctx, id)
		return err
	}, ErrUserNotFound)
	return user, err
}

// verifyPassword compares in constant time. A stored hash that cannot be
// parsed is reported as an error, never as a match.
func (c *credentialStore) verifyPassword(user *User, rawPassword string) (bool, error) {
	if user == nil || user.PasswordHash == "" {
		return false, nil
	}
	return c.hasher.Verify(rawPassword, user.PasswordHash)
}

func (c *credentialStore) isLocked(user *User) bool {
	return user != nil && user.LockedUntil != nil && c.now().Before(*user.LockedUntil)
}

// recordFailedAttempt increments the counter and reports whether the account
// is locked as a result.
func (c *credentialStore) recordFailedAttempt(ctx context.Context, id string) (int, bool, error) {
	now := c.now()
	var (
		attempts    int
		lockedUntil *time.Time
	)
	err := c.deps.run(ctx, func(ctx context.Context) error {
		var err error
		attempts, lockedUntil, err = c.store.IncrementFailedAttempts(ctx, id, c.lockout.MaxFailedAttempts, now.Add(c.lockout.Duration), now)
		return err
	}, ErrUserNotFound)
	if err != nil {
		return 0, false, err
	}
	return attempts, lockedUntil != nil && now.Before(*lockedUntil), nil
}

func (c *credentialStore) recordSuccessfulLogin(ctx context.Context, id string) error {
	return c.deps.run(ctx, func(ctx context.Context) error {
		return c.store.RecordSuccessfulLogin(ctx, id, c.now())
	}, ErrUserNotFound)
}

func (c *credentialStore) setPasswordHash(ctx context.Context, id, rawPassword string) error {
	hash, err := c.hasher.Hash(rawPassword)
	if err != nil {
		return err
	}
	return c.deps.run(ctx, func(ctx context.Context) error {
		return c.store.UpdatePasswordHash(ctx, id, hash, c.now())
	}, ErrUserNotFound)
}

// upgradeHash re-hashes rawPassword when the stored hash uses weaker
// parameters than the current configuration.
func (c *credentialStore) upgradeHash(ctx context.Context, user *User, rawPassword string) (bool, error) {
	needs, err := c.hasher.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return false, err
	}
	if err := c.setPasswordHash(ctx, user.ID, rawPassword); err != nil {
		return false, err
	}
	return true, nil
}

func (c *credentialStore) setEmailVerified(ctx context.Context, id string) error {
	return c.deps.run(ctx, func(ctx context.Context) error {
		return c.store.MarkEmailVerified(ctx, id, c.now())
	}, ErrUserNotFound)
}

// setTwoFactor keeps the secret present exactly when 2FA is enabled.
func (c *credentialStore) setTwoFactor(ctx context.Context, id string, enabled bool, secret string) error {
	if enabled == (secret == "") {
		return errors.New("two-factor secret must be set iff two-factor is enabled")
	}
	return c.deps.run(ctx, func(ctx context.Context) error {
		return c.store.SetTwoFactor(ctx, id, enabled, secret, c.now())
	}, ErrUserNotFound)
}

func (c *credentialStore) deactivate(ctx context.Context, id string) error {
	return c.deps.run(ctx, func(ctx context.Context) error {
		return c.store.Deactivate(ctx, id, c.now())
	}, ErrUserNotFound)
}

func (c *credentialStore) publicProfile(ctx context.Context, id string) (*PublicProfile, error) {
	user, err := c.findByID(ctx, id)
	if err != nil {
		return nil, err
	}
	profile := toPublicProfile(user)
	return &profile, nil
}

func toPublicProfile(u *User) PublicProfile {
	return PublicProfile{
		ID:                  u.ID,
		Email:               u.Email,
		FirstName:           u.FirstName,
		LastName:            u.LastName,
		IsVerified:          u.IsVerified,
		IsActive:            u.IsActive,
		TwoFactorEnabled:    u.TwoFactorEnabled,
		FailedLoginAttempts: u.FailedLoginAttempts,
		LockedUntil:         u.LockedUntil,
		LastLogin:           u.LastLogin,
		CreatedAt:           u.CreatedAt,
		UpdatedAt:           u.UpdatedAt,
	}
}

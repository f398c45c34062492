package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/portalauth"
	"github.com/google/uuid"
)

// Users is a concurrency-safe in-memory portalauth.UserStore.
type Users struct {
	mu      sync.RWMutex
	byID    map[string]*portalauth.User
	byEmail map[string]string
	now     func() time.Time
}

func NewUsers() *Users {
	return &Users{
		byID:    make(map[string]*portalauth.User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func copyUser(u *portalauth.User) *portalauth.User {
	c := *u
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		c.LockedUntil = &t
	}
	if u.LastLogin != nil {
		t := *u.LastLogin
		c.LastLogin = &t
	}
	return &c
}

func (s *Users) CreateUser(ctx context.Context, input portalauth.NewUser) (*portalauth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[input.Email]; ok {
		return nil, portalauth.ErrDuplicateEmail
	}

	now := s.now().UTC()
	u := &portalauth.User{
		ID:           uuid.NewString(),
		Email:        input.Email,
		PasswordHash: input.PasswordHash,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.byID[u.ID] = u
	s.byEmail[u.Email] = u.ID
	return copyUser(u), nil
}

func (s *Users) GetUserByEmail(ctx context.Context, email string) (*portalauth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, portalauth.ErrUserNotFound
	}
	return copyUser(s.byID[id]), nil
}

func (s *Users) GetUserByID(ctx context.Context, id string) (*portalauth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, portalauth.ErrUserNotFound
	}
	return copyUser(u), nil
}

// update applies fn to the stored user under the write lock.
func (s *Users) update(ctx context.Context, id string, at time.Time, fn func(u *portalauth.User)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return portalauth.ErrUserNotFound
	}
	fn(u)
	u.UpdatedAt = at.UTC()
	return nil
}

func (s *Users) IncrementFailedAttempts(ctx context.Context, id string, threshold int, lockUntil, now time.Time) (int, *time.Time, error) {
	var (
		attempts int
		locked   *time.Time
	)
	err := s.update(ctx, id, now, func(u *portalauth.User) {
		u.FailedLoginAttempts++
		if threshold > 0 && u.FailedLoginAttempts >= threshold {
			t := lockUntil.UTC()
			u.LockedUntil = &t
		}
		attempts = u.FailedLoginAttempts
		if u.LockedUntil != nil {
			t := *u.LockedUntil
			locked = &t
		}
	})
	return attempts, locked, err
}

func (s *Users) RecordSuccessfulLogin(ctx context.Context, id string, at time.Time) error {
	return s.update(ctx, id, at, func(u *portalauth.User) {
		t := at.UTC()
		u.FailedLoginAttempts = 0
		u.LockedUntil = nil
		u.LastLogin = &t
	})
}

func (s *Users) UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error {
	return s.update(ctx, id, at, func(u *portalauth.User) {
		u.PasswordHash = hash
	})
}

func (s *Users) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	return s.update(ctx, id, at, func(u *portalauth.User) {
		u.IsVerified = true
	})
}

func (s *Users) SetTwoFactor(ctx context.Context, id string, enabled bool, secret string, at time.Time) error {
	return s.update(ctx, id, at, func(u *portalauth.User) {
		u.TwoFactorEnabled = enabled
		u.TwoFactorSecret = secret
	})
}

func (s *Users) Deactivate(ctx context.Context, id string, at time.Time) error {
	return s.update(ctx, id, at, func(u *portalauth.User) {
		u.IsActive = false
	})
}

var _ portalauth.UserStore = (*Users)(nil)

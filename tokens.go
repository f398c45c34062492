package portalauth

import (
	"context"
	"time"

	"github.com/MrEthical07/portalauth/internal"
	"github.com/google/uuid"
)

// tokenIssuer mints and redeems single-use verification and reset tokens.
type tokenIssuer struct {
	store TokenStore
	deps  dependencyRunner
	now   func() time.Time
}

// issue invalidates every unused token of typ for userID and returns a new one.
func (t *tokenIssuer) issue(ctx context.Context, userID string, typ TokenType, ttl time.Duration) (*VerificationToken, error) {
	raw, err := internal.NewOpaqueToken()
	if err != nil {
		return nil, err
	}

	now := t.now()
	tok := VerificationToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     raw,
		Type:      typ,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	var issued *VerificationToken
	err = t.deps.run(ctx, func(ctx context.Context) error {
		var err error
		issued, err = t.store.IssueToken(ctx, tok)
		return err
	})
	return issued, err
}

// resolve looks up an unused, unexpired token of the expected type. It does
// not change state.
func (t *tokenIssuer) resolve(ctx context.Context, raw string, typ TokenType) (*VerificationToken, error) {
	if raw == "" {
		return nil, ErrInvalidOrExpiredToken
	}

	var tok *VerificationToken
	err := t.deps.run(ctx, func(ctx context.Context) error {
		var err error
		tok, err = t.store.FindValidToken(ctx, raw, typ, t.now())
		return err
	}, ErrInvalidOrExpiredToken)
	return tok, err
}

// consume marks the token used and reports whether this call claimed it. A
// second call returns false and changes nothing.
func (t *tokenIssuer) consume(ctx context.Context, id string) (bool, error) {
	var claimed bool
	err := t.deps.run(ctx, func(ctx context.Context) error {
		var err error
		claimed, err = t.store.ConsumeToken(ctx, id)
		return err
	})
	return claimed, err
}

func (t *tokenIssuer) purgeExpired(ctx context.Context) (int64, error) {
	var n int64
	err := t.deps.run(ctx, func(ctx context.Context) error {
		var err error
		n, err = t.store.DeleteExpiredTokens(ctx, t.now())
		return err
	})
	return n, err
}

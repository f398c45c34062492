package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/portalauth"
)

// Tokens is a PostgreSQL portalauth.TokenStore.
type Tokens struct {
	db *sql.DB
}

func NewTokens(db *sql.DB) *Tokens {
	return &Tokens{db: db}
}

// IssueToken invalidates the user's unused tokens of the same type and
// inserts tok in one transaction.
func (r *Tokens) IssueToken(ctx context.Context, tok portalauth.VerificationToken) (*portalauth.VerificationToken, error) {
	err := WithTx(ctx, r.db, nil, func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE verification_tokens SET used = TRUE
			 WHERE user_id = $1 AND type = $2 AND used = FALSE`,
			tok.UserID, string(tok.Type))
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO verification_tokens (id, user_id, token, type, expires_at, used, created_at)
			 VALUES ($1, $2, $3, $4, $5, FALSE, $6)`,
			tok.ID, tok.UserID, tok.Token, string(tok.Type), tok.ExpiresAt, tok.CreatedAt)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := tok
	out.Used = false
	return &out, nil
}

func (r *Tokens) FindValidToken(ctx context.Context, token string, typ portalauth.TokenType, now time.Time) (*portalauth.VerificationToken, error) {
	query :=
		`SELECT id, user_id, token, type, expires_at, used, created_at FROM verification_tokens
		 WHERE token = $1 AND type = $2 AND used = FALSE AND expires_at > $3`

	var (
		tok     portalauth.VerificationToken
		typeStr string
	)
	err := r.db.QueryRowContext(ctx, query, token, string(typ), now).
		Scan(&tok.ID, &tok.UserID, &tok.Token, &typeStr, &tok.ExpiresAt, &tok.Used, &tok.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, portalauth.ErrInvalidOrExpiredToken
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	tok.Type = portalauth.TokenType(typeStr)
	return &tok, nil
}

// ConsumeToken flips used only while it is still false, so exactly one
// concurrent caller claims the token.
func (r *Tokens) ConsumeToken(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE verification_tokens SET used = TRUE
		 WHERE id = $1 AND used = FALSE`, id)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

func (r *Tokens) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM verification_tokens
		 WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}

var _ portalauth.TokenStore = (*Tokens)(nil)

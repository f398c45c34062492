package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/portalauth"
)

const userColumns = `id, email, password_hash, first_name, last_name, is_verified, is_active,
		two_factor_enabled, two_factor_secret, failed_login_attempts, locked_until,
		last_login, created_at, updated_at`

// Users is a PostgreSQL portalauth.UserStore.
type Users struct {
	db DBTX
}

func NewUsers(db DBTX) *Users {
	return &Users{db: db}
}

func scanUser(row *sql.Row) (*portalauth.User, error) {
	var (
		u                   portalauth.User
		firstName, lastName sql.NullString
		secret              sql.NullString
		lockedUntil         sql.NullTime
		lastLogin           sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &firstName, &lastName, &u.IsVerified, &u.IsActive,
		&u.TwoFactorEnabled, &secret, &u.FailedLoginAttempts, &lockedUntil,
		&lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, portalauth.ErrUserNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	u.FirstName = firstName.String
	u.LastName = lastName.String
	u.TwoFactorSecret = secret.String
	if lockedUntil.Valid {
		t := lockedUntil.Time
		u.LockedUntil = &t
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *Users) CreateUser(ctx context.Context, input portalauth.NewUser) (*portalauth.User, error) {
	query :=
		`INSERT INTO users (email, password_hash, first_name, last_name)
		 VALUES ($1, $2, $3, $4)
		 RETURNING ` + userColumns

	row := r.db.QueryRowContext(ctx, query, input.Email, input.PasswordHash, nullString(input.FirstName), nullString(input.LastName))
	u, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, portalauth.ErrDuplicateEmail
		}
		return nil, err
	}
	return u, nil
}

func (r *Users) GetUserByEmail(ctx context.Context, email string) (*portalauth.User, error) {
	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE email = $1`

	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *Users) GetUserByID(ctx context.Context, id string) (*portalauth.User, error) {
	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE id = $1`

	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

// IncrementFailedAttempts is a single UPDATE, so concurrent failures never
// lose an increment.
func (r *Users) IncrementFailedAttempts(ctx context.Context, id string, threshold int, lockUntil, now time.Time) (int, *time.Time, error) {
	query :=
		`UPDATE users
		 SET failed_login_attempts = failed_login_attempts + 1,
		     locked_until = CASE WHEN failed_login_attempts + 1 >= $2 THEN $3 ELSE locked_until END,
		     updated_at = $4
		 WHERE id = $1
		 RETURNING failed_login_attempts, locked_until`

	var (
		attempts int
		locked   sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, id, threshold, lockUntil, now).Scan(&attempts, &locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil, portalauth.ErrUserNotFound
		}
		return 0, nil, fmt.Errorf("db error: %w", err)
	}

	if !locked.Valid {
		return attempts, nil, nil
	}
	t := locked.Time
	return attempts, &t, nil
}

// exec runs an UPDATE addressed by id and maps zero affected rows to
// ErrUserNotFound.
func (r *Users) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return portalauth.ErrUserNotFound
	}
	return nil
}

func (r *Users) RecordSuccessfulLogin(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx,
		`UPDATE users
		 SET failed_login_attempts = 0, locked_until = NULL, last_login = $2, updated_at = $2
		 WHERE id = $1`, id, at)
}

func (r *Users) UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error {
	return r.exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = $3
		 WHERE id = $1`, id, hash, at)
}

func (r *Users) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx,
		`UPDATE users SET is_verified = TRUE, updated_at = $2
		 WHERE id = $1`, id, at)
}

func (r *Users) SetTwoFactor(ctx context.Context, id string, enabled bool, secret string, at time.Time) error {
	return r.exec(ctx,
		`UPDATE users SET two_factor_enabled = $2, two_factor_secret = $3, updated_at = $4
		 WHERE id = $1`, id, enabled, nullString(secret), at)
}

func (r *Users) Deactivate(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx,
		`UPDATE users SET is_active = FALSE, updated_at = $2
		 WHERE id = $1`, id, at)
}

var _ portalauth.UserStore = (*Users)(nil)

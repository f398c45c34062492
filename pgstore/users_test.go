package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/MrEthical07/portalauth"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userColumnNames = []string{
	"id", "email", "password_hash", "first_name", "last_name", "is_verified", "is_active",
	"two_factor_enabled", "two_factor_secret", "failed_login_attempts", "locked_until",
	"last_login", "created_at", "updated_at",
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func userRow(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(userColumnNames).
		AddRow("u-1", "a@x.com", "hash", "Ada", nil, false, true, false, nil, 0, nil, nil, now, now)
}

func TestCreateUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUsers(db)
	now := time.Now().UTC()

	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+users\s*\(email,\s*password_hash,\s*first_name,\s*last_name\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4\)\s*RETURNING\s+id`).
		WithArgs("a@x.com", "hash", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(userRow(now))

	u, err := repo.CreateUser(context.Background(), portalauth.NewUser{Email: "a@x.com", PasswordHash: "hash", FirstName: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "u-1", u.ID)
	assert.Equal(t, "Ada", u.FirstName)
	assert.Empty(t, u.LastName)
	assert.True(t, u.IsActive)
	assert.Nil(t, u.LockedUntil)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUsers(db)

	mock.ExpectQuery(`INSERT\s+INTO\s+users`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	_, err := repo.CreateUser(context.Background(), portalauth.NewUser{Email: "a@x.com", PasswordHash: "hash"})
	assert.ErrorIs(t, err, portalauth.ErrDuplicateEmail)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserByEmail(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUsers(db)
	now := time.Now().UTC()
	locked := now.Add(time.Minute)

	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+email\s*=\s*\$1$`).
		WithArgs("a@x.com").
		WillReturnRows(sqlmock.NewRows(userColumnNames).
			AddRow("u-1", "a@x.com", "hash", nil, nil, true, true, true, "SECRET", 5, locked, now, now, now))

	u, err := repo.GetUserByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.True(t, u.TwoFactorEnabled)
	assert.Equal(t, "SECRET", u.TwoFactorSecret)
	assert.Equal(t, 5, u.FailedLoginAttempts)
	require.NotNil(t, u.LockedUntil)
	assert.True(t, locked.Equal(*u.LockedUntil))
	require.NotNil(t, u.LastLogin)
}

func TestGetUserByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUsers(db)

	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(userColumnNames))

	_, err := repo.GetUserByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, portalauth.ErrUserNotFound)
}

func TestGetUserByIDDBError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUsers(db)

	mock.ExpectQuery(`FROM\s+users`).WillReturnError(errors.New("db down"))

	_, err := repo.GetUserByID(context.Background(), "u-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, portalauth.ErrUserNotFound)
	assert.Contains(t, err.Error(), "db down")
}

func TestIncrementFailedAttempts(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUsers(db)
	now := time.Now().UTC()
	lockUntil := now.Add(15 * time.Minute)

	mock.ExpectQuery(`(?s)^UPDATE\s+users\s+SET\s+failed_login_attempts\s*=\s*failed_login_attempts\s*\+\s*1.*RETURNING\s+failed_login_attempts,\s*locked_until$`).
		WithArgs("u-1", 5, lockUntil, now).
		WillReturnRows(sqlmock.NewRows([]string{"failed_login_attempts", "locked_until"}).AddRow(5, lockUntil))

	attempts, locked, err := repo.IncrementFailedAttempts(context.Background(), "u-1", 5, lockUntil, now)
	require.NoError(t, err)
	assert.Equal(t, 5, attempts)
	require.NotNil(t, locked)
	assert.True(t, lockUntil.Equal(*locked))

	mock.ExpectQuery(`UPDATE\s+users`).
		WithArgs("u-1", 5, lockUntil, now).
		WillReturnRows(sqlmock.NewRows([]string{"failed_login_attempts", "locked_until"}).AddRow(2, nil))

	attempts, locked, err = repo.IncrementFailedAttempts(context.Background(), "u-1", 5, lockUntil, now)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Nil(t, locked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserUpdatesMapMissingRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUsers(db)
	now := time.Now()

	mock.ExpectExec(`(?s)^UPDATE\s+users\s+SET\s+failed_login_attempts\s*=\s*0`).
		WithArgs("u-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)^UPDATE\s+users\s+SET\s+is_verified\s*=\s*TRUE`).
		WithArgs("ghost", now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`(?s)^UPDATE\s+users\s+SET\s+two_factor_enabled\s*=\s*\$2`).
		WithArgs("u-1", false, nil, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RecordSuccessfulLogin(context.Background(), "u-1", now))
	assert.ErrorIs(t, repo.MarkEmailVerified(context.Background(), "ghost", now), portalauth.ErrUserNotFound)
	require.NoError(t, repo.SetTwoFactor(context.Background(), "u-1", false, "", now))
	require.NoError(t, mock.ExpectationsWereMet())
}

package portalauth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/portalauth"
	"github.com/MrEthical07/portalauth/memstore"
	"github.com/MrEthical07/portalauth/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const strongPassword = "Secret1!"

type sentMail struct {
	kind  string
	to    string
	token string
	ip    string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail error
}

func (m *recordingMailer) record(mail sentMail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, mail)
	return m.fail
}

func (m *recordingMailer) SendVerificationEmail(_ context.Context, to, token string) error {
	return m.record(sentMail{kind: "verification", to: to, token: token})
}

func (m *recordingMailer) SendPasswordResetEmail(_ context.Context, to, token string) error {
	return m.record(sentMail{kind: "reset", to: to, token: token})
}

func (m *recordingMailer) SendLoginNotification(_ context.Context, to, ip, _ string) error {
	return m.record(sentMail{kind: "login", to: to, ip: ip})
}

func (m *recordingMailer) last(kind string) (sentMail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].kind == kind {
			return m.sent[i], true
		}
	}
	return sentMail{}, false
}

func (m *recordingMailer) count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sent {
		if s.kind == kind {
			n++
		}
	}
	return n
}

type harness struct {
	engine *portalauth.Engine
	users  *memstore.Users
	tokens *memstore.Tokens
	mailer *recordingMailer
	redis  *miniredis.Miniredis
	clock  *testClock
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig() portalauth.Config {
	cfg := portalauth.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-0123456789abcdefghijkl")
	cfg.JWT.RefreshSecret = []byte("refresh-secret-0123456789abcdefghijk")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.UpgradeOnLogin = false
	return cfg
}

func newHarness(t *testing.T, mutate func(*portalauth.Config), users portalauth.UserStore) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	mem := memstore.NewUsers()
	if users == nil {
		users = mem
	}
	tokens := memstore.NewTokens()
	mailer := &recordingMailer{}

	engine, err := portalauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(users).
		WithTokenStore(tokens).
		WithMailer(mailer).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	clock := &testClock{now: time.Now()}
	portalauth.SetClock(engine, clock.Now)

	return &harness{
		engine: engine,
		users:  mem,
		tokens: tokens,
		mailer: mailer,
		redis:  mr,
		clock:  clock,
	}
}

func (h *harness) register(t *testing.T, email string) *portalauth.PublicProfile {
	t.Helper()
	profile, err := h.engine.Register(context.Background(), email, strongPassword, portalauth.Profile{FirstName: "Ada"})
	require.NoError(t, err)
	return profile
}

func (h *harness) registerVerified(t *testing.T, email string) *portalauth.PublicProfile {
	t.Helper()
	profile := h.register(t, email)
	mail, ok := h.mailer.last("verification")
	require.True(t, ok)
	require.NoError(t, h.engine.VerifyEmail(context.Background(), mail.token))
	return profile
}

func (h *harness) login(t *testing.T, email string) *portalauth.LoginResult {
	t.Helper()
	res, err := h.engine.Login(context.Background(), portalauth.LoginRequest{Email: email, Password: strongPassword})
	require.NoError(t, err)
	require.False(t, res.RequiresTwoFactor)
	return res
}

func TestRegisterDuplicateAndVerify(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	profile, err := h.engine.Register(ctx, "  A@X.com ", strongPassword, portalauth.Profile{FirstName: "Ada", LastName: "L"})
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", profile.Email)
	assert.False(t, profile.IsVerified)
	assert.True(t, profile.IsActive)

	mail, ok := h.mailer.last("verification")
	require.True(t, ok)
	assert.Equal(t, "a@x.com", mail.to)
	assert.Len(t, mail.token, 43)

	_, err = h.engine.Register(ctx, "a@x.com", "Other1!", portalauth.Profile{})
	assert.ErrorIs(t, err, portalauth.ErrDuplicateEmail)

	require.NoError(t, h.engine.VerifyEmail(ctx, mail.token))
	assert.ErrorIs(t, h.engine.VerifyEmail(ctx, mail.token), portalauth.ErrInvalidOrExpiredToken)

	got, err := h.engine.Profile(ctx, profile.ID)
	require.NoError(t, err)
	assert.True(t, got.IsVerified)
}

func TestRegisterWeakPassword(t *testing.T) {
	h := newHarness(t, nil, nil)

	_, err := h.engine.Register(context.Background(), "a@x.com", "password", portalauth.Profile{})
	require.ErrorIs(t, err, portalauth.ErrWeakPassword)

	var policyErr *password.PolicyError
	require.ErrorAs(t, err, &policyErr)
	assert.Contains(t, policyErr.Reason, "uppercase")
	assert.Equal(t, 0, h.mailer.count("verification"))
}

func TestVerifyEmailRejectsResetToken(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	h.register(t, "a@x.com")

	require.NoError(t, h.engine.RequestPasswordReset(ctx, "a@x.com"))
	reset, ok := h.mailer.last("reset")
	require.True(t, ok)

	assert.ErrorIs(t, h.engine.VerifyEmail(ctx, reset.token), portalauth.ErrInvalidOrExpiredToken)
	assert.ErrorIs(t, h.engine.VerifyEmail(ctx, ""), portalauth.ErrInvalidOrExpiredToken)
}

func TestVerifyEmailExpiredToken(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.register(t, "a@x.com")
	mail, _ := h.mailer.last("verification")

	h.clock.Advance(25 * time.Hour)
	assert.ErrorIs(t, h.engine.VerifyEmail(context.Background(), mail.token), portalauth.ErrInvalidOrExpiredToken)
}

func TestResendVerificationInvalidatesPreviousToken(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	h.register(t, "a@x.com")
	first, _ := h.mailer.last("verification")

	require.NoError(t, h.engine.ResendVerification(ctx, "a@x.com"))
	second, _ := h.mailer.last("verification")
	assert.NotEqual(t, first.token, second.token)

	assert.ErrorIs(t, h.engine.VerifyEmail(ctx, first.token), portalauth.ErrInvalidOrExpiredToken)
	require.NoError(t, h.engine.VerifyEmail(ctx, second.token))

	require.NoError(t, h.engine.ResendVerification(ctx, "a@x.com"))
	require.NoError(t, h.engine.ResendVerification(ctx, "nobody@x.com"))
	assert.Equal(t, 2, h.mailer.count("verification"))
}

func TestLoginUnknownEmailAndWrongPasswordAreIndistinguishable(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	h.register(t, "a@x.com")

	_, errUnknown := h.engine.Login(ctx, portalauth.LoginRequest{Email: "b@x.com", Password: strongPassword})
	_, errWrong := h.engine.Login(ctx, portalauth.LoginRequest{Email: "a@x.com", Password: "Wrong1!xx"})

	assert.ErrorIs(t, errUnknown, portalauth.ErrInvalidCredentials)
	assert.ErrorIs(t, errWrong, portalauth.ErrInvalidCredentials)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
}

func TestLoginIssuesTokensAndSession(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := portalauth.WithClientIP(context.Background(), "203.0.113.7")
	h.register(t, "a@x.com")

	res, err := h.engine.Login(ctx, portalauth.LoginRequest{Email: "A@x.com", Password: strongPassword})
	require.NoError(t, err)
	require.NotNil(t, res.Tokens)
	require.NotNil(t, res.User)
	assert.NotEmpty(t, res.Tokens.AccessToken)
	assert.NotEmpty(t, res.Tokens.RefreshToken)
	assert.NotNil(t, res.User.LastLogin)
	assert.True(t, h.redis.Exists("session:"+res.SessionID))

	principal, err := h.engine.Authenticate(ctx, res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, principal.UserID)
	assert.Equal(t, res.SessionID, principal.SessionID)
	assert.False(t, principal.IsVerified)

	_, err = h.engine.Authenticate(ctx, res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, portalauth.ErrUnauthorized)

	h.engine.Close()
	mail, ok := h.mailer.last("login")
	require.True(t, ok)
	assert.Equal(t, "203.0.113.7", mail.ip)

	assert.EqualValues(t, 1, h.engine.MetricsSnapshot().Counters[portalauth.MetricLoginSuccess])
}

func TestRememberMeUsesLongSessionTTL(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.register(t, "a@x.com")

	res, err := h.engine.Login(context.Background(), portalauth.LoginRequest{Email: "a@x.com", Password: strongPassword, RememberMe: true})
	require.NoError(t, err)
	assert.Equal(t, 30*24*time.Hour, h.redis.TTL("session:"+res.SessionID))

	plain := h.login(t, "a@x.com")
	assert.Equal(t, 7*24*time.Hour, h.redis.TTL("session:"+plain.SessionID))
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	profile := h.register(t, "a@x.com")

	bad := portalauth.LoginRequest{Email: "a@x.com", Password: "Wrong1!xx"}
	for i := 0; i < 5; i++ {
		_, err := h.engine.Login(ctx, bad)
		require.ErrorIs(t, err, portalauth.ErrInvalidCredentials)
	}

	_, err := h.engine.Login(ctx, portalauth.LoginRequest{Email: "a@x.com", Password: strongPassword})
	assert.ErrorIs(t, err, portalauth.ErrAccountLocked)
	assert.EqualValues(t, 1, h.engine.MetricsSnapshot().Counters[portalauth.MetricAccountLocked])

	h.clock.Advance(16 * time.Minute)
	h.login(t, "a@x.com")

	user, err := h.users.GetUserByID(ctx, profile.ID)
	require.NoError(t, err)
	assert.Zero(t, user.FailedLoginAttempts)
	assert.Nil(t, user.LockedUntil)
}

func TestDeactivatedUserCannotLoginOrAuthenticate(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	profile := h.register(t, "a@x.com")
	res := h.login(t, "a@x.com")

	require.NoError(t, h.engine.DeactivateUser(ctx, profile.ID))

	_, err := h.engine.Login(ctx, portalauth.LoginRequest{Email: "a@x.com", Password: strongPassword})
	assert.ErrorIs(t, err, portalauth.ErrAccountDeactivated)

	_, err = h.engine.Authenticate(ctx, res.Tokens.AccessToken)
	assert.ErrorIs(t, err, portalauth.ErrUnauthorized)

	_, err = h.engine.Refresh(ctx, res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, portalauth.ErrInvalidRefreshToken)
}

func TestSessionCapEvictsOldest(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	profile := h.register(t, "a@x.com")

	first := h.login(t, "a@x.com")
	for i := 0; i < 5; i++ {
		h.clock.Advance(time.Second)
		h.login(t, "a@x.com")
	}

	ids, err := h.engine.ListSessions(ctx, profile.ID)
	require.NoError(t, err)
	assert.Len(t, ids, 5)
	assert.NotContains(t, ids, first.SessionID)

	_, err = h.engine.Authenticate(ctx, first.Tokens.AccessToken)
	assert.ErrorIs(t, err, portalauth.ErrUnauthorized)
	assert.EqualValues(t, 1, h.engine.MetricsSnapshot().Counters[portalauth.MetricSessionEvicted])
}

func TestSessionCapEvictsOldestWithinSameInstant(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	profile := h.register(t, "a@x.com")

	first := h.login(t, "a@x.com")
	second := h.login(t, "a@x.com")
	for i := 0; i < 4; i++ {
		h.login(t, "a@x.com")
	}

	ids, err := h.engine.ListSessions(ctx, profile.ID)
	require.NoError(t, err)
	assert.Len(t, ids, 5)
	assert.NotContains(t, ids, first.SessionID)
	assert.Equal(t, second.SessionID, ids[0])
}

func TestRefreshKeepsSessionAndFailsAfterLogout(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	h.register(t, "a@x.com")
	res := h.login(t, "a@x.com")

	pair, err := h.engine.Refresh(ctx, res.Tokens.RefreshToken)
	require.NoError(t, err)

	principal, err := h.engine.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.SessionID, principal.SessionID)

	require.NoError(t, h.engine.Logout(ctx, principal.UserID, principal.SessionID))
	require.NoError(t, h.engine.Logout(ctx, principal.UserID, principal.SessionID))

	_, err = h.engine.Refresh(ctx, res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, portalauth.ErrInvalidRefreshToken)

	_, err = h.engine.Refresh(ctx, res.Tokens.AccessToken)
	assert.ErrorIs(t, err, portalauth.ErrInvalidRefreshToken)

	_, err = h.engine.Refresh(ctx, "garbage")
	assert.ErrorIs(t, err, portalauth.ErrInvalidRefreshToken)
}

func TestRefreshFailsAfterSessionExpiry(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.register(t, "a@x.com")
	res := h.login(t, "a@x.com")

	h.redis.FastForward(8 * 24 * time.Hour)

	_, err := h.engine.Refresh(context.Background(), res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, portalauth.ErrInvalidRefreshToken)
}

func TestLogoutAllEndsEverySession(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	profile := h.register(t, "a@x.com")
	a := h.login(t, "a@x.com")
	b := h.login(t, "a@x.com")

	n, err := h.engine.LogoutAll(ctx, profile.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, res := range []*portalauth.LoginResult{a, b} {
		_, err := h.engine.Authenticate(ctx, res.Tokens.AccessToken)
		assert.ErrorIs(t, err, portalauth.ErrUnauthorized)
	}
	assert.False(t, h.redis.Exists("user_sessions:"+profile.ID))
}

func TestPasswordResetFlow(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	profile := h.register(t, "a@x.com")
	before := h.login(t, "a@x.com")
	other := h.login(t, "a@x.com")

	ids, err := h.engine.ListSessions(ctx, profile.ID)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	require.NoError(t, h.engine.RequestPasswordReset(ctx, "nobody@x.com"))
	assert.Equal(t, 0, h.mailer.count("reset"))

	require.NoError(t, h.engine.RequestPasswordReset(ctx, "a@x.com"))
	mail, ok := h.mailer.last("reset")
	require.True(t, ok)

	err = h.engine.ResetPassword(ctx, mail.token, "weak")
	require.ErrorIs(t, err, portalauth.ErrWeakPassword)

	require.NoError(t, h.engine.ResetPassword(ctx, mail.token, "Brand2New!"))
	assert.ErrorIs(t, h.engine.ResetPassword(ctx, mail.token, "Brand3New!"), portalauth.ErrInvalidOrExpiredToken)

	ids, err = h.engine.ListSessions(ctx, profile.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.False(t, h.redis.Exists("user_sessions:"+profile.ID))
	for _, res := range []*portalauth.LoginResult{before, other} {
		assert.False(t, h.redis.Exists("session:"+res.SessionID))
		_, err = h.engine.Authenticate(ctx, res.Tokens.AccessToken)
		assert.ErrorIs(t, err, portalauth.ErrUnauthorized)
		_, err = h.engine.Refresh(ctx, res.Tokens.RefreshToken)
		assert.ErrorIs(t, err, portalauth.ErrInvalidRefreshToken)
	}

	_, err = h.engine.Login(ctx, portalauth.LoginRequest{Email: "a@x.com", Password: strongPassword})
	assert.ErrorIs(t, err, portalauth.ErrInvalidCredentials)
	_, err = h.engine.Login(ctx, portalauth.LoginRequest{Email: "a@x.com", Password: "Brand2New!"})
	assert.NoError(t, err)
}

func TestResetTokenExpires(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	h.register(t, "a@x.com")
	require.NoError(t, h.engine.RequestPasswordReset(ctx, "a@x.com"))
	mail, _ := h.mailer.last("reset")

	h.clock.Advance(61 * time.Minute)
	assert.ErrorIs(t, h.engine.ResetPassword(ctx, mail.token, "Brand2New!"), portalauth.ErrInvalidOrExpiredToken)
}

// wrongCode returns a six-digit code outside the accepted drift window.
func wrongCode(t *testing.T, h *harness, secret string) string {
	t.Helper()
	valid := map[string]bool{}
	for step := -2; step <= 2; step++ {
		c, err := portalauth.TOTPCode(h.engine, secret, h.clock.Now().Add(time.Duration(step)*30*time.Second))
		require.NoError(t, err)
		valid[c] = true
	}
	for _, c := range []string{"000000", "111111", "222222", "333333", "444444", "555555"} {
		if !valid[c] {
			return c
		}
	}
	t.Fatal("no wrong code available")
	return ""
}

func TestTwoFactorLifecycle(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	unverified := h.register(t, "u@x.com")
	_, err := h.engine.SetupTwoFactor(ctx, unverified.ID)
	assert.ErrorIs(t, err, portalauth.ErrEmailNotVerified)

	profile := h.registerVerified(t, "a@x.com")
	setup, err := h.engine.SetupTwoFactor(ctx, profile.ID)
	require.NoError(t, err)
	assert.Contains(t, setup.ProvisioningURI, "otpauth://totp/")

	wrong := wrongCode(t, h, setup.Secret)
	assert.ErrorIs(t, h.engine.EnableTwoFactor(ctx, profile.ID, setup.Secret, wrong), portalauth.ErrInvalidTwoFactorCode)

	code, err := portalauth.TOTPCode(h.engine, setup.Secret, h.clock.Now())
	require.NoError(t, err)
	require.NoError(t, h.engine.EnableTwoFactor(ctx, profile.ID, setup.Secret, code))
	assert.ErrorIs(t, h.engine.EnableTwoFactor(ctx, profile.ID, setup.Secret, code), portalauth.ErrTwoFactorAlreadyEnabled)

	res, err := h.engine.Login(ctx, portalauth.LoginRequest{Email: "a@x.com", Password: strongPassword})
	require.NoError(t, err)
	assert.True(t, res.RequiresTwoFactor)
	assert.Nil(t, res.User)
	assert.Nil(t, res.Tokens)
	assert.Empty(t, res.SessionID)

	_, err = h.engine.Login(ctx, portalauth.LoginRequest{Email: "a@x.com", Password: strongPassword, TwoFactorCode: wrong})
	assert.ErrorIs(t, err, portalauth.ErrInvalidTwoFactorCode)

	res, err = h.engine.Login(ctx, portalauth.LoginRequest{Email: "a@x.com", Password: strongPassword, TwoFactorCode: code})
	require.NoError(t, err)
	require.NotNil(t, res.Tokens)

	assert.ErrorIs(t, h.engine.DisableTwoFactor(ctx, profile.ID, "Wrong1!xx"), portalauth.ErrInvalidPassword)
	require.NoError(t, h.engine.DisableTwoFactor(ctx, profile.ID, strongPassword))
	assert.ErrorIs(t, h.engine.DisableTwoFactor(ctx, profile.ID, strongPassword), portalauth.ErrTwoFactorNotEnabled)

	user, err := h.users.GetUserByID(ctx, profile.ID)
	require.NoError(t, err)
	assert.False(t, user.TwoFactorEnabled)
	assert.Empty(t, user.TwoFactorSecret)
}

func TestTwoFactorThrottle(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	profile := h.registerVerified(t, "a@x.com")

	setup, err := h.engine.SetupTwoFactor(ctx, profile.ID)
	require.NoError(t, err)
	code, err := portalauth.TOTPCode(h.engine, setup.Secret, h.clock.Now())
	require.NoError(t, err)
	require.NoError(t, h.engine.EnableTwoFactor(ctx, profile.ID, setup.Secret, code))

	wrong := wrongCode(t, h, setup.Secret)
	for i := 0; i < 5; i++ {
		_, err := h.engine.Login(ctx, portalauth.LoginRequest{Email: "a@x.com", Password: strongPassword, TwoFactorCode: wrong})
		require.ErrorIs(t, err, portalauth.ErrInvalidTwoFactorCode)
	}

	_, err = h.engine.Login(ctx, portalauth.LoginRequest{Email: "a@x.com", Password: strongPassword, TwoFactorCode: code})
	assert.ErrorIs(t, err, portalauth.ErrTwoFactorRateLimited)

	h.redis.FastForward(6 * time.Minute)
	_, err = h.engine.Login(ctx, portalauth.LoginRequest{Email: "a@x.com", Password: strongPassword, TwoFactorCode: code})
	assert.NoError(t, err)
}

// blockingUsers never answers until the context is done.
type blockingUsers struct {
	portalauth.UserStore
}

func (blockingUsers) GetUserByEmail(ctx context.Context, _ string) (*portalauth.User, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestDependencyTimeout(t *testing.T) {
	h := newHarness(t, func(c *portalauth.Config) {
		c.Dependencies.Timeout = 50 * time.Millisecond
	}, blockingUsers{UserStore: memstore.NewUsers()})

	started := time.Now()
	_, err := h.engine.Login(context.Background(), portalauth.LoginRequest{Email: "a@x.com", Password: strongPassword})
	assert.ErrorIs(t, err, portalauth.ErrDependencyTimeout)
	assert.Less(t, time.Since(started), 2*time.Second)

	_, err = h.engine.Register(context.Background(), "a@x.com", strongPassword, portalauth.Profile{})
	assert.ErrorIs(t, err, portalauth.ErrDependencyTimeout)
}

func TestRedisUnavailable(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.register(t, "a@x.com")
	h.redis.Close()

	_, err := h.engine.Login(context.Background(), portalauth.LoginRequest{Email: "a@x.com", Password: strongPassword})
	require.Error(t, err)
	assert.True(t, errors.Is(err, portalauth.ErrDependencyUnavailable) || errors.Is(err, portalauth.ErrDependencyTimeout), err)
	assert.EqualValues(t, 1, h.engine.MetricsSnapshot().Counters[portalauth.MetricDependencyFailure])
}

func TestMailFailureDoesNotFailRegistration(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.mailer.fail = errors.New("smtp down")

	_, err := h.engine.Register(context.Background(), "a@x.com", strongPassword, portalauth.Profile{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, h.engine.MetricsSnapshot().Counters[portalauth.MetricMailFailure])
}

func TestPurgeExpiredTokens(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.register(t, "a@x.com")
	h.clock.Advance(25 * time.Hour)

	n, err := h.engine.PurgeExpiredTokens(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Zero(t, h.tokens.Len())
}

func TestAuditEventsReachSink(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	sink := portalauth.NewChannelSink(64)

	engine, err := portalauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(memstore.NewUsers()).
		WithTokenStore(memstore.NewTokens()).
		WithAuditSink(sink).
		Build()
	require.NoError(t, err)

	ctx := portalauth.WithClientIP(context.Background(), "198.51.100.1")
	_, err = engine.Register(ctx, "a@x.com", strongPassword, portalauth.Profile{})
	require.NoError(t, err)
	engine.Close()

	var types []string
	for {
		select {
		case ev := <-sink.Events():
			types = append(types, ev.EventType)
			if ev.EventType == "register_success" {
				assert.Equal(t, "198.51.100.1", ev.IP)
			}
			continue
		default:
		}
		break
	}
	assert.Contains(t, types, "register_success")
	assert.Contains(t, types, "email_verification_request")
}

func TestBuilderRejectsMissingCollaborators(t *testing.T) {
	_, err := portalauth.New().WithConfig(testConfig()).Build()
	assert.Error(t, err)

	b := portalauth.New()
	_, err = b.Build()
	assert.Error(t, err, "default config has no secrets")
}

package portalauth

import (
	"errors"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/portalauth/internal/audit"
	"github.com/MrEthical07/portalauth/internal/rate"
	"github.com/MrEthical07/portalauth/jwt"
	"github.com/MrEthical07/portalauth/password"
	"github.com/MrEthical07/portalauth/session"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Builder assembles an [Engine]. A Builder can be used for one Build only.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users  UserStore
	tokens TokenStore
	mailer Mailer

	auditSink AuditSink
	logger    logrus.FieldLogger

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing the session registry and throttles.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.users = store
	return b
}

func (b *Builder) WithTokenStore(store TokenStore) *Builder {
	b.tokens = store
	return b
}

// WithMailer sets the email collaborator. Without one, messages are only logged.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger used for lifecycle and dependency-failure
// entries. The default discards everything.
func (b *Builder) WithLogger(logger logrus.FieldLogger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.users == nil {
		return nil, errors.New("user store required")
	}
	if b.tokens == nil {
		return nil, errors.New("token store required")
	}

	logger := b.logger
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}

	hasher, err := password.NewArgon2(cfg.passwordHashConfig())
	if err != nil {
		return nil, err
	}
	// Unknown emails are verified against this hash so both paths cost the same.
	dummyHash, err := hasher.Hash("portalauth-timing-equalizer")
	if err != nil {
		return nil, err
	}

	jm, err := jwt.NewManager(jwt.Config{
		AccessKey:            cloneBytes(cfg.JWT.AccessSecret),
		RefreshKey:           cloneBytes(cfg.JWT.RefreshSecret),
		AccessTTL:            cfg.JWT.AccessTTL,
		RefreshTTL:           cfg.JWT.RefreshTTL,
		RememberMeRefreshTTL: cfg.JWT.RememberMeRefreshTTL,
		Issuer:               cfg.JWT.Issuer,
		Audience:             cfg.JWT.Audience,
		Leeway:               cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	mailer := b.mailer
	if mailer == nil {
		mailer = logOnlyMailer{logger: logger}
	}

	deps := dependencyRunner{timeout: cfg.Dependencies.Timeout}
	now := time.Now

	engine := &Engine{
		config: cfg,
		users: &credentialStore{
			store:   b.users,
			hasher:  hasher,
			lockout: cfg.Lockout,
			deps:    deps,
			now:     now,
		},
		tokens: &tokenIssuer{
			store: b.tokens,
			deps:  deps,
			now:   now,
		},
		sessions: session.NewStore(b.redis, session.Options{
			SessionPrefix: cfg.Session.SessionPrefix,
			UserPrefix:    cfg.Session.UserPrefix,
			UserSetTTL:    cfg.longestSessionTTL(),
		}),
		limiter:    rate.New(b.redis),
		totp:       newTOTPManager(cfg.TOTP),
		jwtManager: jm,
		policy:     cfg.passwordPolicy(),
		mailer:     mailer,
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
			Critical:   cfg.Audit.CriticalEvents,
		}, b.auditSink),
		metrics:   NewMetrics(cfg.Metrics),
		logger:    logger,
		deps:      deps,
		dummyHash: dummyHash,
		now:       now,
	}

	b.built = true

	return engine, nil
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/MrEthical07/portalauth"
	"github.com/MrEthical07/portalauth/httpapi"
	"github.com/MrEthical07/portalauth/internal/housekeeping"
	"github.com/MrEthical07/portalauth/internal/rate"
	"github.com/MrEthical07/portalauth/internal/serverconfig"
	"github.com/MrEthical07/portalauth/mailer"
	"github.com/MrEthical07/portalauth/memstore"
	promexport "github.com/MrEthical07/portalauth/metrics/export/prometheus"
	"github.com/MrEthical07/portalauth/pgstore"
)

// app owns every long-lived dependency of the server.
type app struct {
	engine       *portalauth.Engine
	handler      http.Handler
	housekeeping *housekeeping.Scheduler
	closers      []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *serverconfig.Config, logger *logrus.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	rdb, err := a.openRedis(cfg, logger)
	if err != nil {
		return nil, err
	}

	var (
		users  portalauth.UserStore
		tokens portalauth.TokenStore
		db     *sql.DB
	)
	switch cfg.Storage.Mode {
	case serverconfig.StoragePostgres:
		db, err = pgstore.Open(ctx, cfg.Storage.PostgresURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })

		if cfg.Storage.Migrate {
			if err := pgstore.Migrate(ctx, db); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		users = pgstore.NewUsers(db)
		tokens = pgstore.NewTokens(db)
	default:
		logger.Warn("using in-memory stores; data is lost on restart")
		users = memstore.NewUsers()
		tokens = memstore.NewTokens()
	}

	engine, err := portalauth.New().
		WithConfig(cfg.EngineConfig()).
		WithRedis(rdb).
		WithUserStore(users).
		WithTokenStore(tokens).
		WithMailer(newMailer(cfg, logger)).
		WithAuditSink(portalauth.NewLogrusSink(logger.WithField("component", "audit"))).
		WithLogger(logger.WithField("component", "engine")).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	a.engine = engine
	a.closers = append(a.closers, engine.Close)

	a.housekeeping, err = housekeeping.New(engine, cfg.Housekeeping.Schedule, cfg.Housekeeping.Timeout, logger)
	if err != nil {
		return nil, err
	}

	router := httpapi.NewRouter(engine, httpapi.Options{
		Limiter:    rate.New(rdb),
		TrustProxy: cfg.Server.TrustProxy,
		Logger:     logger.WithField("component", "http"),
		Health: func(ctx context.Context) error {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return err
			}
			if db != nil {
				return db.PingContext(ctx)
			}
			return nil
		},
	})
	if cfg.Metrics.Enabled {
		router.Handle("/metrics", promexport.Handler(promexport.NewCollector(engine))).Methods(http.MethodGet)
	}
	a.handler = router

	return a, nil
}

func (a *app) openRedis(cfg *serverconfig.Config, logger *logrus.Logger) (redis.UniversalClient, error) {
	addr := cfg.Storage.RedisAddr
	if addr == "" {
		if cfg.Storage.Mode != serverconfig.StorageMemory {
			return nil, errors.New("redis addr is required")
		}
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start embedded redis: %w", err)
		}
		a.closers = append(a.closers, mr.Close)
		addr = mr.Addr()
		logger.WithField("addr", addr).Warn("using embedded redis")
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		Password: cfg.Storage.RedisPass,
		DB:       cfg.Storage.RedisDB,
	})
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	return rdb, nil
}

func newMailer(cfg *serverconfig.Config, logger *logrus.Logger) portalauth.Mailer {
	if cfg.Mail.Provider == "postmark" {
		return mailer.NewPostmark(cfg.Mail.PostmarkToken, cfg.Mail.From, cfg.Mail.FrontendURL,
			mailer.WithAppName(cfg.Mail.AppName))
	}
	m := mailer.NewLog(logger.WithField("component", "mailer"), cfg.Mail.FrontendURL)
	m.RevealLinks = cfg.Mail.RevealLinks
	return m
}

// Command portalauth serves the account and session API.
//
// Run in memory mode (embedded Redis, in-memory stores) with
//
//	PORTALAUTH_JWT_ACCESS_SECRET=... PORTALAUTH_JWT_REFRESH_SECRET=... portalauth
//
// or point it at Postgres and Redis with a YAML file passed via -config.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/portalauth/internal/serverconfig"
)

func main() {
	configPath := flag.String("config", os.Getenv("PORTALAUTH_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := serverconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("server stopped")
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *serverconfig.Config, logger *logrus.Logger) error {
	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      app.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithFields(logrus.Fields{
			"addr":    cfg.Server.Addr,
			"storage": cfg.Storage.Mode,
		}).Info("portalauth listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	app.housekeeping.Start()

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := app.housekeeping.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("housekeeping stop: %w", err))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

// Package main is the long-running server: it serves health and diagnostics
// over HTTP, fires the daily run and the evening sweep on cron, and starts a
// missed daily run from request traffic.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"gardenwatch/internal/api"
	"gardenwatch/internal/app"
	"gardenwatch/internal/config"
	"gardenwatch/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger := app.NewLogger(cfg.LogLevel)
	logger.Info("gardenwatch server starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
		"timezone", cfg.Scheduler.Timezone,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := newHTTPServer(cfg, a, logger)
	if err != nil {
		return err
	}
	crons, err := scheduler.NewCronScheduler(a.Job, a.CronConfig(), logger)
	if err != nil {
		return fmt.Errorf("creating cron scheduler: %w", err)
	}

	return serve(ctx, cfg.Server.ShutdownTimeout, srv, crons, logger)
}

func newHTTPServer(cfg *config.Config, a *app.App, logger *slog.Logger) (*http.Server, error) {
	apiCfg := api.Config{
		Logger:      logger,
		Probes:      []api.HealthProbe{api.PingProbe("database", a.Pool)},
		Diagnostics: a.Diagnostics,
	}
	if cfg.Server.FallbackTrigger {
		apiCfg.Trigger = a.Job
	}
	router, err := api.NewServer(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("creating router: %w", err)
	}
	return &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}, nil
}

type cronRunner interface {
	Start()
	Stop(ctx context.Context) error
}

// serve runs the HTTP server and the cron scheduler until ctx is cancelled
// or the listener fails, then shuts both down within shutdownTimeout.
func serve(ctx context.Context, shutdownTimeout time.Duration, srv *http.Server, crons cronRunner, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	crons.Start()

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		httpErr := srv.Shutdown(shutdownCtx)
		if httpErr != nil {
			logger.Error("HTTP server shutdown error", "error", httpErr)
		}
		cronErr := crons.Stop(shutdownCtx)
		if cronErr != nil {
			logger.Error("cron scheduler did not stop in time", "error", cronErr)
		}
		return errors.Join(httpErr, cronErr)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped cleanly")
	return nil
}

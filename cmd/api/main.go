package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/noah-isme/checkout-api/internal/app"
	"github.com/noah-isme/checkout-api/internal/config"
	"github.com/noah-isme/checkout-api/internal/health"
	"github.com/noah-isme/checkout-api/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel, "checkout-api").With().Str("env", cfg.AppEnv).Logger()

	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)
	httpMetrics := obs.NewHTTPMetrics(cfg.MetricsNamespace, obs.ParseBucketsCSV(os.Getenv("METRICS_BUCKETS_MS")), nil)

	shutdownTracer, err := obs.InitTracer(context.Background(), obs.TracingConfig{
		ServiceName:   "checkout-api",
		Endpoint:      cfg.TracingEndpoint,
		Exporter:      cfg.TracingExporter,
		SamplingRatio: cfg.TracingSampling,
		Environment:   cfg.AppEnv,
	})
	tracing := err == nil
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracer(ctx); err != nil {
				logger.Error().Err(err).Msg("shutdown tracer")
			}
		}()
	}

	if cfg.MigrateOnStart {
		if err := app.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
		logger.Info().Msg("migrations applied")
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	deps, err := app.Connect(connectCtx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("connect dependencies")
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Error().Err(err).Msg("close dependencies")
		}
	}()

	services := app.NewServices(cfg, deps, logger)
	router := app.NewRouter(app.RouterConfig{
		Config:   cfg,
		Services: services,
		Health:   health.Deps{Pool: deps.DB, Redis: deps.Redis},
		Redis:    deps.Redis,
		Metrics:  httpMetrics,
		Logger:   logger,
		Tracing:  tracing,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-ctx.Done():
	}

	health.SetReady(false)
	logger.Info().Msg("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cimillas/ultimate-ticket/holds/internal/app"
	rediscache "github.com/cimillas/ultimate-ticket/holds/internal/cache/redis"
	"github.com/cimillas/ultimate-ticket/holds/internal/clock"
	"github.com/cimillas/ultimate-ticket/holds/internal/config"
	kafkaevents "github.com/cimillas/ultimate-ticket/holds/internal/events/kafka"
	"github.com/cimillas/ultimate-ticket/holds/internal/logging"
	"github.com/cimillas/ultimate-ticket/holds/internal/metrics"
	"github.com/cimillas/ultimate-ticket/holds/internal/storage/postgres"
	"github.com/cimillas/ultimate-ticket/holds/internal/sweeper"
	"github.com/cimillas/ultimate-ticket/holds/internal/telemetry"
	transporthttp "github.com/cimillas/ultimate-ticket/holds/internal/transport/http"
	"github.com/cimillas/ultimate-ticket/holds/migrations"
)

const (
	serviceName    = "holds-api"
	startupTimeout = 30 * time.Second
)

func main() {
	bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	config.LoadEnvFile(bootLogger)

	cfg, err := config.Load()
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("load config")
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("configure logging")
	}
	logger = logger.With().Str("service", serviceName).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("api stopped with error")
	}
	logger.Info().Msg("api stopped")
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("flush traces")
		}
	}()

	pool, err := openPool(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := migrations.Apply(ctx, pool)
	if err != nil {
		return err
	}
	for _, name := range applied {
		logger.Info().Str("migration", name).Msg("applied migration")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observer := metrics.New(reg)

	repoOpts := []postgres.Option{postgres.WithLockTimeout(cfg.LockTimeout)}
	holdRepo := postgres.NewHoldRepository(pool, repoOpts...)
	settingsRepo := postgres.NewSettingsRepository(pool)
	ttl := app.NewSettingsTTL(settingsRepo, app.TTLBounds{
		Default: cfg.HoldTTL,
		Min:     cfg.HoldTTLMin,
		Max:     cfg.HoldTTLMax,
	}, logger)

	opts := []app.Option{
		app.WithLogger(logger),
		app.WithObserver(observer),
		app.WithTTLSource(ttl),
		app.WithConfirmRetry(cfg.ConfirmAttempts, nil),
	}

	if cfg.RedisAddr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		opts = append(opts, app.WithCache(rediscache.NewAvailabilityCache(client, cfg.CacheTTL)))
		logger.Info().Str("addr", cfg.RedisAddr).Msg("availability cache enabled")
	}
	if len(cfg.KafkaBrokers) > 0 {
		publisher := kafkaevents.NewPublisher(kafkaevents.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Warn().Err(err).Msg("close kafka writer")
			}
		}()
		opts = append(opts, app.WithPublisher(publisher))
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("hold events enabled")
	}

	clk := clock.NewSystem()
	catalog := app.NewCatalogService(postgres.NewCatalogRepository(pool, repoOpts...), clk)
	sweepOpts := append([]app.Option{app.WithSweepLock(postgres.NewSweepLock(pool))}, opts...)
	runner := sweeper.NewRunner(app.NewSweeper(holdRepo, clk, sweepOpts...), cfg.SweepInterval, logger, observer)

	router := transporthttp.NewRouter(transporthttp.Dependencies{
		Logger:       logger,
		CORSOrigins:  cfg.CORSOrigins,
		DB:           pool,
		Holds:        app.NewHoldService(holdRepo, postgres.NewCartRepository(pool), clk, opts...),
		Reconcile:    app.NewReconcileService(holdRepo, clk, opts...),
		Availability: app.NewAvailabilityService(postgres.NewAvailabilityRepository(pool), clk, opts...),
		Sweeps:       runner,
		Events:       catalog,
		Zones:        catalog,
		Settings:     settingsRepo,
		EffectiveTTL: ttl,
		Metrics:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return runner.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openPool connects and pings, retrying while the database starts up.
func openPool(ctx context.Context, dsn string, logger zerolog.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, pool.Ping(ctx)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(startupTimeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn().Err(err).Dur("retry_in", next).Msg("database not ready")
		}),
	)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

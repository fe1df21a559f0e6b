// Command sweep runs one expiry and promotion sweep and exits. It is meant for
// cron-style schedulers that do not run the api process.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/cimillas/ultimate-ticket/holds/internal/app"
	rediscache "github.com/cimillas/ultimate-ticket/holds/internal/cache/redis"
	"github.com/cimillas/ultimate-ticket/holds/internal/clock"
	"github.com/cimillas/ultimate-ticket/holds/internal/config"
	kafkaevents "github.com/cimillas/ultimate-ticket/holds/internal/events/kafka"
	"github.com/cimillas/ultimate-ticket/holds/internal/logging"
	"github.com/cimillas/ultimate-ticket/holds/internal/storage/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	config.LoadEnvFile(bootLogger)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var at string
	flagSet := pflag.NewFlagSet("sweep", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "postgres connection string (default from DATABASE_URL)")
	flagSet.StringVar(&at, "at", "", "sweep as of this RFC3339 instant instead of now")
	flagSet.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	flagSet.DurationVar(&cfg.LockTimeout, "lock-timeout", cfg.LockTimeout, "per-transaction lock timeout")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return err
	}

	var clk clock.Clock = clock.NewSystem()
	if at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return fmt.Errorf("--at: %w", err)
		}
		clk = clock.NewFixed(t.UTC())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to db: %w", err)
	}
	defer pool.Close()

	ttl := app.NewSettingsTTL(postgres.NewSettingsRepository(pool), app.TTLBounds{
		Default: cfg.HoldTTL,
		Min:     cfg.HoldTTLMin,
		Max:     cfg.HoldTTLMax,
	}, logger)
	opts := []app.Option{
		app.WithLogger(logger),
		app.WithTTLSource(ttl),
		app.WithSweepLock(postgres.NewSweepLock(pool)),
	}

	if cfg.RedisAddr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		opts = append(opts, app.WithCache(rediscache.NewAvailabilityCache(client, cfg.CacheTTL)))
	}
	if len(cfg.KafkaBrokers) > 0 {
		publisher := kafkaevents.NewPublisher(kafkaevents.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		defer publisher.Close()
		opts = append(opts, app.WithPublisher(publisher))
	}

	holds := postgres.NewHoldRepository(pool, postgres.WithLockTimeout(cfg.LockTimeout))
	res, err := app.NewSweeper(holds, clk, opts...).Sweep(ctx, clk.Now())
	if errors.Is(err, app.ErrSweepBusy) {
		fmt.Println("skipped: another sweep is running")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("expired=%d promoted=%d failed_zones=%d\n", res.Expired, res.Promoted, res.FailedZones)
	if res.FailedZones > 0 {
		return fmt.Errorf("%d zones failed to sweep", res.FailedZones)
	}
	return nil
}

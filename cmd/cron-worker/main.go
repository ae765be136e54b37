package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/emiliogarza/libraria-backend/internal/circulation"
	"github.com/emiliogarza/libraria-backend/internal/cron"
	"github.com/emiliogarza/libraria-backend/internal/fines"
	"github.com/emiliogarza/libraria-backend/internal/inventory"
	"github.com/emiliogarza/libraria-backend/internal/loans"
	"github.com/emiliogarza/libraria-backend/internal/members"
	"github.com/emiliogarza/libraria-backend/internal/reservations"
	"github.com/emiliogarza/libraria-backend/pkg/config"
	"github.com/emiliogarza/libraria-backend/pkg/db"
	"github.com/emiliogarza/libraria-backend/pkg/logger"
	"github.com/emiliogarza/libraria-backend/pkg/metrics"
	"github.com/emiliogarza/libraria-backend/pkg/migrate"
	"github.com/emiliogarza/libraria-backend/pkg/redis"
)

const lockKeyFormat = "lib:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gormDB := dbClient.DB()

	memberSvc, err := members.NewService(members.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create member service", err)
		os.Exit(1)
	}

	inventorySvc, err := inventory.NewService(inventory.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	fineSvc, err := fines.NewService(fines.NewRepository(gormDB), cfg.Circulation)
	if err != nil {
		logg.Error(context.Background(), "failed to create fine service", err)
		os.Exit(1)
	}

	reservationSvc, err := reservations.NewService(reservations.NewRepository(gormDB), cfg.Circulation)
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation service", err)
		os.Exit(1)
	}

	loanSvc, err := loans.NewService(
		dbClient,
		loans.NewRepository(gormDB),
		members.NewRepository(gormDB),
		memberSvc,
		inventorySvc,
		fineSvc,
		reservationSvc,
		cfg.Circulation,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create loan service", err)
		os.Exit(1)
	}

	coordinator, err := circulation.NewCoordinator(
		dbClient,
		loanSvc,
		reservationSvc,
		fineSvc,
		inventorySvc,
		logg,
		metrics.NewCirculationMetrics(prometheus.DefaultRegisterer),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create circulation coordinator", err)
		os.Exit(1)
	}

	overdueSweep, err := cron.NewOverdueSweepJob(cron.OverdueSweepJobParams{
		Logger: logg,
		Loans:  loanSvc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create overdue sweep job", err)
		os.Exit(1)
	}

	reservationExpiry, err := cron.NewReservationExpiryJob(cron.ReservationExpiryJobParams{
		Logger:      logg,
		Circulation: coordinator,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation expiry job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(overdueSweep, reservationExpiry)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}

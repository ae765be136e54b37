package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/emiliogarza/libraria-backend/api/routes"
	"github.com/emiliogarza/libraria-backend/internal/circulation"
	"github.com/emiliogarza/libraria-backend/internal/fines"
	"github.com/emiliogarza/libraria-backend/internal/inventory"
	"github.com/emiliogarza/libraria-backend/internal/loans"
	"github.com/emiliogarza/libraria-backend/internal/members"
	"github.com/emiliogarza/libraria-backend/internal/reports"
	"github.com/emiliogarza/libraria-backend/internal/reservations"
	"github.com/emiliogarza/libraria-backend/pkg/config"
	"github.com/emiliogarza/libraria-backend/pkg/db"
	"github.com/emiliogarza/libraria-backend/pkg/logger"
	"github.com/emiliogarza/libraria-backend/pkg/metrics"
	"github.com/emiliogarza/libraria-backend/pkg/migrate"
	"github.com/emiliogarza/libraria-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	reportsSvc, err := reports.NewService(gormDB)
	if err != nil {
		logg.Error(context.Background(), "failed to create reports service", err)
		os.Exit(1)
	}

	circMetrics := metrics.NewCirculationMetrics(prometheus.DefaultRegisterer)
	coordinator, err := circulation.NewCoordinator(
		dbClient,
		loanSvc,
		reservationSvc,
		fineSvc,
		inventorySvc,
		logg,
		circMetrics,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create circulation coordinator", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			coordinator,
			loanSvc,
			reservationSvc,
			fineSvc,
			inventorySvc,
			memberSvc,
			reportsSvc,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/memstore"
	"github.com/hackgods/clinic-scheduling/internal/observability/metrics"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
	"github.com/hackgods/clinic-scheduling/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("api-server starting up",
		"env", cfg.Env,
		"http_port", cfg.HTTPPort,
		"storage", cfg.StorageDriver,
		"clinic_timezone", cfg.ClinicLocation.String(),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		pgPool       *pgxpool.Pool
		rdb          *redis.Client
		scheduleRepo schedule.Repository
		apptRepo     appointment.Repository
		locker       redisclient.Locker
	)

	switch cfg.StorageDriver {
	case config.StoragePostgres:
		// Connect Postgres
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PostgresMaxConn)
		cancelPg()
		if err != nil {
			logger.Error("postgres connection error", "error", err)
			os.Exit(1)
		}
		defer pgPool.Close()
		logger.Info("connected to Postgres")

		// Connect Redis
		rdb, err = redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			logger.Error("redis connection error", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("error closing redis", "error", err)
			}
		}()
		logger.Info("connected to Redis", "addr", cfg.RedisAddr)

		scheduleRepo = schedule.NewPgRepository(pgPool)
		apptRepo = appointment.NewPgRepository(pgPool)
		locker = redisclient.NewRedisLocker(rdb, cfg.LockTTL)

	case config.StorageMemory:
		store := memstore.New()
		seeded, err := memstore.SeedDemo(rootCtx, store, gofakeit.New(0), 3, 20)
		if err != nil {
			logger.Error("seed memory store", "error", err)
			os.Exit(1)
		}
		logger.Warn("using in-memory storage; data is lost on restart",
			"doctors", len(seeded.Doctors),
			"patients", len(seeded.Patients),
		)
		for _, id := range seeded.Doctors {
			logger.Info("seeded doctor", "doctor_id", id)
		}

		scheduleRepo = store
		apptRepo = store
		locker = memstore.NewLocker()
	}

	bookingMetrics := metrics.NewBookingMetrics(prometheus.DefaultRegisterer)

	schedules := schedule.NewService(scheduleRepo, schedule.Options{
		Logger:   logger.With("component", "schedule"),
		Location: cfg.ClinicLocation,
	})
	appointments := appointment.NewService(apptRepo, scheduleRepo, locker, appointment.Options{
		Logger:          logger.With("component", "appointment"),
		Metrics:         bookingMetrics,
		Location:        cfg.ClinicLocation,
		MaxAlternatives: cfg.AlternativesMaxResults,
		HorizonDays:     cfg.AlternativesHorizonDays,
	})

	router := api.NewRouter(api.RouterConfig{
		Schedules:    schedules,
		Appointments: appointments,
		Auth:         auth.NewResolver(cfg.JWTSecret),
		Health:       api.NewHealthHandler(pgPool, rdb, cfg.Env, cfg.Version),
		Logger:       logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-rootCtx.Done():
	case err := <-serverErr:
		if err != nil {
			logger.Error("http server error", "error", err)
		}
	}

	logger.Info("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

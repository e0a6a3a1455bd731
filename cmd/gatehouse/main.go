package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/gatehouse/gatehouse/pkg/api"
	"github.com/gatehouse/gatehouse/pkg/auth"
	"github.com/gatehouse/gatehouse/pkg/config"
	"github.com/gatehouse/gatehouse/pkg/files"
	"github.com/gatehouse/gatehouse/pkg/observability"
	"github.com/gatehouse/gatehouse/pkg/rbac"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	logger := observability.NewLogger(cfg.LogLevel)
	logger.Info("starting gatehouse")

	db, err := openDatabase(cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	ctx := context.Background()
	if err := rbac.RunMigrations(ctx, db, logger); err != nil {
		logger.WithError(err).Fatal("failed to run migrations")
	}

	creds := auth.NewCredentialStore(cfg.Auth, logger)
	tokens := auth.NewTokenService(cfg.Auth)

	store := rbac.NewStore(db)
	resolver := rbac.NewResolver(store, tokens, cfg.Auth, logger)

	if err := rbac.Provision(ctx, store, creds, cfg.Admin, logger); err != nil {
		logger.WithError(err).Fatal("failed to provision baseline access graph")
	}

	objects, err := files.NewObjectStore(cfg.Storage.Root)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize file storage")
	}
	fileStore := files.NewStore(db)
	fileService := files.NewService(fileStore, objects, cfg.Storage.MaxUploadSize,
		files.ExpandTypeGroups(cfg.Storage.AllowedTypes), logger)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := observability.NewMetrics(registry)

	scheduler := cron.New()
	if cfg.Storage.MaintenanceSchedule != "" {
		sweeper := files.NewSweeper(fileStore, objects, cfg.Storage.OrphanGracePeriod, logger)
		if _, err := scheduler.AddFunc(cfg.Storage.MaintenanceSchedule, sweeper.Run); err != nil {
			logger.WithError(err).Fatal("invalid maintenance schedule")
		}
		scheduler.Start()
		defer scheduler.Stop()
		logger.WithField("schedule", cfg.Storage.MaintenanceSchedule).Info("orphan sweep scheduled")
	}

	router := api.NewRouter(api.Deps{
		Store:       store,
		FileService: fileService,
		Creds:       creds,
		Tokens:      tokens,
		Resolver:    resolver,
		Metrics:     metrics,
		Logger:      logger,
		StorageRoot: cfg.Storage.Root,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	observability.RegisterMetricsEndpoint(healthMux, registry)
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	go func() {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	go func() {
		logger.WithField("addr", server.Addr).Info("api server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("api server failed")
		}
	}()

	// Keep connection pool gauges current.
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			stats := db.Stats()
			metrics.DBConnectionsActive.Set(float64(stats.InUse))
			metrics.DBConnectionsIdle.Set(float64(stats.Idle))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("api server shutdown failed")
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("health server shutdown failed")
	}
	logger.Info("shutdown complete")
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/shapeeat/sales-service/config"
	_ "github.com/shapeeat/sales-service/docs"
	"github.com/shapeeat/sales-service/internal/analytics"
	"github.com/shapeeat/sales-service/internal/database"
	"github.com/shapeeat/sales-service/internal/handlers"
	"github.com/shapeeat/sales-service/internal/middleware"
	"github.com/shapeeat/sales-service/internal/pipeline"
	"github.com/shapeeat/sales-service/internal/scheduler"
	"github.com/shapeeat/sales-service/internal/storage"
	"github.com/shapeeat/sales-service/internal/sweepers"
	"github.com/shapeeat/sales-service/internal/telemetry"
	"github.com/shapeeat/sales-service/internal/vendlive"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// @title Shape Eat Sales Service API
// @version 1.0
// @description VendLive proxy, sales sync and statistics for the Shape Eat dashboard
// @BasePath /
func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := initLogger(cfg.Logging)

	logger.Info().Str("version", version).Str("environment", cfg.Environment).Msg("Starting sales service")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.ConfigFromEnv(version, cfg.Environment))
	if err != nil {
		logger.Warn().Err(err).Msg("Telemetry disabled")
		shutdownTelemetry = func(context.Context) error { return nil }
	}

	var store storage.Store
	if cfg.Database.URL == "" {
		logger.Warn().Msg("DATABASE_URL not set, stats and sync run on an in-memory store")
		store = storage.NewMemoryStore()
	} else {
		if err := database.ConnectConfig(ctx, cfg.Database); err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer database.Close()
		logger.Info().Msg("Database connected")

		if err := database.Migrate(ctx, database.Pool()); err != nil {
			logger.Fatal().Err(err).Msg("Failed to migrate database")
		}
		store = database.NewPostgresStore(database.Pool())
	}

	proxyClient, err := vendlive.NewFromConfig(cfg, vendlive.ProfileProxy, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create VendLive client")
	}
	batchClient, err := vendlive.NewFromConfig(cfg, vendlive.ProfileBatch, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create VendLive batch client")
	}
	if !proxyClient.Configured() {
		logger.Warn().Msg("VENDLIVE_API_TOKEN not set, upstream calls will be rejected")
	}

	runSync := func(ctx context.Context, opts pipeline.Options) (*pipeline.Result, error) {
		if opts.BatchSize == 0 {
			opts.BatchSize = cfg.Sync.BatchSize
		}
		if opts.BatchPause == 0 {
			opts.BatchPause = cfg.Sync.BatchPause
		}
		return pipeline.Run(ctx, pipeline.Deps{Source: batchClient, Store: store, Logger: logger}, opts)
	}
	syncScheduler := scheduler.New(runSync, logger, scheduler.Config{
		Interval:     cfg.Sync.Interval,
		LookbackDays: cfg.Sync.LookbackDays,
	})
	go syncScheduler.Start(ctx)

	runSweeper := sweepers.NewSyncRunSweeper(store, logger, sweepers.Config{
		Interval:    cfg.Sync.SweepInterval,
		StaleAfter:  cfg.Sync.StaleAfter,
		Retention:   cfg.Sync.RunRetention,
		SyncRunning: syncScheduler.Running,
	})
	go runSweeper.Start(ctx)

	handlers.Init(handlers.Deps{
		VendLive: proxyClient,
		Store:    store,
		Stats:    analytics.NewService(store),
		Sync:     syncScheduler,
		Version:  version,
		Logger:   logger,

		InMemoryStore: cfg.Database.URL == "",
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.Logging.Level == "info" || cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	handlers.RegisterRoutes(ctx, router, handlers.RouteConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		InternalAPIKey: cfg.Server.InternalAPIKey,
		ExposeStack:    !cfg.IsProduction(),
		RateLimit:      middleware.DefaultRateLimiterConfig(),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	runSweeper.Stop()
	// waits for a triggered sync to record its outcome
	syncScheduler.Stop()

	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Failed to flush telemetry")
	}

	logger.Info().Msg("Server exited")
}

func initLogger(cfg config.LoggingConfig) *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var output io.Writer
	if cfg.Format == "json" {
		output = os.Stdout
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stdout, NoColor: cfg.NoColor}
	}

	logger := zerolog.New(output).Level(level).With().Timestamp().Str("service", "sales-service").Logger()
	return &logger
}

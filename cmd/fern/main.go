package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/handlers"
	"github.com/Ramsey-B/fern/internal/repositories/anime"
	"github.com/Ramsey-B/fern/internal/repositories/audit"
	"github.com/Ramsey-B/fern/internal/repositories/binding"
	"github.com/Ramsey-B/fern/internal/repositories/episode"
	"github.com/Ramsey-B/fern/internal/repositories/externalanime"
	"github.com/Ramsey-B/fern/internal/repositories/externalepisode"
	"github.com/Ramsey-B/fern/internal/repositories/externalschedule"
	"github.com/Ramsey-B/fern/internal/repositories/job"
	"github.com/Ramsey-B/fern/internal/repositories/release"
	"github.com/Ramsey-B/fern/internal/repositories/settings"
	"github.com/Ramsey-B/fern/internal/scheduler"
	"github.com/Ramsey-B/fern/internal/services/autoupdate"
	"github.com/Ramsey-B/fern/internal/services/publish"
	syncservice "github.com/Ramsey-B/fern/internal/services/sync"
	"github.com/Ramsey-B/fern/pkg/coordination"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/source"
	"github.com/Ramsey-B/fern/pkg/source/httpapi"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel)
	logger.WithField("config", *configPath).Info("Starting Fern")

	tracerProvider := sdktrace.NewTracerProvider()
	tracing.SetTracer(tracerProvider.Tracer("fern"))

	db, err := database.Connect(database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Name:            cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(db, cfg.Database.DBName, cfg.Database.MigrationFolder, logger); err != nil {
		logger.WithError(err).Error("Failed to run migrations")
		os.Exit(1)
	}

	redisStore, err := coordination.NewRedisStore(coordination.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to Redis")
		os.Exit(1)
	}
	defer redisStore.Close()

	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.Topic,
		BatchSize:    cfg.Kafka.BatchSize,
		BatchTimeout: cfg.Kafka.BatchTimeout,
		RequiredAcks: cfg.Kafka.RequiredAcks,
		Compression:  cfg.Kafka.Compression,
	}, logger)
	defer producer.Close()
	emitter := events.NewEmitter(producer, logger)

	// Repositories
	externalAnimeRepo := externalanime.NewRepository(db, logger)
	externalEpisodeRepo := externalepisode.NewRepository(db, logger)
	externalScheduleRepo := externalschedule.NewRepository(db, logger)
	animeRepo := anime.NewRepository(db, logger)
	episodeRepo := episode.NewRepository(db, logger)
	releaseRepo := release.NewRepository(db, logger)
	bindingRepo := binding.NewRepository(db, logger)
	jobRepo := job.NewRepository(db, logger)
	auditRepo := audit.NewRepository(db, logger)
	settingsRepo := settings.NewRepository(db, logger)
	txManager := database.NewManager(db, logger)

	// Source adapters
	adapters := make([]source.Adapter, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		adapters = append(adapters, httpapi.New(httpapi.Config{
			SourceID:       sc.ID,
			Name:           sc.Name,
			BaseURL:        sc.BaseURL,
			Token:          sc.Token,
			PageSize:       sc.PageSize,
			Timeout:        sc.Timeout,
			MaxAttempts:    sc.Retry.MaxAttempts,
			InitialBackoff: sc.Retry.InitialBackoff,
			MaxBackoff:     sc.Retry.MaxBackoff,
		}, logger))
	}
	registry, err := source.NewRegistry(adapters...)
	if err != nil {
		logger.WithError(err).Error("Invalid source configuration")
		os.Exit(1)
	}

	// Services
	syncSvc := syncservice.NewService(
		registry, externalAnimeRepo, externalEpisodeRepo, externalScheduleRepo,
		bindingRepo, jobRepo, settingsRepo, logger,
	)
	publishSvc := publish.NewService(
		externalAnimeRepo, externalEpisodeRepo, bindingRepo, animeRepo,
		episodeRepo, releaseRepo, auditRepo, settingsRepo, txManager, emitter, logger,
	)
	autoupdateSvc := autoupdate.NewService(
		registry, externalAnimeRepo, externalEpisodeRepo, externalScheduleRepo,
		bindingRepo, episodeRepo, jobRepo, settingsRepo, txManager, emitter,
		cfg.Autoupdate.EpisodeBatchSize, logger,
	)

	sched := scheduler.New(
		cfg.Scheduler, redisStore, registry, settingsRepo, jobRepo, auditRepo,
		syncSvc, autoupdateSvc, logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	// HTTP server
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	checker := health.NewChecker(db, redisStore.Client(), version)
	e.GET("/livez", checker.LivenessHandler)
	e.GET("/readyz", checker.ReadinessHandler)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	handlers.NewSyncHandler(syncSvc, logger).RegisterRoutes(api)
	handlers.NewPublishHandler(publishSvc, logger).RegisterRoutes(api)
	handlers.NewAutoupdateHandler(autoupdateSvc, logger).RegisterRoutes(api)
	handlers.NewSettingsHandler(settingsRepo, auditRepo, logger).RegisterRoutes(api)
	handlers.NewJobHandler(jobRepo, logger).RegisterRoutes(api)
	handlers.NewAuditHandler(auditRepo, logger).RegisterRoutes(api)
	handlers.NewLockHandler(animeRepo, auditRepo, logger).RegisterRoutes(api)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.App.Port)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("HTTP server stopped")
			cancel()
		}
	}()
	checker.SetReady(true)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("Shutting down")
	case <-ctx.Done():
	}

	checker.SetReady(false)
	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP server shutdown failed")
	}

	_ = tracerProvider.Shutdown(shutdownCtx)
	logger.Info("Stopped")
}

func setupLogger(level string) ectologger.Logger {
	var zapCfg zap.Config
	switch level {
	case "debug":
		zapCfg = zap.NewDevelopmentConfig()
	default:
		zapCfg = zap.NewProductionConfig()
	}

	zapLogger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

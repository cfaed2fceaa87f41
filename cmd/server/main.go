package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appetl "github.com/Juliiscoding/MercuriosAIgoinglive/internal/application/etl"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/infrastructure/auth"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/infrastructure/cache"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/infrastructure/config"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/infrastructure/logger"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/infrastructure/persistence"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/infrastructure/prohandel"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/infrastructure/scheduler"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/infrastructure/telemetry"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/interfaces/http/handler"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/interfaces/http/middleware"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/interfaces/http/router"
)

var _ appetl.RunGuard = (*cache.RedisRunGuard)(nil)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	ctx := context.Background()

	// The OTLP log bridge must exist before the logger so its core can be teed in
	logProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	})
	if err != nil {
		panic("Failed to initialize log exporter: " + err.Error())
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		panic("Failed to parse log level: " + err.Error())
	}
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}, logProvider.Core(level))
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting ProHandel ETL",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Tracing and metrics
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsExportInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	metrics, err := telemetry.NewETLMetrics(meterProvider.Meter(cfg.Telemetry.ServiceName))
	if err != nil {
		log.Fatal("Failed to create ETL metrics", zap.Error(err))
	}

	// Database with a zap-backed GORM logger
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if stats, err := db.Stats(); err == nil {
			log.Info("Database pool stats",
				zap.Int("open", stats.OpenConnections),
				zap.Int64("wait_count", stats.WaitCount),
				zap.Duration("wait_duration", stats.WaitDuration),
			)
		}
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled: cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
	}, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	log.Info("Database connected successfully")

	// Remote API client
	credentials, err := newCredentialsProvider(ctx, cfg.ProHandel)
	if err != nil {
		log.Fatal("Failed to configure ProHandel credentials", zap.Error(err))
	}
	clientCfg := prohandel.NewConfig(cfg.ProHandel.AuthURL, cfg.ProHandel.APIURL)
	clientCfg.Timeout = cfg.ProHandel.RequestTimeout
	clientCfg.PageSize = cfg.Sync.PageSize
	client, err := prohandel.NewClient(clientCfg, credentials,
		prohandel.WithLogger(log),
		prohandel.WithMetrics(metrics),
	)
	if err != nil {
		log.Fatal("Failed to create ProHandel client", zap.Error(err))
	}

	// ETL stages
	extractor := appetl.NewExtractor(client, log,
		appetl.WithRetryPolicy(retryPolicy(cfg.Sync)),
		appetl.WithExtractPageSize(cfg.Sync.PageSize),
		appetl.WithRetryMetrics(metrics),
	)
	transformer := appetl.NewTransformer(log)
	loader := persistence.NewETLLoader(db.DB, log, persistence.WithBatchSize(cfg.Sync.LoadBatchSize))

	guard, closeGuard, err := newRunGuard(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to create sync lock", zap.Error(err))
	}
	defer closeGuard()

	schedule, err := scheduleConfig(cfg.Scheduler)
	if err != nil {
		log.Fatal("Invalid sync schedule", zap.Error(err))
	}
	orchestrator := appetl.NewOrchestrator(extractor, transformer, loader, log,
		appetl.WithRunGuard(guard),
		appetl.WithOrchestratorMetrics(metrics),
		appetl.WithSchedule(schedule),
	)

	if cfg.Scheduler.Enabled {
		if err := orchestrator.StartScheduledSync(ctx); err != nil {
			log.Fatal("Failed to start scheduled sync", zap.Error(err))
		}
		log.Info("Scheduled sync started",
			zap.Duration("incremental_interval", cfg.Scheduler.IncrementalInterval),
			zap.Int("full_sync_hour", cfg.Scheduler.FullSyncHour),
			zap.Int("full_sync_minute", cfg.Scheduler.FullSyncMinute),
		)
	} else {
		log.Info("Scheduled sync disabled")
	}

	// HTTP control API
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	jwtService := auth.NewJWTService(cfg.API)
	if !jwtService.Enabled() {
		log.Warn("api.jwt_secret is empty, ETL endpoints are unauthenticated")
	}
	engine := router.New(router.Config{
		Sync:   handler.NewSyncHandler(orchestrator, loader, persistence.DefaultRecentRunsLimit, log),
		Health: handler.NewHealthHandler(db, log),
		Logger: log,
		Tracing: middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     tracerProvider.IsEnabled(),
		},
		JWT: jwtService,
	})

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := orchestrator.StopScheduledSync(shutdownCtx); err != nil {
		log.Error("Failed to stop scheduled sync", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to flush metrics", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to flush traces", zap.Error(err))
	}
	if err := logProvider.Shutdown(shutdownCtx, log); err != nil {
		log.Error("Failed to flush logs", zap.Error(err))
	}

	log.Info("Server exited")
}

func newCredentialsProvider(ctx context.Context, cfg config.ProHandelConfig) (prohandel.CredentialsProvider, error) {
	if cfg.CredentialsSource == "secretsmanager" {
		return prohandel.LoadSecretsManagerCredentials(ctx, cfg.SecretID)
	}
	return prohandel.StaticCredentials{APIKey: cfg.APIKey, Secret: cfg.APISecret}, nil
}

func retryPolicy(cfg config.SyncConfig) appetl.RetryPolicy {
	p := appetl.DefaultRetryPolicy()
	p.MaxAttempts = cfg.MaxRetries
	p.Delay = cfg.RetryDelay
	if cfg.RetryBackoff == "exponential" {
		p.Backoff = appetl.ExponentialBackoff
	}
	return p
}

func scheduleConfig(cfg config.SchedulerConfig) (appetl.ScheduleConfig, error) {
	sc := appetl.DefaultScheduleConfig()
	if cfg.IncrementalInterval > 0 && cfg.IncrementalInterval != time.Hour {
		sc.Incremental = scheduler.Every(cfg.IncrementalInterval)
	}
	sc.Full = scheduler.DailyAt(cfg.FullSyncHour, cfg.FullSyncMinute)

	// cron expressions win over the interval settings
	if cfg.IncrementalCron != "" {
		s, err := scheduler.ParseSchedule(cfg.IncrementalCron)
		if err != nil {
			return sc, fmt.Errorf("scheduler.incremental_cron: %w", err)
		}
		sc.Incremental = s
	}
	if cfg.FullCron != "" {
		s, err := scheduler.ParseSchedule(cfg.FullCron)
		if err != nil {
			return sc, fmt.Errorf("scheduler.full_cron: %w", err)
		}
		sc.Full = s
	}
	return sc, nil
}

// newRunGuard returns the guard selected by sync.lock_backend and a func
// that releases its resources.
func newRunGuard(ctx context.Context, cfg *config.Config, log *zap.Logger) (appetl.RunGuard, func(), error) {
	if cfg.Sync.LockBackend != "redis" {
		return appetl.NewMemoryRunGuard(), func() {}, nil
	}
	rdb, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := rdb.Close(); err != nil {
			log.Error("Error closing Redis client", zap.Error(err))
		}
	}
	log.Info("Using Redis sync lock", zap.String("addr", cfg.Redis.Addr()))
	return cache.NewRedisRunGuard(rdb, cache.DefaultRunGuardKey, cfg.Sync.LockTTL, log), closeFn, nil
}

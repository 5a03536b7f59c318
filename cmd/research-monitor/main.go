package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	// Application
	applicationPort "github.com/dreschagin/research-monitor/internal/application/port"
	"github.com/dreschagin/research-monitor/internal/application/usecase"

	// Domain
	"github.com/dreschagin/research-monitor/internal/domain/service"

	// Infrastructure
	redisCache "github.com/dreschagin/research-monitor/internal/infrastructure/cache/redis"
	natsInfra "github.com/dreschagin/research-monitor/internal/infrastructure/messaging/nats"
	wsInfra "github.com/dreschagin/research-monitor/internal/infrastructure/notification/websocket"
	"github.com/dreschagin/research-monitor/internal/infrastructure/observability/cloudwatch"
	"github.com/dreschagin/research-monitor/internal/infrastructure/openaire"
	"github.com/dreschagin/research-monitor/internal/infrastructure/persistence/postgres"
	"github.com/dreschagin/research-monitor/internal/infrastructure/registry"
	s3storage "github.com/dreschagin/research-monitor/internal/infrastructure/storage/s3"

	// Interfaces
	httpInterface "github.com/dreschagin/research-monitor/internal/interfaces/http"
	"github.com/dreschagin/research-monitor/internal/interfaces/http/handler"
	"github.com/dreschagin/research-monitor/internal/interfaces/http/middleware"
	"github.com/dreschagin/research-monitor/internal/scheduler"

	// Shared
	"github.com/dreschagin/research-monitor/pkg/config"
	"github.com/dreschagin/research-monitor/pkg/logger"

	_ "github.com/lib/pq"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log := logger.NewWithFile(cfg.LogLevel, cfg.LogDir)
	defer log.Close()
	log.Info("Starting Research Monitor")

	// 3. Connect to the database
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Error("Failed to open database", err)
		os.Exit(1)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.Database.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		log.Error("Failed to ping database", err)
		os.Exit(1)
	}
	if err := postgres.Migrate(context.Background(), db); err != nil {
		log.Error("Failed to run migrations", err)
		os.Exit(1)
	}
	log.Info("Database connected successfully")

	// 4. Dependency Injection - Infrastructure Layer

	snapshotRepository := postgres.NewPostgresSnapshotRepository(db)
	alertRepository := postgres.NewPostgresAlertRepository(db)

	roster, err := registry.LoadYAMLRegistry(cfg.Collector.OrganizationsFile)
	if err != nil {
		log.Error("Failed to load organization registry", err, "path", cfg.Collector.OrganizationsFile)
		os.Exit(1)
	}
	log.Info("Organization registry loaded", "organizations", len(roster.All()))

	graphClient := openaire.NewClient(openaire.Options{
		BaseURL:        cfg.OpenAIRE.APIBaseURL,
		AuthURL:        cfg.OpenAIRE.AuthURL,
		ClientID:       cfg.OpenAIRE.ClientID,
		ClientSecret:   cfg.OpenAIRE.ClientSecret,
		RequestTimeout: cfg.OpenAIRE.RequestTimeout,
		PageSize:       cfg.OpenAIRE.PageSize,
		RequestDelay:   cfg.Collector.RequestDelay,
		MaxRetries:     cfg.Collector.MaxRetries,
		BackoffBase:    cfg.Collector.BackoffBase,
		BackoffCap:     cfg.Collector.BackoffCap,
	}, log)

	// WebSocket Hub
	hub := wsInfra.NewHub(log)

	// 4.5. Optional integrations (nil when disabled)

	var cache applicationPort.Cache
	if cfg.Redis.Enabled {
		cacheImpl, initErr := redisCache.NewRedisCache(
			cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize)
		if initErr != nil {
			log.Warn("Failed to connect to Redis, continuing without cache", "error", initErr.Error())
		} else {
			cache = cacheImpl
			defer cacheImpl.Close()
			log.Info("Redis cache initialized", "host", cfg.Redis.Host)
		}
	} else {
		log.Warn("Redis cache is disabled")
	}

	var eventPublisher applicationPort.EventPublisher
	if cfg.NATS.Enabled {
		publisherImpl, initErr := natsInfra.NewNATSPublisher(cfg.NATS.URL, log)
		if initErr != nil {
			log.Warn("Failed to connect to NATS, continuing without event publishing", "error", initErr.Error())
		} else {
			eventPublisher = publisherImpl
			defer eventPublisher.Close()
			log.Info("NATS event publisher initialized", "url", cfg.NATS.URL)
		}
	} else {
		log.Warn("NATS event publishing is disabled")
	}

	var runMetrics applicationPort.RunMetricsPublisher
	var cloudwatchPublisher *cloudwatch.MetricsPublisher
	if cfg.CloudWatch.Enabled {
		publisherImpl, initErr := cloudwatch.NewMetricsPublisher(context.Background(),
			cloudwatch.MetricsPublisherConfig{
				Namespace:       cfg.CloudWatch.Namespace,
				Region:          cfg.CloudWatch.Region,
				Endpoint:        cfg.CloudWatch.Endpoint,
				AccessKeyID:     cfg.CloudWatch.AccessKeyID,
				SecretAccessKey: cfg.CloudWatch.SecretAccessKey,
				BufferSize:      cfg.CloudWatch.BufferSize,
				FlushInterval:   cfg.CloudWatch.FlushInterval,
			})
		if initErr != nil {
			log.Error("Failed to initialize CloudWatch metrics publisher", initErr)
			os.Exit(1)
		}
		runMetrics = publisherImpl
		cloudwatchPublisher = publisherImpl
		log.Info("CloudWatch metrics publisher initialized")
	} else {
		log.Warn("CloudWatch metrics publishing is disabled")
	}

	var exportStorage applicationPort.ExportStorage
	if cfg.S3.Enabled {
		storageImpl, initErr := s3storage.NewExportStorage(context.Background(), s3storage.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
			Prefix:          cfg.S3.KeyPrefix,
		})
		if initErr != nil {
			log.Error("Failed to initialize export storage", initErr)
			os.Exit(1)
		}
		exportStorage = storageImpl
		log.Info("S3 export storage initialized", "bucket", cfg.S3.Bucket)
	} else {
		log.Warn("S3 export storage is disabled, daily exports are skipped")
	}

	// 5. Dependency Injection - Domain Layer

	evaluator := service.NewRuleEvaluator(service.Thresholds{
		DropPercent:         cfg.Alerts.PublicationDropPercent,
		CriticalDropPercent: cfg.Alerts.CriticalDropPercent,
		StaleDays:           cfg.Alerts.StaleDataDays,
		FreshnessDays:       cfg.Alerts.DataFreshnessDays,
		FreshnessCritical:   cfg.Alerts.FreshnessCriticalDays,
		UnavailableAfter:    time.Duration(cfg.Alerts.UnavailableHours) * time.Hour,
		RecoveryPercent:     cfg.Alerts.RecoveryPercent,
		RecoverySnapshots:   cfg.Alerts.RecoverySnapshots,
	})

	// 6. Dependency Injection - Application Layer (Use Cases)

	evaluateAlertsUC := usecase.NewEvaluateAlertsUseCase(
		snapshotRepository,
		alertRepository,
		evaluator,
		eventPublisher, // can be nil if NATS disabled
		hub,
		log,
	)

	var exportUC *usecase.ExportSnapshotsUseCase
	if exportStorage != nil {
		exportUC = usecase.NewExportSnapshotsUseCase(snapshotRepository, exportStorage, log)
	}

	runCollectionUC := usecase.NewRunCollectionUseCase(
		roster,
		graphClient,
		snapshotRepository,
		evaluateAlertsUC,
		eventPublisher,
		cache,
		runMetrics,
		exportUC,
		log,
		cfg.Collector.Parallelism,
	)

	getSnapshotsUC := usecase.NewGetSnapshotsUseCase(snapshotRepository, cache, log)
	getAlertsUC := usecase.NewGetAlertsUseCase(alertRepository, cache, log)
	testConnectionUC := usecase.NewTestConnectionUseCase(graphClient, log)

	// 7. Dependency Injection - Interfaces Layer (HTTP Handlers)

	sched := scheduler.NewScheduler(runCollectionUC, log, cfg.Collector.Interval)

	authConfig := middleware.AuthConfig{
		Enabled:     cfg.Security.AuthEnabled,
		BearerToken: cfg.Security.AuthToken,
	}

	snapshotAPIHandler := handler.NewSnapshotAPIHandler(getSnapshotsUC, log)
	alertAPIHandler := handler.NewAlertAPIHandler(getAlertsUC, log)
	collectionAPIHandler := handler.NewCollectionAPIHandler(sched, testConnectionUC, log)
	websocketHandler := handler.NewWebSocketHandler(hub, log, cfg.Security.AllowedOrigins, authConfig)

	router := httpInterface.NewRouter(
		snapshotAPIHandler,
		alertAPIHandler,
		collectionAPIHandler,
		websocketHandler,
		cfg.Server,
		cfg.Security,
		log,
	)

	// 8. Start background processes

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run()
	log.Info("WebSocket hub started")

	if cfg.Collector.Interval > 0 {
		go sched.Start(ctx, cfg.Collector.RunOnStart)
		log.Info("Collection scheduler started", "interval", cfg.Collector.Interval.String())
	} else {
		log.Warn("Collection scheduler is disabled, runs must be triggered over the API")
	}

	// 9. HTTP server

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("HTTP server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server failed", err)
			os.Exit(1)
		}
	}()

	// 10. Graceful shutdown

	<-sigChan
	log.Info("Shutdown signal received, starting graceful shutdown...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", err)
	}

	if cloudwatchPublisher != nil {
		log.Info("Flushing CloudWatch metrics buffer...")
		if err := cloudwatchPublisher.Flush(); err != nil {
			log.Error("Failed to flush CloudWatch metrics", err)
		}
		if err := cloudwatchPublisher.Close(); err != nil {
			log.Error("Failed to close CloudWatch publisher", err)
		}
	}

	log.Info("Server stopped gracefully")
}

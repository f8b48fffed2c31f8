package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urgentcareq/backend/internal/adapters/storage"
	"github.com/urgentcareq/backend/internal/api/handlers"
	"github.com/urgentcareq/backend/internal/api/routes"
	"github.com/urgentcareq/backend/internal/application/services"
	"github.com/urgentcareq/backend/internal/domain/repositories"
	"github.com/urgentcareq/backend/internal/infrastructure/clients/postgres"
	"github.com/urgentcareq/backend/internal/infrastructure/clients/redis"
	"github.com/urgentcareq/backend/internal/infrastructure/observability"
	"github.com/urgentcareq/backend/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Environment)
	logger := observability.GetLogger()

	// Set up context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(
			ctx,
			cfg.OTEL.ServiceName,
			cfg.OTEL.ServiceVersion,
			cfg.OTEL.Endpoint,
		)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("Error shutting down OpenTelemetry")
				}
			}()
			logger.Info().Msg("OpenTelemetry initialized successfully")
		}
	}

	// Initialize metrics
	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}

	// Initialize the queue store for the configured backend
	var store repositories.QueueRepository
	switch cfg.Storage.Backend {
	case config.StorageBackendPostgres:
		pgClient, err := postgres.NewClient(&cfg.Database)
		if err != nil {
			log.Fatalf("Failed to initialize PostgreSQL client: %v", err)
		}
		defer pgClient.Close()

		pgStore := storage.NewPostgresQueueStore(pgClient)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to ensure queue schema: %v", err)
		}
		store = pgStore
		logger.Info().Msg("PostgreSQL queue store initialized successfully")

	case config.StorageBackendMemory:
		store = storage.NewMemoryQueueStore()
		logger.Warn().Msg("In-memory queue store selected; state is lost on restart")

	default:
		redisClient, err := redis.NewClient(&cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to initialize Redis client: %v", err)
		}
		defer redisClient.Close()

		store = storage.NewRedisQueueStore(redisClient)
		logger.Info().Msg("Redis queue store initialized successfully")
	}

	// Initialize services
	schedCfg := services.SchedulingConfig{
		QueueID:            cfg.Clinic.QueueID,
		PrepMinutes:        cfg.Clinic.PrepMinutes,
		CheckinLeadMinutes: cfg.Clinic.CheckinLeadMinutes,
	}
	queueService := services.NewQueueService(store, schedCfg, nil)
	queueService.SetMetrics(metrics)

	// Start the background no-show sweeper
	sweeper := services.NewNoShowSweeper(
		queueService,
		time.Duration(cfg.Clinic.SweepIntervalSeconds)*time.Second,
	)
	go sweeper.Run(ctx)

	// Initialize handlers
	patientHandler := handlers.NewPatientHandler(queueService)
	staffHandler := handlers.NewStaffHandler(queueService)

	// Set up router
	router := routes.NewRouter(patientHandler, staffHandler, metrics)
	handler := router.SetupRoutes()

	// Create HTTP server
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().Str("addr", serverAddr).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Server shutting down...")

	// Stop the sweeper before draining in-flight requests
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error during server shutdown")
	}

	logger.Info().Msg("Server stopped")
}

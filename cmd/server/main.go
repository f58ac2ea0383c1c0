// Package main provides the entry point for the screening service HTTP server.
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

	"github.com/helixir/screening-service/internal/config"
	"github.com/helixir/screening-service/internal/database"
	"github.com/helixir/screening-service/internal/events"
	"github.com/helixir/screening-service/internal/ingest"
	"github.com/helixir/screening-service/internal/judge"
	"github.com/helixir/screening-service/internal/observability"
	"github.com/helixir/screening-service/internal/orchestrator"
	"github.com/helixir/screening-service/internal/reconcile"
	"github.com/helixir/screening-service/internal/repository"
	"github.com/helixir/screening-service/internal/screening"
	httpserver "github.com/helixir/screening-service/internal/server/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("screening-service server starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL.
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	// Run migrations if configured.
	if cfg.Database.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if closeErr := migrator.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close migrator")
			}
		}()

		if err := migrator.Up(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	// Create metrics and repositories.
	metrics := observability.NewMetrics("screening")
	unitRepo := repository.NewPgUnitRepository(db)
	judgmentRepo := repository.NewPgJudgmentLogRepository(db)

	// Optional Kafka publisher for decision events.
	var publisher screening.DecisionPublisher
	if cfg.Kafka.Enabled {
		kafkaPublisher := events.NewPublisher(events.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		}, logger)
		defer func() {
			if closeErr := kafkaPublisher.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close kafka publisher")
			}
		}()
		publisher = kafkaPublisher
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka publisher enabled")
	}

	// Wire the screening engine.
	machine := screening.NewMachine(cfg.Screening.ConfidenceFloor)
	committer := screening.NewCommitter(unitRepo, machine, publisher, metrics, logger, cfg.Screening.CommitRetries)
	reconciler := reconcile.NewReconciler(unitRepo, metrics, logger)
	importer := ingest.NewImporter(reconciler, unitRepo, committer, metrics, logger)

	judgeClient := judge.NewClient(judge.Config{
		BaseURL:      cfg.Judge.BaseURL,
		APIKey:       cfg.Judge.APIKey,
		Model:        cfg.Judge.Model,
		ThinkingMode: cfg.Judge.ThinkingMode,
		Temperature:  cfg.Judge.Temperature,
	}, cfg.Judge.Timeout)

	orch := orchestrator.New(unitRepo, judgmentRepo, judgeClient, committer, metrics, logger, orchestrator.Config{
		MaxInFlight:    cfg.Screening.MaxInFlight,
		RateLimitRPS:   cfg.Screening.RateLimitRPS,
		RateLimitBurst: cfg.Screening.RateLimitBurst,
		MaxRetries:     cfg.Judge.MaxRetries,
		RetryDelay:     cfg.Judge.RetryDelay,
	})

	// Create the HTTP REST API server.
	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    5 * time.Minute, // Screening batches run synchronously.
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsPath:     cfg.Metrics.Path,
	}

	httpSrv := httpserver.NewServer(
		httpCfg,
		importer,
		unitRepo,
		judgmentRepo,
		committer,
		reconciler,
		orch,
		db,
		logger,
	)

	// Channel to collect server errors.
	errCh := make(chan error, 1)

	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	logger.Info().
		Str("http_address", httpCfg.Address).
		Str("judge_model", cfg.Judge.Model).
		Msg("screening-service is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	// Graceful shutdown.
	logger.Info().Msg("shutting down screening-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	logger.Info().Msg("screening-service shutdown complete")
	return nil
}

// Package main provides a CLI tool for running automated screening batches.
//
// It queries units eligible for the requested pass, streams them through the
// judgment orchestrator, and prints a per-unit outcome summary. Intended for
// operators running the bulk screening rounds of a review offline.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/helixir/screening-service/internal/config"
	"github.com/helixir/screening-service/internal/database"
	"github.com/helixir/screening-service/internal/domain"
	"github.com/helixir/screening-service/internal/judge"
	"github.com/helixir/screening-service/internal/observability"
	"github.com/helixir/screening-service/internal/orchestrator"
	"github.com/helixir/screening-service/internal/repository"
	"github.com/helixir/screening-service/internal/screening"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	pass := flag.Int("pass", 1, "Screening pass to run (1 or 2)")
	limit := flag.Int("limit", 500, "Maximum number of units to screen")
	states := flag.String("states", "", "Comma-separated screening states to select (default: eligible states for the pass)")
	unitList := flag.String("units", "", "Comma-separated unit IDs to screen instead of querying by state")
	dryRun := flag.Bool("dry-run", false, "Select units and print them without screening")
	flag.Parse()

	if *pass != 1 && *pass != 2 {
		return fmt.Errorf("pass must be 1 or 2")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	})
	logger = logger.With().Str("component", "screener").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	unitRepo := repository.NewPgUnitRepository(db)
	judgmentRepo := repository.NewPgJudgmentLogRepository(db)

	unitIDs, err := selectUnits(ctx, unitRepo, domain.Pass(*pass), *states, *unitList, *limit)
	if err != nil {
		return err
	}
	if len(unitIDs) == 0 {
		logger.Info().Msg("no units eligible for screening")
		return nil
	}

	if *dryRun {
		for _, id := range unitIDs {
			fmt.Println(id)
		}
		logger.Info().Int("units", len(unitIDs)).Msg("dry run, no screening performed")
		return nil
	}

	machine := screening.NewMachine(cfg.Screening.ConfidenceFloor)
	committer := screening.NewCommitter(unitRepo, machine, nil, nil, logger, cfg.Screening.CommitRetries)

	judgeClient := judge.NewClient(judge.Config{
		BaseURL:      cfg.Judge.BaseURL,
		APIKey:       cfg.Judge.APIKey,
		Model:        cfg.Judge.Model,
		ThinkingMode: cfg.Judge.ThinkingMode,
		Temperature:  cfg.Judge.Temperature,
	}, cfg.Judge.Timeout)

	orch := orchestrator.New(unitRepo, judgmentRepo, judgeClient, committer, nil, logger, orchestrator.Config{
		MaxInFlight:    cfg.Screening.MaxInFlight,
		RateLimitRPS:   cfg.Screening.RateLimitRPS,
		RateLimitBurst: cfg.Screening.RateLimitBurst,
		MaxRetries:     cfg.Judge.MaxRetries,
		RetryDelay:     cfg.Judge.RetryDelay,
	})

	logger.Info().
		Int("pass", *pass).
		Int("units", len(unitIDs)).
		Str("model", cfg.Judge.Model).
		Msg("screening batch starting")

	var decided, skipped, failed int
	for outcome := range orch.ScreenBatch(ctx, domain.Pass(*pass), unitIDs) {
		switch {
		case outcome.Err == nil:
			decided++
			logger.Info().
				Str("unit_id", outcome.UnitID.String()).
				Str("decision", string(outcome.Verdict.Decision)).
				Str("state", string(outcome.Unit.State)).
				Int("attempts", outcome.Attempts).
				Msg("unit decided")
		case errors.Is(outcome.Err, orchestrator.ErrReferenceUnit),
			errors.Is(outcome.Err, orchestrator.ErrNoAbstract),
			errors.Is(outcome.Err, domain.ErrOutOfOrderTransition):
			skipped++
			logger.Info().
				Str("unit_id", outcome.UnitID.String()).
				Str("reason", outcome.Err.Error()).
				Msg("unit skipped")
		default:
			failed++
			logger.Warn().
				Str("unit_id", outcome.UnitID.String()).
				Err(outcome.Err).
				Int("attempts", outcome.Attempts).
				Msg("unit failed")
		}
	}

	logger.Info().
		Int("decided", decided).
		Int("skipped", skipped).
		Int("failed", failed).
		Msg("screening batch finished")

	if failed > 0 {
		return fmt.Errorf("%d of %d units failed to screen", failed, len(unitIDs))
	}
	return nil
}

// selectUnits resolves the set of unit IDs to screen, either from an explicit
// -units list or by querying states eligible for the pass.
func selectUnits(
	ctx context.Context,
	units *repository.PgUnitRepository,
	pass domain.Pass,
	states, unitList string,
	limit int,
) ([]uuid.UUID, error) {
	if unitList != "" {
		var ids []uuid.UUID
		for _, raw := range strings.Split(unitList, ",") {
			id, err := uuid.Parse(strings.TrimSpace(raw))
			if err != nil {
				return nil, fmt.Errorf("invalid unit id %q: %w", raw, err)
			}
			ids = append(ids, id)
		}
		return ids, nil
	}

	filter := repository.UnitFilter{Limit: limit}
	if states != "" {
		for _, s := range strings.Split(states, ",") {
			filter.States = append(filter.States, domain.ScreeningState(strings.TrimSpace(s)))
		}
	} else if pass == domain.Pass1 {
		filter.States = []domain.ScreeningState{domain.StatePending}
	} else {
		filter.States = []domain.ScreeningState{domain.StatePass1Included}
	}
	// Reference units are refused by the orchestrator anyway; exclude them
	// from the query so they do not eat into the limit.
	notReference := false
	filter.Reference = &notReference

	selected, _, err := units.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}

	ids := make([]uuid.UUID, len(selected))
	for i, u := range selected {
		ids[i] = u.ID
	}
	return ids, nil
}

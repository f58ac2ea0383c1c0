// Package ingest imports parsed search-export batches into the unit store,
// reconciling each record and applying import-wide policies such as the
// reference flag and the pass-1 cold-start bypass.
package ingest

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/screening-service/internal/domain"
	"github.com/helixir/screening-service/internal/observability"
	"github.com/helixir/screening-service/internal/reconcile"
	"github.com/helixir/screening-service/internal/repository"
	"github.com/helixir/screening-service/internal/screening"
)

// ImportRequest is one batch of parsed records from a single search export.
type ImportRequest struct {
	// Source identifies the search export; stamped on every record.
	Source string

	// Records are the parsed bibliographic entries.
	Records []domain.RawRecord

	// Reference marks all resulting units as seed papers excluded from blind
	// screening.
	Reference bool

	// SkipPass1 records a pass-1 bypass on units created by this import,
	// for exports whose title screen already happened out of band.
	SkipPass1 bool
}

// ImportStats summarizes what an import did.
type ImportStats struct {
	// Total is the number of records in the batch.
	Total int `json:"total"`

	// Created counts records that became new units.
	Created int `json:"created"`

	// AttachedStrong counts records attached to existing units by DOI.
	AttachedStrong int `json:"attached_strong"`

	// AttachedWeak counts records attached to existing units by title+year.
	AttachedWeak int `json:"attached_weak"`

	// NeedsManualKey counts new units parked for manual reconciliation.
	NeedsManualKey int `json:"needs_manual_key"`

	// Failed counts records that could not be reconciled.
	Failed int `json:"failed"`

	// ByEntryType breaks the batch down by normalized entry type.
	ByEntryType map[string]int `json:"by_entry_type"`
}

// Importer imports record batches through the reconciler.
type Importer struct {
	reconciler *reconcile.Reconciler
	units      repository.UnitRepository
	committer  *screening.Committer
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

// NewImporter creates an importer. metrics may be nil.
func NewImporter(
	reconciler *reconcile.Reconciler,
	units repository.UnitRepository,
	committer *screening.Committer,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Importer {
	return &Importer{
		reconciler: reconciler,
		units:      units,
		committer:  committer,
		metrics:    metrics,
		logger:     logger.With().Str("component", "importer").Logger(),
	}
}

// ImportBatch reconciles every record in the request. Individual record
// failures are counted and logged but never abort the batch; an import is a
// bulk operation and partial progress is the useful outcome.
func (im *Importer) ImportBatch(ctx context.Context, req ImportRequest) (*ImportStats, error) {
	if req.Source == "" {
		return nil, domain.NewValidationError("source", "source is required")
	}
	if len(req.Records) == 0 {
		return nil, domain.NewValidationError("records", "batch contains no records")
	}

	logger := observability.WithImportContext(im.logger, req.Source, len(req.Records))
	logger.Info().Msg("import started")

	stats := &ImportStats{
		Total:       len(req.Records),
		ByEntryType: make(map[string]int),
	}

	for _, raw := range req.Records {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		raw.Source = req.Source
		entryType := string(domain.NormalizeEntryType(raw.EntryType))
		stats.ByEntryType[entryType]++

		outcome, err := im.reconciler.Reconcile(ctx, raw)
		if err != nil {
			stats.Failed++
			logger.Warn().Err(err).
				Str("key", raw.Key).
				Str("title", raw.Title()).
				Msg("record failed to reconcile")
			continue
		}

		if im.metrics != nil {
			im.metrics.RecordImported(entryType)
		}

		switch {
		case outcome.Created:
			stats.Created++
			if outcome.NeedsManualKey {
				stats.NeedsManualKey++
			}
		case outcome.KeyKind == "strong":
			stats.AttachedStrong++
		default:
			stats.AttachedWeak++
		}

		if err := im.applyPolicies(ctx, req, outcome); err != nil {
			logger.Warn().Err(err).
				Str("unit_id", outcome.UnitID.String()).
				Msg("failed to apply import policies to unit")
		}
	}

	logger.Info().
		Int("created", stats.Created).
		Int("attached_strong", stats.AttachedStrong).
		Int("attached_weak", stats.AttachedWeak).
		Int("needs_manual_key", stats.NeedsManualKey).
		Int("failed", stats.Failed).
		Msg("import finished")

	return stats, nil
}

// applyPolicies applies the batch-wide reference flag and pass-1 bypass to
// one reconciled unit. Only newly created units are touched: attaching a
// duplicate to an existing unit must not rewrite its screening posture.
func (im *Importer) applyPolicies(ctx context.Context, req ImportRequest, outcome *reconcile.Outcome) error {
	if !outcome.Created {
		return nil
	}

	if req.Reference {
		if err := im.markReference(ctx, outcome.UnitID); err != nil {
			return err
		}
	}
	if req.SkipPass1 {
		if _, err := im.committer.SkipPass1(ctx, outcome.UnitID); err != nil {
			return err
		}
	}
	return nil
}

// markReference sets the reference flag on a unit, retrying version races.
func (im *Importer) markReference(ctx context.Context, unitID uuid.UUID) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		unit, err := im.units.Get(ctx, unitID)
		if err != nil {
			return err
		}
		if unit.Reference {
			return nil
		}
		unit.Reference = true
		if err := im.units.Save(ctx, unit); err != nil {
			if errors.Is(err, domain.ErrStaleWrite) {
				lastErr = err
				continue
			}
			return err
		}
		return nil
	}
	return lastErr
}

// Package reconcile folds incoming bibliographic records into Review Units:
// exact DOI matches attach with near certainty, title+year matches attach
// probabilistically, and keyless records are parked for manual resolution.
// It also handles manual merge and unmerge of units.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/screening-service/internal/domain"
	"github.com/helixir/screening-service/internal/normalize"
	"github.com/helixir/screening-service/internal/observability"
	"github.com/helixir/screening-service/internal/repository"
)

// attachRetries bounds reload attempts when an attach loses a version race.
const attachRetries = 3

// Outcome reports what reconciliation did with one record.
type Outcome struct {
	// UnitID is the unit the record now belongs to.
	UnitID uuid.UUID

	// Created is true when a new unit was created for the record.
	Created bool

	// KeyKind names the identity key that matched ("strong", "weak"), or ""
	// for a newly created unit.
	KeyKind string

	// NeedsManualKey is true when the record yielded no identity key and the
	// new unit awaits manual reconciliation.
	NeedsManualKey bool
}

// Reconciler routes raw records into Review Units by identity key.
type Reconciler struct {
	units   repository.UnitRepository
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewReconciler creates a reconciler. metrics may be nil.
func NewReconciler(units repository.UnitRepository, metrics *observability.Metrics, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		units:   units,
		metrics: metrics,
		logger:  logger.With().Str("component", "reconciler").Logger(),
	}
}

// Reconcile folds one raw record into the unit store.
//
// Match precedence is strong key, then weak key, then a fresh unit. A record
// with neither key still gets a unit, flagged for manual reconciliation, so
// no input is ever dropped. Attaching never touches the target unit's
// decision history.
func (r *Reconciler) Reconcile(ctx context.Context, raw domain.RawRecord) (*Outcome, error) {
	strong, weak := normalize.Keys(raw)
	rec := domain.NewSourceRecord(raw, time.Now())

	if strong != "" {
		unit, err := r.units.GetByStrongKey(ctx, strong)
		switch {
		case err == nil:
			if err := r.attach(ctx, unit, rec); err != nil {
				return nil, err
			}
			if r.metrics != nil {
				r.metrics.RecordDuplicateMerged("strong")
			}
			return &Outcome{UnitID: unit.ID, KeyKind: "strong"}, nil
		case !errors.Is(err, domain.ErrNotFound):
			return nil, err
		}
	}

	if weak != "" {
		unit, err := r.units.GetByWeakKey(ctx, weak)
		switch {
		case err == nil:
			// A weak match with a fresh strong key upgrades the unit's identity.
			if err := r.attachWithKey(ctx, unit, rec, strong); err != nil {
				return nil, err
			}
			if r.metrics != nil {
				r.metrics.RecordDuplicateMerged("weak")
			}
			return &Outcome{UnitID: unit.ID, KeyKind: "weak"}, nil
		case !errors.Is(err, domain.ErrNotFound):
			return nil, err
		}
	}

	unit := domain.NewReviewUnit(rec, strong, weak, time.Now())
	unit.NeedsManualKey = strong == "" && weak == ""
	if err := r.units.Create(ctx, unit); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) && strong != "" {
			// Lost a create race on the strong key; attach to the winner.
			winner, getErr := r.units.GetByStrongKey(ctx, strong)
			if getErr != nil {
				return nil, getErr
			}
			if err := r.attach(ctx, winner, rec); err != nil {
				return nil, err
			}
			if r.metrics != nil {
				r.metrics.RecordDuplicateMerged("strong")
			}
			return &Outcome{UnitID: winner.ID, KeyKind: "strong"}, nil
		}
		return nil, err
	}

	if r.metrics != nil {
		r.metrics.RecordUnitCreated()
		if unit.NeedsManualKey {
			r.metrics.RecordManualKeyNeeded()
		}
	}
	r.logger.Debug().
		Str("unit_id", unit.ID.String()).
		Str("source", rec.Source).
		Bool("needs_manual_key", unit.NeedsManualKey).
		Msg("review unit created")

	return &Outcome{UnitID: unit.ID, Created: true, NeedsManualKey: unit.NeedsManualKey}, nil
}

// attach appends the record to the unit and saves, retrying version races.
func (r *Reconciler) attach(ctx context.Context, unit *domain.ReviewUnit, rec domain.SourceRecord) error {
	return r.attachWithKey(ctx, unit, rec, "")
}

// attachWithKey is attach plus an optional strong-key upgrade for units that
// were previously only weakly identified.
func (r *Reconciler) attachWithKey(ctx context.Context, unit *domain.ReviewUnit, rec domain.SourceRecord, strongKey string) error {
	var lastErr error

	for attempt := 0; attempt <= attachRetries; attempt++ {
		if attempt > 0 {
			fresh, err := r.units.Get(ctx, unit.ID)
			if err != nil {
				return err
			}
			unit = fresh
		}

		unit.Attach(rec, time.Now())
		if strongKey != "" && unit.StrongKey == "" {
			unit.StrongKey = strongKey
		}

		if err := r.units.Save(ctx, unit); err != nil {
			if errors.Is(err, domain.ErrStaleWrite) {
				lastErr = err
				continue
			}
			return err
		}
		return nil
	}

	return fmt.Errorf("attach record to unit %s: retries exhausted: %w", unit.ID, lastErr)
}

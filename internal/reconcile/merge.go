package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/helixir/screening-service/internal/domain"
	"github.com/helixir/screening-service/internal/normalize"
)

// MergeUnits absorbs unit src into unit dst: records and decision history
// move to dst, src is deleted. The merge is refused with a
// ConflictingMergeError when both units carry current decisions that
// disagree; a human must arbitrate by correcting one side first.
func (r *Reconciler) MergeUnits(ctx context.Context, dstID, srcID uuid.UUID) (*domain.ReviewUnit, error) {
	if dstID == srcID {
		return nil, domain.NewValidationError("unit_id", "cannot merge a unit into itself")
	}

	dst, err := r.units.Get(ctx, dstID)
	if err != nil {
		return nil, err
	}
	src, err := r.units.Get(ctx, srcID)
	if err != nil {
		return nil, err
	}

	if err := checkMergeCompatible(dst, src); err != nil {
		if r.metrics != nil {
			r.metrics.RecordMergeConflict()
		}
		return nil, err
	}

	// dst is saved before src is touched: records live on the unit row, so a
	// write that fails after deleting src would lose src's records for good.
	now := time.Now()
	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt > attachRetries {
			return nil, fmt.Errorf("merge unit %s into %s: retries exhausted: %w", srcID, dstID, lastErr)
		}
		if attempt > 0 {
			fresh, err := r.units.Get(ctx, dstID)
			if err != nil {
				return nil, err
			}
			dst = fresh
			// A decision may have landed on dst in the meantime.
			if err := checkMergeCompatible(dst, src); err != nil {
				if r.metrics != nil {
					r.metrics.RecordMergeConflict()
				}
				return nil, err
			}
		}

		for _, rec := range src.Records {
			dst.Attach(rec, now)
		}
		// Histories interleave by decision time so the derived state reflects
		// the latest judgment across both lineages.
		dst.History = mergeHistories(dst.History, src.History)
		dst.Reference = dst.Reference || src.Reference
		dst.NeedsManualKey = dst.NeedsManualKey && src.NeedsManualKey
		dst.RecomputeState()
		dst.UpdatedAt = now.UTC()

		if err := r.units.Save(ctx, dst); err != nil {
			if errors.Is(err, domain.ErrStaleWrite) {
				lastErr = err
				continue
			}
			return nil, err
		}
		break
	}

	if err := r.units.Delete(ctx, srcID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	// Identity keys move last: the strong key is unique across units, so dst
	// can only claim src's once the src row is gone.
	if err := r.claimKeys(ctx, dst, src.StrongKey, src.WeakKey); err != nil {
		return nil, err
	}

	r.logger.Info().
		Str("dst_unit_id", dstID.String()).
		Str("src_unit_id", srcID.String()).
		Int("record_count", len(dst.Records)).
		Msg("units merged")

	return dst, nil
}

// UnmergeRecord splits one source record out of a unit into a fresh unit with
// an empty decision history. The donor unit keeps its history; the new unit
// starts unscreened, because the existing decisions were made against
// evidence that may no longer describe it.
func (r *Reconciler) UnmergeRecord(ctx context.Context, unitID, recordID uuid.UUID) (*domain.ReviewUnit, error) {
	unit, err := r.units.Get(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if len(unit.Records) < 2 {
		return nil, domain.NewValidationError("unit_id", "cannot unmerge the only record of a unit")
	}

	now := time.Now()
	rec, ok := unit.Detach(recordID, now)
	if !ok {
		return nil, domain.NewNotFoundError("record", recordID.String())
	}

	// The split record takes its own identity keys, except keys still claimed
	// by the donor: those stay behind so the pair does not instantly
	// re-reconcile into one unit.
	strong := normalize.StrongKey(rec.DOI)
	weak := normalize.WeakKey(rec.Title, rec.Year)
	if strong == unit.StrongKey {
		strong = ""
	}
	if weak == unit.WeakKey {
		weak = ""
	}

	fresh := domain.NewReviewUnit(rec, strong, weak, now)
	fresh.NeedsManualKey = strong == "" && weak == ""

	// The new unit is created before the donor is saved: the record then lives
	// in two units until the donor write lands, instead of in none if it fails.
	if err := r.units.Create(ctx, fresh); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt > attachRetries {
			return nil, fmt.Errorf("unmerge record %s from unit %s: retries exhausted: %w", recordID, unitID, lastErr)
		}
		if attempt > 0 {
			reloaded, err := r.units.Get(ctx, unitID)
			if err != nil {
				return nil, err
			}
			unit = reloaded
			if _, ok := unit.Detach(recordID, now); !ok {
				// Someone else already removed the record from the donor.
				break
			}
		}
		if err := r.units.Save(ctx, unit); err != nil {
			if errors.Is(err, domain.ErrStaleWrite) {
				lastErr = err
				continue
			}
			return nil, err
		}
		break
	}

	r.logger.Info().
		Str("unit_id", unitID.String()).
		Str("record_id", recordID.String()).
		Str("new_unit_id", fresh.ID.String()).
		Msg("record unmerged into new unit")

	return fresh, nil
}

// claimKeys fills dst's empty identity keys with strong and weak, retrying on
// stale writes. No-op when dst already has both keys or nothing is offered.
func (r *Reconciler) claimKeys(ctx context.Context, dst *domain.ReviewUnit, strong, weak string) error {
	var lastErr error
	for attempt := 0; attempt <= attachRetries; attempt++ {
		if attempt > 0 {
			fresh, err := r.units.Get(ctx, dst.ID)
			if err != nil {
				return err
			}
			*dst = *fresh
		}

		changed := false
		if dst.StrongKey == "" && strong != "" {
			dst.StrongKey = strong
			changed = true
		}
		if dst.WeakKey == "" && weak != "" {
			dst.WeakKey = weak
			changed = true
		}
		if !changed {
			return nil
		}

		if err := r.units.Save(ctx, dst); err != nil {
			if errors.Is(err, domain.ErrStaleWrite) {
				lastErr = err
				continue
			}
			return err
		}
		return nil
	}
	return fmt.Errorf("claim identity keys for unit %s: retries exhausted: %w", dst.ID, lastErr)
}

// checkMergeCompatible refuses merges between units whose current decisions
// disagree.
func checkMergeCompatible(a, b *domain.ReviewUnit) error {
	da := a.CurrentDecision()
	db := b.CurrentDecision()
	if da == nil || db == nil {
		return nil
	}
	if da.Decision == domain.DecisionPending || db.Decision == domain.DecisionPending {
		return nil
	}
	if da.Decision != db.Decision {
		return &domain.ConflictingMergeError{
			UnitA:     a.ID,
			UnitB:     b.ID,
			DecisionA: da.Decision,
			DecisionB: db.Decision,
		}
	}
	return nil
}

// mergeHistories interleaves two decision histories by decision time.
func mergeHistories(a, b []domain.DecisionRecord) []domain.DecisionRecord {
	merged := make([]domain.DecisionRecord, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].DecidedAt.Before(b[j].DecidedAt) {
			merged = append(merged, a[i])
			i++
		} else {
			merged = append(merged, b[j])
			j++
		}
	}
	merged = append(merged, a[i:]...)
	merged = append(merged, b[j:]...)
	return merged
}

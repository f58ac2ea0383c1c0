package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/helixir/screening-service/internal/domain"
)

// UnitFilter specifies criteria for listing Review Units.
type UnitFilter struct {
	// States filters by screening state; empty means all states.
	States []domain.ScreeningState

	// Domain filters by domain tag when non-empty.
	Domain domain.DomainTag

	// NeedsManualKey, when non-nil, filters on the manual-reconciliation flag.
	NeedsManualKey *bool

	// Reference, when non-nil, filters on the reference flag.
	Reference *bool

	// Pagination.
	Limit  int
	Offset int
}

// Validate checks filter values and normalizes pagination.
func (f *UnitFilter) Validate() error {
	for _, s := range f.States {
		switch s {
		case domain.StatePending, domain.StatePass1Included, domain.StatePass1Uncertain,
			domain.StatePass1Excluded, domain.StatePass2Included, domain.StatePass2Excluded:
		default:
			return domain.NewValidationError("states", "unknown screening state "+string(s))
		}
	}
	applyPaginationDefaults(&f.Limit, &f.Offset)
	return nil
}

// UnitRepository manages Review Unit persistence.
//
// Save enforces optimistic concurrency: the write succeeds only if the stored
// version still matches unit.Version, and on success the unit's version is
// bumped in place. A version mismatch yields domain.ErrStaleWrite; the caller
// reloads, reapplies, and retries.
type UnitRepository interface {
	// Create inserts a new unit. Returns domain.ErrAlreadyExists when a unit
	// with the same ID or strong key already exists.
	Create(ctx context.Context, unit *domain.ReviewUnit) error

	// Get retrieves a unit by ID. Returns domain.ErrNotFound when absent.
	Get(ctx context.Context, id uuid.UUID) (*domain.ReviewUnit, error)

	// GetByStrongKey retrieves the unit holding the given DOI-derived key.
	// Returns domain.ErrNotFound when no unit carries the key.
	GetByStrongKey(ctx context.Context, key string) (*domain.ReviewUnit, error)

	// GetByWeakKey retrieves the unit holding the given title+year key.
	// Returns domain.ErrNotFound when no unit carries the key.
	GetByWeakKey(ctx context.Context, key string) (*domain.ReviewUnit, error)

	// Save persists the unit under the optimistic version check.
	Save(ctx context.Context, unit *domain.ReviewUnit) error

	// List retrieves units matching the filter, newest first, plus the total
	// match count before pagination.
	List(ctx context.Context, filter UnitFilter) ([]*domain.ReviewUnit, int64, error)

	// Delete removes a unit. Used by merge, which absorbs one unit into
	// another. Returns domain.ErrNotFound when absent.
	Delete(ctx context.Context, id uuid.UUID) error
}

// JudgmentLogRepository records judgment-service call audit entries.
type JudgmentLogRepository interface {
	// Insert appends one audit entry. Entries are immutable once written.
	Insert(ctx context.Context, entry *domain.JudgmentLog) error

	// ListByUnit retrieves audit entries for a unit, oldest first.
	ListByUnit(ctx context.Context, unitID uuid.UUID) ([]*domain.JudgmentLog, error)
}

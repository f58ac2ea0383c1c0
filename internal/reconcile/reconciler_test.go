package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/screening-service/internal/domain"
	"github.com/helixir/screening-service/internal/repository"
)

// memUnitRepo is an in-memory UnitRepository enforcing strong-key uniqueness.
type memUnitRepo struct {
	mu    sync.Mutex
	units map[uuid.UUID]*domain.ReviewUnit

	// createHook runs before Create stores the unit, for race injection.
	createHook func()

	// saveHook runs before Save takes the lock, for race injection.
	saveHook func()
}

func newMemUnitRepo() *memUnitRepo {
	return &memUnitRepo{units: make(map[uuid.UUID]*domain.ReviewUnit)}
}

func (m *memUnitRepo) Create(_ context.Context, unit *domain.ReviewUnit) error {
	if m.createHook != nil {
		m.createHook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if unit.StrongKey != "" {
		for _, existing := range m.units {
			if existing.StrongKey == unit.StrongKey {
				return domain.NewAlreadyExistsError("unit", unit.StrongKey)
			}
		}
	}
	unit.Version = 1
	cp := m.copyUnit(unit)
	m.units[unit.ID] = cp
	return nil
}

func (m *memUnitRepo) Get(_ context.Context, id uuid.UUID) (*domain.ReviewUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	unit, ok := m.units[id]
	if !ok {
		return nil, domain.NewNotFoundError("unit", id.String())
	}
	return m.copyUnit(unit), nil
}

func (m *memUnitRepo) GetByStrongKey(_ context.Context, key string) (*domain.ReviewUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, unit := range m.units {
		if unit.StrongKey == key {
			return m.copyUnit(unit), nil
		}
	}
	return nil, domain.NewNotFoundError("unit", key)
}

func (m *memUnitRepo) GetByWeakKey(_ context.Context, key string) (*domain.ReviewUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest *domain.ReviewUnit
	for _, unit := range m.units {
		if unit.WeakKey != key {
			continue
		}
		if oldest == nil || unit.CreatedAt.Before(oldest.CreatedAt) {
			oldest = unit
		}
	}
	if oldest == nil {
		return nil, domain.NewNotFoundError("unit", key)
	}
	return m.copyUnit(oldest), nil
}

func (m *memUnitRepo) Save(_ context.Context, unit *domain.ReviewUnit) error {
	if m.saveHook != nil {
		m.saveHook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.units[unit.ID]
	if !ok {
		return domain.NewNotFoundError("unit", unit.ID.String())
	}
	if stored.Version != unit.Version {
		return &domain.StaleWriteError{UnitID: unit.ID, ExpectedVersion: unit.Version}
	}
	unit.Version++
	m.units[unit.ID] = m.copyUnit(unit)
	return nil
}

func (m *memUnitRepo) List(context.Context, repository.UnitFilter) ([]*domain.ReviewUnit, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ReviewUnit
	for _, unit := range m.units {
		out = append(out, m.copyUnit(unit))
	}
	return out, int64(len(out)), nil
}

func (m *memUnitRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.units[id]; !ok {
		return domain.NewNotFoundError("unit", id.String())
	}
	delete(m.units, id)
	return nil
}

func (m *memUnitRepo) copyUnit(unit *domain.ReviewUnit) *domain.ReviewUnit {
	cp := *unit
	cp.Records = append([]domain.SourceRecord(nil), unit.Records...)
	cp.History = append([]domain.DecisionRecord(nil), unit.History...)
	return &cp
}

func (m *memUnitRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.units)
}

func rawRecord(title, year, doi string) domain.RawRecord {
	return domain.RawRecord{
		Source:    "scopus-2024-01",
		EntryType: "article",
		Fields: map[string]string{
			"title": title,
			"year":  year,
			"doi":   doi,
		},
	}
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()

	t.Run("creates a unit for a fresh record", func(t *testing.T) {
		repo := newMemUnitRepo()
		r := NewReconciler(repo, nil, logger)

		outcome, err := r.Reconcile(ctx, rawRecord("Wearable ECG", "2022", "10.1109/abc"))
		require.NoError(t, err)
		assert.True(t, outcome.Created)
		assert.False(t, outcome.NeedsManualKey)

		unit, err := repo.Get(ctx, outcome.UnitID)
		require.NoError(t, err)
		assert.Equal(t, "10.1109/abc", unit.StrongKey)
		assert.Equal(t, "wearableecg:2022", unit.WeakKey)
		assert.Equal(t, domain.StatePending, unit.State)
	})

	t.Run("same DOI from two sources yields one unit with two records", func(t *testing.T) {
		repo := newMemUnitRepo()
		r := NewReconciler(repo, nil, logger)

		first, err := r.Reconcile(ctx, rawRecord("Wearable ECG", "2022", "10.1109/abc"))
		require.NoError(t, err)

		second := rawRecord("Wearable ECG Monitor", "2022", "https://doi.org/10.1109/ABC")
		second.Source = "wos-2024-02"
		outcome, err := r.Reconcile(ctx, second)
		require.NoError(t, err)

		assert.False(t, outcome.Created)
		assert.Equal(t, "strong", outcome.KeyKind)
		assert.Equal(t, first.UnitID, outcome.UnitID)

		unit, err := repo.Get(ctx, first.UnitID)
		require.NoError(t, err)
		assert.Len(t, unit.Records, 2)
		assert.Equal(t, 1, repo.count())
	})

	t.Run("title and year match attaches on the weak key", func(t *testing.T) {
		repo := newMemUnitRepo()
		r := NewReconciler(repo, nil, logger)

		first, err := r.Reconcile(ctx, rawRecord("Edge Inference For Bats", "2023", ""))
		require.NoError(t, err)

		outcome, err := r.Reconcile(ctx, rawRecord("edge inference for bats!", "2023", ""))
		require.NoError(t, err)
		assert.Equal(t, "weak", outcome.KeyKind)
		assert.Equal(t, first.UnitID, outcome.UnitID)
	})

	t.Run("weak match upgrades the unit with a fresh strong key", func(t *testing.T) {
		repo := newMemUnitRepo()
		r := NewReconciler(repo, nil, logger)

		first, err := r.Reconcile(ctx, rawRecord("Edge Inference For Bats", "2023", ""))
		require.NoError(t, err)

		_, err = r.Reconcile(ctx, rawRecord("Edge Inference for Bats", "2023", "10.1145/bats"))
		require.NoError(t, err)

		unit, err := repo.Get(ctx, first.UnitID)
		require.NoError(t, err)
		assert.Equal(t, "10.1145/bats", unit.StrongKey)
	})

	t.Run("attaching never rewrites committed decisions", func(t *testing.T) {
		repo := newMemUnitRepo()
		r := NewReconciler(repo, nil, logger)

		first, err := r.Reconcile(ctx, rawRecord("Wearable ECG", "2022", "10.1109/abc"))
		require.NoError(t, err)

		unit, err := repo.Get(ctx, first.UnitID)
		require.NoError(t, err)
		unit.History = append(unit.History, domain.DecisionRecord{
			Pass: domain.Pass1, Origin: domain.OriginHuman, Decision: domain.DecisionIncluded,
			Confidence: 1, DecidedAt: time.Now(),
		})
		unit.RecomputeState()
		require.NoError(t, repo.Save(ctx, unit))

		_, err = r.Reconcile(ctx, rawRecord("Wearable ECG", "2022", "10.1109/abc"))
		require.NoError(t, err)

		after, err := repo.Get(ctx, first.UnitID)
		require.NoError(t, err)
		assert.Len(t, after.History, 1)
		assert.Equal(t, domain.StatePass1Included, after.State)
	})

	t.Run("keyless record is parked for manual reconciliation", func(t *testing.T) {
		repo := newMemUnitRepo()
		r := NewReconciler(repo, nil, logger)

		raw := domain.RawRecord{
			Source:    "manual",
			EntryType: "article",
			Fields:    map[string]string{"title": "???", "author": "Anon"},
		}
		outcome, err := r.Reconcile(ctx, raw)
		require.NoError(t, err)
		assert.True(t, outcome.Created)
		assert.True(t, outcome.NeedsManualKey)
	})

	t.Run("record with neither title nor DOI is parked, not dropped", func(t *testing.T) {
		repo := newMemUnitRepo()
		r := NewReconciler(repo, nil, logger)

		outcome, err := r.Reconcile(ctx, domain.RawRecord{
			Source: "manual", EntryType: "article", Fields: map[string]string{"author": "Anon"},
		})
		require.NoError(t, err)
		assert.True(t, outcome.Created)
		assert.True(t, outcome.NeedsManualKey)

		unit, err := repo.Get(ctx, outcome.UnitID)
		require.NoError(t, err)
		assert.Empty(t, unit.StrongKey)
		assert.Empty(t, unit.WeakKey)
		require.Len(t, unit.Records, 1)
	})

	t.Run("lost create race attaches to the winner", func(t *testing.T) {
		repo := newMemUnitRepo()
		r := NewReconciler(repo, nil, logger)

		// A competing writer claims the strong key between the lookup and
		// the insert.
		raced := false
		repo.createHook = func() {
			if raced {
				return
			}
			raced = true
			repo.createHook = nil
			winner := domain.NewReviewUnit(domain.SourceRecord{
				ID: uuid.New(), Source: "other", EntryType: domain.EntryTypeArticle, Title: "Wearable ECG",
			}, "10.1109/abc", "wearableecg:2022", time.Now())
			require.NoError(t, repo.Create(context.Background(), winner))
		}

		outcome, err := r.Reconcile(ctx, rawRecord("Wearable ECG", "2022", "10.1109/abc"))
		require.NoError(t, err)
		assert.False(t, outcome.Created)
		assert.Equal(t, "strong", outcome.KeyKind)
		assert.Equal(t, 1, repo.count())
	})
}

package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/screening-service/internal/domain"
)

// Helper to create a valid unit for testing.
func newTestUnit() *domain.ReviewUnit {
	now := time.Now().UTC()
	rec := domain.SourceRecord{
		ID:         uuid.New(),
		Source:     "scopus-2024-01",
		EntryType:  domain.EntryTypeArticle,
		Title:      "Wearable ECG Monitoring",
		Year:       "2022",
		DOI:        "10.1109/abc",
		Abstract:   "We built a patch.",
		ImportedAt: now,
	}
	unit := domain.NewReviewUnit(rec, "10.1109/abc", "wearableecgmonitoring:2022", now)
	unit.Version = 1
	return unit
}

var unitColumnNames = []string{
	"id", "version", "strong_key", "weak_key", "title", "abstract",
	"state", "domain", "is_reference", "needs_manual_key", "records", "history",
	"created_at", "updated_at",
}

func unitRows(t *testing.T, unit *domain.ReviewUnit) *pgxmock.Rows {
	t.Helper()
	recordsJSON, err := json.Marshal(unit.Records)
	require.NoError(t, err)
	historyJSON, err := json.Marshal(unit.History)
	require.NoError(t, err)

	var domainTag *string
	if unit.Domain != domain.DomainNone {
		s := string(unit.Domain)
		domainTag = &s
	}

	return pgxmock.NewRows(unitColumnNames).AddRow(
		unit.ID, unit.Version, &unit.StrongKey, &unit.WeakKey, unit.Title, unit.Abstract,
		unit.State, domainTag, unit.Reference, unit.NeedsManualKey, recordsJSON, historyJSON,
		unit.CreatedAt, unit.UpdatedAt,
	)
}

func TestPgUnitRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts a unit at version 1", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgUnitRepository(mock)
		unit := newTestUnit()
		unit.Version = 0

		mock.ExpectExec("INSERT INTO review_units").
			WithArgs(unit.ID, int64(1), pgxmock.AnyArg(), pgxmock.AnyArg(), unit.Title, unit.Abstract,
				unit.State, pgxmock.AnyArg(), unit.Reference, unit.NeedsManualKey, pgxmock.AnyArg(), pgxmock.AnyArg(),
				unit.CreatedAt, unit.UpdatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err = repo.Create(ctx, unit)
		require.NoError(t, err)
		assert.Equal(t, int64(1), unit.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate strong key maps to already exists", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgUnitRepository(mock)
		unit := newTestUnit()

		mock.ExpectExec("INSERT INTO review_units").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: "23505"})

		err = repo.Create(ctx, unit)
		assert.ErrorIs(t, err, domain.ErrAlreadyExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects a nil unit", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgUnitRepository(mock)
		err = repo.Create(ctx, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("rejects a unit without records", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgUnitRepository(mock)
		unit := newTestUnit()
		unit.Records = nil

		err = repo.Create(ctx, unit)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestPgUnitRepository_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the unit when found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgUnitRepository(mock)
		unit := newTestUnit()

		mock.ExpectQuery("FROM review_units WHERE id = \\$1").
			WithArgs(unit.ID).
			WillReturnRows(unitRows(t, unit))

		result, err := repo.Get(ctx, unit.ID)
		require.NoError(t, err)
		assert.Equal(t, unit.ID, result.ID)
		assert.Equal(t, unit.StrongKey, result.StrongKey)
		assert.Equal(t, unit.State, result.State)
		require.Len(t, result.Records, 1)
		assert.Equal(t, unit.Records[0].DOI, result.Records[0].DOI)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing unit maps to not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgUnitRepository(mock)
		id := uuid.New()

		mock.ExpectQuery("FROM review_units WHERE id = \\$1").
			WithArgs(id).
			WillReturnError(pgx.ErrNoRows)

		_, err = repo.Get(ctx, id)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgUnitRepository_GetByKey(t *testing.T) {
	ctx := context.Background()

	t.Run("strong key lookup", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgUnitRepository(mock)
		unit := newTestUnit()

		mock.ExpectQuery("FROM review_units WHERE strong_key = \\$1").
			WithArgs(unit.StrongKey).
			WillReturnRows(unitRows(t, unit))

		result, err := repo.GetByStrongKey(ctx, unit.StrongKey)
		require.NoError(t, err)
		assert.Equal(t, unit.ID, result.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("weak key lookup takes the oldest unit", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgUnitRepository(mock)
		unit := newTestUnit()

		mock.ExpectQuery("FROM review_units\\s+WHERE weak_key = \\$1\\s+ORDER BY created_at ASC\\s+LIMIT 1").
			WithArgs(unit.WeakKey).
			WillReturnRows(unitRows(t, unit))

		result, err := repo.GetByWeakKey(ctx, unit.WeakKey)
		require.NoError(t, err)
		assert.Equal(t, unit.ID, result.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty keys are rejected without a query", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgUnitRepository(mock)

		_, err = repo.GetByStrongKey(ctx, "")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		_, err = repo.GetByWeakKey(ctx, "")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestPgUnitRepository_Save(t *testing.T) {
	ctx := context.Background()

	t.Run("bumps the version on success", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgUnitRepository(mock)
		unit := newTestUnit()
		unit.Version = 3

		mock.ExpectExec("UPDATE review_units SET").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), unit.Title, unit.Abstract,
				unit.State, pgxmock.AnyArg(), unit.Reference, unit.NeedsManualKey,
				pgxmock.AnyArg(), pgxmock.AnyArg(), unit.UpdatedAt,
				unit.ID, int64(3)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err = repo.Save(ctx, unit)
		require.NoError(t, err)
		assert.Equal(t, int64(4), unit.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("version mismatch on an existing row is a stale write", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgUnitRepository(mock)
		unit := newTestUnit()
		unit.Version = 3

		mock.ExpectExec("UPDATE review_units SET").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				unit.ID, int64(3)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(unit.ID).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		err = repo.Save(ctx, unit)
		assert.ErrorIs(t, err, domain.ErrStaleWrite)
		assert.Equal(t, int64(3), unit.Version, "version untouched on failure")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("vanished row is not found, not stale", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgUnitRepository(mock)
		unit := newTestUnit()

		mock.ExpectExec("UPDATE review_units SET").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				unit.ID, unit.Version).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(unit.ID).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

		err = repo.Save(ctx, unit)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgUnitRepository_List(t *testing.T) {
	ctx := context.Background()

	t.Run("filters by state and paginates", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgUnitRepository(mock)
		unit := newTestUnit()

		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM review_units WHERE TRUE AND state IN \\(\\$1\\)").
			WithArgs(domain.StatePending).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(7)))
		mock.ExpectQuery("FROM review_units\\s+WHERE TRUE AND state IN \\(\\$1\\)\\s+ORDER BY created_at DESC\\s+LIMIT \\$2 OFFSET \\$3").
			WithArgs(domain.StatePending, 5, 0).
			WillReturnRows(unitRows(t, unit))

		units, total, err := repo.List(ctx, UnitFilter{
			States: []domain.ScreeningState{domain.StatePending},
			Limit:  5,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(7), total)
		require.Len(t, units, 1)
		assert.Equal(t, unit.ID, units[0].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects an unknown state without querying", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgUnitRepository(mock)
		_, _, err = repo.List(ctx, UnitFilter{
			States: []domain.ScreeningState{"sideways"},
		})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestPgUnitRepository_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes the unit", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgUnitRepository(mock)
		id := uuid.New()

		mock.ExpectExec("DELETE FROM review_units WHERE id = \\$1").
			WithArgs(id).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		assert.NoError(t, repo.Delete(ctx, id))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing unit maps to not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgUnitRepository(mock)
		id := uuid.New()

		mock.ExpectExec("DELETE FROM review_units WHERE id = \\$1").
			WithArgs(id).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		assert.ErrorIs(t, repo.Delete(ctx, id), domain.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

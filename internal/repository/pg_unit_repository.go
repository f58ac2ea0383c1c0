package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/helixir/screening-service/internal/domain"
)

// PostgreSQL error codes used for constraint violation detection.
const (
	pgUniqueViolation = "23505" // unique_violation
)

// Compile-time interface verification.
var _ UnitRepository = (*PgUnitRepository)(nil)

// PgUnitRepository is a PostgreSQL implementation of UnitRepository.
//
// Source records and decision history are stored as JSONB documents on the
// unit row. A unit is always read and written whole; the version column
// guards concurrent writers.
type PgUnitRepository struct {
	db DBTX
}

// NewPgUnitRepository creates a new PostgreSQL unit repository.
func NewPgUnitRepository(db DBTX) *PgUnitRepository {
	return &PgUnitRepository{db: db}
}

const unitColumns = `id, version, strong_key, weak_key, title, abstract,
		state, domain, is_reference, needs_manual_key, records, history,
		created_at, updated_at`

// Create inserts a new Review Unit at version 1.
func (r *PgUnitRepository) Create(ctx context.Context, unit *domain.ReviewUnit) error {
	if unit == nil {
		return domain.NewValidationError("unit", "unit cannot be nil")
	}
	if unit.ID == uuid.Nil {
		return domain.NewValidationError("id", "unit ID is required")
	}
	if len(unit.Records) == 0 {
		return domain.NewValidationError("records", "unit must contain at least one source record")
	}

	recordsJSON, historyJSON, err := marshalUnitDocs(unit)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO review_units (
			id, version, strong_key, weak_key, title, abstract,
			state, domain, is_reference, needs_manual_key, records, history,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14
		)`

	_, err = r.db.Exec(ctx, query,
		unit.ID, int64(1), nullString(unit.StrongKey), nullString(unit.WeakKey), unit.Title, unit.Abstract,
		unit.State, nullString(string(unit.Domain)), unit.Reference, unit.NeedsManualKey, recordsJSON, historyJSON,
		unit.CreatedAt, unit.UpdatedAt,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return domain.NewAlreadyExistsError("unit", unit.ID.String())
		}
		return fmt.Errorf("failed to create unit: %w", err)
	}

	unit.Version = 1
	return nil
}

// Get retrieves a unit by ID.
func (r *PgUnitRepository) Get(ctx context.Context, id uuid.UUID) (*domain.ReviewUnit, error) {
	query := fmt.Sprintf(`SELECT %s FROM review_units WHERE id = $1`, unitColumns)

	unit, err := scanUnit(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("unit", id.String())
		}
		return nil, fmt.Errorf("failed to get unit: %w", err)
	}
	return unit, nil
}

// GetByStrongKey retrieves the unit holding the given DOI-derived identity key.
func (r *PgUnitRepository) GetByStrongKey(ctx context.Context, key string) (*domain.ReviewUnit, error) {
	if key == "" {
		return nil, domain.NewValidationError("strong_key", "strong key is required")
	}

	query := fmt.Sprintf(`SELECT %s FROM review_units WHERE strong_key = $1`, unitColumns)

	unit, err := scanUnit(r.db.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("unit", key)
		}
		return nil, fmt.Errorf("failed to get unit by strong key: %w", err)
	}
	return unit, nil
}

// GetByWeakKey retrieves the oldest unit holding the given title+year identity
// key. Weak keys are not unique; when several units share one, reconciliation
// attaches to the earliest.
func (r *PgUnitRepository) GetByWeakKey(ctx context.Context, key string) (*domain.ReviewUnit, error) {
	if key == "" {
		return nil, domain.NewValidationError("weak_key", "weak key is required")
	}

	query := fmt.Sprintf(`
		SELECT %s FROM review_units
		WHERE weak_key = $1
		ORDER BY created_at ASC
		LIMIT 1`, unitColumns)

	unit, err := scanUnit(r.db.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("unit", key)
		}
		return nil, fmt.Errorf("failed to get unit by weak key: %w", err)
	}
	return unit, nil
}

// Save persists the unit under the optimistic version check. On success the
// unit's Version is bumped in place to match the stored row.
func (r *PgUnitRepository) Save(ctx context.Context, unit *domain.ReviewUnit) error {
	if unit == nil {
		return domain.NewValidationError("unit", "unit cannot be nil")
	}

	recordsJSON, historyJSON, err := marshalUnitDocs(unit)
	if err != nil {
		return err
	}

	query := `
		UPDATE review_units SET
			version = version + 1,
			strong_key = $1,
			weak_key = $2,
			title = $3,
			abstract = $4,
			state = $5,
			domain = $6,
			is_reference = $7,
			needs_manual_key = $8,
			records = $9,
			history = $10,
			updated_at = $11
		WHERE id = $12 AND version = $13`

	result, err := r.db.Exec(ctx, query,
		nullString(unit.StrongKey), nullString(unit.WeakKey), unit.Title, unit.Abstract,
		unit.State, nullString(string(unit.Domain)), unit.Reference, unit.NeedsManualKey,
		recordsJSON, historyJSON, unit.UpdatedAt,
		unit.ID, unit.Version,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return domain.NewAlreadyExistsError("unit", unit.StrongKey)
		}
		return fmt.Errorf("failed to save unit: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Distinguish a lost race from a vanished row.
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM review_units WHERE id = $1)`, unit.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check unit existence: %w", err)
		}
		if !exists {
			return domain.NewNotFoundError("unit", unit.ID.String())
		}
		return &domain.StaleWriteError{UnitID: unit.ID, ExpectedVersion: unit.Version}
	}

	unit.Version++
	return nil
}

// List retrieves units matching the filter criteria, newest first.
func (r *PgUnitRepository) List(ctx context.Context, filter UnitFilter) ([]*domain.ReviewUnit, int64, error) {
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}

	// Build dynamic WHERE clause
	conditions := []string{"TRUE"}
	args := []interface{}{}
	argIndex := 1

	if len(filter.States) > 0 {
		placeholders := make([]string, len(filter.States))
		for i, s := range filter.States {
			placeholders[i] = fmt.Sprintf("$%d", argIndex)
			args = append(args, s)
			argIndex++
		}
		conditions = append(conditions, fmt.Sprintf("state IN (%s)", strings.Join(placeholders, ", ")))
	}

	if filter.Domain != domain.DomainNone {
		conditions = append(conditions, fmt.Sprintf("domain = $%d", argIndex))
		args = append(args, string(filter.Domain))
		argIndex++
	}

	if filter.NeedsManualKey != nil {
		conditions = append(conditions, fmt.Sprintf("needs_manual_key = $%d", argIndex))
		args = append(args, *filter.NeedsManualKey)
		argIndex++
	}

	if filter.Reference != nil {
		conditions = append(conditions, fmt.Sprintf("is_reference = $%d", argIndex))
		args = append(args, *filter.Reference)
		argIndex++
	}

	whereClause := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM review_units WHERE %s", whereClause)
	var totalCount int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count units: %w", err)
	}

	selectQuery := fmt.Sprintf(`
		SELECT %s FROM review_units
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		unitColumns, whereClause, argIndex, argIndex+1)

	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list units: %w", err)
	}
	defer rows.Close()

	units := make([]*domain.ReviewUnit, 0, filter.Limit)
	for rows.Next() {
		unit, err := scanUnitFromRows(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan unit: %w", err)
		}
		units = append(units, unit)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating units: %w", err)
	}

	return units, totalCount, nil
}

// Delete removes a unit.
func (r *PgUnitRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM review_units WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete unit: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("unit", id.String())
	}
	return nil
}

// marshalUnitDocs marshals the unit's JSONB documents.
func marshalUnitDocs(unit *domain.ReviewUnit) (records, history []byte, err error) {
	records, err = json.Marshal(unit.Records)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal records: %w", err)
	}
	history, err = json.Marshal(unit.History)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal history: %w", err)
	}
	return records, history, nil
}

// unitScanDest holds the destination pointers for scanning a ReviewUnit row.
// This eliminates code duplication between pgx.Row and pgx.Rows scanning.
type unitScanDest struct {
	unit        domain.ReviewUnit
	strongKey   *string
	weakKey     *string
	domainTag   *string
	recordsJSON []byte
	historyJSON []byte
}

// destinations returns the slice of pointers for Scan operations.
func (d *unitScanDest) destinations() []interface{} {
	return []interface{}{
		&d.unit.ID, &d.unit.Version, &d.strongKey, &d.weakKey, &d.unit.Title, &d.unit.Abstract,
		&d.unit.State, &d.domainTag, &d.unit.Reference, &d.unit.NeedsManualKey, &d.recordsJSON, &d.historyJSON,
		&d.unit.CreatedAt, &d.unit.UpdatedAt,
	}
}

// finalize performs post-scan processing: sets nullable fields and unmarshals JSON.
func (d *unitScanDest) finalize() (*domain.ReviewUnit, error) {
	if d.strongKey != nil {
		d.unit.StrongKey = *d.strongKey
	}
	if d.weakKey != nil {
		d.unit.WeakKey = *d.weakKey
	}
	if d.domainTag != nil {
		d.unit.Domain = domain.DomainTag(*d.domainTag)
	}

	if len(d.recordsJSON) > 0 {
		if err := json.Unmarshal(d.recordsJSON, &d.unit.Records); err != nil {
			return nil, fmt.Errorf("failed to unmarshal records: %w", err)
		}
	}
	if len(d.historyJSON) > 0 {
		if err := json.Unmarshal(d.historyJSON, &d.unit.History); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history: %w", err)
		}
	}

	return &d.unit, nil
}

// scanUnit scans a single row into a ReviewUnit.
func scanUnit(row pgx.Row) (*domain.ReviewUnit, error) {
	var dest unitScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}

// scanUnitFromRows scans the current row from pgx.Rows into a ReviewUnit.
func scanUnitFromRows(rows pgx.Rows) (*domain.ReviewUnit, error) {
	var dest unitScanDest
	if err := rows.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}

// isPgUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}

// nullString returns a pointer to the string if non-empty, otherwise nil.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

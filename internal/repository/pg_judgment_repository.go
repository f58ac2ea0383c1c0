package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/helixir/screening-service/internal/domain"
)

// Compile-time interface verification.
var _ JudgmentLogRepository = (*PgJudgmentLogRepository)(nil)

// PgJudgmentLogRepository is a PostgreSQL implementation of JudgmentLogRepository.
type PgJudgmentLogRepository struct {
	db DBTX
}

// NewPgJudgmentLogRepository creates a new PostgreSQL judgment log repository.
func NewPgJudgmentLogRepository(db DBTX) *PgJudgmentLogRepository {
	return &PgJudgmentLogRepository{db: db}
}

// Insert appends one judgment audit entry.
func (r *PgJudgmentLogRepository) Insert(ctx context.Context, entry *domain.JudgmentLog) error {
	if entry == nil {
		return domain.NewValidationError("entry", "entry cannot be nil")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.UnitID == uuid.Nil {
		return domain.NewValidationError("unit_id", "unit ID is required")
	}

	codesJSON, err := json.Marshal(entry.Codes)
	if err != nil {
		return fmt.Errorf("failed to marshal codes: %w", err)
	}

	query := `
		INSERT INTO judgment_log (
			id, unit_id, pass, model, thinking_mode,
			system_prompt, user_prompt, raw_response,
			decision, confidence, reasoning, codes, domain,
			error, attempt, response_time_ms, requested_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11, $12, $13,
			$14, $15, $16, $17
		)`

	_, err = r.db.Exec(ctx, query,
		entry.ID, entry.UnitID, int(entry.Pass), entry.Model, entry.ThinkingMode,
		entry.SystemPrompt, entry.UserPrompt, entry.RawResponse,
		nullString(string(entry.Decision)), entry.Confidence, entry.Reasoning, codesJSON, nullString(string(entry.Domain)),
		nullString(entry.Error), entry.Attempt, entry.ResponseTime.Milliseconds(), entry.RequestedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert judgment log entry: %w", err)
	}
	return nil
}

// ListByUnit retrieves judgment audit entries for a unit, oldest first.
func (r *PgJudgmentLogRepository) ListByUnit(ctx context.Context, unitID uuid.UUID) ([]*domain.JudgmentLog, error) {
	query := `
		SELECT id, unit_id, pass, model, thinking_mode,
			system_prompt, user_prompt, raw_response,
			decision, confidence, reasoning, codes, domain,
			error, attempt, response_time_ms, requested_at
		FROM judgment_log
		WHERE unit_id = $1
		ORDER BY requested_at ASC`

	rows, err := r.db.Query(ctx, query, unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to query judgment log: %w", err)
	}
	defer rows.Close()

	var entries []*domain.JudgmentLog
	for rows.Next() {
		var (
			entry      domain.JudgmentLog
			pass       int
			decision   *string
			domainTag  *string
			errMsg     *string
			codesJSON  []byte
			responseMS int64
		)
		if err := rows.Scan(
			&entry.ID, &entry.UnitID, &pass, &entry.Model, &entry.ThinkingMode,
			&entry.SystemPrompt, &entry.UserPrompt, &entry.RawResponse,
			&decision, &entry.Confidence, &entry.Reasoning, &codesJSON, &domainTag,
			&errMsg, &entry.Attempt, &responseMS, &entry.RequestedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan judgment log entry: %w", err)
		}

		entry.Pass = domain.Pass(pass)
		if decision != nil {
			entry.Decision = domain.DecisionValue(*decision)
		}
		if domainTag != nil {
			entry.Domain = domain.DomainTag(*domainTag)
		}
		if errMsg != nil {
			entry.Error = *errMsg
		}
		entry.ResponseTime = time.Duration(responseMS) * time.Millisecond
		if len(codesJSON) > 0 {
			if err := json.Unmarshal(codesJSON, &entry.Codes); err != nil {
				return nil, fmt.Errorf("failed to unmarshal codes: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating judgment log: %w", err)
	}

	return entries, nil
}

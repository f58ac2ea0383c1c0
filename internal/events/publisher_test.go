package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/screening-service/internal/domain"
)

func TestNewDecisionEvent(t *testing.T) {
	now := time.Now().UTC()
	rec := domain.SourceRecord{
		ID:        uuid.New(),
		Source:    "scopus-2024-01",
		EntryType: domain.EntryTypeArticle,
		Title:     "Wearable ECG",
		Year:      "2022",
	}
	unit := domain.NewReviewUnit(rec, "10.1109/abc", "wearableecg:2022", now)
	entry := domain.DecisionRecord{
		Pass:           domain.Pass2,
		Origin:         domain.OriginAutomated,
		Decision:       domain.DecisionExcluded,
		Confidence:     0.9,
		ExclusionCodes: []domain.ExclusionCode{domain.ExclusionCOTS},
		Domain:         domain.DomainHealth,
		DecidedAt:      now,
	}
	unit.History = append(unit.History, entry)
	unit.RecomputeState()

	event := NewDecisionEvent(unit, entry)
	assert.Equal(t, unit.ID, event.UnitID)
	assert.Equal(t, domain.Pass2, event.Pass)
	assert.Equal(t, domain.OriginAutomated, event.Origin)
	assert.Equal(t, domain.DecisionExcluded, event.Decision)
	assert.Equal(t, unit.State, event.State)
	assert.Equal(t, []domain.ExclusionCode{domain.ExclusionCOTS}, event.Codes)
	assert.Equal(t, domain.DomainHealth, event.Domain)
	assert.Equal(t, now, event.DecidedAt)
}

func TestDecisionEventWireFormat(t *testing.T) {
	event := DecisionEvent{
		UnitID:    uuid.MustParse("11111111-2222-3333-4444-555555555555"),
		Pass:      domain.Pass1,
		Origin:    domain.OriginHuman,
		Decision:  domain.DecisionIncluded,
		State:     domain.StatePass1Included,
		DecidedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	raw, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", decoded["unit_id"])
	assert.Equal(t, float64(1), decoded["pass"])
	assert.Equal(t, "human", decoded["origin"])
	assert.Equal(t, "included", decoded["decision"])
	assert.Equal(t, "pass1_included", decoded["state"])

	// Empty codes and domain stay off the wire.
	assert.NotContains(t, decoded, "codes")
	assert.NotContains(t, decoded, "domain")
}

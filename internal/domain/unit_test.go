package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecord(title, abstract string, importedAt time.Time) SourceRecord {
	return SourceRecord{
		ID:         uuid.New(),
		Source:     "scopus-2024-01",
		EntryType:  EntryTypeArticle,
		Title:      title,
		Abstract:   abstract,
		ImportedAt: importedAt,
	}
}

func TestNewReviewUnit(t *testing.T) {
	now := time.Now()
	rec := newTestRecord("Wearable ECG", "An abstract.", now)

	unit := NewReviewUnit(rec, "10.1109/abc", "wearableecg:2022", now)

	assert.NotEqual(t, uuid.Nil, unit.ID)
	assert.Equal(t, StatePending, unit.State)
	assert.Equal(t, "Wearable ECG", unit.Title)
	assert.Equal(t, "An abstract.", unit.Abstract)
	require.Len(t, unit.Records, 1)
	assert.Equal(t, unit.ID, unit.Records[0].UnitID)
	assert.Empty(t, unit.History)
}

func TestReviewUnitAttach(t *testing.T) {
	now := time.Now()

	t.Run("record with abstract beats one without", func(t *testing.T) {
		unit := NewReviewUnit(newTestRecord("Title Only", "", now), "", "k", now)
		assert.Empty(t, unit.Abstract)

		unit.Attach(newTestRecord("Title Only", "Now with abstract.", now.Add(time.Minute)), now.Add(time.Minute))

		assert.Equal(t, "Now with abstract.", unit.Abstract)
		assert.Len(t, unit.Records, 2)
	})

	t.Run("later import beats earlier when both have abstracts", func(t *testing.T) {
		unit := NewReviewUnit(newTestRecord("T", "Old abstract.", now), "", "k", now)
		unit.Attach(newTestRecord("T", "New abstract.", now.Add(time.Hour)), now.Add(time.Hour))

		assert.Equal(t, "New abstract.", unit.Abstract)
	})

	t.Run("attach never touches history", func(t *testing.T) {
		unit := NewReviewUnit(newTestRecord("T", "", now), "", "k", now)
		unit.History = append(unit.History, DecisionRecord{
			Pass: Pass1, Origin: OriginHuman, Decision: DecisionIncluded, Confidence: 1, DecidedAt: now,
		})
		unit.RecomputeState()

		unit.Attach(newTestRecord("T", "Abstract.", now.Add(time.Minute)), now.Add(time.Minute))

		assert.Len(t, unit.History, 1)
		assert.Equal(t, StatePass1Included, unit.State)
	})
}

func TestReviewUnitDetach(t *testing.T) {
	now := time.Now()
	recA := newTestRecord("T", "", now)
	recB := newTestRecord("T", "Abstract.", now.Add(time.Minute))

	unit := NewReviewUnit(recA, "", "k", now)
	unit.Attach(recB, now)
	require.Equal(t, "Abstract.", unit.Abstract)

	detached, ok := unit.Detach(recB.ID, now.Add(time.Hour))
	require.True(t, ok)
	assert.Equal(t, recB.ID, detached.ID)
	assert.Len(t, unit.Records, 1)
	// Evidence refreshed after losing the abstract-bearing record.
	assert.Empty(t, unit.Abstract)

	_, ok = unit.Detach(uuid.New(), now)
	assert.False(t, ok)
}

func TestCurrentForPass(t *testing.T) {
	now := time.Now()
	unit := NewReviewUnit(newTestRecord("T", "", now), "", "k", now)

	t.Run("empty history yields nil", func(t *testing.T) {
		assert.Nil(t, unit.CurrentForPass(Pass1))
	})

	unit.History = []DecisionRecord{
		{Pass: Pass1, Origin: OriginAutomated, Decision: DecisionExcluded, DecidedAt: now},
		{Pass: Pass1, Origin: OriginHuman, Decision: DecisionIncluded, DecidedAt: now.Add(time.Minute)},
		{Pass: Pass1, Origin: OriginAutomated, Decision: DecisionUncertain, DecidedAt: now.Add(2 * time.Minute)},
	}

	t.Run("human entry governs over later automated entry", func(t *testing.T) {
		entry := unit.CurrentForPass(Pass1)
		require.NotNil(t, entry)
		assert.Equal(t, OriginHuman, entry.Origin)
		assert.Equal(t, DecisionIncluded, entry.Decision)
	})

	t.Run("other pass has no entries", func(t *testing.T) {
		assert.Nil(t, unit.CurrentForPass(Pass2))
	})
}

func TestPass2Eligible(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		history  []DecisionRecord
		expected bool
	}{
		{
			name:     "no pass-1 outcome",
			history:  nil,
			expected: false,
		},
		{
			name: "pass-1 include",
			history: []DecisionRecord{
				{Pass: Pass1, Origin: OriginAutomated, Decision: DecisionIncluded, DecidedAt: now},
			},
			expected: true,
		},
		{
			name: "pass-1 exclude",
			history: []DecisionRecord{
				{Pass: Pass1, Origin: OriginAutomated, Decision: DecisionExcluded, DecidedAt: now},
			},
			expected: false,
		},
		{
			name: "automated pass-1 uncertain awaits human review",
			history: []DecisionRecord{
				{Pass: Pass1, Origin: OriginAutomated, Decision: DecisionUncertain, DecidedAt: now},
			},
			expected: false,
		},
		{
			name: "human pass-1 uncertain unblocks pass 2",
			history: []DecisionRecord{
				{Pass: Pass1, Origin: OriginHuman, Decision: DecisionUncertain, DecidedAt: now},
			},
			expected: true,
		},
		{
			name: "explicit pass-1 skip unblocks pass 2",
			history: []DecisionRecord{
				{Pass: Pass1, Origin: OriginHuman, Decision: DecisionPending, Skipped: true, DecidedAt: now},
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit := NewReviewUnit(newTestRecord("T", "", now), "", "k", now)
			unit.History = tt.history
			assert.Equal(t, tt.expected, unit.Pass2Eligible())
		})
	}
}

func TestRecomputeState(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		history  []DecisionRecord
		expected ScreeningState
	}{
		{
			name:     "empty history is pending",
			history:  nil,
			expected: StatePending,
		},
		{
			name: "skipped pass 1 stays pending",
			history: []DecisionRecord{
				{Pass: Pass1, Origin: OriginHuman, Decision: DecisionPending, Skipped: true, DecidedAt: now},
			},
			expected: StatePending,
		},
		{
			name: "pass-1 include",
			history: []DecisionRecord{
				{Pass: Pass1, Origin: OriginAutomated, Decision: DecisionIncluded, DecidedAt: now},
			},
			expected: StatePass1Included,
		},
		{
			name: "pass-2 exclude governs over pass-1 include",
			history: []DecisionRecord{
				{Pass: Pass1, Origin: OriginAutomated, Decision: DecisionIncluded, DecidedAt: now},
				{Pass: Pass2, Origin: OriginHuman, Decision: DecisionExcluded, DecidedAt: now.Add(time.Minute)},
			},
			expected: StatePass2Excluded,
		},
		{
			name: "automated pass-2 uncertain does not advance the state",
			history: []DecisionRecord{
				{Pass: Pass1, Origin: OriginAutomated, Decision: DecisionIncluded, DecidedAt: now},
				{Pass: Pass2, Origin: OriginAutomated, Decision: DecisionUncertain, DecidedAt: now.Add(time.Minute)},
			},
			expected: StatePass1Included,
		},
		{
			name: "human pass-1 override of automated exclude",
			history: []DecisionRecord{
				{Pass: Pass1, Origin: OriginAutomated, Decision: DecisionExcluded, DecidedAt: now},
				{Pass: Pass1, Origin: OriginHuman, Decision: DecisionIncluded, DecidedAt: now.Add(time.Minute)},
			},
			expected: StatePass1Included,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit := NewReviewUnit(newTestRecord("T", "", now), "", "k", now)
			unit.History = tt.history
			unit.RecomputeState()
			assert.Equal(t, tt.expected, unit.State)
		})
	}
}

func TestRecomputeStateDomain(t *testing.T) {
	now := time.Now()
	unit := NewReviewUnit(newTestRecord("T", "", now), "", "k", now)
	unit.History = []DecisionRecord{
		{Pass: Pass1, Origin: OriginAutomated, Decision: DecisionIncluded, Domain: DomainHealth, DecidedAt: now},
	}
	unit.RecomputeState()
	assert.Equal(t, DomainHealth, unit.Domain)

	// An excluding decision clears the domain tag.
	unit.History = append(unit.History, DecisionRecord{
		Pass: Pass1, Origin: OriginHuman, Decision: DecisionExcluded,
		ExclusionCodes: []ExclusionCode{ExclusionCOTS}, DecidedAt: now.Add(time.Minute),
	})
	unit.RecomputeState()
	assert.Equal(t, DomainNone, unit.Domain)
}

func TestScreeningStateIsTerminal(t *testing.T) {
	assert.True(t, StatePass1Excluded.IsTerminal())
	assert.True(t, StatePass2Included.IsTerminal())
	assert.True(t, StatePass2Excluded.IsTerminal())
	assert.False(t, StatePending.IsTerminal())
	assert.False(t, StatePass1Included.IsTerminal())
	assert.False(t, StatePass1Uncertain.IsTerminal())
}

func TestExclusionCodes(t *testing.T) {
	t.Run("all taxonomy codes are valid", func(t *testing.T) {
		for _, c := range []ExclusionCode{
			ExclusionHighPower, ExclusionCOTS, ExclusionPlatform,
			ExclusionApplication, ExclusionAgnostic, ExclusionNoArtifact,
		} {
			assert.True(t, c.IsValid(), string(c))
			assert.NotEmpty(t, c.Description(), string(c))
		}
	})

	t.Run("EX.4 is valid but outside the judgment contract", func(t *testing.T) {
		assert.True(t, ExclusionApplication.IsValid())
		assert.False(t, IsJudgmentCode(ExclusionApplication))
	})

	t.Run("unknown code is invalid", func(t *testing.T) {
		assert.False(t, ExclusionCode("EX.9").IsValid())
		assert.False(t, IsJudgmentCode(ExclusionCode("EX.9")))
	})
}

func TestNormalizeDomain(t *testing.T) {
	assert.Equal(t, DomainHealth, NormalizeDomain("health"))
	assert.Equal(t, DomainEcological, NormalizeDomain("ecological"))
	assert.Equal(t, DomainNone, NormalizeDomain("robotics"))
	assert.Equal(t, DomainNone, NormalizeDomain(""))
}

func TestNormalizeEntryType(t *testing.T) {
	assert.Equal(t, EntryTypeArticle, NormalizeEntryType("article"))
	assert.Equal(t, EntryTypeInProceedings, NormalizeEntryType("inproceedings"))
	assert.Equal(t, EntryTypeInBook, NormalizeEntryType("inbook"))
	assert.Equal(t, EntryTypeOther, NormalizeEntryType("phdthesis"))
	assert.Equal(t, EntryTypeOther, NormalizeEntryType(""))
}

func TestRawRecordVenue(t *testing.T) {
	t.Run("article uses journal", func(t *testing.T) {
		rec := RawRecord{EntryType: "article", Fields: map[string]string{
			"journal": "IEEE Sensors", "booktitle": "ignored",
		}}
		assert.Equal(t, "IEEE Sensors", rec.Venue())
	})

	t.Run("proceedings uses booktitle", func(t *testing.T) {
		rec := RawRecord{EntryType: "inproceedings", Fields: map[string]string{
			"booktitle": "SenSys '23",
		}}
		assert.Equal(t, "SenSys '23", rec.Venue())
	})

	t.Run("other entry type falls back journal then booktitle", func(t *testing.T) {
		rec := RawRecord{EntryType: "misc", Fields: map[string]string{"booktitle": "Somewhere"}}
		assert.Equal(t, "Somewhere", rec.Venue())
	})
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// DecisionRecord is one immutable entry in a Review Unit's decision history.
type DecisionRecord struct {
	// Pass is the screening pass this decision belongs to.
	Pass Pass `json:"pass"`

	// Origin identifies whether a human or the automated judge decided.
	Origin Origin `json:"origin"`

	// Decision is the recorded outcome. A pending decision only appears for
	// explicit pass-1 skips (cold-start bypass).
	Decision DecisionValue `json:"decision"`

	// Confidence is the decision confidence in [0,1]. Human decisions are
	// always recorded with 1.0.
	Confidence float64 `json:"confidence"`

	// Reasoning is free-text justification, if any.
	Reasoning string `json:"reasoning,omitempty"`

	// ExclusionCodes is non-empty exactly when Decision is excluded.
	ExclusionCodes []ExclusionCode `json:"exclusion_codes,omitempty"`

	// Domain is the domain tag suggested with the decision; only meaningful
	// for included or uncertain decisions.
	Domain DomainTag `json:"domain,omitempty"`

	// Skipped marks a synthetic pass-1 entry recording a cold-start bypass.
	Skipped bool `json:"skipped,omitempty"`

	// Model is the judgment model that produced an automated decision.
	Model string `json:"model,omitempty"`

	// ResponseTime is the judgment-service latency for automated decisions.
	ResponseTime time.Duration `json:"response_time,omitempty"`

	// DecidedAt records when the decision was committed.
	DecidedAt time.Time `json:"decided_at"`
}

// ReviewUnit is the deduplicated, screenable entity combining one or more
// source records believed to denote the same paper. A unit exclusively owns
// its decision history; source records are referenced, never shared.
type ReviewUnit struct {
	ID uuid.UUID `json:"id"`

	// Version supports optimistic concurrency on saves. It is incremented by
	// the store on every successful write.
	Version int64 `json:"version"`

	// StrongKey is the normalized DOI identity key, empty when absent.
	StrongKey string `json:"strong_key,omitempty"`

	// WeakKey is the normalized title+year identity key, empty when no title.
	WeakKey string `json:"weak_key,omitempty"`

	// Records lists constituent source records in discovery order.
	// The first record is the primary one for display.
	Records []SourceRecord `json:"records"`

	// Title and Abstract are the best-available evidence, chosen by
	// presence-of-abstract first, then most recent import.
	Title    string `json:"title"`
	Abstract string `json:"abstract,omitempty"`

	// State is the current screening state, derived from History.
	State ScreeningState `json:"state"`

	// Domain is the unit's domain tag from its current decision.
	Domain DomainTag `json:"domain,omitempty"`

	// Reference marks seed/known papers excluded from blind screening.
	Reference bool `json:"reference"`

	// NeedsManualKey marks units whose record yielded no identity key at all;
	// they await manual reconciliation.
	NeedsManualKey bool `json:"needs_manual_key,omitempty"`

	// History is the append-only decision history.
	History []DecisionRecord `json:"history"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewReviewUnit creates a unit containing a single source record.
func NewReviewUnit(rec SourceRecord, strongKey, weakKey string, now time.Time) *ReviewUnit {
	u := &ReviewUnit{
		ID:        uuid.New(),
		StrongKey: strongKey,
		WeakKey:   weakKey,
		State:     StatePending,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
	rec.UnitID = u.ID
	u.Records = []SourceRecord{rec}
	u.refreshBest()
	return u
}

// Attach appends a source record to the unit and refreshes the best-available
// title and abstract. It never touches decision history: committed decisions
// survive reconciliation, and a newly available abstract only unblocks a
// pending pass-2 gate.
func (u *ReviewUnit) Attach(rec SourceRecord, now time.Time) {
	rec.UnitID = u.ID
	u.Records = append(u.Records, rec)
	u.refreshBest()
	u.UpdatedAt = now.UTC()
}

// Detach removes the identified source record from the unit and refreshes the
// best-available evidence. Returns false when the record is not part of the
// unit. The caller is responsible for rehoming the detached record.
func (u *ReviewUnit) Detach(recordID uuid.UUID, now time.Time) (SourceRecord, bool) {
	for i, rec := range u.Records {
		if rec.ID == recordID {
			u.Records = append(u.Records[:i], u.Records[i+1:]...)
			u.refreshBest()
			u.UpdatedAt = now.UTC()
			return rec, true
		}
	}
	return SourceRecord{}, false
}

// refreshBest recomputes the best-available title and abstract across all
// records: a record with an abstract beats one without, later imports beat
// earlier ones.
func (u *ReviewUnit) refreshBest() {
	if len(u.Records) == 0 {
		return
	}
	best := u.Records[0]
	for _, rec := range u.Records[1:] {
		if betterEvidence(rec, best) {
			best = rec
		}
	}
	u.Title = best.Title
	u.Abstract = best.Abstract
	if u.Title == "" {
		// Fall back to any record that has a title at all.
		for _, rec := range u.Records {
			if rec.Title != "" {
				u.Title = rec.Title
				break
			}
		}
	}
}

// betterEvidence reports whether a should be preferred over b as the unit's
// evidence source.
func betterEvidence(a, b SourceRecord) bool {
	if (a.Abstract != "") != (b.Abstract != "") {
		return a.Abstract != ""
	}
	return a.ImportedAt.After(b.ImportedAt)
}

// PrimaryRecord returns the first (display) record, or nil for an empty unit.
func (u *ReviewUnit) PrimaryRecord() *SourceRecord {
	if len(u.Records) == 0 {
		return nil
	}
	return &u.Records[0]
}

// CurrentForPass returns the governing decision entry for the given pass:
// the last human entry for that pass, or the last automated entry if no
// human entry exists. Returns nil if the pass has no entries.
func (u *ReviewUnit) CurrentForPass(p Pass) *DecisionRecord {
	var lastHuman, lastAuto *DecisionRecord
	for i := range u.History {
		entry := &u.History[i]
		if entry.Pass != p {
			continue
		}
		if entry.Origin == OriginHuman {
			lastHuman = entry
		} else {
			lastAuto = entry
		}
	}
	if lastHuman != nil {
		return lastHuman
	}
	return lastAuto
}

// CurrentDecision returns the unit's current decision entry: the last human
// entry in history, or the last automated entry if no human entry exists.
// Returns nil for an unscreened unit.
func (u *ReviewUnit) CurrentDecision() *DecisionRecord {
	var lastHuman, lastAuto *DecisionRecord
	for i := range u.History {
		entry := &u.History[i]
		if entry.Origin == OriginHuman {
			lastHuman = entry
		} else {
			lastAuto = entry
		}
	}
	if lastHuman != nil {
		return lastHuman
	}
	return lastAuto
}

// Pass1Satisfied reports whether pass 2 may be attempted: pass 1 produced a
// non-pending outcome, or was explicitly skipped.
func (u *ReviewUnit) Pass1Satisfied() bool {
	entry := u.CurrentForPass(Pass1)
	if entry == nil {
		return false
	}
	if entry.Skipped {
		return true
	}
	return entry.Decision != DecisionPending
}

// Pass2Eligible reports whether the unit may be submitted for automated
// pass-2 screening: pass 1 is satisfied, did not exclude the unit, and an
// automated uncertain pass-1 outcome has been resolved by a human.
func (u *ReviewUnit) Pass2Eligible() bool {
	entry := u.CurrentForPass(Pass1)
	if entry == nil {
		return false
	}
	if entry.Skipped {
		return true
	}
	switch entry.Decision {
	case DecisionIncluded:
		return true
	case DecisionUncertain:
		// Automated uncertainty routes to mandatory human pass-1 review.
		return entry.Origin == OriginHuman
	default:
		return false
	}
}

// RecomputeState derives the screening state and domain tag from the decision
// history. Pass-2 entries govern when present; an automated uncertain pass-2
// entry does not advance the state (it awaits human resolution).
func (u *ReviewUnit) RecomputeState() {
	u.State = StatePending
	u.Domain = DomainNone

	p1 := u.CurrentForPass(Pass1)
	if p1 != nil && !p1.Skipped {
		switch p1.Decision {
		case DecisionIncluded:
			u.State = StatePass1Included
		case DecisionUncertain:
			u.State = StatePass1Uncertain
		case DecisionExcluded:
			u.State = StatePass1Excluded
		}
	}

	p2 := u.CurrentForPass(Pass2)
	if p2 != nil {
		switch p2.Decision {
		case DecisionIncluded:
			u.State = StatePass2Included
		case DecisionExcluded:
			u.State = StatePass2Excluded
		}
	}

	if cur := u.CurrentDecision(); cur != nil {
		switch cur.Decision {
		case DecisionIncluded, DecisionUncertain:
			u.Domain = cur.Domain
		}
	}
}

// HasStrongKey reports whether the unit carries a DOI-derived identity key.
func (u *ReviewUnit) HasStrongKey() bool { return u.StrongKey != "" }

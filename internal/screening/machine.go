// Package screening implements the two-pass screening state machine over
// Review Unit decision histories, and the committer that persists transitions
// against the optimistically versioned store.
package screening

import (
	"time"

	"github.com/helixir/screening-service/internal/domain"
)

// DefaultConfidenceFloor is the minimum confidence an automated decision must
// carry to stand as-is. Anything below is clamped to uncertain.
const DefaultConfidenceFloor = 0.6

// Transition is one requested screening decision against a unit. It is
// validated and, if accepted, appended to the unit's history verbatim except
// for the confidence-floor clamp on automated decisions.
type Transition struct {
	Pass           domain.Pass
	Origin         domain.Origin
	Decision       domain.DecisionValue
	Confidence     float64
	Reasoning      string
	ExclusionCodes []domain.ExclusionCode
	Domain         domain.DomainTag

	// Model and ResponseTime describe the judgment-service call that produced
	// an automated transition. Empty for human transitions.
	Model        string
	ResponseTime time.Duration
}

// Machine validates and applies screening transitions. It is stateless and
// safe for concurrent use.
type Machine struct {
	confidenceFloor float64
}

// NewMachine creates a machine with the given confidence floor. A floor
// outside (0,1] falls back to the default.
func NewMachine(confidenceFloor float64) *Machine {
	if confidenceFloor <= 0 || confidenceFloor > 1 {
		confidenceFloor = DefaultConfidenceFloor
	}
	return &Machine{confidenceFloor: confidenceFloor}
}

// ConfidenceFloor returns the configured minimum automated confidence.
func (m *Machine) ConfidenceFloor() float64 { return m.confidenceFloor }

// Apply validates the transition against the unit's current history, appends
// the resulting decision entry, and rederives the unit's state. The unit is
// mutated only on success.
//
// Ordering rules:
//   - pass 2 requires a satisfied pass 1 (outcome recorded or explicitly
//     skipped);
//   - automated pass-2 transitions additionally require pass-2 eligibility: a
//     pass-1 include, or an uncertain outcome already resolved by a human;
//   - automated transitions are rejected once the unit reached a state where
//     automation stops; human transitions are always accepted.
func (m *Machine) Apply(unit *domain.ReviewUnit, t Transition, now time.Time) error {
	if err := m.validate(unit, t); err != nil {
		return err
	}

	entry := domain.DecisionRecord{
		Pass:           t.Pass,
		Origin:         t.Origin,
		Decision:       t.Decision,
		Confidence:     t.Confidence,
		Reasoning:      t.Reasoning,
		ExclusionCodes: t.ExclusionCodes,
		Domain:         t.Domain,
		Model:          t.Model,
		ResponseTime:   t.ResponseTime,
		DecidedAt:      now.UTC(),
	}

	if t.Origin == domain.OriginHuman {
		// Human judgment is authoritative regardless of stated confidence.
		entry.Confidence = 1.0
	} else if entry.Confidence < m.confidenceFloor {
		// Low-confidence automated decisions are demoted to uncertain and
		// routed to human review. Codes are dropped with the demotion; the
		// raw verdict survives in the judgment log.
		entry.Decision = domain.DecisionUncertain
		entry.ExclusionCodes = nil
	}

	unit.History = append(unit.History, entry)
	unit.RecomputeState()
	unit.UpdatedAt = now.UTC()
	return nil
}

// SkipPass1 records an explicit pass-1 bypass as a synthetic history entry,
// unblocking pass 2 for units imported after a title-only screen already
// happened out of band. It is a no-op when pass 1 is already satisfied.
func (m *Machine) SkipPass1(unit *domain.ReviewUnit, now time.Time) {
	if unit.Pass1Satisfied() {
		return
	}
	unit.History = append(unit.History, domain.DecisionRecord{
		Pass:       domain.Pass1,
		Origin:     domain.OriginHuman,
		Decision:   domain.DecisionPending,
		Confidence: 1.0,
		Skipped:    true,
		DecidedAt:  now.UTC(),
	})
	unit.RecomputeState()
	unit.UpdatedAt = now.UTC()
}

// validate checks the transition's shape and its ordering against the unit.
func (m *Machine) validate(unit *domain.ReviewUnit, t Transition) error {
	if !t.Pass.Valid() {
		return domain.NewValidationError("pass", "pass must be 1 or 2")
	}
	if !t.Origin.Valid() {
		return domain.NewValidationError("origin", "origin must be human or automated")
	}
	switch t.Decision {
	case domain.DecisionIncluded, domain.DecisionExcluded, domain.DecisionUncertain:
	default:
		return domain.NewValidationError("decision", "decision must be included, excluded, or uncertain")
	}
	if t.Confidence < 0 || t.Confidence > 1 {
		return domain.NewValidationError("confidence", "confidence must be in [0,1]")
	}

	if t.Decision == domain.DecisionExcluded && len(t.ExclusionCodes) == 0 {
		return &domain.MissingCodeError{UnitID: unit.ID, Pass: t.Pass}
	}
	if t.Decision != domain.DecisionExcluded && len(t.ExclusionCodes) > 0 {
		return domain.NewValidationError("exclusion_codes", "codes are only allowed on excluded decisions")
	}
	for _, code := range t.ExclusionCodes {
		if !code.IsValid() {
			return domain.NewValidationError("exclusion_codes", "unknown exclusion code "+string(code))
		}
		if t.Origin == domain.OriginAutomated && !domain.IsJudgmentCode(code) {
			return domain.NewValidationError("exclusion_codes", "code "+string(code)+" is not in the judgment contract")
		}
	}

	if t.Pass == domain.Pass2 && !unit.Pass1Satisfied() {
		return &domain.OutOfOrderTransitionError{UnitID: unit.ID, State: unit.State, Pass: t.Pass}
	}

	if t.Origin == domain.OriginAutomated {
		if unit.State.IsTerminal() {
			return &domain.OutOfOrderTransitionError{UnitID: unit.ID, State: unit.State, Pass: t.Pass}
		}
		if t.Pass == domain.Pass2 && !unit.Pass2Eligible() {
			return &domain.OutOfOrderTransitionError{UnitID: unit.ID, State: unit.State, Pass: t.Pass}
		}
	}

	return nil
}

// Package domain provides domain models and business logic for the Screening Service.
package domain

// Pass identifies a screening pass.
// Pass 1 screens on title and metadata only; pass 2 adds the abstract.
type Pass int

const (
	Pass1 Pass = 1
	Pass2 Pass = 2
)

// Valid returns true if the pass is one of the two defined screening passes.
func (p Pass) Valid() bool {
	return p == Pass1 || p == Pass2
}

// Origin identifies who made a screening decision.
// These values must match the database enum decision_origin.
type Origin string

const (
	OriginHuman     Origin = "human"
	OriginAutomated Origin = "automated"
)

// Valid returns true if the origin is a known decision origin.
func (o Origin) Valid() bool {
	return o == OriginHuman || o == OriginAutomated
}

// DecisionValue is the outcome of a screening decision.
// These values must match the database enum decision_value.
type DecisionValue string

const (
	DecisionPending   DecisionValue = "pending"
	DecisionIncluded  DecisionValue = "included"
	DecisionExcluded  DecisionValue = "excluded"
	DecisionUncertain DecisionValue = "uncertain"
)

// Valid returns true if the value is a known decision value.
func (d DecisionValue) Valid() bool {
	switch d {
	case DecisionPending, DecisionIncluded, DecisionExcluded, DecisionUncertain:
		return true
	default:
		return false
	}
}

// ScreeningState is the lifecycle state of a Review Unit across both passes.
// These values must match the database enum screening_state.
type ScreeningState string

const (
	StatePending        ScreeningState = "pending"
	StatePass1Included  ScreeningState = "pass1_included"
	StatePass1Uncertain ScreeningState = "pass1_uncertain"
	StatePass1Excluded  ScreeningState = "pass1_excluded"
	StatePass2Included  ScreeningState = "pass2_included"
	StatePass2Excluded  ScreeningState = "pass2_excluded"
)

// IsTerminal returns true if automation stops at this state. A terminal state
// still accepts human transitions; "terminal" only means no further automated
// screening is attempted.
func (s ScreeningState) IsTerminal() bool {
	switch s {
	case StatePass1Excluded, StatePass2Included, StatePass2Excluded:
		return true
	default:
		return false
	}
}

// DomainTag classifies an included or uncertain paper by application domain.
// An empty tag means no domain has been assigned.
type DomainTag string

const (
	DomainHealth     DomainTag = "health"
	DomainEcological DomainTag = "ecological"
	DomainNone       DomainTag = ""
)

// NormalizeDomain maps arbitrary input to an allowed domain tag.
// Anything other than the two known domains collapses to DomainNone.
func NormalizeDomain(s string) DomainTag {
	switch DomainTag(s) {
	case DomainHealth:
		return DomainHealth
	case DomainEcological:
		return DomainEcological
	default:
		return DomainNone
	}
}

// EntryType is the bibliographic entry type of a source record.
type EntryType string

const (
	EntryTypeArticle       EntryType = "article"
	EntryTypeInProceedings EntryType = "inproceedings"
	EntryTypeInBook        EntryType = "inbook"
	EntryTypeOther         EntryType = "other"
)

// NormalizeEntryType maps a raw entry type tag to a known EntryType.
func NormalizeEntryType(s string) EntryType {
	switch EntryType(s) {
	case EntryTypeArticle, EntryTypeInProceedings, EntryTypeInBook:
		return EntryType(s)
	default:
		return EntryTypeOther
	}
}

// ExclusionCode is an entry in the fixed exclusion taxonomy.
type ExclusionCode string

const (
	ExclusionHighPower   ExclusionCode = "EX.1"
	ExclusionCOTS        ExclusionCode = "EX.2"
	ExclusionPlatform    ExclusionCode = "EX.3"
	ExclusionApplication ExclusionCode = "EX.4"
	ExclusionAgnostic    ExclusionCode = "EX.5"
	ExclusionNoArtifact  ExclusionCode = "EX.6"
)

// exclusionCodeDescriptions documents each taxonomy entry.
var exclusionCodeDescriptions = map[ExclusionCode]string{
	ExclusionHighPower:   "High-power and/or high-dimensional data processing (image, video, audio, RF)",
	ExclusionCOTS:        "Commercial off-the-shelf use or repurpose (smartphones, smartwatches, commercial devices)",
	ExclusionPlatform:    "Out-of-scope platform (vehicles, UAVs, drones)",
	ExclusionApplication: "Out-of-scope application (VR/AR, entertainment, general-purpose tech)",
	ExclusionAgnostic:    "Application-agnostic (no targeted application, e.g. novel wireless protocol)",
	ExclusionNoArtifact:  "No specific embedded artifact built or designed by the authors",
}

// IsValid returns true if the code belongs to the taxonomy.
func (c ExclusionCode) IsValid() bool {
	_, ok := exclusionCodeDescriptions[c]
	return ok
}

// Description returns the human-readable description of the code, or an empty
// string for unknown codes.
func (c ExclusionCode) Description() string {
	return exclusionCodeDescriptions[c]
}

// JudgmentCodes is the subset of the taxonomy the judgment service may emit.
// EX.4 is retired from the service contract but kept in the taxonomy for
// historical human decisions.
var JudgmentCodes = []ExclusionCode{
	ExclusionHighPower,
	ExclusionCOTS,
	ExclusionPlatform,
	ExclusionAgnostic,
	ExclusionNoArtifact,
}

// IsJudgmentCode returns true if the code may appear in a judgment-service verdict.
func IsJudgmentCode(c ExclusionCode) bool {
	for _, jc := range JudgmentCodes {
		if c == jc {
			return true
		}
	}
	return false
}

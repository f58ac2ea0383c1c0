package judge

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/helixir/screening-service/internal/domain"
)

// Verdict is a validated judgment over one unit at one pass.
type Verdict struct {
	// Decision is the model's screening outcome mapped to domain values.
	Decision domain.DecisionValue

	// Confidence is the model's stated confidence in [0,1].
	Confidence float64

	// Reasoning is the model's brief justification.
	Reasoning string

	// ExclusionCodes cites taxonomy codes; non-empty exactly when Decision is
	// excluded.
	ExclusionCodes []domain.ExclusionCode

	// Domain is the normalized domain tag, empty when the model named none or
	// an unknown domain.
	Domain domain.DomainTag
}

// rawVerdict is the wire shape of a judgment response.
type rawVerdict struct {
	Decision       string   `json:"decision"`
	Confidence     *float64 `json:"confidence"`
	Reasoning      string   `json:"reasoning"`
	ExclusionCodes []string `json:"exclusion_codes"`
	Domain         string   `json:"domain"`
}

// ParseVerdict extracts and validates a verdict from raw model output against
// the contract for the given pass. Markdown code fences and surrounding prose
// are tolerated; everything else about the contract is enforced and yields a
// ContractViolationError.
func ParseVerdict(pass domain.Pass, raw string) (*Verdict, error) {
	text := extractJSON(raw)
	if text == "" {
		return nil, &ContractViolationError{Reason: "no JSON object in response", RawResponse: raw}
	}

	var rv rawVerdict
	if err := json.Unmarshal([]byte(text), &rv); err != nil {
		return nil, &ContractViolationError{Reason: fmt.Sprintf("invalid JSON: %v", err), RawResponse: raw}
	}

	var decision domain.DecisionValue
	switch rv.Decision {
	case "include":
		decision = domain.DecisionIncluded
	case "exclude":
		decision = domain.DecisionExcluded
	case "uncertain":
		decision = domain.DecisionUncertain
	default:
		return nil, &ContractViolationError{Reason: fmt.Sprintf("unknown decision %q", rv.Decision), RawResponse: raw}
	}

	// Pass 2 is a forced choice: the model must include or exclude. Uncertainty
	// there is the model dodging the contract, not a usable outcome.
	if pass == domain.Pass2 && decision == domain.DecisionUncertain {
		return nil, &ContractViolationError{Reason: "uncertain decision at pass 2", RawResponse: raw}
	}

	if rv.Confidence == nil {
		return nil, &ContractViolationError{Reason: "missing confidence", RawResponse: raw}
	}
	if *rv.Confidence < 0 || *rv.Confidence > 1 {
		return nil, &ContractViolationError{Reason: fmt.Sprintf("confidence %v outside [0,1]", *rv.Confidence), RawResponse: raw}
	}

	codes := make([]domain.ExclusionCode, 0, len(rv.ExclusionCodes))
	for _, c := range rv.ExclusionCodes {
		code := domain.ExclusionCode(strings.TrimSpace(c))
		if !domain.IsJudgmentCode(code) {
			return nil, &ContractViolationError{Reason: fmt.Sprintf("code %q not in the judgment contract", c), RawResponse: raw}
		}
		codes = append(codes, code)
	}

	if decision == domain.DecisionExcluded && len(codes) == 0 {
		return nil, &ContractViolationError{Reason: "excluded decision without exclusion codes", RawResponse: raw}
	}
	if decision != domain.DecisionExcluded && len(codes) > 0 {
		return nil, &ContractViolationError{Reason: "exclusion codes on a non-excluded decision", RawResponse: raw}
	}

	return &Verdict{
		Decision:       decision,
		Confidence:     *rv.Confidence,
		Reasoning:      strings.TrimSpace(rv.Reasoning),
		ExclusionCodes: codes,
		Domain:         domain.NormalizeDomain(rv.Domain),
	}, nil
}

// extractJSON strips markdown code fences and surrounding prose, returning
// the outermost JSON object in the text, or "" when none is found.
func extractJSON(raw string) string {
	text := strings.TrimSpace(raw)

	if strings.HasPrefix(text, "```") {
		var jsonLines []string
		inBlock := false
		for _, line := range strings.Split(text, "\n") {
			switch {
			case strings.HasPrefix(line, "```") && !inBlock:
				inBlock = true
			case strings.HasPrefix(line, "```") && inBlock:
				inBlock = false
			case inBlock:
				jsonLines = append(jsonLines, line)
			}
		}
		text = strings.Join(jsonLines, "\n")
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return ""
	}
	return text[start : end+1]
}

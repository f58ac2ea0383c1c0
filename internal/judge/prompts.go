package judge

import (
	"fmt"
	"strings"

	"github.com/helixir/screening-service/internal/domain"
)

// inclusionCriteria lists the review's inclusion criteria as presented to the
// judgment model. A paper must meet all of them.
const inclusionCriteria = `
INC.1: Peer-reviewed publication
INC.2: Published 2022-2025
INC.3: Custom development (not COTS-assembled)
INC.4: Embedded wireless sensing (~<=100mW, microprocessor-based)
INC.5: In-situ deployment (real-world, situated)
INC.6: Health or ecology domain
INC.7: Target specificity (specific population or environmental context)
`

// exclusionCriteria lists the exclusion codes the model may cite. EX.4 is
// retired from the contract and deliberately absent.
const exclusionCriteria = `
EX.1: High-power processing (video, audio, RF requiring ~>=500mW)
EX.2: COTS-primary (smartphones, smartwatches, commercial devices)
EX.3: Out-of-scope platforms (vehicles, UAVs, drones)
EX.5: Application-agnostic (no targeted application, e.g., wireless security)
EX.6: No specific embedded artifact built or designed by the authors
`

// systemPromptTemplate frames the screening task and pins the JSON output
// contract. The two criteria blocks are spliced in at build time.
const systemPromptTemplate = `You are an expert research assistant helping with a systematic literature review.
The review focuses on embedded wireless sensing systems for health monitoring or ecological applications.

Your task is to screen papers based on their title, metadata, and (when available) abstract.

INCLUSION CRITERIA (paper must meet ALL of these):
%s
EXCLUSION CRITERIA (paper is excluded if it matches ANY of these):
%s
IMPORTANT GUIDELINES:
- Give benefit of the doubt: Only exclude if clearly out of scope
- When uncertain, choose "uncertain" to defer to human review
- For Pass 1 (title/metadata only), be more lenient since you lack the abstract
- For Pass 2 (with abstract), you can make more confident decisions

Respond ONLY with valid JSON in this exact format:
{
  "decision": "include|exclude|uncertain",
  "confidence": 0.0-1.0,
  "reasoning": "Brief explanation (1-2 sentences)",
  "exclusion_codes": ["EX.1"],
  "domain": "health|ecological"
}

The exclusion_codes array should only be populated if decision is "exclude".
Use the codes from the exclusion criteria list above.
The domain field should only be populated when the paper targets a health or ecological application.`

// pass1UserPromptTemplate asks for a title-and-metadata-only judgment.
const pass1UserPromptTemplate = `PASS 1 SCREENING (Title and Metadata Only)

Paper Information:
%s

Note: In Pass 1, you only have the title and metadata. Be lenient - if there's any chance
the paper could be relevant based on this limited information, mark it as "include" or "uncertain".
Only exclude if clearly out of scope.

Provide your assessment as JSON:`

// pass2UserPromptTemplate asks for a judgment over the full metadata plus abstract.
const pass2UserPromptTemplate = `PASS 2 SCREENING (Full Metadata with Abstract)

Paper Information:
%s

Now that you have the abstract, you can make a more informed decision.
Still give benefit of the doubt, but you can be more confident in exclusions
if the abstract clearly indicates the paper is out of scope.

Provide your assessment as JSON:`

// BuildPrompts renders the system and user prompts for screening a unit at the
// given pass. Pass 1 withholds the abstract even when one is available.
func BuildPrompts(pass domain.Pass, unit *domain.ReviewUnit) (system, user string) {
	system = fmt.Sprintf(systemPromptTemplate, inclusionCriteria, exclusionCriteria)

	meta := buildPaperMetadata(unit, pass == domain.Pass2)
	if pass == domain.Pass1 {
		user = fmt.Sprintf(pass1UserPromptTemplate, meta)
	} else {
		user = fmt.Sprintf(pass2UserPromptTemplate, meta)
	}
	return system, user
}

// buildPaperMetadata renders the unit's best-available evidence as prompt
// text. Empty fields are omitted; at pass 2 a missing abstract is stated
// explicitly rather than dropped.
func buildPaperMetadata(unit *domain.ReviewUnit, withAbstract bool) string {
	parts := []string{"Title: " + unit.Title}

	if rec := unit.PrimaryRecord(); rec != nil {
		if rec.Year != "" {
			parts = append(parts, "Year: "+rec.Year)
		}
		if rec.Keywords != "" {
			parts = append(parts, "Keywords: "+rec.Keywords)
		}
		if rec.Venue != "" {
			parts = append(parts, "Venue: "+rec.Venue)
		}
	}

	if withAbstract {
		if unit.Abstract != "" {
			parts = append(parts, "\nAbstract:\n"+unit.Abstract)
		} else {
			parts = append(parts, "\nAbstract: Not available")
		}
	}

	return strings.Join(parts, "\n")
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// JudgmentLog is one audit entry for a judgment-service call. Every attempt is
// logged, including failures, so screening runs can be replayed and billed.
type JudgmentLog struct {
	ID           uuid.UUID       `json:"id"`
	UnitID       uuid.UUID       `json:"unit_id"`
	Pass         Pass            `json:"pass"`
	Model        string          `json:"model"`
	ThinkingMode bool            `json:"thinking_mode"`
	SystemPrompt string          `json:"system_prompt"`
	UserPrompt   string          `json:"user_prompt"`
	RawResponse  string          `json:"raw_response,omitempty"`
	Decision     DecisionValue   `json:"decision,omitempty"`
	Confidence   *float64        `json:"confidence,omitempty"`
	Reasoning    string          `json:"reasoning,omitempty"`
	Codes        []ExclusionCode `json:"codes,omitempty"`
	Domain       DomainTag       `json:"domain,omitempty"`
	Error        string          `json:"error,omitempty"`
	Attempt      int             `json:"attempt"`
	ResponseTime time.Duration   `json:"response_time"`
	RequestedAt  time.Time       `json:"requested_at"`
}

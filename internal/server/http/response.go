package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/helixir/screening-service/internal/domain"
	"github.com/helixir/screening-service/internal/ingest"
	"github.com/helixir/screening-service/internal/orchestrator"
)

// Response types for JSON serialization.

type sourceRecordResponse struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	EntryType  string    `json:"entry_type"`
	Key        string    `json:"key,omitempty"`
	Title      string    `json:"title"`
	Authors    string    `json:"authors,omitempty"`
	Venue      string    `json:"venue,omitempty"`
	Year       string    `json:"year,omitempty"`
	DOI        string    `json:"doi,omitempty"`
	Abstract   string    `json:"abstract,omitempty"`
	Keywords   string    `json:"keywords,omitempty"`
	ImportedAt time.Time `json:"imported_at"`
}

type decisionResponse struct {
	Pass           int       `json:"pass"`
	Origin         string    `json:"origin"`
	Decision       string    `json:"decision"`
	Confidence     float64   `json:"confidence"`
	Reasoning      string    `json:"reasoning,omitempty"`
	ExclusionCodes []string  `json:"exclusion_codes,omitempty"`
	Domain         string    `json:"domain,omitempty"`
	Skipped        bool      `json:"skipped,omitempty"`
	Model          string    `json:"model,omitempty"`
	DecidedAt      time.Time `json:"decided_at"`
}

type unitResponse struct {
	ID             string                 `json:"id"`
	Version        int64                  `json:"version"`
	StrongKey      string                 `json:"strong_key,omitempty"`
	WeakKey        string                 `json:"weak_key,omitempty"`
	Title          string                 `json:"title"`
	Abstract       string                 `json:"abstract,omitempty"`
	State          string                 `json:"state"`
	Domain         string                 `json:"domain,omitempty"`
	Reference      bool                   `json:"reference"`
	NeedsManualKey bool                   `json:"needs_manual_key"`
	Records        []sourceRecordResponse `json:"records"`
	History        []decisionResponse     `json:"history"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

type unitSummaryResponse struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	State          string    `json:"state"`
	Domain         string    `json:"domain,omitempty"`
	Reference      bool      `json:"reference"`
	NeedsManualKey bool      `json:"needs_manual_key"`
	RecordCount    int       `json:"record_count"`
	HasAbstract    bool      `json:"has_abstract"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type listUnitsResponse struct {
	Units      []unitSummaryResponse `json:"units"`
	TotalCount int64                 `json:"total_count"`
	Limit      int                   `json:"limit"`
	Offset     int                   `json:"offset"`
}

type importResponse struct {
	Stats *ingest.ImportStats `json:"stats"`
}

type judgmentLogResponse struct {
	ID           string    `json:"id"`
	UnitID       string    `json:"unit_id"`
	Pass         int       `json:"pass"`
	Model        string    `json:"model"`
	ThinkingMode bool      `json:"thinking_mode"`
	Decision     string    `json:"decision,omitempty"`
	Confidence   *float64  `json:"confidence,omitempty"`
	Reasoning    string    `json:"reasoning,omitempty"`
	Codes        []string  `json:"codes,omitempty"`
	Domain       string    `json:"domain,omitempty"`
	Error        string    `json:"error,omitempty"`
	Attempt      int       `json:"attempt"`
	ResponseMS   int64     `json:"response_time_ms"`
	RequestedAt  time.Time `json:"requested_at"`
}

type listJudgmentsResponse struct {
	Judgments []judgmentLogResponse `json:"judgments"`
}

type screenOutcomeResponse struct {
	UnitID   string `json:"unit_id"`
	Result   string `json:"result"`
	State    string `json:"state,omitempty"`
	Decision string `json:"decision,omitempty"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

type screenBatchResponse struct {
	Pass     int                     `json:"pass"`
	Total    int                     `json:"total"`
	Decided  int                     `json:"decided"`
	Skipped  int                     `json:"skipped"`
	Failed   int                     `json:"failed"`
	Outcomes []screenOutcomeResponse `json:"outcomes"`
}

// Converter functions

func domainUnitToResponse(u *domain.ReviewUnit) unitResponse {
	records := make([]sourceRecordResponse, len(u.Records))
	for i, rec := range u.Records {
		records[i] = sourceRecordResponse{
			ID:         rec.ID.String(),
			Source:     rec.Source,
			EntryType:  string(rec.EntryType),
			Key:        rec.Key,
			Title:      rec.Title,
			Authors:    rec.Authors,
			Venue:      rec.Venue,
			Year:       rec.Year,
			DOI:        rec.DOI,
			Abstract:   rec.Abstract,
			Keywords:   rec.Keywords,
			ImportedAt: rec.ImportedAt,
		}
	}
	history := make([]decisionResponse, len(u.History))
	for i, entry := range u.History {
		history[i] = decisionResponse{
			Pass:           int(entry.Pass),
			Origin:         string(entry.Origin),
			Decision:       string(entry.Decision),
			Confidence:     entry.Confidence,
			Reasoning:      entry.Reasoning,
			ExclusionCodes: codesToStrings(entry.ExclusionCodes),
			Domain:         string(entry.Domain),
			Skipped:        entry.Skipped,
			Model:          entry.Model,
			DecidedAt:      entry.DecidedAt,
		}
	}
	return unitResponse{
		ID:             u.ID.String(),
		Version:        u.Version,
		StrongKey:      u.StrongKey,
		WeakKey:        u.WeakKey,
		Title:          u.Title,
		Abstract:       u.Abstract,
		State:          string(u.State),
		Domain:         string(u.Domain),
		Reference:      u.Reference,
		NeedsManualKey: u.NeedsManualKey,
		Records:        records,
		History:        history,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

func domainUnitToSummary(u *domain.ReviewUnit) unitSummaryResponse {
	return unitSummaryResponse{
		ID:             u.ID.String(),
		Title:          u.Title,
		State:          string(u.State),
		Domain:         string(u.Domain),
		Reference:      u.Reference,
		NeedsManualKey: u.NeedsManualKey,
		RecordCount:    len(u.Records),
		HasAbstract:    u.Abstract != "",
		UpdatedAt:      u.UpdatedAt,
	}
}

func domainJudgmentToResponse(j *domain.JudgmentLog) judgmentLogResponse {
	return judgmentLogResponse{
		ID:           j.ID.String(),
		UnitID:       j.UnitID.String(),
		Pass:         int(j.Pass),
		Model:        j.Model,
		ThinkingMode: j.ThinkingMode,
		Decision:     string(j.Decision),
		Confidence:   j.Confidence,
		Reasoning:    j.Reasoning,
		Codes:        codesToStrings(j.Codes),
		Domain:       string(j.Domain),
		Error:        j.Error,
		Attempt:      j.Attempt,
		ResponseMS:   j.ResponseTime.Milliseconds(),
		RequestedAt:  j.RequestedAt,
	}
}

func outcomeToResponse(o orchestrator.Outcome) screenOutcomeResponse {
	resp := screenOutcomeResponse{
		UnitID:   o.UnitID.String(),
		Result:   classifyOutcome(o),
		Attempts: o.Attempts,
	}
	if o.Unit != nil {
		resp.State = string(o.Unit.State)
	}
	if o.Verdict != nil {
		resp.Decision = string(o.Verdict.Decision)
	}
	if o.Err != nil {
		resp.Error = o.Err.Error()
	}
	return resp
}

// classifyOutcome buckets a screening outcome: refusals and ordering errors
// are skips, everything else either decided or failed.
func classifyOutcome(o orchestrator.Outcome) string {
	switch {
	case o.Err == nil:
		return "decided"
	case errors.Is(o.Err, orchestrator.ErrReferenceUnit),
		errors.Is(o.Err, orchestrator.ErrNoAbstract),
		errors.Is(o.Err, domain.ErrOutOfOrderTransition):
		return "skipped"
	default:
		return "failed"
	}
}

func codesToStrings(codes []domain.ExclusionCode) []string {
	if len(codes) == 0 {
		return nil
	}
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = string(c)
	}
	return out
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort log; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

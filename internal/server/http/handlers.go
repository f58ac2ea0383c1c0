package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/helixir/screening-service/internal/domain"
	"github.com/helixir/screening-service/internal/ingest"
	"github.com/helixir/screening-service/internal/repository"
	"github.com/helixir/screening-service/internal/screening"
)

// Request size and batch limits.
const (
	maxRequestBodySize = 16 << 20 // imports carry whole search exports
	maxImportRecords   = 50000
	maxBatchUnits      = 10000
)

// importRecordPayload is one parsed bibliographic entry in an import request.
type importRecordPayload struct {
	EntryType string            `json:"entry_type" validate:"required"`
	Key       string            `json:"key,omitempty"`
	Fields    map[string]string `json:"fields" validate:"required"`
}

// importRequest is the JSON request body for importing a search export.
type importRequest struct {
	Source    string                `json:"source" validate:"required"`
	Reference bool                  `json:"reference,omitempty"`
	SkipPass1 bool                  `json:"skip_pass1,omitempty"`
	Records   []importRecordPayload `json:"records" validate:"required,min=1,dive"`
}

// decisionRequest is the JSON request body for recording a human decision.
type decisionRequest struct {
	Pass           int      `json:"pass" validate:"required,oneof=1 2"`
	Decision       string   `json:"decision" validate:"required,oneof=included excluded uncertain"`
	Reasoning      string   `json:"reasoning,omitempty"`
	ExclusionCodes []string `json:"exclusion_codes,omitempty"`
	Domain         string   `json:"domain,omitempty" validate:"omitempty,oneof=health ecological"`
}

// mergeRequest is the JSON request body for merging another unit into this one.
type mergeRequest struct {
	SourceUnitID string `json:"source_unit_id" validate:"required,uuid"`
}

// unmergeRequest is the JSON request body for splitting a record out of a unit.
type unmergeRequest struct {
	RecordID string `json:"record_id" validate:"required,uuid"`
}

// screenBatchRequest is the JSON request body for running a screening batch.
type screenBatchRequest struct {
	Pass    int      `json:"pass" validate:"required,oneof=1 2"`
	UnitIDs []string `json:"unit_ids" validate:"required,min=1,dive,uuid"`
}

// importBatch handles POST /api/v1/imports.
func (s *Server) importBatch(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if len(req.Records) > maxImportRecords {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("records must have at most %d entries", maxImportRecords))
		return
	}

	records := make([]domain.RawRecord, len(req.Records))
	for i, rec := range req.Records {
		records[i] = domain.RawRecord{
			EntryType: rec.EntryType,
			Key:       rec.Key,
			Fields:    rec.Fields,
		}
	}

	stats, err := s.importer.ImportBatch(r.Context(), ingest.ImportRequest{
		Source:    strings.TrimSpace(req.Source),
		Records:   records,
		Reference: req.Reference,
		SkipPass1: req.SkipPass1,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, importResponse{Stats: stats})
}

// listUnits handles GET /api/v1/units.
func (s *Server) listUnits(w http.ResponseWriter, r *http.Request) {
	filter, err := unitFilterFromQuery(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	units, total, err := s.units.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	summaries := make([]unitSummaryResponse, len(units))
	for i, u := range units {
		summaries[i] = domainUnitToSummary(u)
	}
	writeJSON(w, http.StatusOK, listUnitsResponse{
		Units:      summaries,
		TotalCount: total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

// getUnit handles GET /api/v1/units/{unitID}.
func (s *Server) getUnit(w http.ResponseWriter, r *http.Request) {
	unitID, ok := s.unitIDParam(w, r)
	if !ok {
		return
	}

	unit, err := s.units.Get(r.Context(), unitID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domainUnitToResponse(unit))
}

// recordDecision handles POST /api/v1/units/{unitID}/decisions.
// Human decisions are always accepted regardless of screening state; the
// engine records them with full confidence.
func (s *Server) recordDecision(w http.ResponseWriter, r *http.Request) {
	unitID, ok := s.unitIDParam(w, r)
	if !ok {
		return
	}

	var req decisionRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	codes := make([]domain.ExclusionCode, len(req.ExclusionCodes))
	for i, c := range req.ExclusionCodes {
		codes[i] = domain.ExclusionCode(c)
	}

	unit, err := s.committer.Commit(r.Context(), unitID, screening.Transition{
		Pass:           domain.Pass(req.Pass),
		Origin:         domain.OriginHuman,
		Decision:       domain.DecisionValue(req.Decision),
		Confidence:     1.0,
		Reasoning:      req.Reasoning,
		ExclusionCodes: codes,
		Domain:         domain.DomainTag(req.Domain),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domainUnitToResponse(unit))
}

// skipPass1 handles POST /api/v1/units/{unitID}/skip-pass1.
func (s *Server) skipPass1(w http.ResponseWriter, r *http.Request) {
	unitID, ok := s.unitIDParam(w, r)
	if !ok {
		return
	}

	unit, err := s.committer.SkipPass1(r.Context(), unitID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domainUnitToResponse(unit))
}

// mergeUnits handles POST /api/v1/units/{unitID}/merge.
// The path unit absorbs the unit named in the body.
func (s *Server) mergeUnits(w http.ResponseWriter, r *http.Request) {
	dstID, ok := s.unitIDParam(w, r)
	if !ok {
		return
	}

	var req mergeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	srcID, err := uuid.Parse(req.SourceUnitID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid source_unit_id")
		return
	}

	unit, err := s.reconciler.MergeUnits(r.Context(), dstID, srcID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domainUnitToResponse(unit))
}

// unmergeRecord handles POST /api/v1/units/{unitID}/unmerge.
// Responds with the freshly created unit holding the split record.
func (s *Server) unmergeRecord(w http.ResponseWriter, r *http.Request) {
	unitID, ok := s.unitIDParam(w, r)
	if !ok {
		return
	}

	var req unmergeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	recordID, err := uuid.Parse(req.RecordID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record_id")
		return
	}

	fresh, err := s.reconciler.UnmergeRecord(r.Context(), unitID, recordID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, domainUnitToResponse(fresh))
}

// listJudgments handles GET /api/v1/units/{unitID}/judgments.
func (s *Server) listJudgments(w http.ResponseWriter, r *http.Request) {
	unitID, ok := s.unitIDParam(w, r)
	if !ok {
		return
	}

	entries, err := s.judgments.ListByUnit(r.Context(), unitID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]judgmentLogResponse, len(entries))
	for i, entry := range entries {
		out[i] = domainJudgmentToResponse(entry)
	}
	writeJSON(w, http.StatusOK, listJudgmentsResponse{Judgments: out})
}

// screenBatch handles POST /api/v1/screenings. The batch runs synchronously;
// per-unit outcomes stream from the orchestrator and are collected into a
// single summary response.
func (s *Server) screenBatch(w http.ResponseWriter, r *http.Request) {
	var req screenBatchRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if len(req.UnitIDs) > maxBatchUnits {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unit_ids must have at most %d entries", maxBatchUnits))
		return
	}

	unitIDs := make([]uuid.UUID, len(req.UnitIDs))
	for i, raw := range req.UnitIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid unit id: %s", raw))
			return
		}
		unitIDs[i] = id
	}

	resp := screenBatchResponse{
		Pass:     req.Pass,
		Total:    len(unitIDs),
		Outcomes: make([]screenOutcomeResponse, 0, len(unitIDs)),
	}
	for outcome := range s.orchestrator.ScreenBatch(r.Context(), domain.Pass(req.Pass), unitIDs) {
		o := outcomeToResponse(outcome)
		switch o.Result {
		case "decided":
			resp.Decided++
		case "skipped":
			resp.Skipped++
		default:
			resp.Failed++
		}
		resp.Outcomes = append(resp.Outcomes, o)
	}

	writeJSON(w, http.StatusOK, resp)
}

// decodeBody reads, unmarshals and validates a JSON request body. Writes the
// error response itself and returns false when the body is unusable.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid field %s: failed %s validation", verrs[0].Field(), verrs[0].Tag()))
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// unitIDParam parses the unitID path parameter. Writes the error response
// itself and returns false on a malformed ID.
func (s *Server) unitIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "unitID")
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid unit id")
		return uuid.Nil, false
	}
	return id, true
}

// unitFilterFromQuery builds a unit list filter from query parameters.
func unitFilterFromQuery(r *http.Request) (repository.UnitFilter, error) {
	q := r.URL.Query()
	filter := repository.UnitFilter{}

	if raw := q.Get("states"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			filter.States = append(filter.States, domain.ScreeningState(strings.TrimSpace(s)))
		}
	}
	if raw := q.Get("domain"); raw != "" {
		filter.Domain = domain.NormalizeDomain(raw)
		if filter.Domain == domain.DomainNone {
			return filter, domain.NewValidationError("domain", "unknown domain "+raw)
		}
	}
	if raw := q.Get("needs_manual_key"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, domain.NewValidationError("needs_manual_key", "must be a boolean")
		}
		filter.NeedsManualKey = &v
	}
	if raw := q.Get("reference"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, domain.NewValidationError("reference", "must be a boolean")
		}
		filter.Reference = &v
	}
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return filter, domain.NewValidationError("limit", "must be a non-negative integer")
		}
		filter.Limit = v
	}
	if raw := q.Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return filter, domain.NewValidationError("offset", "must be a non-negative integer")
		}
		filter.Offset = v
	}

	if err := filter.Validate(); err != nil {
		return filter, err
	}
	return filter, nil
}

// writeDomainError maps domain errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrMissingCode):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrStaleWrite),
		errors.Is(err, domain.ErrOutOfOrderTransition),
		errors.Is(err, domain.ErrConflictingMerge):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

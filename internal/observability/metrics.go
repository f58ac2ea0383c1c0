package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the screening service.
// Metrics are organized by subsystem: imports, reconciliation, screening
// decisions, and judgment-service operations. All counters and histograms are
// registered via promauto for automatic registration with the default
// Prometheus registry.
type Metrics struct {
	// RecordsImported counts source records imported, labeled by entry type.
	RecordsImported *prometheus.CounterVec

	// UnitsCreated counts Review Units created during reconciliation.
	UnitsCreated prometheus.Counter

	// DuplicatesMerged counts records attached to an existing unit, labeled
	// by key kind ("strong", "weak").
	DuplicatesMerged *prometheus.CounterVec

	// UnitsNeedingManualKey counts units routed to manual reconciliation.
	UnitsNeedingManualKey prometheus.Counter

	// MergeConflicts counts merges refused because both units carried
	// conflicting decisions.
	MergeConflicts prometheus.Counter

	// DecisionsRecorded counts committed screening decisions, labeled by
	// pass, origin, and decision value.
	DecisionsRecorded *prometheus.CounterVec

	// DecisionsClamped counts automated decisions demoted to uncertain by the
	// confidence floor.
	DecisionsClamped prometheus.Counter

	// StaleWriteRetries counts commit retries caused by optimistic version
	// conflicts.
	StaleWriteRetries prometheus.Counter

	// JudgeRequestsTotal counts judgment-service requests, labeled by pass and model.
	JudgeRequestsTotal *prometheus.CounterVec

	// JudgeRequestsFailed counts failed judgment-service requests, labeled by
	// pass, model, and error type.
	JudgeRequestsFailed *prometheus.CounterVec

	// JudgeRequestDuration observes judgment-service request duration in
	// seconds, labeled by pass and model.
	JudgeRequestDuration *prometheus.HistogramVec

	// JudgeContractViolations counts responses that failed verdict parsing or
	// validation, labeled by model.
	JudgeContractViolations *prometheus.CounterVec

	// JudgeConfidence observes verdict confidence values, labeled by pass.
	JudgeConfidence *prometheus.HistogramVec

	// BatchesStarted counts screening batches started, labeled by pass.
	BatchesStarted *prometheus.CounterVec

	// BatchUnitsScreened counts units screened per batch outcome, labeled by
	// pass and result ("decided", "skipped", "failed").
	BatchUnitsScreened *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Imports and reconciliation
		RecordsImported: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_imported_total",
			Help:      "Total number of source records imported by entry type",
		}, []string{"entry_type"}),
		UnitsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_created_total",
			Help:      "Total number of review units created",
		}),
		DuplicatesMerged: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_merged_total",
			Help:      "Total number of records attached to existing units by key kind",
		}, []string{"key_kind"}),
		UnitsNeedingManualKey: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_needing_manual_key_total",
			Help:      "Total number of units routed to manual reconciliation",
		}),
		MergeConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_conflicts_total",
			Help:      "Total number of merges refused due to conflicting decisions",
		}),

		// Decisions
		DecisionsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_recorded_total",
			Help:      "Total number of screening decisions committed",
		}, []string{"pass", "origin", "decision"}),
		DecisionsClamped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_clamped_total",
			Help:      "Total number of automated decisions demoted to uncertain by the confidence floor",
		}),
		StaleWriteRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_write_retries_total",
			Help:      "Total number of commit retries after optimistic version conflicts",
		}),

		// Judgment service
		JudgeRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "judge_requests_total",
			Help:      "Total number of judgment service requests",
		}, []string{"pass", "model"}),
		JudgeRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "judge_requests_failed_total",
			Help:      "Total number of failed judgment service requests",
		}, []string{"pass", "model", "error_type"}),
		JudgeRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "judge_request_duration_seconds",
			Help:      "Duration of judgment service requests in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"pass", "model"}),
		JudgeContractViolations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "judge_contract_violations_total",
			Help:      "Total number of judgment responses that failed verdict validation",
		}, []string{"model"}),
		JudgeConfidence: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "judge_confidence",
			Help:      "Confidence values reported in judgment verdicts",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}, []string{"pass"}),

		// Batches
		BatchesStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_started_total",
			Help:      "Total number of screening batches started",
		}, []string{"pass"}),
		BatchUnitsScreened: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_units_screened_total",
			Help:      "Total number of units processed in screening batches by result",
		}, []string{"pass", "result"}),
	}
}

// RecordImported records an imported source record.
func (m *Metrics) RecordImported(entryType string) {
	m.RecordsImported.WithLabelValues(entryType).Inc()
}

// RecordUnitCreated records a new review unit.
func (m *Metrics) RecordUnitCreated() {
	m.UnitsCreated.Inc()
}

// RecordDuplicateMerged records a record attached to an existing unit.
func (m *Metrics) RecordDuplicateMerged(keyKind string) {
	m.DuplicatesMerged.WithLabelValues(keyKind).Inc()
}

// RecordManualKeyNeeded records a unit routed to manual reconciliation.
func (m *Metrics) RecordManualKeyNeeded() {
	m.UnitsNeedingManualKey.Inc()
}

// RecordMergeConflict records a refused merge.
func (m *Metrics) RecordMergeConflict() {
	m.MergeConflicts.Inc()
}

// RecordDecision records a committed screening decision.
func (m *Metrics) RecordDecision(pass, origin, decision string) {
	m.DecisionsRecorded.WithLabelValues(pass, origin, decision).Inc()
}

// RecordDecisionClamped records a confidence-floor demotion.
func (m *Metrics) RecordDecisionClamped() {
	m.DecisionsClamped.Inc()
}

// RecordStaleWriteRetry records a commit retry after a version conflict.
func (m *Metrics) RecordStaleWriteRetry() {
	m.StaleWriteRetries.Inc()
}

// RecordJudgeRequest records a judgment service request.
func (m *Metrics) RecordJudgeRequest(pass, model string, durationSeconds float64) {
	m.JudgeRequestsTotal.WithLabelValues(pass, model).Inc()
	m.JudgeRequestDuration.WithLabelValues(pass, model).Observe(durationSeconds)
}

// RecordJudgeRequestFailed records a failed judgment service request.
func (m *Metrics) RecordJudgeRequestFailed(pass, model, errorType string) {
	m.JudgeRequestsFailed.WithLabelValues(pass, model, errorType).Inc()
}

// RecordJudgeContractViolation records a response that failed verdict validation.
func (m *Metrics) RecordJudgeContractViolation(model string) {
	m.JudgeContractViolations.WithLabelValues(model).Inc()
}

// RecordJudgeConfidence records a verdict confidence value.
func (m *Metrics) RecordJudgeConfidence(pass string, confidence float64) {
	m.JudgeConfidence.WithLabelValues(pass).Observe(confidence)
}

// RecordBatchStarted records a screening batch start.
func (m *Metrics) RecordBatchStarted(pass string) {
	m.BatchesStarted.WithLabelValues(pass).Inc()
}

// RecordBatchUnit records one unit processed in a screening batch.
func (m *Metrics) RecordBatchUnit(pass, result string) {
	m.BatchUnitsScreened.WithLabelValues(pass, result).Inc()
}

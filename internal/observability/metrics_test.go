package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Note: prometheus/promauto registers metrics globally, so we need to use
// unique namespaces per test to avoid registration conflicts.

func TestNewMetrics(t *testing.T) {
	// Use unique namespace to avoid conflicts with other tests
	m := NewMetrics("test_screening_new")

	assert.NotNil(t, m.RecordsImported)
	assert.NotNil(t, m.UnitsCreated)
	assert.NotNil(t, m.DuplicatesMerged)
	assert.NotNil(t, m.UnitsNeedingManualKey)
	assert.NotNil(t, m.MergeConflicts)
	assert.NotNil(t, m.DecisionsRecorded)
	assert.NotNil(t, m.DecisionsClamped)
	assert.NotNil(t, m.StaleWriteRetries)
	assert.NotNil(t, m.JudgeRequestsTotal)
	assert.NotNil(t, m.JudgeRequestsFailed)
	assert.NotNil(t, m.JudgeRequestDuration)
	assert.NotNil(t, m.JudgeContractViolations)
	assert.NotNil(t, m.JudgeConfidence)
	assert.NotNil(t, m.BatchesStarted)
	assert.NotNil(t, m.BatchUnitsScreened)
}

func TestRecordImported(t *testing.T) {
	m := NewMetrics("test_record_imported")

	m.RecordImported("article")
	m.RecordImported("article")
	m.RecordImported("inproceedings")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.RecordsImported.WithLabelValues("article")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RecordsImported.WithLabelValues("inproceedings")))
}

func TestRecordUnitCreated(t *testing.T) {
	m := NewMetrics("test_unit_created")

	initial := testutil.ToFloat64(m.UnitsCreated)
	m.RecordUnitCreated()
	assert.Equal(t, initial+1, testutil.ToFloat64(m.UnitsCreated))
}

func TestRecordDuplicateMerged(t *testing.T) {
	m := NewMetrics("test_duplicate_merged")

	m.RecordDuplicateMerged("strong")
	m.RecordDuplicateMerged("weak")
	m.RecordDuplicateMerged("strong")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.DuplicatesMerged.WithLabelValues("strong")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DuplicatesMerged.WithLabelValues("weak")))
}

func TestRecordManualKeyNeeded(t *testing.T) {
	m := NewMetrics("test_manual_key_needed")

	initial := testutil.ToFloat64(m.UnitsNeedingManualKey)
	m.RecordManualKeyNeeded()
	assert.Equal(t, initial+1, testutil.ToFloat64(m.UnitsNeedingManualKey))
}

func TestRecordMergeConflict(t *testing.T) {
	m := NewMetrics("test_merge_conflict")

	initial := testutil.ToFloat64(m.MergeConflicts)
	m.RecordMergeConflict()
	assert.Equal(t, initial+1, testutil.ToFloat64(m.MergeConflicts))
}

func TestRecordDecision(t *testing.T) {
	m := NewMetrics("test_decision")

	m.RecordDecision("1", "automated", "included")
	m.RecordDecision("1", "human", "excluded")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DecisionsRecorded.WithLabelValues("1", "automated", "included")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DecisionsRecorded.WithLabelValues("1", "human", "excluded")))
}

func TestRecordDecisionClamped(t *testing.T) {
	m := NewMetrics("test_decision_clamped")

	initial := testutil.ToFloat64(m.DecisionsClamped)
	m.RecordDecisionClamped()
	assert.Equal(t, initial+1, testutil.ToFloat64(m.DecisionsClamped))
}

func TestRecordStaleWriteRetry(t *testing.T) {
	m := NewMetrics("test_stale_write_retry")

	initial := testutil.ToFloat64(m.StaleWriteRetries)
	m.RecordStaleWriteRetry()
	assert.Equal(t, initial+1, testutil.ToFloat64(m.StaleWriteRetries))
}

func TestRecordJudgeRequest(t *testing.T) {
	m := NewMetrics("test_judge_request")

	m.RecordJudgeRequest("1", "qwen3:32b", 1.5)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.JudgeRequestsTotal.WithLabelValues("1", "qwen3:32b")))

	histCount, err := getHistogramSampleCount(m.JudgeRequestDuration.WithLabelValues("1", "qwen3:32b").(prometheus.Histogram))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), histCount)
}

func TestRecordJudgeRequestFailed(t *testing.T) {
	m := NewMetrics("test_judge_request_failed")

	m.RecordJudgeRequestFailed("2", "qwen3:32b", "transient")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.JudgeRequestsFailed.WithLabelValues("2", "qwen3:32b", "transient")))
}

func TestRecordJudgeContractViolation(t *testing.T) {
	m := NewMetrics("test_judge_contract_violation")

	m.RecordJudgeContractViolation("qwen3:32b")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.JudgeContractViolations.WithLabelValues("qwen3:32b")))
}

func TestRecordJudgeConfidence(t *testing.T) {
	m := NewMetrics("test_judge_confidence")

	m.RecordJudgeConfidence("2", 0.85)
	m.RecordJudgeConfidence("2", 0.4)

	histCount, err := getHistogramSampleCount(m.JudgeConfidence.WithLabelValues("2").(prometheus.Histogram))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), histCount)
}

func TestRecordBatchStarted(t *testing.T) {
	m := NewMetrics("test_batch_started")

	m.RecordBatchStarted("1")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BatchesStarted.WithLabelValues("1")))
}

func TestRecordBatchUnit(t *testing.T) {
	m := NewMetrics("test_batch_unit")

	m.RecordBatchUnit("1", "decided")
	m.RecordBatchUnit("1", "decided")
	m.RecordBatchUnit("1", "skipped")
	m.RecordBatchUnit("1", "failed")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.BatchUnitsScreened.WithLabelValues("1", "decided")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BatchUnitsScreened.WithLabelValues("1", "skipped")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BatchUnitsScreened.WithLabelValues("1", "failed")))
}

// Helper to get histogram sample count
func getHistogramSampleCount(h prometheus.Histogram) (uint64, error) {
	ch := make(chan prometheus.Metric, 1)
	h.Collect(ch)
	close(ch)

	var m prometheus.Metric
	for m = range ch {
		break
	}

	var dto = &dto.Metric{}
	if err := m.Write(dto); err != nil {
		return 0, err
	}

	return dto.Histogram.GetSampleCount(), nil
}

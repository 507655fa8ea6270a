package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energy-linkage/internal/linkage"
)

func TestRecorderImplementsMetrics(t *testing.T) {
	var _ linkage.Metrics = NewRecorder()
}

func TestObserveStageAccumulates(t *testing.T) {
	r := NewRecorder()
	s := linkage.StageStats{Stage: linkage.StageCrossDataset, CandidatePairs: 10, Accepted: 3, Ambiguous: 1, BelowThreshold: 6}
	r.ObserveStage(s)
	r.ObserveStage(s)

	assert.Equal(t, 20.0, testutil.ToFloat64(r.candidatePairs.WithLabelValues(linkage.StageCrossDataset)))
	assert.Equal(t, 6.0, testutil.ToFloat64(r.decisions.WithLabelValues(linkage.StageCrossDataset, "accepted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.decisions.WithLabelValues(linkage.StageCrossDataset, "ambiguous")))
}

func TestObserveRunSetsGauges(t *testing.T) {
	r := NewRecorder()
	r.ObserveRun(linkage.Diagnostics{Records: 12, Entities: 5, SingletonRate: 0.4, UsedEdges: 3, SkippedEdges: 1, MintedIDs: 5}, 2*time.Second)
	r.ObserveRun(linkage.Diagnostics{Records: 8, Entities: 4}, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.runs))
	assert.Equal(t, 8.0, testutil.ToFloat64(r.records))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.entities))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.crossYearEdges.WithLabelValues("used")))
}

func TestHandlerServesLinkageMetrics(t *testing.T) {
	r := NewRecorder()
	r.ObserveRun(linkage.Diagnostics{Records: 3, Entities: 2}, time.Second)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "linkage_entities 2")
	assert.Contains(t, rec.Body.String(), "linkage_runs_total 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

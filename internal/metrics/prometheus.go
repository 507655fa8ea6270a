// Package metrics exposes linkage run counts as Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/energy-linkage/internal/linkage"
)

const namespace = "linkage"

// Recorder implements linkage.Metrics on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	candidatePairs *prometheus.CounterVec
	decisions      *prometheus.CounterVec
	skippedBlocks  *prometheus.CounterVec
	runs           prometheus.Counter
	runDuration    prometheus.Histogram
	records        prometheus.Gauge
	entities       prometheus.Gauge
	clusters       prometheus.Gauge
	singletonRate  prometheus.Gauge
	lowConfidence  prometheus.Gauge
	crossYearEdges *prometheus.GaugeVec
	ids            *prometheus.GaugeVec
}

// NewRecorder registers the linkage collectors together with the Go runtime
// and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		candidatePairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidate_pairs_total",
			Help:      "Candidate pairs produced by blocking",
		}, []string{"stage"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pair_decisions_total",
			Help:      "Scored pairs by stage and decision",
		}, []string{"stage", "decision"}),
		skippedBlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_blocks_total",
			Help:      "Blocks dropped for exceeding the size limit",
		}, []string{"stage"}),
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed linkage runs",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of completed runs",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600},
		}),
		records: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records",
			Help:      "Records in the last run",
		}),
		entities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entities",
			Help:      "Entities in the last run",
		}),
		clusters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "year_clusters",
			Help:      "Per-year clusters in the last run",
		}),
		singletonRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "singleton_rate",
			Help:      "Share of entities with a single record in the last run",
		}),
		lowConfidence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "low_confidence_records",
			Help:      "Records missing required attributes in the last run",
		}),
		crossYearEdges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cross_year_edges",
			Help:      "Cross-year edges in the last run by outcome",
		}, []string{"outcome"}),
		ids: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entity_ids",
			Help:      "Entity ids in the last run by origin",
		}, []string{"origin"}),
	}

	r.registry.MustRegister(
		r.candidatePairs, r.decisions, r.skippedBlocks,
		r.runs, r.runDuration,
		r.records, r.entities, r.clusters, r.singletonRate, r.lowConfidence,
		r.crossYearEdges, r.ids,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveStage implements linkage.Metrics.
func (r *Recorder) ObserveStage(s linkage.StageStats) {
	r.candidatePairs.WithLabelValues(s.Stage).Add(float64(s.CandidatePairs))
	r.decisions.WithLabelValues(s.Stage, "accepted").Add(float64(s.Accepted))
	r.decisions.WithLabelValues(s.Stage, "ambiguous").Add(float64(s.Ambiguous))
	r.decisions.WithLabelValues(s.Stage, "below_threshold").Add(float64(s.BelowThreshold))
	r.decisions.WithLabelValues(s.Stage, "vetoed").Add(float64(s.Vetoed))
	r.decisions.WithLabelValues(s.Stage, "forced").Add(float64(s.Forced))
	r.decisions.WithLabelValues(s.Stage, "dataset_conflict").Add(float64(s.Conflicts))
	r.skippedBlocks.WithLabelValues(s.Stage).Add(float64(s.SkippedBlocks))
}

// ObserveRun implements linkage.Metrics.
func (r *Recorder) ObserveRun(d linkage.Diagnostics, elapsed time.Duration) {
	r.runs.Inc()
	r.runDuration.Observe(elapsed.Seconds())
	r.records.Set(float64(d.Records))
	r.entities.Set(float64(d.Entities))
	r.clusters.Set(float64(d.Clusters()))
	r.singletonRate.Set(d.SingletonRate)
	r.lowConfidence.Set(float64(d.LowConfidence))
	r.crossYearEdges.WithLabelValues("used").Set(float64(d.UsedEdges))
	r.crossYearEdges.WithLabelValues("skipped").Set(float64(d.SkippedEdges))
	r.ids.WithLabelValues("reused").Set(float64(d.ReusedIDs))
	r.ids.WithLabelValues("minted").Set(float64(d.MintedIDs))
}

// Registry returns the registry the collectors live on.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

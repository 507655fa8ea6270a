// Package linkage runs the whole pipeline: normalize, embed, classify pairs
// within each year, cluster, link clusters across years and number the
// resulting entities.
package linkage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/energy-linkage/internal/cluster"
	"github.com/energy-linkage/internal/config"
	"github.com/energy-linkage/internal/embed"
	"github.com/energy-linkage/internal/geo"
	"github.com/energy-linkage/internal/logging"
	"github.com/energy-linkage/internal/match"
	"github.com/energy-linkage/internal/normalize"
	"github.com/energy-linkage/internal/record"
	"github.com/energy-linkage/internal/symspell"
)

// Metrics receives counts as the run progresses.
type Metrics interface {
	ObserveStage(s StageStats)
	ObserveRun(d Diagnostics, elapsed time.Duration)
}

// Auditor is told about every ambiguous match as it is found.
type Auditor interface {
	RecordAmbiguity(ctx context.Context, stage string, a match.Ambiguity)
}

type nopMetrics struct{}

func (nopMetrics) ObserveStage(StageStats)               {}
func (nopMetrics) ObserveRun(Diagnostics, time.Duration) {}

type nopAuditor struct{}

func (nopAuditor) RecordAmbiguity(context.Context, string, match.Ambiguity) {}

// ScoredPair is the provenance of one scored pair.
type ScoredPair struct {
	Stage string
	match.Score
}

// AmbiguityEvent is an ambiguity with the stage that produced it.
type AmbiguityEvent struct {
	Stage string
	match.Ambiguity
}

// Result is everything a run produces. It is only returned for a run that
// completed.
type Result struct {
	RunID        string
	Table        *record.LinkageTable
	Scores       []ScoredPair
	Ambiguities  []AmbiguityEvent
	YearClusters map[int][]cluster.Cluster
	Diagnostics  Diagnostics
}

// Orchestrator holds the read-only collaborators of a run.
type Orchestrator struct {
	scorer     match.Scorer
	parser     geo.Parser
	normalizer *normalize.Normalizer
	metrics    Metrics
	auditor    Auditor
	logger     *zerolog.Logger
	prior      *record.LinkageTable
	overrides  []match.Override
	runID      string
	localDebug bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithParser sets the address parser used to fill missing locations.
func WithParser(p geo.Parser) Option { return func(o *Orchestrator) { o.parser = p } }

// WithNormalizer replaces the normalizer built from the synonym table.
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(o *Orchestrator) { o.normalizer = n }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

// WithAuditor sets the ambiguity auditor.
func WithAuditor(a Auditor) Option { return func(o *Orchestrator) { o.auditor = a } }

// WithLogger sets the logger; the context logger is used otherwise.
func WithLogger(l *zerolog.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// WithPriorTable makes ids stable with respect to an earlier run.
func WithPriorTable(t *record.LinkageTable) Option { return func(o *Orchestrator) { o.prior = t } }

// WithOverrides applies manual must_link and cannot_link decisions.
func WithOverrides(list []match.Override) Option {
	return func(o *Orchestrator) { o.overrides = list }
}

// WithRunID fixes the run id instead of generating one.
func WithRunID(id string) Option { return func(o *Orchestrator) { o.runID = id } }

// WithDebug traces every stage.
func WithDebug(on bool) Option { return func(o *Orchestrator) { o.localDebug = on } }

// New creates an orchestrator around scorer.
func New(scorer match.Scorer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		scorer:  scorer,
		parser:  geo.Default(),
		metrics: nopMetrics{},
		auditor: nopAuditor{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run carries the state of one Run call.
type run struct {
	*Orchestrator
	ctx       context.Context
	cfg       config.LinkageConfig
	log       *zerolog.Logger
	engine    *match.Engine
	overrides *match.Overrides
	res       *Result
}

// Run links records under cfg. The configuration is validated before any
// work; an invalid one returns an error matching config.ErrInvalidConfig.
// Cancelling ctx aborts the run and returns ctx.Err() with no result.
func (o *Orchestrator) Run(ctx context.Context, records []record.RawRecord, cfg config.LinkageConfig) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("linkage config: %w", err)
	}
	if o.scorer == nil {
		return nil, errors.New("linkage: no scorer configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	started := time.Now()
	log := o.logger
	if log == nil {
		log = logging.FromContext(ctx)
	}
	normalizer := o.normalizer
	if normalizer == nil {
		var err error
		if normalizer, err = normalize.New(cfg.NameSynonymTable); err != nil {
			return nil, fmt.Errorf("linkage config: %w", err)
		}
	}
	schema, err := embed.NewSchema(cfg.BlockingKeys)
	if err != nil {
		return nil, fmt.Errorf("linkage config: %w", err)
	}

	runID := o.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	r := &run{
		Orchestrator: o,
		ctx:          ctx,
		cfg:          cfg,
		log:          log,
		engine:       match.NewEngine(match.EngineConfig{Scorer: o.scorer, Workers: cfg.Workers}),
		overrides:    match.NewOverrides(o.overrides),
		res:          &Result{RunID: runID, YearClusters: make(map[int][]cluster.Cluster)},
	}
	log.Info().Str("run_id", runID).Int("records", len(records)).Msg("Linkage run started")

	unique := r.dedupe(records)
	normalized := normalizer.Records(unique)
	if cfg.SpellCorrection {
		corrections := symspell.NewCorrector(normalized, nil).Apply(o.localDebug, normalized)
		r.res.Diagnostics.SpellingCorrections = len(corrections)
		log.Info().Int("corrected", len(corrections)).Msg("Spelling correction applied")
	}
	vectors := embed.NewEmbedder(schema, o.parser).Embed(normalized)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	groups := groupVectors(vectors)
	years := record.Years(unique)
	datasets := record.Datasets(unique)

	for _, year := range years {
		if err := r.linkYear(year, groups[year], datasets); err != nil {
			return nil, err
		}
	}

	edges, err := r.crossYearEdges(groups, years, datasets)
	if err != nil {
		return nil, err
	}

	var clusters []cluster.Cluster
	for _, year := range years {
		clusters = append(clusters, r.res.YearClusters[year]...)
	}
	linked := cluster.NewLinker(cluster.LinkerConfig{
		MaxYearGap:           cfg.MaxYearGap,
		PreventSameYearMerge: cfg.PreventSameYearMerge,
	}).Link(o.localDebug, clusters, edges)
	ids := cluster.AssignIDs(linked.Components, o.prior)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows := make([]record.LinkageRow, len(unique))
	for i, rec := range unique {
		rows[i] = record.LinkageRow{Key: rec.Key, Type: normalized[i].Type, EntityID: ids.IDs[rec.Key]}
	}
	r.res.Table = record.NewLinkageTable(rows)

	d := &r.res.Diagnostics
	d.CrossYearEdges = len(edges)
	d.UsedEdges = linked.Used
	d.SkippedEdges = len(linked.Skipped)
	d.Entities = len(linked.Components)
	d.ReusedIDs = ids.Reused
	d.MintedIDs = ids.Minted
	singletons, total := 0, 0
	for _, y := range d.Years {
		singletons += y.Singletons
		total += y.Clusters
	}
	if total > 0 {
		d.SingletonRate = float64(singletons) / float64(total)
	}

	elapsed := time.Since(started)
	o.metrics.ObserveRun(*d, elapsed)
	log.Info().
		Str("run_id", runID).
		Int("records", d.Records).
		Int("candidate_pairs", d.CandidatePairs()).
		Int("accepted", d.Accepted()).
		Int("clusters", d.Clusters()).
		Int("entities", d.Entities).
		Float64("singleton_rate", d.SingletonRate).
		Dur("elapsed", elapsed).
		Msg("Linkage run finished")
	return r.res, nil
}

// dedupe drops repeated keys, keeping the first occurrence, and returns the
// records in key order.
func (r *run) dedupe(records []record.RawRecord) []record.RawRecord {
	seen := make(map[record.Key]bool, len(records))
	out := make([]record.RawRecord, 0, len(records))
	for _, rec := range records {
		if seen[rec.Key] {
			r.res.Diagnostics.Duplicates++
			r.log.Warn().Str("key", rec.Key.String()).Msg("Duplicate record key ignored")
			continue
		}
		seen[rec.Key] = true
		out = append(out, rec)
	}
	record.SortRecords(out)
	r.res.Diagnostics.Records = len(out)
	return out
}

// groupVectors indexes vectors by year then dataset, keeping key order.
func groupVectors(vectors []embed.FeatureVector) map[int]map[string][]embed.FeatureVector {
	out := make(map[int]map[string][]embed.FeatureVector)
	for _, v := range vectors {
		byDataset, ok := out[v.Key.Year]
		if !ok {
			byDataset = make(map[string][]embed.FeatureVector)
			out[v.Key.Year] = byDataset
		}
		byDataset[v.Key.Dataset] = append(byDataset[v.Key.Dataset], v)
	}
	return out
}

// datasetPairs returns the configured pairs present in this year, or every
// pair of datasets when none are configured.
func (r *run) datasetPairs(datasets []string) [][2]string {
	var out [][2]string
	if len(r.cfg.DatasetPairs) == 0 {
		for i := range datasets {
			for j := i + 1; j < len(datasets); j++ {
				out = append(out, [2]string{datasets[i], datasets[j]})
			}
		}
		return out
	}
	seen := make(map[[2]string]bool)
	for _, p := range r.cfg.DatasetPairs {
		pair := [2]string{p[0], p[1]}
		if pair[1] < pair[0] {
			pair[0], pair[1] = pair[1], pair[0]
		}
		if !seen[pair] {
			seen[pair] = true
			out = append(out, pair)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}
		return out[i][1] < out[j][1]
	})
	return out
}

// linkYear matches every dataset pair of one year and clusters the year.
func (r *run) linkYear(year int, byDataset map[string][]embed.FeatureVector, datasets []string) error {
	var keys []record.Key
	lowConfidence := 0
	for _, ds := range datasets {
		for _, v := range byDataset[ds] {
			keys = append(keys, v.Key)
			if v.LowConfidence {
				lowConfidence++
			}
		}
	}
	r.res.Diagnostics.LowConfidence += lowConfidence

	var (
		accepted []match.Score
		stages   []*StageStats
	)
	firstScore := len(r.res.Scores)
	for _, pair := range r.datasetPairs(datasets) {
		left, right := byDataset[pair[0]], byDataset[pair[1]]
		if len(left) == 0 || len(right) == 0 {
			continue
		}
		stats := &StageStats{Stage: StageCrossDataset, Year: year, OtherYear: year, Left: pair[0], Right: pair[1]}
		got, err := r.classify(stats, left, right)
		if err != nil {
			return err
		}
		accepted = append(accepted, got...)
		stages = append(stages, stats)
	}

	clusters, refused := cluster.BuildYearClusters(year, keys, accepted)
	r.res.YearClusters[year] = clusters
	r.refuse(r.res.Scores[firstScore:], stages, refused)
	for _, stats := range stages {
		r.recordStage(stats)
	}

	covered := 0
	for _, c := range clusters {
		covered += len(c.Members)
	}
	r.res.Diagnostics.Years = append(r.res.Diagnostics.Years, YearStats{
		Year:           year,
		Records:        len(keys),
		LowConfidence:  lowConfidence,
		Clusters:       len(clusters),
		Singletons:     cluster.Singletons(clusters),
		ClusteredKeys:  covered,
		RefusedMatches: len(refused),
	})
	r.log.Debug().Int("year", year).Int("records", len(keys)).Int("clusters", len(clusters)).
		Int("refused", len(refused)).Msg("Year clustered")
	return r.ctx.Err()
}

// crossYearEdges matches each dataset against its own later years within
// the gap and returns the accepted matches as edges.
func (r *run) crossYearEdges(groups map[int]map[string][]embed.FeatureVector, years []int, datasets []string) ([]cluster.Edge, error) {
	targets := datasets
	if len(r.cfg.CrossYearDatasets) > 0 {
		targets = append([]string(nil), r.cfg.CrossYearDatasets...)
		sort.Strings(targets)
	}

	var edges []cluster.Edge
	for _, ds := range targets {
		for i, y1 := range years {
			for _, y2 := range years[i+1:] {
				if y2-y1 > r.cfg.MaxYearGap {
					break
				}
				left, right := groups[y1][ds], groups[y2][ds]
				if len(left) == 0 || len(right) == 0 {
					continue
				}
				stats := StageStats{Stage: StageCrossYear, Year: y1, OtherYear: y2, Left: ds, Right: ds}
				accepted, err := r.classify(&stats, left, right)
				if err != nil {
					return nil, err
				}
				r.recordStage(&stats)
				for _, s := range accepted {
					edges = append(edges, cluster.Edge{From: s.A, To: s.B, Confidence: s.Confidence})
				}
			}
		}
	}
	return edges, nil
}

// classify generates, scores and assigns one pass and records its
// provenance. The caller records stats once they are final.
func (r *run) classify(stats *StageStats, left, right []embed.FeatureVector) ([]match.Score, error) {
	if err := r.ctx.Err(); err != nil {
		return nil, err
	}
	stats.LeftRecords, stats.RightRecords = len(left), len(right)

	pairs, gen, err := match.Generate(r.localDebug, left, right, match.GenerateOptions{
		MaxBlockSize: r.cfg.MaxBlockSize,
		Overrides:    r.overrides,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stats.Label(), err)
	}
	stats.CandidatePairs = len(pairs)
	stats.SkippedBlocks = gen.SkippedBlocks

	scores, err := r.engine.ScorePairs(r.ctx, r.localDebug, left, right, pairs)
	if err != nil {
		return nil, err
	}

	assignment := match.Assign(r.localDebug, scores, match.AssignOptions{
		Threshold:      r.cfg.MatchThreshold,
		TypeThresholds: r.cfg.EntityThresholds(),
		Overrides:      r.overrides,
	})

	for _, s := range assignment.Scores {
		r.res.Scores = append(r.res.Scores, ScoredPair{Stage: stats.Stage, Score: s})
		switch s.Reason {
		case match.ReasonAccepted:
			stats.Accepted++
		case match.ReasonForced:
			stats.Accepted++
			stats.Forced++
		case match.ReasonBelowThreshold:
			stats.BelowThreshold++
		case match.ReasonVetoed:
			stats.Vetoed++
		}
	}
	stats.Ambiguous = len(assignment.Ambiguities)
	for _, a := range assignment.Ambiguities {
		r.res.Ambiguities = append(r.res.Ambiguities, AmbiguityEvent{Stage: stats.Stage, Ambiguity: a})
		r.auditor.RecordAmbiguity(r.ctx, stats.Stage, a)
	}
	return assignment.Accepted, nil
}

func (r *run) recordStage(stats *StageStats) {
	r.res.Diagnostics.Stages = append(r.res.Diagnostics.Stages, *stats)
	r.metrics.ObserveStage(*stats)
	r.log.Debug().
		Str("stage", stats.Label()).
		Int("candidate_pairs", stats.CandidatePairs).
		Int("accepted", stats.Accepted).
		Int("ambiguous", stats.Ambiguous).
		Int("conflicts", stats.Conflicts).
		Msg("Stage classified")
}

// refuse turns the refused matches among scores into conflicts and moves
// them out of their stage's accepted count.
func (r *run) refuse(scores []ScoredPair, stages []*StageStats, refused []match.Score) {
	if len(refused) == 0 {
		return
	}
	byPair := make(map[[2]record.Key]bool, len(refused))
	for _, s := range refused {
		byPair[[2]record.Key{s.A, s.B}] = true
	}
	byDatasets := make(map[[2]string]*StageStats, 2*len(stages))
	for _, st := range stages {
		byDatasets[[2]string{st.Left, st.Right}] = st
		byDatasets[[2]string{st.Right, st.Left}] = st
	}
	for i := range scores {
		s := &scores[i].Score
		if !s.Accepted || !byPair[[2]record.Key{s.A, s.B}] {
			continue
		}
		if st := byDatasets[[2]string{s.A.Dataset, s.B.Dataset}]; st != nil {
			st.Accepted--
			st.Conflicts++
			if s.Reason == match.ReasonForced {
				st.Forced--
			}
		}
		r.log.Info().Str("a", s.A.String()).Str("b", s.B.String()).Float64("confidence", s.Confidence).
			Msg("accepted match refused: it would join two records of one dataset")
		s.Accepted = false
		s.Reason = match.ReasonConflict
	}
}

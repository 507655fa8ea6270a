package tuning

import (
	"sort"

	"github.com/energy-linkage/internal/linkage"
	"github.com/energy-linkage/internal/match"
)

// LabeledScore is a confidence with its known answer.
type LabeledScore struct {
	Confidence float64
	Match      bool
}

// TuningResult holds precision and recall at one threshold.
type TuningResult struct {
	Threshold      float64 `json:"threshold"`
	TruePositives  int     `json:"true_positives"`
	FalsePositives int     `json:"false_positives"`
	TrueNegatives  int     `json:"true_negatives"`
	FalseNegatives int     `json:"false_negatives"`
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
	F1Score        float64 `json:"f1"`
	AcceptCount    int     `json:"accepted"`
}

// DefaultThresholds are the values tried when none are given.
var DefaultThresholds = []float64{0.50, 0.55, 0.60, 0.65, 0.70, 0.75, 0.80, 0.85, 0.90, 0.95}

// MinPrecision is the precision a threshold must reach to be preferred.
const MinPrecision = 0.95

// Sweep evaluates every threshold against labelled scores. A score is
// accepted when its confidence is at or above the threshold.
func Sweep(scores []LabeledScore, thresholds []float64) []TuningResult {
	if len(thresholds) == 0 {
		thresholds = DefaultThresholds
	}
	sorted := append([]float64(nil), thresholds...)
	sort.Float64s(sorted)

	results := make([]TuningResult, 0, len(sorted))
	for _, th := range sorted {
		r := TuningResult{Threshold: th}
		for _, s := range scores {
			accepted := s.Confidence >= th
			switch {
			case accepted && s.Match:
				r.TruePositives++
			case accepted:
				r.FalsePositives++
			case s.Match:
				r.FalseNegatives++
			default:
				r.TrueNegatives++
			}
		}
		r.AcceptCount = r.TruePositives + r.FalsePositives
		if r.AcceptCount > 0 {
			r.Precision = float64(r.TruePositives) / float64(r.AcceptCount)
		}
		if positives := r.TruePositives + r.FalseNegatives; positives > 0 {
			r.Recall = float64(r.TruePositives) / float64(positives)
		}
		if r.Precision+r.Recall > 0 {
			r.F1Score = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
		}
		results = append(results, r)
	}
	return results
}

// Best returns the result with the highest F1 among those reaching
// minPrecision, or the highest F1 overall when none do. Ties keep the lower
// threshold. It returns nil for no results.
func Best(results []TuningResult, minPrecision float64) *TuningResult {
	var best *TuningResult
	for i := range results {
		r := &results[i]
		if r.Precision >= minPrecision && (best == nil || r.F1Score > best.F1Score) {
			best = r
		}
	}
	if best != nil {
		return best
	}
	for i := range results {
		if best == nil || results[i].F1Score > best.F1Score {
			best = &results[i]
		}
	}
	return best
}

// Label pairs scored confidences with override labels. When scorer is not
// nil the confidence is recomputed from the stored features, which lets a
// retrained model be evaluated on an old run.
func Label(scores []linkage.ScoredPair, overrides []match.Override, scorer match.Scorer) []LabeledScore {
	labels := labelIndex(overrides)
	var out []LabeledScore
	for _, sp := range scores {
		kind, ok := labels[pairKey(sp.A, sp.B)]
		if !ok {
			continue
		}
		conf := sp.Confidence
		if scorer != nil {
			conf = scorer.Score(sp.Features)
		}
		out = append(out, LabeledScore{Confidence: conf, Match: kind == match.MustLink})
	}
	return out
}

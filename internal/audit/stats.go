package audit

import (
	"sort"

	"github.com/energy-linkage/internal/linkage"
	"github.com/energy-linkage/internal/match"
)

// DecisionStats counts pair decisions for one stage.
type DecisionStats struct {
	Stage    string               `json:"stage"`
	Pairs    int                  `json:"pairs"`
	ByReason map[match.Reason]int `json:"by_reason"`
	// MeanAccepted is the mean confidence of accepted pairs, excluding
	// forced ones.
	MeanAccepted float64 `json:"mean_accepted_confidence"`
}

// MatchingStats summarizes every decision of a run.
type MatchingStats struct {
	Pairs       int             `json:"pairs"`
	Accepted    int             `json:"accepted"`
	Ambiguities int             `json:"ambiguities"`
	Stages      []DecisionStats `json:"stages"`
}

// Summarize builds decision statistics from a completed run.
func Summarize(res *linkage.Result) MatchingStats {
	stats := MatchingStats{Ambiguities: len(res.Ambiguities)}
	byStage := map[string]*DecisionStats{}
	sums := map[string]float64{}
	counts := map[string]int{}

	for _, sp := range res.Scores {
		ds, ok := byStage[sp.Stage]
		if !ok {
			ds = &DecisionStats{Stage: sp.Stage, ByReason: map[match.Reason]int{}}
			byStage[sp.Stage] = ds
		}
		ds.Pairs++
		ds.ByReason[sp.Reason]++
		stats.Pairs++
		if sp.Accepted {
			stats.Accepted++
			if sp.Reason != match.ReasonForced {
				sums[sp.Stage] += sp.Confidence
				counts[sp.Stage]++
			}
		}
	}

	for stage, ds := range byStage {
		if counts[stage] > 0 {
			ds.MeanAccepted = sums[stage] / float64(counts[stage])
		}
		stats.Stages = append(stats.Stages, *ds)
	}
	sort.Slice(stats.Stages, func(i, j int) bool { return stats.Stages[i].Stage < stats.Stages[j].Stage })
	return stats
}

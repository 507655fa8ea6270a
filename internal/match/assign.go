package match

import (
	"sort"

	"github.com/energy-linkage/internal/debug"
	"github.com/energy-linkage/internal/record"
)

// forcedConfidence ranks must_link pairs ahead of every scored pair.
const forcedConfidence = 2.0

// AssignOptions controls the decision rule.
type AssignOptions struct {
	Threshold      float64
	TypeThresholds map[record.EntityType]float64
	Overrides      *Overrides
}

func (o AssignOptions) threshold(t record.EntityType) float64 {
	if v, ok := o.TypeThresholds[t]; ok {
		return v
	}
	return o.Threshold
}

// Assignment is the outcome of one-to-one assignment.
type Assignment struct {
	// Scores holds every input score, in input order, with its decision.
	Scores      []Score
	Accepted    []Score
	Ambiguities []Ambiguity
}

// Assign decides which scored pairs become matches. A pair is accepted only
// when its confidence reaches the threshold and, among the pairs still
// available, it is the single best for both of its records. Pairs are
// ranked by confidence, then capacity agreement, then key. When several
// pairs tie on both values around one record, that record is left unmatched
// and the tie is reported as an ambiguity.
func Assign(localDebug bool, scores []Score, opts AssignOptions) Assignment {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	out := Assignment{Scores: make([]Score, len(scores))}
	copy(out.Scores, scores)

	type ranked struct {
		idx  int
		conf float64
	}
	var eligible []ranked
	for i := range out.Scores {
		s := &out.Scores[i]
		s.Threshold = opts.threshold(s.Type)
		s.Accepted = false
		kind, overridden := opts.Overrides.Lookup(s.A, s.B)
		switch {
		case overridden && kind == CannotLink:
			s.Reason = ReasonVetoed
		case overridden && kind == MustLink:
			eligible = append(eligible, ranked{i, forcedConfidence})
		case s.Confidence >= s.Threshold:
			eligible = append(eligible, ranked{i, s.Confidence})
		default:
			s.Reason = ReasonBelowThreshold
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.conf != b.conf {
			return a.conf > b.conf
		}
		ca, cb := out.Scores[a.idx].CapacityAgreement(), out.Scores[b.idx].CapacityAgreement()
		if ca != cb {
			return ca > cb
		}
		return out.Scores[a.idx].Pair.less(out.Scores[b.idx].Pair)
	})

	// taken holds matched records and records left out by a tie.
	taken := make(map[record.Key]Reason)
	for start := 0; start < len(eligible); {
		end := start + 1
		for end < len(eligible) && eligible[end].conf == eligible[start].conf &&
			out.Scores[eligible[end].idx].CapacityAgreement() == out.Scores[eligible[start].idx].CapacityAgreement() {
			end++
		}

		var group []int
		degree := make(map[record.Key]int)
		for _, r := range eligible[start:end] {
			s := &out.Scores[r.idx]
			if reason, ok := blocked(taken, s.A, s.B); ok {
				s.Reason = reason
				continue
			}
			group = append(group, r.idx)
			degree[s.A]++
			degree[s.B]++
		}

		contested := make(map[record.Key][]record.Key)
		for _, idx := range group {
			s := &out.Scores[idx]
			if degree[s.A] > 1 || degree[s.B] > 1 {
				s.Reason = ReasonAmbiguous
				if degree[s.A] > 1 {
					contested[s.A] = append(contested[s.A], s.B)
				}
				if degree[s.B] > 1 {
					contested[s.B] = append(contested[s.B], s.A)
				}
				continue
			}
			s.Accepted = true
			s.Reason = ReasonAccepted
			if eligible[start].conf == forcedConfidence {
				s.Reason = ReasonForced
			}
			taken[s.A] = ReasonSuperseded
			taken[s.B] = ReasonSuperseded
		}

		conf := eligible[start].conf
		if conf == forcedConfidence {
			conf = 1
		}
		keys := make([]record.Key, 0, len(contested))
		for k := range contested {
			keys = append(keys, k)
		}
		record.SortKeys(keys)
		for _, k := range keys {
			taken[k] = ReasonAmbiguous
			record.SortKeys(contested[k])
			out.Ambiguities = append(out.Ambiguities, Ambiguity{Record: k, Candidates: contested[k], Confidence: conf})
			debug.DebugOutput(localDebug, "Ambiguous: %s has %d candidates at %.4f", k, len(contested[k]), conf)
		}
		start = end
	}

	for _, s := range out.Scores {
		if s.Accepted {
			out.Accepted = append(out.Accepted, s)
		}
	}
	sort.Slice(out.Accepted, func(i, j int) bool { return out.Accepted[i].Pair.less(out.Accepted[j].Pair) })
	debug.DebugOutput(localDebug, "Accepted %d of %d scored pairs, %d ambiguities", len(out.Accepted), len(scores), len(out.Ambiguities))
	return out
}

func blocked(taken map[record.Key]Reason, a, b record.Key) (Reason, bool) {
	ra, okA := taken[a]
	rb, okB := taken[b]
	switch {
	case okA && ra == ReasonAmbiguous, okB && rb == ReasonAmbiguous:
		return ReasonAmbiguous, true
	case okA || okB:
		return ReasonSuperseded, true
	}
	return "", false
}

package cluster

import (
	"sort"

	"github.com/energy-linkage/internal/match"
	"github.com/energy-linkage/internal/record"
)

// Cluster is the set of records from one year judged to be one entity.
// ID is its smallest member key.
type Cluster struct {
	ID      record.Key
	Year    int
	Members []record.Key
}

// BuildYearClusters partitions the records of one year using the accepted
// cross-dataset matches. Every key ends up in exactly one cluster; records
// without a match form singletons. Matches naming a record outside keys, or
// from another year, are ignored. Clusters are ordered by ID.
//
// Matches are applied forced first, then by confidence descending, then by
// key. A match that would put two records of one dataset into a cluster is
// refused and returned.
func BuildYearClusters(year int, keys []record.Key, accepted []match.Score) ([]Cluster, []match.Score) {
	sorted := make([]record.Key, 0, len(keys))
	seen := make(map[record.Key]bool, len(keys))
	for _, k := range keys {
		if k.Year != year || seen[k] {
			continue
		}
		seen[k] = true
		sorted = append(sorted, k)
	}
	record.SortKeys(sorted)

	pos := make(map[record.Key]int, len(sorted))
	datasets := make([]map[string]bool, len(sorted))
	for i, k := range sorted {
		pos[k] = i
		datasets[i] = map[string]bool{k.Dataset: true}
	}

	ordered := make([]match.Score, len(accepted))
	copy(ordered, accepted)
	sort.SliceStable(ordered, func(i, j int) bool { return applyBefore(ordered[i], ordered[j]) })

	d := NewDisjointSet(len(sorted))
	var refused []match.Score
	for _, s := range ordered {
		i, okA := pos[s.A]
		j, okB := pos[s.B]
		if !okA || !okB {
			continue
		}
		ri, rj := d.Find(i), d.Find(j)
		if ri == rj {
			continue
		}
		if overlaps(datasets[ri], datasets[rj]) {
			refused = append(refused, s)
			continue
		}
		d.Union(ri, rj)
		root := d.Find(ri)
		merged, other := datasets[ri], datasets[rj]
		for ds := range other {
			merged[ds] = true
		}
		datasets[ri], datasets[rj] = nil, nil
		datasets[root] = merged
	}

	comps := d.Components()
	out := make([]Cluster, len(comps))
	for c, members := range comps {
		keys := make([]record.Key, len(members))
		for i, m := range members {
			keys[i] = sorted[m]
		}
		out[c] = Cluster{ID: keys[0], Year: year, Members: keys}
	}
	return out, refused
}

func applyBefore(a, b match.Score) bool {
	if fa, fb := a.Reason == match.ReasonForced, b.Reason == match.ReasonForced; fa != fb {
		return fa
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if a.A != b.A {
		return a.A.Less(b.A)
	}
	return a.B.Less(b.B)
}

// Singletons counts clusters with one member.
func Singletons(clusters []Cluster) int {
	n := 0
	for _, c := range clusters {
		if len(c.Members) == 1 {
			n++
		}
	}
	return n
}

package cluster

import (
	"sort"

	"github.com/energy-linkage/internal/debug"
	"github.com/energy-linkage/internal/record"
)

// Edge is an accepted cross-year match between two records.
type Edge struct {
	From, To   record.Key
	Confidence float64
}

func (e Edge) less(o Edge) bool {
	if e.Confidence != o.Confidence {
		return e.Confidence > o.Confidence
	}
	if e.From != o.From {
		return e.From.Less(o.From)
	}
	return e.To.Less(o.To)
}

// LinkerConfig controls cross-year consolidation.
type LinkerConfig struct {
	// MaxYearGap is the largest year difference an edge may span.
	MaxYearGap int
	// PreventSameYearMerge skips an edge whose union would place two
	// clusters of the same year in one entity.
	PreventSameYearMerge bool
}

// Component is one persistent entity: the clusters linked across years.
type Component struct {
	Clusters []Cluster
	Members  []record.Key
}

// LinkResult is the outcome of Link.
type LinkResult struct {
	Components []Component
	// Used counts edges that merged two components.
	Used int
	// Skipped lists edges refused by the same-year rule or the year gap.
	Skipped []Edge
}

// Linker consolidates per-year clusters into entities.
type Linker struct {
	cfg LinkerConfig
}

// NewLinker creates a linker.
func NewLinker(cfg LinkerConfig) *Linker {
	return &Linker{cfg: cfg}
}

// Link joins clusters connected by edges into components. Identity is
// transitive: clusters joined through a chain of edges share a component
// even if they were never compared. Edges are applied strongest first, so
// the same-year rule keeps the better link. Components are ordered by their
// smallest member key and the result depends only on the input sets.
func (l *Linker) Link(localDebug bool, clusters []Cluster, edges []Edge) LinkResult {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	nodes := make([]Cluster, len(clusters))
	copy(nodes, clusters)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID.Less(nodes[j].ID) })

	owner := make(map[record.Key]int)
	for i, c := range nodes {
		for _, m := range c.Members {
			owner[m] = i
		}
	}

	ordered := make([]Edge, len(edges))
	copy(ordered, edges)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].less(ordered[j]) })

	d := NewDisjointSet(len(nodes))
	years := make([]map[int]bool, len(nodes))
	for i, c := range nodes {
		years[i] = map[int]bool{c.Year: true}
	}

	var res LinkResult
	for _, e := range ordered {
		ci, okA := owner[e.From]
		cj, okB := owner[e.To]
		if !okA || !okB {
			continue
		}
		gap := nodes[ci].Year - nodes[cj].Year
		if gap < 0 {
			gap = -gap
		}
		if gap == 0 || gap > l.cfg.MaxYearGap {
			res.Skipped = append(res.Skipped, e)
			continue
		}

		ri, rj := d.Find(ci), d.Find(cj)
		if ri == rj {
			continue
		}
		if l.cfg.PreventSameYearMerge && overlaps(years[ri], years[rj]) {
			debug.DebugOutput(localDebug, "Skipping %s -> %s: would merge two clusters of one year", e.From, e.To)
			res.Skipped = append(res.Skipped, e)
			continue
		}

		d.Union(ri, rj)
		root := d.Find(ri)
		merged := years[ri]
		other := years[rj]
		if len(other) > len(merged) {
			merged, other = other, merged
		}
		for y := range other {
			merged[y] = true
		}
		years[ri], years[rj] = nil, nil
		years[root] = merged
		res.Used++
	}

	// nodes are sorted by smallest member, so components come out ordered
	// by their smallest member too.
	for _, comp := range d.Components() {
		c := Component{}
		for _, idx := range comp {
			c.Clusters = append(c.Clusters, nodes[idx])
			c.Members = append(c.Members, nodes[idx].Members...)
		}
		record.SortKeys(c.Members)
		res.Components = append(res.Components, c)
	}
	debug.DebugOutput(localDebug, "Linked %d clusters into %d entities (%d edges used, %d skipped)",
		len(nodes), len(res.Components), res.Used, len(res.Skipped))
	return res
}

func overlaps[K comparable](a, b map[K]bool) bool {
	if len(b) < len(a) {
		a, b = b, a
	}
	for y := range a {
		if b[y] {
			return true
		}
	}
	return false
}

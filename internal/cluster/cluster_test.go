package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energy-linkage/internal/match"
	"github.com/energy-linkage/internal/record"
)

func key(dataset, id string, year int) record.Key {
	return record.Key{Dataset: dataset, LocalID: id, Year: year}
}

func accepted(a, b record.Key) match.Score {
	return match.Score{Pair: match.Pair{A: a, B: b}, Accepted: true, Reason: match.ReasonAccepted}
}

func TestBuildYearClustersPartition(t *testing.T) {
	keys := []record.Key{
		key("eia", "3", 2020), key("ferc1", "1", 2020), key("eia", "1", 2020),
		key("ferc1", "2", 2020), key("ferc1", "1", 2020), key("eia", "9", 2019),
	}
	clusters, refused := BuildYearClusters(2020, keys, []match.Score{
		accepted(key("ferc1", "1", 2020), key("eia", "1", 2020)),
		accepted(key("ferc1", "7", 2020), key("eia", "3", 2020)),
	})

	require.Len(t, clusters, 3)
	assert.Empty(t, refused)
	assert.Equal(t, []record.Key{key("eia", "1", 2020), key("ferc1", "1", 2020)}, clusters[0].Members)
	assert.Equal(t, key("eia", "1", 2020), clusters[0].ID)
	assert.Equal(t, 2, Singletons(clusters))

	seen := make(map[record.Key]int)
	for _, c := range clusters {
		for _, m := range c.Members {
			seen[m]++
		}
	}
	assert.Len(t, seen, 4, "every 2020 record exactly once")
	for k, n := range seen {
		assert.Equal(t, 1, n, k.String())
	}

	empty, _ := BuildYearClusters(2021, keys, nil)
	assert.Empty(t, empty)
}

func scored(a, b record.Key, conf float64) match.Score {
	s := accepted(a, b)
	s.Confidence = conf
	return s
}

func TestBuildYearClustersRefusesSameDatasetMerge(t *testing.T) {
	a4, b4 := key("a", "4", 2021), key("b", "4", 2021)
	b1, c1 := key("b", "1", 2021), key("c", "1", 2021)

	// The weak a/c match arrives first but is applied last.
	clusters, refused := BuildYearClusters(2021, []record.Key{a4, b4, b1, c1}, []match.Score{
		scored(a4, c1, 0.83),
		scored(a4, b4, 0.99),
		scored(b1, c1, 0.98),
	})

	require.Len(t, clusters, 2)
	assert.Equal(t, []record.Key{a4, b4}, clusters[0].Members)
	assert.Equal(t, []record.Key{b1, c1}, clusters[1].Members)
	require.Len(t, refused, 1)
	assert.Equal(t, a4, refused[0].A)
	assert.Equal(t, c1, refused[0].B)
}

func TestBuildYearClustersForcedFirst(t *testing.T) {
	a1, b1, b2 := key("a", "1", 2020), key("b", "1", 2020), key("b", "2", 2020)
	forced := scored(a1, b2, 0.4)
	forced.Reason = match.ReasonForced

	clusters, refused := BuildYearClusters(2020, []record.Key{a1, b1, b2}, []match.Score{
		scored(a1, b1, 0.95),
		forced,
	})

	require.Len(t, refused, 1)
	assert.Equal(t, b1, refused[0].B)
	require.Len(t, clusters, 2)
	assert.Equal(t, []record.Key{a1, b2}, clusters[0].Members)
}

func TestBuildYearClustersOrderIndependent(t *testing.T) {
	a4, b4 := key("a", "4", 2021), key("b", "4", 2021)
	b1, c1 := key("b", "1", 2021), key("c", "1", 2021)
	scores := []match.Score{scored(a4, c1, 0.9), scored(a4, b4, 0.9), scored(b1, c1, 0.9)}
	reversed := []match.Score{scores[2], scores[1], scores[0]}

	want, wantRefused := BuildYearClusters(2021, []record.Key{a4, b4, b1, c1}, scores)
	got, gotRefused := BuildYearClusters(2021, []record.Key{c1, b1, b4, a4}, reversed)
	assert.Equal(t, want, got)
	assert.Equal(t, wantRefused, gotRefused)
}

func yearClusters(keys ...record.Key) []Cluster {
	var out []Cluster
	for _, k := range keys {
		out = append(out, Cluster{ID: k, Year: k.Year, Members: []record.Key{k}})
	}
	return out
}

func TestLinkTransitive(t *testing.T) {
	a, b, c := key("eia", "7", 2019), key("eia", "7", 2020), key("eia", "8", 2021)
	d := key("eia", "5", 2021)

	res := NewLinker(LinkerConfig{MaxYearGap: 1, PreventSameYearMerge: true}).Link(false,
		yearClusters(a, b, c, d),
		[]Edge{{From: b, To: c, Confidence: 0.9}, {From: a, To: b, Confidence: 0.95}},
	)

	require.Len(t, res.Components, 2)
	assert.Equal(t, []record.Key{a, b, c}, res.Components[0].Members)
	assert.Equal(t, []record.Key{d}, res.Components[1].Members)
	assert.Equal(t, 2, res.Used)
	assert.Empty(t, res.Skipped)
}

func TestLinkPreventsSameYearMerge(t *testing.T) {
	a := key("eia", "1", 2019)
	b1, b2 := key("eia", "1", 2020), key("eia", "2", 2020)

	edges := []Edge{{From: a, To: b1, Confidence: 0.97}, {From: a, To: b2, Confidence: 0.91}}

	res := NewLinker(LinkerConfig{MaxYearGap: 1, PreventSameYearMerge: true}).Link(false, yearClusters(a, b1, b2), edges)
	require.Len(t, res.Components, 2)
	assert.Equal(t, []record.Key{a, b1}, res.Components[0].Members, "stronger edge wins")
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, b2, res.Skipped[0].To)

	res = NewLinker(LinkerConfig{MaxYearGap: 1}).Link(false, yearClusters(a, b1, b2), edges)
	require.Len(t, res.Components, 1)
}

func TestLinkYearGap(t *testing.T) {
	a, c := key("eia", "1", 2018), key("eia", "1", 2020)
	edges := []Edge{{From: a, To: c, Confidence: 0.99}}

	res := NewLinker(LinkerConfig{MaxYearGap: 1}).Link(false, yearClusters(a, c), edges)
	assert.Len(t, res.Components, 2)
	assert.Len(t, res.Skipped, 1)

	res = NewLinker(LinkerConfig{MaxYearGap: 2}).Link(false, yearClusters(a, c), edges)
	assert.Len(t, res.Components, 1)
}

func TestLinkDeterministic(t *testing.T) {
	ks := []record.Key{
		key("eia", "1", 2019), key("eia", "2", 2019), key("eia", "1", 2020),
		key("eia", "2", 2020), key("eia", "1", 2021), key("eia", "3", 2021),
	}
	edges := []Edge{
		{From: ks[0], To: ks[2], Confidence: 0.9},
		{From: ks[1], To: ks[3], Confidence: 0.9},
		{From: ks[2], To: ks[4], Confidence: 0.8},
		{From: ks[3], To: ks[4], Confidence: 0.8},
	}
	l := NewLinker(LinkerConfig{MaxYearGap: 1, PreventSameYearMerge: true})
	first := l.Link(false, yearClusters(ks...), edges)

	reversedKeys := make([]record.Key, len(ks))
	for i, k := range ks {
		reversedKeys[len(ks)-1-i] = k
	}
	reversedEdges := []Edge{edges[3], edges[2], edges[1], edges[0]}
	second := l.Link(false, yearClusters(reversedKeys...), reversedEdges)

	assert.Equal(t, first.Components, second.Components)
	assert.Equal(t, AssignIDs(first.Components, nil).IDs, AssignIDs(second.Components, nil).IDs)
}

func TestAssignIDs(t *testing.T) {
	a, b, c := key("eia", "1", 2019), key("eia", "2", 2019), key("eia", "3", 2019)
	comps := []Component{
		{Members: []record.Key{a}},
		{Members: []record.Key{b}},
		{Members: []record.Key{c}},
	}

	fresh := AssignIDs(comps, nil)
	assert.Equal(t, map[record.Key]record.EntityID{a: 1, b: 2, c: 3}, fresh.IDs)
	assert.Equal(t, 3, fresh.Minted)

	prior := record.NewLinkageTable([]record.LinkageRow{
		{Key: b, EntityID: 40},
		{Key: c, EntityID: 40},
		{Key: key("eia", "9", 2018), EntityID: 41},
	})
	inc := AssignIDs(comps, prior)
	assert.Equal(t, record.EntityID(42), inc.IDs[a], "minted after prior max")
	assert.Equal(t, record.EntityID(40), inc.IDs[b], "earlier component keeps the prior id")
	assert.Equal(t, record.EntityID(43), inc.IDs[c])
	assert.Equal(t, 1, inc.Reused)
	assert.Equal(t, 2, inc.Minted)
}

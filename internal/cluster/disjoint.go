// Package cluster groups matched records into per-year clusters and links
// clusters across years into persistent entities.
package cluster

// DisjointSet is a union-find over the integers [0, n). Elements live in
// flat arrays, so merging allocates nothing.
type DisjointSet struct {
	parent []int32
	rank   []uint8
}

// NewDisjointSet creates n singleton sets.
func NewDisjointSet(n int) *DisjointSet {
	d := &DisjointSet{parent: make([]int32, n), rank: make([]uint8, n)}
	for i := range d.parent {
		d.parent[i] = int32(i)
	}
	return d
}

// Len returns the number of elements.
func (d *DisjointSet) Len() int { return len(d.parent) }

// Find returns the representative of x, halving the path on the way.
func (d *DisjointSet) Find(x int) int {
	p := d.parent
	for int(p[x]) != x {
		p[x] = p[p[x]]
		x = int(p[x])
	}
	return x
}

// Union merges the sets of a and b and reports whether they were distinct.
func (d *DisjointSet) Union(a, b int) bool {
	ra, rb := d.Find(a), d.Find(b)
	if ra == rb {
		return false
	}
	switch {
	case d.rank[ra] < d.rank[rb]:
		ra, rb = rb, ra
	case d.rank[ra] == d.rank[rb]:
		d.rank[ra]++
	}
	d.parent[rb] = int32(ra)
	return true
}

// Connected reports whether a and b are in the same set.
func (d *DisjointSet) Connected(a, b int) bool {
	return d.Find(a) == d.Find(b)
}

// Components returns the sets, each sorted ascending, ordered by their
// smallest element. The result does not depend on the order of unions.
func (d *DisjointSet) Components() [][]int {
	index := make(map[int]int)
	var out [][]int
	for x := range d.parent {
		root := d.Find(x)
		i, ok := index[root]
		if !ok {
			i = len(out)
			index[root] = i
			out = append(out, nil)
		}
		out[i] = append(out[i], x)
	}
	return out
}

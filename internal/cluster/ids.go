package cluster

import (
	"sort"

	"github.com/energy-linkage/internal/record"
)

// IDAssignment maps every record to its persistent entity id.
type IDAssignment struct {
	IDs    map[record.Key]record.EntityID
	Reused int
	Minted int
}

// AssignIDs numbers components in order. With a prior table, a component
// whose members already carried an id keeps the smallest such id not taken
// by an earlier component; every other component gets a new id above the
// prior maximum. Without a prior table ids run from 1.
func AssignIDs(components []Component, prior *record.LinkageTable) IDAssignment {
	out := IDAssignment{IDs: make(map[record.Key]record.EntityID)}
	var previous map[record.Key]record.EntityID
	if prior != nil {
		previous = prior.Index()
	}
	next := prior.MaxID() + 1
	claimed := make(map[record.EntityID]bool)

	for _, c := range components {
		var candidates []record.EntityID
		for _, m := range c.Members {
			if id, ok := previous[m]; ok && !claimed[id] {
				candidates = append(candidates, id)
			}
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })

		var id record.EntityID
		if len(candidates) > 0 {
			id = candidates[0]
			out.Reused++
		} else {
			id = next
			next++
			out.Minted++
		}
		claimed[id] = true
		for _, m := range c.Members {
			out.IDs[m] = id
		}
	}
	return out
}

package match

import (
	"fmt"
	"sort"

	"github.com/energy-linkage/internal/record"
)

// OverrideKind is a manual QA decision on a pair.
type OverrideKind string

const (
	MustLink   OverrideKind = "must_link"
	CannotLink OverrideKind = "cannot_link"
)

// ParseOverrideKind validates a kind string.
func ParseOverrideKind(s string) (OverrideKind, error) {
	switch OverrideKind(s) {
	case MustLink, CannotLink:
		return OverrideKind(s), nil
	}
	return "", fmt.Errorf("unknown override kind %q", s)
}

// Override pins the decision for one pair regardless of its score.
type Override struct {
	A        record.Key   `json:"a"`
	B        record.Key   `json:"b"`
	Kind     OverrideKind `json:"kind"`
	Reason   string       `json:"reason,omitempty"`
	Reviewer string       `json:"reviewer,omitempty"`
}

// Overrides is an order-insensitive lookup of manual decisions. The last
// override given for a pair wins.
type Overrides struct {
	kinds    map[[2]record.Key]OverrideKind
	partners map[record.Key][]record.Key
}

// NewOverrides indexes list.
func NewOverrides(list []Override) *Overrides {
	o := &Overrides{
		kinds:    make(map[[2]record.Key]OverrideKind, len(list)),
		partners: make(map[record.Key][]record.Key),
	}
	for _, ov := range list {
		o.kinds[pairID(ov.A, ov.B)] = ov.Kind
	}
	for id, kind := range o.kinds {
		if kind != MustLink {
			continue
		}
		o.partners[id[0]] = append(o.partners[id[0]], id[1])
		o.partners[id[1]] = append(o.partners[id[1]], id[0])
	}
	for k := range o.partners {
		record.SortKeys(o.partners[k])
	}
	return o
}

// Lookup returns the override for a pair in either order.
func (o *Overrides) Lookup(a, b record.Key) (OverrideKind, bool) {
	if o == nil {
		return "", false
	}
	kind, ok := o.kinds[pairID(a, b)]
	return kind, ok
}

// Len returns the number of distinct overridden pairs.
func (o *Overrides) Len() int {
	if o == nil {
		return 0
	}
	return len(o.kinds)
}

func (o *Overrides) mustLinkPartners(k record.Key) []record.Key {
	return o.partners[k]
}

func pairID(a, b record.Key) [2]record.Key {
	if b.Less(a) {
		a, b = b, a
	}
	return [2]record.Key{a, b}
}

// SortOverrides orders overrides by pair.
func SortOverrides(list []Override) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := pairID(list[i].A, list[i].B), pairID(list[j].A, list[j].B)
		if a[0] != b[0] {
			return a[0].Less(b[0])
		}
		return a[1].Less(b[1])
	})
}

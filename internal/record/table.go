package record

import "sort"

// EntityID is a persistent identifier spanning reporting years.
type EntityID int64

// LinkageRow maps one record to its persistent entity.
type LinkageRow struct {
	Key
	Type     EntityType `json:"entity_type" db:"entity_type"`
	EntityID EntityID   `json:"entity_id" db:"entity_id"`
}

// LinkageTable is the sole artifact consumed by the downstream ETL.
// Rows are kept sorted by key.
type LinkageTable struct {
	Rows []LinkageRow
}

// NewLinkageTable sorts rows by key and wraps them.
func NewLinkageTable(rows []LinkageRow) *LinkageTable {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key.Less(rows[j].Key) })
	return &LinkageTable{Rows: rows}
}

// Lookup returns the entity id of key, if present.
func (t *LinkageTable) Lookup(key Key) (EntityID, bool) {
	if t == nil {
		return 0, false
	}
	i := sort.Search(len(t.Rows), func(i int) bool { return !t.Rows[i].Key.Less(key) })
	if i < len(t.Rows) && t.Rows[i].Key == key {
		return t.Rows[i].EntityID, true
	}
	return 0, false
}

// Index returns a map from key to entity id.
func (t *LinkageTable) Index() map[Key]EntityID {
	out := make(map[Key]EntityID, len(t.Rows))
	for _, r := range t.Rows {
		out[r.Key] = r.EntityID
	}
	return out
}

// MaxID returns the highest entity id in the table, or 0.
func (t *LinkageTable) MaxID() EntityID {
	var max EntityID
	if t == nil {
		return max
	}
	for _, r := range t.Rows {
		if r.EntityID > max {
			max = r.EntityID
		}
	}
	return max
}

// Members groups keys by entity id.
func (t *LinkageTable) Members() map[EntityID][]Key {
	out := make(map[EntityID][]Key)
	for _, r := range t.Rows {
		out[r.EntityID] = append(out[r.EntityID], r.Key)
	}
	return out
}

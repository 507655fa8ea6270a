// Package record holds the data model shared by every linkage stage: the raw
// rows supplied by the ETL, their normalized form, and the LinkageTable that
// is handed back.
package record

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// EntityType distinguishes the sub-types that are linked separately.
// Records of different types are never compared.
type EntityType string

const (
	EntityPlant     EntityType = "plant"
	EntityUnit      EntityType = "unit"
	EntityGenerator EntityType = "generator"
	EntityUtility   EntityType = "utility"
)

// ParseEntityType maps free text to a known entity type. Empty input
// defaults to plant.
func ParseEntityType(s string) (EntityType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "plant":
		return EntityPlant, nil
	case "unit", "plant_unit":
		return EntityUnit, nil
	case "generator", "plant_gen":
		return EntityGenerator, nil
	case "utility", "respondent":
		return EntityUtility, nil
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

// Key identifies one record: a dataset-local id within one reporting year.
type Key struct {
	Dataset string `json:"dataset" db:"dataset"`
	LocalID string `json:"local_id" db:"local_id"`
	Year    int    `json:"year" db:"report_year"`
}

// String renders the key as dataset:year:local_id.
func (k Key) String() string {
	return fmt.Sprintf("%s:%d:%s", k.Dataset, k.Year, k.LocalID)
}

// ParseKey parses the dataset:year:local_id form written by String. The
// local id may itself contain colons.
func ParseKey(s string) (Key, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return Key{}, fmt.Errorf("key %q is not dataset:year:local_id", s)
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return Key{}, fmt.Errorf("key %q has a bad year: %w", s, err)
	}
	return Key{Dataset: parts[0], Year: year, LocalID: parts[2]}, nil
}

// Less orders keys by year, then dataset, then local id. Every stage that
// iterates records uses this order so identical inputs give identical output.
func (k Key) Less(o Key) bool {
	if k.Year != o.Year {
		return k.Year < o.Year
	}
	if k.Dataset != o.Dataset {
		return k.Dataset < o.Dataset
	}
	return k.LocalID < o.LocalID
}

// SortKeys sorts keys in place using Key.Less.
func SortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}

// RawRecord is one row from a source dataset for one reporting year.
// Optional attributes are nil or empty when the source did not report them.
type RawRecord struct {
	Key
	Type       EntityType
	Name       string
	Capacity   *float64 // nameplate MW
	FuelType   string
	PrimeMover string
	State      string
	City       string
	OwnerID    string // reporting utility id
	Address    string // free-text location, used when State/City are blank
}

// NormalizedRecord is a RawRecord with canonical name and cleaned categories.
// The embedded RawRecord keeps the values as reported.
type NormalizedRecord struct {
	RawRecord
	CanonicalName string
	Tokens        []string

	Fuel      string // e.g. "natural_gas"
	Mover     string
	StateCode string
	CityName  string
	Owner     string
}

// SortRecords orders records by key.
func SortRecords(records []RawRecord) {
	sort.SliceStable(records, func(i, j int) bool { return records[i].Key.Less(records[j].Key) })
}

// Years returns the distinct years present in records, ascending.
func Years(records []RawRecord) []int {
	seen := make(map[int]bool)
	var years []int
	for _, r := range records {
		if !seen[r.Year] {
			seen[r.Year] = true
			years = append(years, r.Year)
		}
	}
	sort.Ints(years)
	return years
}

// Datasets returns the distinct dataset names present in records, sorted.
func Datasets(records []RawRecord) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range records {
		if !seen[r.Dataset] {
			seen[r.Dataset] = true
			out = append(out, r.Dataset)
		}
	}
	sort.Strings(out)
	return out
}

package linkage

import (
	"fmt"

	"github.com/energy-linkage/internal/record"
)

// Stage names used in diagnostics and provenance.
const (
	StageCrossDataset = "cross_dataset"
	StageCrossYear    = "cross_year"
)

// StageStats counts one classification pass: a dataset pair within a year,
// or one dataset across two years.
type StageStats struct {
	Stage     string `json:"stage"`
	Year      int    `json:"year"`
	OtherYear int    `json:"other_year"`
	Left      string `json:"left"`
	Right     string `json:"right"`

	LeftRecords    int `json:"left_records"`
	RightRecords   int `json:"right_records"`
	CandidatePairs int `json:"candidate_pairs"`
	Accepted       int `json:"accepted"`
	Ambiguous      int `json:"ambiguous"`
	BelowThreshold int `json:"below_threshold"`
	Vetoed         int `json:"vetoed"`
	Forced         int `json:"forced"`
	Conflicts      int `json:"conflicts"`
	SkippedBlocks  int `json:"skipped_blocks"`
}

// Label renders the stage for logs, e.g. "cross_dataset 2020 ferc1/eia".
func (s StageStats) Label() string {
	if s.Stage == StageCrossYear {
		return fmt.Sprintf("%s %s %d/%d", s.Stage, s.Left, s.Year, s.OtherYear)
	}
	return fmt.Sprintf("%s %d %s/%s", s.Stage, s.Year, s.Left, s.Right)
}

// YearStats describes the clusters formed in one year.
type YearStats struct {
	Year          int `json:"year"`
	Records       int `json:"records"`
	LowConfidence int `json:"low_confidence"`
	Clusters      int `json:"clusters"`
	Singletons    int `json:"singletons"`
	ClusteredKeys int `json:"clustered_keys"`
	// RefusedMatches counts accepted matches left out of the clusters.
	RefusedMatches int `json:"refused_matches"`
}

// Diagnostics are informational counts of one run.
type Diagnostics struct {
	Records       int `json:"records"`
	Duplicates    int `json:"duplicates"`
	LowConfidence int `json:"low_confidence"`
	// SpellingCorrections counts records whose name was corrected.
	SpellingCorrections int `json:"spelling_corrections"`

	Stages []StageStats `json:"stages"`
	Years  []YearStats  `json:"years"`

	CrossYearEdges int     `json:"cross_year_edges"`
	UsedEdges      int     `json:"used_edges"`
	SkippedEdges   int     `json:"skipped_edges"`
	Entities       int     `json:"entities"`
	ReusedIDs      int     `json:"reused_ids"`
	MintedIDs      int     `json:"minted_ids"`
	SingletonRate  float64 `json:"singleton_rate"`
}

// CandidatePairs sums candidate pairs over all stages.
func (d Diagnostics) CandidatePairs() int {
	n := 0
	for _, s := range d.Stages {
		n += s.CandidatePairs
	}
	return n
}

// Accepted sums accepted pairs over all stages.
func (d Diagnostics) Accepted() int {
	n := 0
	for _, s := range d.Stages {
		n += s.Accepted
	}
	return n
}

// Clusters sums clusters over all years.
func (d Diagnostics) Clusters() int {
	n := 0
	for _, y := range d.Years {
		n += y.Clusters
	}
	return n
}

// Check verifies the counts agree with each other and with table.
func (d Diagnostics) Check(table *record.LinkageTable) error {
	for _, s := range d.Stages {
		if s.Accepted > s.CandidatePairs {
			return fmt.Errorf("%s: %d accepted of %d candidates", s.Label(), s.Accepted, s.CandidatePairs)
		}
		if s.Accepted > s.LeftRecords || s.Accepted > s.RightRecords {
			return fmt.Errorf("%s: %d accepted exceeds one-to-one bound", s.Label(), s.Accepted)
		}
	}
	conflicts := make(map[int]int)
	for _, s := range d.Stages {
		if s.Stage == StageCrossDataset {
			conflicts[s.Year] += s.Conflicts
		}
	}
	total := 0
	for _, y := range d.Years {
		if conflicts[y.Year] != y.RefusedMatches {
			return fmt.Errorf("year %d: %d refused matches but stages report %d conflicts", y.Year, y.RefusedMatches, conflicts[y.Year])
		}
		if y.ClusteredKeys != y.Records {
			return fmt.Errorf("year %d: clusters cover %d of %d records", y.Year, y.ClusteredKeys, y.Records)
		}
		if y.Singletons > y.Clusters || y.Clusters > y.Records {
			return fmt.Errorf("year %d: %d singletons, %d clusters, %d records", y.Year, y.Singletons, y.Clusters, y.Records)
		}
		total += y.Records
	}
	if total != d.Records {
		return fmt.Errorf("years hold %d records, run had %d", total, d.Records)
	}
	if table != nil && len(table.Rows) != d.Records {
		return fmt.Errorf("linkage table has %d rows for %d records", len(table.Rows), d.Records)
	}
	if d.UsedEdges+d.SkippedEdges > d.CrossYearEdges {
		return fmt.Errorf("%d edges used and %d skipped of %d", d.UsedEdges, d.SkippedEdges, d.CrossYearEdges)
	}
	if d.ReusedIDs+d.MintedIDs != d.Entities {
		return fmt.Errorf("%d entities but %d ids assigned", d.Entities, d.ReusedIDs+d.MintedIDs)
	}
	return nil
}

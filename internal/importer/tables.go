package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/energy-linkage/internal/linkage"
	"github.com/energy-linkage/internal/match"
	"github.com/energy-linkage/internal/record"
)

var (
	tableColumns    = []string{"dataset", "year", "local_id", "entity_type", "entity_id"}
	overrideColumns = []string{"a_dataset", "a_year", "a_local_id", "b_dataset", "b_year", "b_local_id", "kind", "reason", "reviewer"}
)

// WriteLinkageTable writes the table in key order. Identical tables produce
// identical bytes.
func WriteLinkageTable(w io.Writer, table *record.LinkageTable) error {
	rows := append([]record.LinkageRow(nil), table.Rows...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key.Less(rows[j].Key) })

	cw := csv.NewWriter(w)
	if err := cw.Write(tableColumns); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{
			r.Dataset, strconv.Itoa(r.Year), r.LocalID, string(r.Type),
			strconv.FormatInt(int64(r.EntityID), 10),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadLinkageTable parses a table written by WriteLinkageTable. Unlike
// ReadRecords it is strict: any bad row fails the read.
func ReadLinkageTable(r io.Reader) (*record.LinkageTable, error) {
	rows, err := readStrict(r, tableColumns)
	if err != nil {
		return nil, err
	}
	out := make([]record.LinkageRow, 0, len(rows))
	seen := make(map[record.Key]bool, len(rows))
	for i, row := range rows {
		year, err := strconv.Atoi(row[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad year %q", i+2, row[1])
		}
		id, err := strconv.ParseInt(row[4], 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("line %d: bad entity id %q", i+2, row[4])
		}
		lr := record.LinkageRow{
			Key:      record.Key{Dataset: row[0], Year: year, LocalID: row[2]},
			Type:     record.EntityType(row[3]),
			EntityID: record.EntityID(id),
		}
		if seen[lr.Key] {
			return nil, fmt.Errorf("line %d: duplicate key %s", i+2, lr.Key)
		}
		seen[lr.Key] = true
		out = append(out, lr)
	}
	return record.NewLinkageTable(out), nil
}

// ScoreColumns is the header of WriteScores: the decision columns followed by
// one column per feature.
func ScoreColumns() []string {
	cols := []string{
		"stage", "a_dataset", "a_year", "a_local_id", "b_dataset", "b_year", "b_local_id",
		"entity_type", "confidence", "threshold", "accepted", "reason",
	}
	return append(cols, match.FeatureNames[:]...)
}

// WriteScores writes per-pair provenance ordered by stage then pair.
func WriteScores(w io.Writer, scores []linkage.ScoredPair) error {
	sorted := append([]linkage.ScoredPair(nil), scores...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Stage != b.Stage {
			return a.Stage < b.Stage
		}
		if a.A != b.A {
			return a.A.Less(b.A)
		}
		return a.B.Less(b.B)
	})

	cw := csv.NewWriter(w)
	if err := cw.Write(ScoreColumns()); err != nil {
		return err
	}
	for _, sp := range sorted {
		row := []string{
			sp.Stage,
			sp.A.Dataset, strconv.Itoa(sp.A.Year), sp.A.LocalID,
			sp.B.Dataset, strconv.Itoa(sp.B.Year), sp.B.LocalID,
			string(sp.Type),
			strconv.FormatFloat(sp.Confidence, 'f', 6, 64),
			strconv.FormatFloat(sp.Threshold, 'f', 6, 64),
			strconv.FormatBool(sp.Accepted),
			string(sp.Reason),
		}
		for _, v := range sp.Features {
			row = append(row, strconv.FormatFloat(v, 'f', 6, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadOverrides parses manual QA decisions.
func ReadOverrides(r io.Reader) ([]match.Override, error) {
	rows, err := readStrict(r, overrideColumns)
	if err != nil {
		return nil, err
	}
	out := make([]match.Override, 0, len(rows))
	for i, row := range rows {
		ay, err1 := strconv.Atoi(row[1])
		by, err2 := strconv.Atoi(row[4])
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("line %d: bad year", i+2)
		}
		kind, err := match.ParseOverrideKind(strings.ToLower(row[6]))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		out = append(out, match.Override{
			A:        record.Key{Dataset: row[0], Year: ay, LocalID: row[2]},
			B:        record.Key{Dataset: row[3], Year: by, LocalID: row[5]},
			Kind:     kind,
			Reason:   row[7],
			Reviewer: row[8],
		})
	}
	return out, nil
}

// WriteOverrides writes overrides ordered by pair.
func WriteOverrides(w io.Writer, list []match.Override) error {
	sorted := append([]match.Override(nil), list...)
	match.SortOverrides(sorted)

	cw := csv.NewWriter(w)
	if err := cw.Write(overrideColumns); err != nil {
		return err
	}
	for _, ov := range sorted {
		if err := cw.Write([]string{
			ov.A.Dataset, strconv.Itoa(ov.A.Year), ov.A.LocalID,
			ov.B.Dataset, strconv.Itoa(ov.B.Year), ov.B.LocalID,
			string(ov.Kind), ov.Reason, ov.Reviewer,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// readStrict reads a CSV whose header must start with want. Optional trailing
// columns (reason, reviewer) may be absent and read as blank.
func readStrict(r io.Reader, want []string) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}

	var out [][]string
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			return out, nil
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		mapped := make([]string, len(want))
		for i, name := range want {
			col, ok := index[name]
			switch {
			case ok && col < len(row):
				mapped[i] = strings.TrimSpace(row[col])
			case name == "reason" || name == "reviewer":
			default:
				return nil, fmt.Errorf("line %d: missing column %q", line, name)
			}
		}
		out = append(out, mapped)
	}
}

// ReadScores parses a file written by WriteScores. Feature columns are
// matched by name, so files from an older feature set still load.
func ReadScores(r io.Reader) ([]linkage.ScoredPair, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}
	for _, col := range ScoreColumns()[:12] {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var out []linkage.ScoredPair
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			return out, nil
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		get := func(col string) string { return row[index[col]] }

		var sp linkage.ScoredPair
		var perr error
		num := func(col string) float64 {
			v, err := strconv.ParseFloat(get(col), 64)
			if err != nil && perr == nil {
				perr = fmt.Errorf("line %d: bad %s %q", line, col, get(col))
			}
			return v
		}
		year := func(col string) int {
			v, err := strconv.Atoi(get(col))
			if err != nil && perr == nil {
				perr = fmt.Errorf("line %d: bad %s %q", line, col, get(col))
			}
			return v
		}

		sp.Stage = get("stage")
		sp.A = record.Key{Dataset: get("a_dataset"), Year: year("a_year"), LocalID: get("a_local_id")}
		sp.B = record.Key{Dataset: get("b_dataset"), Year: year("b_year"), LocalID: get("b_local_id")}
		sp.Type = record.EntityType(get("entity_type"))
		sp.Confidence = num("confidence")
		sp.Threshold = num("threshold")
		sp.Accepted = get("accepted") == "true"
		sp.Reason = match.Reason(get("reason"))
		for i, name := range match.FeatureNames {
			if _, ok := index[name]; ok {
				sp.Features[i] = num(name)
			}
		}
		if perr != nil {
			return nil, perr
		}
		out = append(out, sp)
	}
}

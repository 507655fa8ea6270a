// Package importer reads and writes the CSV files exchanged with the ETL:
// source records and overrides in, linkage tables and pair scores out.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/energy-linkage/internal/logging"
	"github.com/energy-linkage/internal/normalize"
	"github.com/energy-linkage/internal/record"
)

// RecordColumns is the header written and recognized for source records.
var RecordColumns = []string{
	"dataset", "year", "local_id", "entity_type", "name", "capacity_mw",
	"fuel_type", "prime_mover", "state", "city", "owner_id", "address",
}

var columnAliases = map[string]string{
	"report_year": "year",
	"id":          "local_id",
	"type":        "entity_type",
	"capacity":    "capacity_mw",
	"fuel":        "fuel_type",
	"utility_id":  "owner_id",
}

// ReadStats counts what happened to the input rows.
type ReadStats struct {
	Rows     int // data rows seen
	Imported int
	// Skipped rows had no usable dataset, year or local id, or could not be
	// parsed as CSV.
	Skipped int
	// Degraded rows were kept with one or more attributes treated as missing.
	Degraded int
}

// Reader reads source records from CSV.
type Reader struct {
	logger *zerolog.Logger
}

// NewReader creates a reader that logs skipped rows to logger.
func NewReader(logger *zerolog.Logger) *Reader {
	if logger == nil {
		logger = logging.Default()
	}
	return &Reader{logger: logger}
}

// ReadRecords parses header-mapped CSV. Column order is free; names are
// matched case-insensitively. dataset, year and local_id are required.
func ReadRecords(r io.Reader) ([]record.RawRecord, ReadStats, error) {
	return NewReader(nil).ReadRecords(r)
}

// ReadRecords parses header-mapped CSV.
func (rd *Reader) ReadRecords(r io.Reader) ([]record.RawRecord, ReadStats, error) {
	var stats ReadStats

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, stats, nil
	}
	if err != nil {
		return nil, stats, fmt.Errorf("failed to read header: %w", err)
	}
	cols, err := mapHeader(header)
	if err != nil {
		return nil, stats, err
	}

	var out []record.RawRecord
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		stats.Rows++
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			rd.logger.Warn().Int("line", line).Err(err).Msg("skipping unreadable row")
			stats.Skipped++
			continue
		}
		if err != nil {
			return nil, stats, fmt.Errorf("failed to read line %d: %w", line, err)
		}

		rec, degraded, err := parseRow(cols, row)
		if err != nil {
			rd.logger.Warn().Int("line", line).Err(err).Msg("skipping row without a usable key")
			stats.Skipped++
			continue
		}
		if degraded {
			stats.Degraded++
		}
		stats.Imported++
		out = append(out, rec)
	}

	rd.logger.Info().
		Int("rows", stats.Rows).
		Int("imported", stats.Imported).
		Int("skipped", stats.Skipped).
		Int("degraded", stats.Degraded).
		Msg("records read")
	return out, stats, nil
}

func mapHeader(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if alias, ok := columnAliases[name]; ok {
			name = alias
		}
		if _, dup := cols[name]; dup {
			return nil, fmt.Errorf("duplicate column %q", h)
		}
		cols[name] = i
	}
	for _, required := range []string{"dataset", "year", "local_id"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}
	return cols, nil
}

func parseRow(cols map[string]int, row []string) (record.RawRecord, bool, error) {
	get := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var rec record.RawRecord
	rec.Dataset = get("dataset")
	rec.LocalID = get("local_id")
	if rec.Dataset == "" || rec.LocalID == "" {
		return rec, false, errors.New("blank dataset or local_id")
	}
	year, err := strconv.Atoi(get("year"))
	if err != nil || year <= 0 {
		return rec, false, fmt.Errorf("bad year %q", get("year"))
	}
	rec.Year = year

	degraded := false
	rec.Type, err = record.ParseEntityType(get("entity_type"))
	if err != nil {
		// keep the reported type; it is only ever compared with itself
		rec.Type = record.EntityType(strings.ToLower(get("entity_type")))
		degraded = true
	}

	rec.Name = get("name")
	if normalize.IsBlank(rec.Name) {
		degraded = true
	}
	if raw := get("capacity_mw"); raw != "" {
		if c, ok := parseCapacity(raw); ok {
			rec.Capacity = &c
		} else {
			degraded = true
		}
	}
	rec.FuelType = get("fuel_type")
	rec.PrimeMover = get("prime_mover")
	rec.State = get("state")
	rec.City = get("city")
	rec.OwnerID = get("owner_id")
	rec.Address = get("address")
	return rec, degraded, nil
}

// parseCapacity accepts plain and thousands-separated numbers. Negative and
// non-finite values are rejected.
func parseCapacity(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, false
	}
	return f, true
}

// WriteRecords writes records with RecordColumns as header.
func WriteRecords(w io.Writer, records []record.RawRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(RecordColumns); err != nil {
		return err
	}
	for _, r := range records {
		capacity := ""
		if r.Capacity != nil {
			capacity = formatFloat(*r.Capacity)
		}
		if err := cw.Write([]string{
			r.Dataset, strconv.Itoa(r.Year), r.LocalID, string(r.Type), r.Name, capacity,
			r.FuelType, r.PrimeMover, r.State, r.City, r.OwnerID, r.Address,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/energy-linkage/internal/linkage"
	"github.com/energy-linkage/internal/match"
	"github.com/energy-linkage/internal/record"
)

// Run is the summary row of a completed linkage run.
type Run struct {
	ID             string    `json:"run_id"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	Records        int       `json:"records"`
	Entities       int       `json:"entities"`
	CandidatePairs int       `json:"candidate_pairs"`
	Accepted       int       `json:"accepted"`
	// Config is the effective configuration as JSON.
	Config json.RawMessage `json:"config,omitempty"`
	// Diagnostics is linkage.Diagnostics as JSON.
	Diagnostics json.RawMessage `json:"diagnostics,omitempty"`
}

type runRow struct {
	ID             string `db:"run_id"`
	StartedAt      int64  `db:"started_at"`
	FinishedAt     int64  `db:"finished_at"`
	Records        int    `db:"records"`
	Entities       int    `db:"entities"`
	CandidatePairs int    `db:"candidate_pairs"`
	Accepted       int    `db:"accepted"`
	Config         string `db:"config_json"`
	Diagnostics    string `db:"diagnostics_json"`
}

func (r runRow) run() Run {
	return Run{
		ID:             r.ID,
		StartedAt:      time.UnixMilli(r.StartedAt).UTC(),
		FinishedAt:     time.UnixMilli(r.FinishedAt).UTC(),
		Records:        r.Records,
		Entities:       r.Entities,
		CandidatePairs: r.CandidatePairs,
		Accepted:       r.Accepted,
		Config:         json.RawMessage(r.Config),
		Diagnostics:    json.RawMessage(r.Diagnostics),
	}
}

// Provenance is one stored pair decision.
type Provenance struct {
	Stage      string             `json:"stage"`
	A          record.Key         `json:"a"`
	B          record.Key         `json:"b"`
	Type       record.EntityType  `json:"entity_type"`
	Confidence float64            `json:"confidence"`
	Threshold  float64            `json:"threshold"`
	Accepted   bool               `json:"accepted"`
	Reason     match.Reason       `json:"reason"`
	Features   map[string]float64 `json:"features"`
}

type provenanceRow struct {
	Stage      string  `db:"stage"`
	ADataset   string  `db:"a_dataset"`
	AYear      int     `db:"a_year"`
	ALocalID   string  `db:"a_local_id"`
	BDataset   string  `db:"b_dataset"`
	BYear      int     `db:"b_year"`
	BLocalID   string  `db:"b_local_id"`
	Type       string  `db:"entity_type"`
	Confidence float64 `db:"confidence"`
	Threshold  float64 `db:"threshold"`
	Accepted   bool    `db:"accepted"`
	Reason     string  `db:"reason"`
	Features   string  `db:"features_json"`
}

func (r provenanceRow) provenance() (Provenance, error) {
	p := Provenance{
		Stage:      r.Stage,
		A:          record.Key{Dataset: r.ADataset, Year: r.AYear, LocalID: r.ALocalID},
		B:          record.Key{Dataset: r.BDataset, Year: r.BYear, LocalID: r.BLocalID},
		Type:       record.EntityType(r.Type),
		Confidence: r.Confidence,
		Threshold:  r.Threshold,
		Accepted:   r.Accepted,
		Reason:     match.Reason(r.Reason),
	}
	if err := json.Unmarshal([]byte(r.Features), &p.Features); err != nil {
		return p, fmt.Errorf("bad features for %s/%s: %w", p.A, p.B, err)
	}
	return p, nil
}

// SaveRun stores a completed run in a single transaction: the run row, its
// linkage table, every scored pair and every ambiguity. Either all of it is
// committed or none.
func (s *Store) SaveRun(ctx context.Context, run Run, result *linkage.Result) error {
	return s.SaveRunWithRecords(ctx, run, result, nil)
}

// SaveRunWithRecords is SaveRun that also upserts the run's source records
// in the same transaction.
func (s *Store) SaveRunWithRecords(ctx context.Context, run Run, result *linkage.Result, records []record.RawRecord) error {
	if result == nil || result.Table == nil {
		return errors.New("cannot save a run without a linkage table")
	}
	if run.ID == "" {
		run.ID = result.RunID
	}
	if run.Diagnostics == nil {
		d, err := json.Marshal(result.Diagnostics)
		if err != nil {
			return fmt.Errorf("failed to encode diagnostics: %w", err)
		}
		run.Diagnostics = d
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = run.FinishedAt
	}
	if run.Config == nil {
		run.Config = json.RawMessage("{}")
	}
	run.Records = result.Diagnostics.Records
	run.Entities = result.Diagnostics.Entities
	run.CandidatePairs = result.Diagnostics.CandidatePairs()
	run.Accepted = result.Diagnostics.Accepted()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertRecords(ctx, tx, records); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO linkage_run (run_id, started_at, finished_at, records, entities,
			candidate_pairs, accepted, config_json, diagnostics_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		run.ID, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(), run.Records, run.Entities,
		run.CandidatePairs, run.Accepted, string(run.Config), string(run.Diagnostics))
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	if err := insertTable(ctx, tx, run.ID, result.Table); err != nil {
		return err
	}
	if err := insertProvenance(ctx, tx, run.ID, result.Scores); err != nil {
		return err
	}
	if err := insertAmbiguities(ctx, tx, run.ID, result.Ambiguities); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}
	return nil
}

func insertTable(ctx context.Context, tx *sqlx.Tx, runID string, table *record.LinkageTable) error {
	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO linkage_entity (run_id, dataset, report_year, local_id, entity_type, entity_id)
		VALUES (?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare linkage insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, runID, row.Dataset, row.Year, row.LocalID, string(row.Type), int64(row.EntityID)); err != nil {
			return fmt.Errorf("failed to insert linkage row %s: %w", row.Key, err)
		}
	}
	return nil
}

func insertProvenance(ctx context.Context, tx *sqlx.Tx, runID string, scores []linkage.ScoredPair) error {
	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO match_provenance (run_id, stage, a_dataset, a_year, a_local_id,
			b_dataset, b_year, b_local_id, entity_type, confidence, threshold, accepted, reason, features_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare provenance insert: %w", err)
	}
	defer stmt.Close()

	for _, sp := range scores {
		if err := ctx.Err(); err != nil {
			return err
		}
		features, err := json.Marshal(sp.Features.Map())
		if err != nil {
			return fmt.Errorf("failed to encode features: %w", err)
		}
		_, err = stmt.ExecContext(ctx, runID, sp.Stage,
			sp.A.Dataset, sp.A.Year, sp.A.LocalID,
			sp.B.Dataset, sp.B.Year, sp.B.LocalID,
			string(sp.Type), sp.Confidence, sp.Threshold, sp.Accepted, string(sp.Reason), string(features))
		if err != nil {
			return fmt.Errorf("failed to insert provenance %s/%s: %w", sp.A, sp.B, err)
		}
	}
	return nil
}

func insertAmbiguities(ctx context.Context, tx *sqlx.Tx, runID string, events []linkage.AmbiguityEvent) error {
	for _, ev := range events {
		candidates, err := json.Marshal(ev.Candidates)
		if err != nil {
			return fmt.Errorf("failed to encode candidates: %w", err)
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO match_ambiguity (run_id, stage, dataset, report_year, local_id, confidence, candidates_json)
			VALUES (?, ?, ?, ?, ?, ?, ?)`),
			runID, ev.Stage, ev.Record.Dataset, ev.Record.Year, ev.Record.LocalID, ev.Confidence, string(candidates))
		if err != nil {
			return fmt.Errorf("failed to insert ambiguity for %s: %w", ev.Record, err)
		}
	}
	return nil
}

// LatestRun returns the most recently finished run.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, `SELECT run_id, started_at, finished_at, records, entities,
		candidate_pairs, accepted, config_json, diagnostics_json
		FROM linkage_run ORDER BY finished_at DESC, run_id DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to load latest run: %w", err)
	}
	return row.run(), nil
}

// LoadTable returns the linkage table written by runID.
func (s *Store) LoadTable(ctx context.Context, runID string) (*record.LinkageTable, error) {
	var rows []record.LinkageRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT dataset, report_year, local_id, entity_type, entity_id
		FROM linkage_entity WHERE run_id = ?`), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load linkage table for %s: %w", runID, err)
	}
	return record.NewLinkageTable(rows), nil
}

// LoadPriorTable returns the table of the latest run, or nil when no run has
// been stored yet.
func (s *Store) LoadPriorTable(ctx context.Context) (*record.LinkageTable, error) {
	run, err := s.LatestRun(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.LoadTable(ctx, run.ID)
}

// EntityMembers returns the rows of one entity in runID, ordered by key.
func (s *Store) EntityMembers(ctx context.Context, runID string, id record.EntityID) ([]record.LinkageRow, error) {
	var rows []record.LinkageRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT dataset, report_year, local_id, entity_type, entity_id
		FROM linkage_entity WHERE run_id = ? AND entity_id = ?
		ORDER BY report_year, dataset, local_id`), runID, int64(id))
	if err != nil {
		return nil, fmt.Errorf("failed to load entity %d: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows, nil
}

// RecordEntity returns the linkage row of key in runID.
func (s *Store) RecordEntity(ctx context.Context, runID string, key record.Key) (record.LinkageRow, error) {
	var row record.LinkageRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT dataset, report_year, local_id, entity_type, entity_id
		FROM linkage_entity WHERE run_id = ? AND dataset = ? AND report_year = ? AND local_id = ?`),
		runID, key.Dataset, key.Year, key.LocalID)
	if errors.Is(err, sql.ErrNoRows) {
		return row, ErrNotFound
	}
	if err != nil {
		return row, fmt.Errorf("failed to load record %s: %w", key, err)
	}
	return row, nil
}

// HistoryEntry is the entity a record was assigned in one run.
type HistoryEntry struct {
	RunID      string          `db:"run_id" json:"run_id"`
	FinishedAt int64           `db:"finished_at" json:"finished_at"`
	EntityID   record.EntityID `db:"entity_id" json:"entity_id"`
}

// RecordHistory lists the entity assigned to key by every stored run, oldest
// first.
func (s *Store) RecordHistory(ctx context.Context, key record.Key) ([]HistoryEntry, error) {
	var out []HistoryEntry
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`
		SELECT e.run_id, r.finished_at, e.entity_id
		FROM linkage_entity e JOIN linkage_run r ON r.run_id = e.run_id
		WHERE e.dataset = ? AND e.report_year = ? AND e.local_id = ?
		ORDER BY r.finished_at, e.run_id`), key.Dataset, key.Year, key.LocalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for %s: %w", key, err)
	}
	return out, nil
}

// PairsForRecord returns every scored pair in runID that involves key,
// highest confidence first.
func (s *Store) PairsForRecord(ctx context.Context, runID string, key record.Key) ([]Provenance, error) {
	var rows []provenanceRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT stage, a_dataset, a_year, a_local_id, b_dataset, b_year, b_local_id,
			entity_type, confidence, threshold, accepted, reason, features_json
		FROM match_provenance
		WHERE run_id = ? AND ((a_dataset = ? AND a_year = ? AND a_local_id = ?)
			OR (b_dataset = ? AND b_year = ? AND b_local_id = ?))
		ORDER BY confidence DESC, a_year, a_dataset, a_local_id, b_year, b_dataset, b_local_id`),
		runID, key.Dataset, key.Year, key.LocalID, key.Dataset, key.Year, key.LocalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pairs for %s: %w", key, err)
	}
	out := make([]Provenance, 0, len(rows))
	for _, row := range rows {
		p, err := row.provenance()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/energy-linkage/internal/match"
	"github.com/energy-linkage/internal/record"
)

type overrideRow struct {
	ADataset string `db:"a_dataset"`
	AYear    int    `db:"a_year"`
	ALocalID string `db:"a_local_id"`
	BDataset string `db:"b_dataset"`
	BYear    int    `db:"b_year"`
	BLocalID string `db:"b_local_id"`
	Kind     string `db:"kind"`
	Reason   string `db:"reason"`
	Reviewer string `db:"reviewer"`
}

// SaveOverride stores a manual decision. The pair is stored in key order so
// (a, b) and (b, a) replace each other.
func (s *Store) SaveOverride(ctx context.Context, ov match.Override) error {
	if _, err := match.ParseOverrideKind(string(ov.Kind)); err != nil {
		return err
	}
	if ov.A == ov.B {
		return fmt.Errorf("override pairs %s with itself", ov.A)
	}
	a, b := ov.A, ov.B
	if b.Less(a) {
		a, b = b, a
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO match_override (a_dataset, a_year, a_local_id, b_dataset, b_year, b_local_id,
			kind, reason, reviewer, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (a_dataset, a_year, a_local_id, b_dataset, b_year, b_local_id) DO UPDATE SET
			kind = excluded.kind,
			reason = excluded.reason,
			reviewer = excluded.reviewer,
			created_at = excluded.created_at`),
		a.Dataset, a.Year, a.LocalID, b.Dataset, b.Year, b.LocalID,
		string(ov.Kind), ov.Reason, ov.Reviewer, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save override %s/%s: %w", a, b, err)
	}
	return nil
}

// LoadOverrides returns every stored override ordered by pair.
func (s *Store) LoadOverrides(ctx context.Context) ([]match.Override, error) {
	var rows []overrideRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a_dataset, a_year, a_local_id, b_dataset, b_year, b_local_id, kind, reason, reviewer
		FROM match_override`)
	if err != nil {
		return nil, fmt.Errorf("failed to load overrides: %w", err)
	}
	out := make([]match.Override, 0, len(rows))
	for _, r := range rows {
		kind, err := match.ParseOverrideKind(r.Kind)
		if err != nil {
			return nil, err
		}
		out = append(out, match.Override{
			A:        record.Key{Dataset: r.ADataset, Year: r.AYear, LocalID: r.ALocalID},
			B:        record.Key{Dataset: r.BDataset, Year: r.BYear, LocalID: r.BLocalID},
			Kind:     kind,
			Reason:   r.Reason,
			Reviewer: r.Reviewer,
		})
	}
	match.SortOverrides(out)
	return out, nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/energy-linkage/internal/record"
)

type recordRow struct {
	Dataset    string          `db:"dataset"`
	Year       int             `db:"report_year"`
	LocalID    string          `db:"local_id"`
	Type       string          `db:"entity_type"`
	Name       string          `db:"name"`
	Capacity   sql.NullFloat64 `db:"capacity_mw"`
	FuelType   string          `db:"fuel_type"`
	PrimeMover string          `db:"prime_mover"`
	State      string          `db:"state"`
	City       string          `db:"city"`
	OwnerID    string          `db:"owner_id"`
	Address    string          `db:"address"`
}

func toRecordRow(r record.RawRecord) recordRow {
	row := recordRow{
		Dataset:    r.Dataset,
		Year:       r.Year,
		LocalID:    r.LocalID,
		Type:       string(r.Type),
		Name:       r.Name,
		FuelType:   r.FuelType,
		PrimeMover: r.PrimeMover,
		State:      r.State,
		City:       r.City,
		OwnerID:    r.OwnerID,
		Address:    r.Address,
	}
	if r.Capacity != nil {
		row.Capacity = sql.NullFloat64{Float64: *r.Capacity, Valid: true}
	}
	return row
}

func (row recordRow) raw() record.RawRecord {
	r := record.RawRecord{
		Key:        record.Key{Dataset: row.Dataset, Year: row.Year, LocalID: row.LocalID},
		Type:       record.EntityType(row.Type),
		Name:       row.Name,
		FuelType:   row.FuelType,
		PrimeMover: row.PrimeMover,
		State:      row.State,
		City:       row.City,
		OwnerID:    row.OwnerID,
		Address:    row.Address,
	}
	if row.Capacity.Valid {
		c := row.Capacity.Float64
		r.Capacity = &c
	}
	return r
}

const upsertRecord = `
INSERT INTO source_record (dataset, report_year, local_id, entity_type, name, capacity_mw,
	fuel_type, prime_mover, state, city, owner_id, address)
VALUES (:dataset, :report_year, :local_id, :entity_type, :name, :capacity_mw,
	:fuel_type, :prime_mover, :state, :city, :owner_id, :address)
ON CONFLICT (dataset, report_year, local_id) DO UPDATE SET
	entity_type = excluded.entity_type,
	name = excluded.name,
	capacity_mw = excluded.capacity_mw,
	fuel_type = excluded.fuel_type,
	prime_mover = excluded.prime_mover,
	state = excluded.state,
	city = excluded.city,
	owner_id = excluded.owner_id,
	address = excluded.address`

// upsertRecords upserts source records by key.
func upsertRecords(ctx context.Context, tx *sqlx.Tx, records []record.RawRecord) error {
	if len(records) == 0 {
		return nil
	}
	stmt, err := tx.PrepareNamedContext(ctx, upsertRecord)
	if err != nil {
		return fmt.Errorf("failed to prepare record upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, toRecordRow(r)); err != nil {
			return fmt.Errorf("failed to save record %s: %w", r.Key, err)
		}
	}
	return nil
}

// LoadRecords returns the stored records for the given years (all years when
// none are given), ordered by key.
func (s *Store) LoadRecords(ctx context.Context, years ...int) ([]record.RawRecord, error) {
	query := `SELECT dataset, report_year, local_id, entity_type, name, capacity_mw,
		fuel_type, prime_mover, state, city, owner_id, address FROM source_record`
	args := make([]interface{}, 0, len(years))
	if len(years) > 0 {
		marks := make([]string, len(years))
		for i, y := range years {
			marks[i] = "?"
			args = append(args, y)
		}
		query += " WHERE report_year IN (" + strings.Join(marks, ", ") + ")"
	}
	query += " ORDER BY report_year, dataset, local_id"

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	out := make([]record.RawRecord, len(rows))
	for i, row := range rows {
		out[i] = row.raw()
	}
	return out, nil
}

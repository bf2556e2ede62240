package tracking

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// BaselineStore persists motion baselines across restarts.
//
// Implementations must be thread-safe and use UTC timestamps.
type BaselineStore interface {
	// LoadBaselines returns every stored baseline.
	LoadBaselines(ctx context.Context) ([]Baseline, error)

	// SaveBaselines upserts the given baselines, one row per serial.
	SaveBaselines(ctx context.Context, baselines []Baseline) error
}

// SQLiteBaselineRepository implements BaselineStore using the
// motion_baselines table.
type SQLiteBaselineRepository struct {
	db *sql.DB
}

// NewSQLiteBaselineRepository creates a new SQLite baseline repository.
func NewSQLiteBaselineRepository(db *sql.DB) *SQLiteBaselineRepository {
	return &SQLiteBaselineRepository{db: db}
}

// LoadBaselines returns all stored baselines ordered by serial.
func (r *SQLiteBaselineRepository) LoadBaselines(ctx context.Context) ([]Baseline, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT serial, x, y, z, updated_at FROM motion_baselines ORDER BY serial`)
	if err != nil {
		return nil, fmt.Errorf("querying motion baselines: %w", err)
	}
	defer rows.Close()

	var out []Baseline
	for rows.Next() {
		var b Baseline
		var updatedAt string
		if err := rows.Scan(&b.Serial, &b.Position.X, &b.Position.Y, &b.Position.Z, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning motion baseline: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
			b.UpdatedAt = t
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating motion baselines: %w", err)
	}

	return out, nil
}

// SaveBaselines upserts baselines in a single transaction.
func (r *SQLiteBaselineRepository) SaveBaselines(ctx context.Context, baselines []Baseline) error {
	if len(baselines) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning baseline transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO motion_baselines (serial, x, y, z, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(serial) DO UPDATE SET
		   x = excluded.x, y = excluded.y, z = excluded.z, updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("preparing baseline upsert: %w", err)
	}
	defer stmt.Close()

	for _, b := range baselines {
		if b.Serial == "" {
			return fmt.Errorf("saving baseline: %w", ErrEmptySerial)
		}
		at := b.UpdatedAt
		if at.IsZero() {
			at = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, b.Serial, b.Position.X, b.Position.Y, b.Position.Z,
			at.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("upserting baseline %s: %w", b.Serial, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing baselines: %w", err)
	}
	return nil
}

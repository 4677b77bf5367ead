// Package postgres persists the volume-average cache backing the
// market data client.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/amc-trader/discovery/internal/provider"
)

// Schema is the volume_averages DDL, applied by EnsureSchema.
const Schema = `
CREATE TABLE IF NOT EXISTS volume_averages (
	symbol          TEXT PRIMARY KEY,
	avg_volume_20d  BIGINT NOT NULL CHECK (avg_volume_20d > 0),
	avg_volume_30d  BIGINT NULL,
	last_updated    TIMESTAMPTZ NOT NULL
)`

// VolumeRepo implements provider.VolumeStore on PostgreSQL.
type VolumeRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewVolumeRepo wraps an open connection.
func NewVolumeRepo(db *sqlx.DB, timeout time.Duration) *VolumeRepo {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &VolumeRepo{db: db, timeout: timeout}
}

// Connect opens the database and applies the schema.
func Connect(dsn string, timeout time.Duration) (*VolumeRepo, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	repo := NewVolumeRepo(db, timeout)
	if err := repo.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// EnsureSchema creates the table when absent.
func (r *VolumeRepo) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure volume_averages schema: %w", err)
	}
	return nil
}

// Get returns the row for symbol, nil when absent.
func (r *VolumeRepo) Get(ctx context.Context, symbol string) (*provider.VolumeRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rec provider.VolumeRecord
	query := `SELECT symbol, avg_volume_20d, avg_volume_30d, last_updated
		FROM volume_averages WHERE symbol = $1`
	if err := r.db.GetContext(ctx, &rec, query, symbol); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get volume average %s: %w", symbol, err)
	}
	return &rec, nil
}

// Upsert writes a row, last-writer-wins.
func (r *VolumeRepo) Upsert(ctx context.Context, rec provider.VolumeRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO volume_averages (symbol, avg_volume_20d, avg_volume_30d, last_updated)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol) DO UPDATE SET
			avg_volume_20d = EXCLUDED.avg_volume_20d,
			avg_volume_30d = EXCLUDED.avg_volume_30d,
			last_updated = EXCLUDED.last_updated`

	if _, err := r.db.ExecContext(ctx, query, rec.Symbol, rec.AvgVolume20d, rec.AvgVolume30d, rec.LastUpdated); err != nil {
		return fmt.Errorf("upsert volume average %s: %w", rec.Symbol, err)
	}
	return nil
}

// PruneStale deletes rows older than olderThan, returning the count.
func (r *VolumeRepo) PruneStale(ctx context.Context, olderThan time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM volume_averages WHERE last_updated < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune volume averages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune volume averages: %w", err)
	}
	return n, nil
}

// Close releases the underlying connection pool.
func (r *VolumeRepo) Close() error {
	return r.db.Close()
}

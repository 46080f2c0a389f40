// Package store provides the SQLite staging store for synthesized bars.
// Continuous-bar runs land each day's bars here before the progress marker
// is cleared, so a resumed run re-stages only the interrupted day and the
// final export still covers the full requested range.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"txdata/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS bars (
	ts     INTEGER PRIMARY KEY, -- unix seconds of interval start
	open   REAL NOT NULL,
	high   REAL NOT NULL,
	low    REAL NOT NULL,
	close  REAL NOT NULL,
	volume INTEGER NOT NULL
);
`

// BarStore persists minute bars keyed by interval start. Upserts make
// re-staging a replayed unit idempotent.
type BarStore struct {
	db  *sql.DB
	loc *time.Location
}

// NewBarStore opens (or creates) the staging database at dbPath. Timestamps
// read back are rendered in loc. An empty path is rejected: the sqlite
// driver would open a private in-memory temp database and the staged bars
// would not survive the run.
func NewBarStore(dbPath string, loc *time.Location) (*BarStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("bar store path is empty")
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", dbPath, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bars table: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &BarStore{db: db, loc: loc}, nil
}

// Close closes the underlying database.
func (s *BarStore) Close() error {
	return s.db.Close()
}

// UpsertBars writes bars in one transaction, replacing rows that share an
// interval start.
func (s *BarStore) UpsertBars(ctx context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning staging tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO bars (ts, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx,
			b.Timestamp.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return fmt.Errorf("staging bar %s: %w", b.Timestamp.Format(time.RFC3339), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing staged bars: %w", err)
	}
	return nil
}

// ReadRange returns bars whose interval start falls inside the inclusive
// calendar-day range [start, end], ordered ascending. Day boundaries are
// evaluated in the store's location.
func (s *BarStore) ReadRange(ctx context.Context, start, end time.Time) ([]domain.Bar, error) {
	from := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, s.loc).Unix()
	to := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, s.loc).AddDate(0, 0, 1).Unix()

	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, open, high, low, close, volume FROM bars WHERE ts >= ? AND ts < ? ORDER BY ts`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("reading staged bars: %w", err)
	}
	defer rows.Close()

	var out []domain.Bar
	for rows.Next() {
		var (
			ts  int64
			bar domain.Bar
		)
		if err := rows.Scan(&ts, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, fmt.Errorf("scanning staged bar: %w", err)
		}
		bar.Timestamp = time.Unix(ts, 0).In(s.loc)
		out = append(out, bar)
	}
	return out, rows.Err()
}

// Count returns the number of staged bars.
func (s *BarStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bars`).Scan(&n)
	return n, err
}

// Package store persists the pipeline's artifacts: the processed merged
// table and the append-only quality-report archive in SQLite, and the raw
// per-call payloads on the filesystem.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gridpulse/demand-weather-etl/internal/domain"
)

const dayLayout = "2006-01-02"

// Store wraps the SQLite database holding processed output for the
// visualization layer.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_journal_mode=WAL&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Writes are serialized in SQLite anyway; keep the pool small.
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS merged_records (
	city                TEXT NOT NULL,
	date                TEXT NOT NULL,
	temperature         REAL,
	demand              REAL,
	is_weekend          INTEGER NOT NULL,
	excluded_from_stats INTEGER NOT NULL,
	exclusion_reason    TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (city, date)
);
CREATE TABLE IF NOT EXISTS quality_reports (
	run_id       TEXT PRIMARY KEY,
	generated_at TEXT NOT NULL,
	report       TEXT NOT NULL
);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

// SaveMergedRecords upserts the merged table keyed by (city, date).
// Re-running a pipeline over the same window rewrites the same rows, so a
// repeated run is idempotent.
func (s *Store) SaveMergedRecords(ctx context.Context, records []domain.MergedRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO merged_records (city, date, temperature, demand, is_weekend, excluded_from_stats, exclusion_reason)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (city, date) DO UPDATE SET
	temperature         = excluded.temperature,
	demand              = excluded.demand,
	is_weekend          = excluded.is_weekend,
	excluded_from_stats = excluded.excluded_from_stats,
	exclusion_reason    = excluded.exclusion_reason`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.City,
			r.Date.Format(dayLayout),
			nullableFloat(r.Temperature),
			nullableFloat(r.Demand),
			r.IsWeekend,
			r.ExcludedFromStats,
			r.ExclusionReason,
		)
		if err != nil {
			return fmt.Errorf("upsert merged record %s/%s: %w", r.City, r.Date.Format(dayLayout), err)
		}
	}
	return tx.Commit()
}

// LoadMergedRecords reads the processed table ordered by (city, date).
func (s *Store) LoadMergedRecords(ctx context.Context) ([]domain.MergedRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT city, date, temperature, demand, is_weekend, excluded_from_stats, exclusion_reason
FROM merged_records
ORDER BY city, date`)
	if err != nil {
		return nil, fmt.Errorf("query merged records: %w", err)
	}
	defer rows.Close()

	var records []domain.MergedRecord
	for rows.Next() {
		var (
			r         domain.MergedRecord
			day       string
			temp, dem sql.NullFloat64
		)
		if err := rows.Scan(&r.City, &day, &temp, &dem, &r.IsWeekend, &r.ExcludedFromStats, &r.ExclusionReason); err != nil {
			return nil, fmt.Errorf("scan merged record: %w", err)
		}
		r.Date, err = time.Parse(dayLayout, day)
		if err != nil {
			return nil, fmt.Errorf("parse stored date %q: %w", day, err)
		}
		if temp.Valid {
			r.Temperature = &temp.Float64
		}
		if dem.Valid {
			r.Demand = &dem.Float64
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// SaveQualityReport archives one report. Reports are append-only; writing
// the same run id twice is an error.
func (s *Store) SaveQualityReport(ctx context.Context, report domain.QualityReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("serialize quality report: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO quality_reports (run_id, generated_at, report) VALUES (?, ?, ?)`,
		report.RunID, report.GeneratedAt.Format(time.RFC3339), string(data))
	if err != nil {
		return fmt.Errorf("insert quality report %s: %w", report.RunID, err)
	}
	return nil
}

// LatestQualityReport returns the most recently generated report, or
// sql.ErrNoRows when none has been archived yet.
func (s *Store) LatestQualityReport(ctx context.Context) (domain.QualityReport, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT report FROM quality_reports ORDER BY generated_at DESC, run_id DESC LIMIT 1`).Scan(&data)
	if err != nil {
		return domain.QualityReport{}, err
	}
	var report domain.QualityReport
	if err := json.Unmarshal([]byte(data), &report); err != nil {
		return domain.QualityReport{}, fmt.Errorf("decode stored report: %w", err)
	}
	return report, nil
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

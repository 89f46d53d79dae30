package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/metarvis-service/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"

	_ "modernc.org/sqlite"
)

// SQLite is a file-backed store. Writes are serialized in-process; readers
// run concurrently against the WAL.
type SQLite struct {
	db    *sql.DB
	clock clockwork.Clock
	mu    sync.Mutex
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string, opts ...Option) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	o := buildOptions(opts)

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := createSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db, clock: o.clock}, nil
}

func createSQLiteSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS observations (
		station         TEXT NOT NULL,
		observed_at     INTEGER NOT NULL,
		label           TEXT,
		country         TEXT,
		wind_speed_mph  INTEGER,
		wind_speed_kts  INTEGER,
		wind_direction  INTEGER,
		temperature_c   INTEGER,
		temperature_f   INTEGER,
		lon             REAL,
		lat             REAL,
		elevation_m     INTEGER,
		epoch           INTEGER,
		geom            TEXT,
		ingested_at     INTEGER NOT NULL,
		PRIMARY KEY (station, observed_at)
	);

	CREATE INDEX IF NOT EXISTS idx_observations_observed_at ON observations(observed_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return err
	}
	return migrateSQLiteSchema(db)
}

// migrateSQLiteSchema adds columns introduced after the first release.
func migrateSQLiteSchema(db *sql.DB) error {
	migrations := []struct {
		column string
		ddl    string
	}{
		{"raw_ob", "ALTER TABLE observations ADD COLUMN raw_ob TEXT"},
		{"cycle", "ALTER TABLE observations ADD COLUMN cycle INTEGER"},
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow(
			"SELECT COUNT(*) FROM pragma_table_info('observations') WHERE name = ?", m.column,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("inspect column %s: %w", m.column, err)
		}
		if count > 0 {
			continue
		}
		if _, err := db.Exec(m.ddl); err != nil {
			return fmt.Errorf("add column %s: %w", m.column, err)
		}
	}
	return nil
}

// UpsertIfAbsent implements Store.
func (s *SQLite) UpsertIfAbsent(ctx context.Context, rec domain.Record) (bool, error) {
	lon, lat, elevation, epoch, geom := positionArgs(rec.Position)

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO observations (
			station, observed_at, label, country,
			wind_speed_mph, wind_speed_kts, wind_direction, temperature_c, temperature_f,
			lon, lat, elevation_m, epoch, geom, raw_ob, cycle, ingested_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Station, rec.ObservedAt.UTC().Unix(), nullString(rec.Label), nullString(rec.Country),
		nullInt(rec.WindSpeedMph), nullInt(rec.WindSpeedKnots), nullInt(rec.WindDirectionDegrees),
		nullInt(rec.TemperatureC), nullInt(rec.TemperatureF),
		lon, lat, elevation, epoch, geom,
		nullString(rec.RawObservation), nullInt(rec.Cycle), s.clock.Now().UTC().Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("insert %s: %w", rec.Key(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// MostRecentPerStation implements Store.
func (s *SQLite) MostRecentPerStation(ctx context.Context, staleness time.Duration, stations []string) ([]domain.Record, error) {
	cutoff := s.clock.Now().Add(-effectiveStaleness(staleness)).Unix()

	query := `SELECT ` + selectColumns + `
		FROM observations o
		WHERE o.observed_at >= ?
		  AND o.observed_at = (
			SELECT MAX(i.observed_at) FROM observations i WHERE i.station = o.station
		  )`
	args := []any{cutoff}
	if len(stations) > 0 {
		query += ` AND o.station IN (?` + strings.Repeat(", ?", len(stations)-1) + `)`
		for _, st := range stations {
			args = append(args, st)
		}
	}
	query += ` ORDER BY o.observed_at DESC, o.station`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query most recent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []domain.Record
	for rows.Next() {
		var (
			r        row
			observed int64
		)
		if err := rows.Scan(r.dest(&observed)...); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		records = append(records, r.record(time.Unix(observed, 0)))
	}
	return records, rows.Err()
}

// BoundingRegion implements Store.
func (s *SQLite) BoundingRegion(ctx context.Context, staleness time.Duration, stations []string) (orb.Bound, bool, error) {
	records, err := s.MostRecentPerStation(ctx, staleness, stations)
	if err != nil {
		return orb.Bound{}, false, err
	}
	bound, ok := domain.RegionOf(records)
	return bound, ok, nil
}

// Count implements Store.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM observations").Scan(&n); err != nil {
		return 0, fmt.Errorf("count observations: %w", err)
	}
	return n, nil
}

// Ping checks that the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

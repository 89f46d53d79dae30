package store

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/metarvis-service/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
)

// Postgres is a store backed by a PostgreSQL connection pool.
type Postgres struct {
	pool  *pgxpool.Pool
	clock clockwork.Clock
}

// OpenPostgres connects to url and creates the schema if needed.
func OpenPostgres(ctx context.Context, url string, opts ...Option) (*Postgres, error) {
	if url == "" {
		return nil, fmt.Errorf("postgres url is empty")
	}
	o := buildOptions(opts)

	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	p := &Postgres{pool: pool, clock: o.clock}
	if err := p.createSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return p, nil
}

func (p *Postgres) createSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS observations (
		station         TEXT NOT NULL,
		observed_at     TIMESTAMPTZ NOT NULL,
		label           TEXT,
		country         TEXT,
		wind_speed_mph  INTEGER,
		wind_speed_kts  INTEGER,
		wind_direction  INTEGER,
		temperature_c   INTEGER,
		temperature_f   INTEGER,
		lon             DOUBLE PRECISION,
		lat             DOUBLE PRECISION,
		elevation_m     INTEGER,
		epoch           BIGINT,
		geom            TEXT,
		ingested_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (station, observed_at)
	);

	CREATE INDEX IF NOT EXISTS idx_observations_observed_at ON observations(observed_at);

	ALTER TABLE observations ADD COLUMN IF NOT EXISTS raw_ob TEXT;
	ALTER TABLE observations ADD COLUMN IF NOT EXISTS cycle INTEGER;
	`
	_, err := p.pool.Exec(ctx, schema)
	return err
}

// UpsertIfAbsent implements Store.
func (p *Postgres) UpsertIfAbsent(ctx context.Context, rec domain.Record) (bool, error) {
	lon, lat, elevation, epoch, geom := positionArgs(rec.Position)

	tag, err := p.pool.Exec(ctx, `
		INSERT INTO observations (
			station, observed_at, label, country,
			wind_speed_mph, wind_speed_kts, wind_direction, temperature_c, temperature_f,
			lon, lat, elevation_m, epoch, geom, raw_ob, cycle, ingested_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (station, observed_at) DO NOTHING`,
		rec.Station, rec.ObservedAt.UTC(), nullString(rec.Label), nullString(rec.Country),
		nullInt(rec.WindSpeedMph), nullInt(rec.WindSpeedKnots), nullInt(rec.WindDirectionDegrees),
		nullInt(rec.TemperatureC), nullInt(rec.TemperatureF),
		lon, lat, elevation, epoch, geom,
		nullString(rec.RawObservation), nullInt(rec.Cycle), p.clock.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("insert %s: %w", rec.Key(), err)
	}
	return tag.RowsAffected() == 1, nil
}

// MostRecentPerStation implements Store.
func (p *Postgres) MostRecentPerStation(ctx context.Context, staleness time.Duration, stations []string) ([]domain.Record, error) {
	cutoff := p.clock.Now().Add(-effectiveStaleness(staleness)).UTC()

	inner := `SELECT DISTINCT ON (station) ` + selectColumns + ` FROM observations`
	args := []any{cutoff}
	if len(stations) > 0 {
		inner += ` WHERE station = ANY($2)`
		args = append(args, stations)
	}
	inner += ` ORDER BY station, observed_at DESC`

	query := `SELECT ` + selectColumns + ` FROM (` + inner + `) latest
		WHERE observed_at >= $1
		ORDER BY observed_at DESC, station`

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query most recent: %w", err)
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		var (
			r        row
			observed time.Time
		)
		if err := rows.Scan(r.dest(&observed)...); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		records = append(records, r.record(observed))
	}
	return records, rows.Err()
}

// BoundingRegion implements Store.
func (p *Postgres) BoundingRegion(ctx context.Context, staleness time.Duration, stations []string) (orb.Bound, bool, error) {
	records, err := p.MostRecentPerStation(ctx, staleness, stations)
	if err != nil {
		return orb.Bound{}, false, err
	}
	bound, ok := domain.RegionOf(records)
	return bound, ok, nil
}

// Count implements Store.
func (p *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM observations").Scan(&n); err != nil {
		return 0, fmt.Errorf("count observations: %w", err)
	}
	return n, nil
}

// Ping checks that the pool can reach the server.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close closes the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

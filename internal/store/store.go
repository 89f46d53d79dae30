// Package store persists parsed observations keyed by (station, observed
// time) and answers freshness queries over them.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/metarvis-service/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store is implemented by every backend.
type Store interface {
	// UpsertIfAbsent inserts the record unless a row with the same station
	// and observation time exists. It reports whether a row was written.
	// An existing row is never modified.
	UpsertIfAbsent(ctx context.Context, rec domain.Record) (bool, error)

	// MostRecentPerStation returns, per station, the latest row if it is not
	// older than staleness. A nil stations slice means all stations. Rows are
	// ordered by observation time, newest first.
	MostRecentPerStation(ctx context.Context, staleness time.Duration, stations []string) ([]domain.Record, error)

	// BoundingRegion returns the lon/lat bounds of the positioned rows that
	// MostRecentPerStation returns for the same arguments. It reports false
	// when no such row exists.
	BoundingRegion(ctx context.Context, staleness time.Duration, stations []string) (orb.Bound, bool, error)

	// Count returns the number of stored rows.
	Count(ctx context.Context) (int, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Driver      string
	SQLitePath  string
	PostgresURL string
}

// Option customizes a backend.
type Option func(*options)

type options struct {
	clock clockwork.Clock
}

// WithClock sets the time source used for staleness cutoffs and ingestion
// timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Open opens the backend named by cfg.Driver and creates its schema if
// needed.
func Open(ctx context.Context, cfg Config, opts ...Option) (Store, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		return OpenSQLite(cfg.SQLitePath, opts...)
	case DriverPostgres:
		return OpenPostgres(ctx, cfg.PostgresURL, opts...)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func effectiveStaleness(staleness time.Duration) time.Duration {
	if staleness <= 0 {
		return domain.DefaultStaleness
	}
	return staleness
}

// row is the column set shared by all backends. Nullable columns scan into
// pointers.
type row struct {
	Station    string
	Label      *string
	Country    *string
	WindMph    *int
	WindKts    *int
	WindDir    *int
	TempC      *int
	TempF      *int
	Lon        *float64
	Lat        *float64
	ElevationM *int
	Epoch      *int64
	RawOb      *string
	Cycle      *int
}

// dest returns scan targets in selectColumns order, with observed receiving
// the observed_at column.
func (r *row) dest(observed any) []any {
	return []any{
		&r.Station, observed, &r.Label, &r.Country,
		&r.WindMph, &r.WindKts, &r.WindDir, &r.TempC, &r.TempF,
		&r.Lon, &r.Lat, &r.ElevationM, &r.Epoch, &r.RawOb, &r.Cycle,
	}
}

func (r *row) record(observedAt time.Time) domain.Record {
	rec := domain.Record{
		Station:              r.Station,
		Label:                deref(r.Label),
		Country:              deref(r.Country),
		ObservedAt:           observedAt.UTC(),
		WindSpeedMph:         r.WindMph,
		WindSpeedKnots:       r.WindKts,
		WindDirectionDegrees: r.WindDir,
		TemperatureC:         r.TempC,
		TemperatureF:         r.TempF,
		RawObservation:       deref(r.RawOb),
		Cycle:                r.Cycle,
	}
	if r.Lon != nil && r.Lat != nil {
		pos := &domain.Position{Lon: *r.Lon, Lat: *r.Lat, Epoch: observedAt.Unix()}
		if r.ElevationM != nil {
			pos.ElevationM = *r.ElevationM
		}
		if r.Epoch != nil {
			pos.Epoch = *r.Epoch
		}
		rec.Position = pos
	}
	return rec
}

const selectColumns = `station, observed_at, label, country,
	wind_speed_mph, wind_speed_kts, wind_direction, temperature_c, temperature_f,
	lon, lat, elevation_m, epoch, raw_ob, cycle`

// positionArgs returns lon, lat, elevation, epoch and WKT, all nil when the
// record has no position.
func positionArgs(p *domain.Position) (lon, lat, elevation, epoch, geom any) {
	if p == nil {
		return nil, nil, nil, nil, nil
	}
	return p.Lon, p.Lat, max(p.ElevationM, 0), p.Epoch, p.WKT()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

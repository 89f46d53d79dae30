// Package query answers freshness queries over stored observations for
// renderers and the HTTP API.
package query

import (
	"context"
	"time"

	"github.com/couchcryptid/metarvis-service/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Reader is the read side of the observation store.
type Reader interface {
	MostRecentPerStation(ctx context.Context, staleness time.Duration, stations []string) ([]domain.Record, error)
	BoundingRegion(ctx context.Context, staleness time.Duration, stations []string) (orb.Bound, bool, error)
}

// Engine runs queries with a fixed staleness window.
type Engine struct {
	reader    Reader
	staleness time.Duration
}

// NewEngine creates an Engine. A non-positive staleness uses
// domain.DefaultStaleness.
func NewEngine(r Reader, staleness time.Duration) *Engine {
	if staleness <= 0 {
		staleness = domain.DefaultStaleness
	}
	return &Engine{reader: r, staleness: staleness}
}

// Staleness returns the freshness window applied to every query.
func (e *Engine) Staleness() time.Duration { return e.staleness }

// LatestObservations returns the freshest positioned observation per
// station, newest first. Stations whose latest report has no position are
// left out. An empty filter means all stations.
func (e *Engine) LatestObservations(ctx context.Context, stations []string) ([]domain.Observation, error) {
	records, err := e.reader.MostRecentPerStation(ctx, e.staleness, domain.NormalizeStations(stations))
	if err != nil {
		return nil, err
	}

	out := make([]domain.Observation, 0, len(records))
	for _, r := range records {
		if obs, ok := r.ToObservation(); ok {
			out = append(out, obs)
		}
	}
	return out, nil
}

// Region returns the bounds of the observations LatestObservations would
// return. It reports false when there are none.
func (e *Engine) Region(ctx context.Context, stations []string) (orb.Bound, bool, error) {
	return e.reader.BoundingRegion(ctx, e.staleness, domain.NormalizeStations(stations))
}

// FeatureCollection renders LatestObservations as GeoJSON points with the
// observation fields as properties.
func (e *Engine) FeatureCollection(ctx context.Context, stations []string) (*geojson.FeatureCollection, error) {
	records, err := e.reader.MostRecentPerStation(ctx, e.staleness, domain.NormalizeStations(stations))
	if err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	for _, r := range records {
		if r.Position == nil {
			continue
		}
		f := geojson.NewFeature(r.Position.Point())
		f.ID = r.Station
		f.Properties["station"] = r.Station
		f.Properties["observed_at"] = r.ObservedAt.UTC().Format(time.RFC3339)
		f.Properties["elevation_m"] = r.Position.ElevationM
		setString(f.Properties, "label", r.Label)
		setString(f.Properties, "country", r.Country)
		setInt(f.Properties, "wind_speed_mph", r.WindSpeedMph)
		setInt(f.Properties, "wind_speed_kts", r.WindSpeedKnots)
		setInt(f.Properties, "wind_direction", r.WindDirectionDegrees)
		setInt(f.Properties, "temperature_c", r.TemperatureC)
		setInt(f.Properties, "temperature_f", r.TemperatureF)
		fc.Append(f)
	}

	if bound, ok := domain.RegionOf(records); ok {
		fc.BBox = geojson.NewBBox(bound)
	}
	return fc, nil
}

func setString(props geojson.Properties, key, v string) {
	if v != "" {
		props[key] = v
	}
}

func setInt(props geojson.Properties, key string, v *int) {
	if v != nil {
		props[key] = *v
	}
}

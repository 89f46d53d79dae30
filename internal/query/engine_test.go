package query_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/metarvis-service/internal/domain"
	"github.com/couchcryptid/metarvis-service/internal/query"
	"github.com/couchcryptid/metarvis-service/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2014, time.October, 1, 12, 0, 0, 0, time.UTC)

func intp(v int) *int { return &v }

func seededEngine(t *testing.T, records ...domain.Record) *query.Engine {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "obs.db"), store.WithClock(clockwork.NewFakeClockAt(now)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	for _, r := range records {
		_, err := s.UpsertIfAbsent(context.Background(), r)
		require.NoError(t, err)
	}
	return query.NewEngine(s, 24*time.Hour)
}

func positioned(station string, age time.Duration, lon, lat float64) domain.Record {
	observed := now.Add(-age)
	return domain.Record{
		Station:      station,
		Label:        station + " Field",
		ObservedAt:   observed,
		WindSpeedMph: intp(12),
		TemperatureC: intp(13),
		Position:     &domain.Position{Lon: lon, Lat: lat, ElevationM: 10, Epoch: observed.Unix()},
	}
}

func TestEngine_LatestObservations(t *testing.T) {
	e := seededEngine(t,
		positioned("AAAA", time.Hour, 170.0, -40.0),
		positioned("BBBB", 2*time.Hour, 175.0, -45.0),
		positioned("CCCC", 30*time.Hour, 160.0, -30.0),
		domain.Record{Station: "XXXX", ObservedAt: now.Add(-time.Hour)},
	)

	got, err := e.LatestObservations(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "AAAA", got[0].Station)
	assert.Equal(t, "AAAA Field", got[0].Label)
	assert.InDelta(t, 170.0, got[0].Lon, 1e-9)
	assert.InDelta(t, -40.0, got[0].Lat, 1e-9)
	assert.Equal(t, 12, *got[0].WindSpeedMph)
	assert.Equal(t, "BBBB", got[1].Station)
}

func TestEngine_LatestObservations_Filter(t *testing.T) {
	e := seededEngine(t,
		positioned("AAAA", time.Hour, 170.0, -40.0),
		positioned("BBBB", 2*time.Hour, 175.0, -45.0),
	)

	got, err := e.LatestObservations(context.Background(), []string{" bbbb "})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "BBBB", got[0].Station)
}

func TestEngine_LatestObservations_Empty(t *testing.T) {
	e := seededEngine(t)

	got, err := e.LatestObservations(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestEngine_Region(t *testing.T) {
	e := seededEngine(t,
		positioned("AAAA", time.Hour, 170.0, -40.0),
		positioned("BBBB", 2*time.Hour, 175.0, -45.0),
	)

	bound, ok, err := e.Region(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, orb.Point{170.0, -45.0}, bound.Min)
	assert.Equal(t, orb.Point{175.0, -40.0}, bound.Max)

	_, ok, err = e.Region(context.Background(), []string{"ZZZZ"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEngine_FeatureCollection(t *testing.T) {
	e := seededEngine(t,
		positioned("AAAA", time.Hour, 170.0, -40.0),
		positioned("BBBB", 2*time.Hour, 175.0, -45.0),
		domain.Record{Station: "XXXX", ObservedAt: now.Add(-time.Hour)},
	)

	fc, err := e.FeatureCollection(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)

	f := fc.Features[0]
	assert.Equal(t, orb.Point{170.0, -40.0}, f.Geometry)
	assert.Equal(t, "AAAA", f.Properties["station"])
	assert.Equal(t, "2014-10-01T11:00:00Z", f.Properties["observed_at"])
	assert.Equal(t, 13, f.Properties["temperature_c"])
	assert.NotContains(t, f.Properties, "wind_direction")

	data, err := json.Marshal(fc)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"FeatureCollection"`)
	assert.Contains(t, string(data), `"bbox":[170,-45,175,-40]`)
}

type failingReader struct{}

func (failingReader) MostRecentPerStation(context.Context, time.Duration, []string) ([]domain.Record, error) {
	return nil, errors.New("boom")
}

func (failingReader) BoundingRegion(context.Context, time.Duration, []string) (orb.Bound, bool, error) {
	return orb.Bound{}, false, errors.New("boom")
}

func TestEngine_PropagatesErrors(t *testing.T) {
	e := query.NewEngine(failingReader{}, 0)
	assert.Equal(t, domain.DefaultStaleness, e.Staleness())

	_, err := e.LatestObservations(context.Background(), nil)
	assert.Error(t, err)
	_, _, err = e.Region(context.Background(), nil)
	assert.Error(t, err)
	_, err = e.FeatureCollection(context.Background(), nil)
	assert.Error(t, err)
}

//go:build integration

package integration_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/metarvis-service/internal/domain"
	"github.com/couchcryptid/metarvis-service/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	url := startPostgres(ctx, t)
	now := time.Date(2014, time.October, 1, 12, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)

	st, err := store.Open(ctx, store.Config{Driver: store.DriverPostgres, PostgresURL: url}, store.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	rec := func(station string, age time.Duration, lon, lat float64) domain.Record {
		observed := now.Add(-age)
		temp := 13
		return domain.Record{
			Station:      station,
			Label:        station + " Field",
			ObservedAt:   observed,
			TemperatureC: &temp,
			Position:     &domain.Position{Lon: lon, Lat: lat, ElevationM: 13, Epoch: observed.Unix()},
		}
	}

	t.Run("concurrent upsert writes once", func(t *testing.T) {
		r := rec("AAAA", time.Hour, 170, -40)
		var (
			wg       sync.WaitGroup
			inserted atomic.Int32
		)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := st.UpsertIfAbsent(ctx, r)
				assert.NoError(t, err)
				if ok {
					inserted.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), inserted.Load())
	})

	_, err = st.UpsertIfAbsent(ctx, rec("AAAA", 3*time.Hour, 170, -40))
	require.NoError(t, err)
	_, err = st.UpsertIfAbsent(ctx, rec("BBBB", 2*time.Hour, 175, -45))
	require.NoError(t, err)
	_, err = st.UpsertIfAbsent(ctx, rec("CCCC", 25*time.Hour, 160, -30))
	require.NoError(t, err)
	_, err = st.UpsertIfAbsent(ctx, domain.Record{Station: "XXXX", ObservedAt: now.Add(-time.Hour)})
	require.NoError(t, err)

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	got, err := st.MostRecentPerStation(ctx, 24*time.Hour, nil)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "AAAA", got[0].Station)
	assert.True(t, now.Add(-time.Hour).Equal(got[0].ObservedAt))
	assert.Equal(t, "AAAA Field", got[0].Label)
	assert.Equal(t, 13, *got[0].TemperatureC)
	assert.Nil(t, got[0].WindSpeedMph)

	got, err = st.MostRecentPerStation(ctx, 24*time.Hour, []string{"BBBB", "CCCC"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "BBBB", got[0].Station)

	bound, ok, err := st.BoundingRegion(ctx, 24*time.Hour, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, orb.Point{170, -45}, bound.Min)
	assert.Equal(t, orb.Point{175, -40}, bound.Max)

	_, ok, err = st.BoundingRegion(ctx, 24*time.Hour, []string{"CCCC"})
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.Ping(ctx))
}

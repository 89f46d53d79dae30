package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// DefaultStaleness is the age beyond which an observation is no longer
// considered current.
const DefaultStaleness = 24 * time.Hour

// Position is a 4-D point: WGS-84 longitude/latitude, elevation in metres
// and the observation time as Unix seconds.
type Position struct {
	Lon        float64 `json:"lon"`
	Lat        float64 `json:"lat"`
	ElevationM int     `json:"elevation_m"`
	Epoch      int64   `json:"epoch"`
}

// Point returns the longitude/latitude pair.
func (p Position) Point() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// WKT renders the position as an XYZM point, with M holding the epoch.
func (p Position) WKT() string {
	return fmt.Sprintf("POINT ZM(%g %g %d %d)", p.Lon, p.Lat, p.ElevationM, p.Epoch)
}

// Record is a single parsed observation for one station at one time.
// Optional numeric fields are nil when the report does not carry them.
type Record struct {
	Station    string    `json:"station"`
	Label      string    `json:"label,omitempty"`
	Country    string    `json:"country,omitempty"`
	ObservedAt time.Time `json:"observed_at"`

	WindSpeedMph         *int `json:"wind_speed_mph,omitempty"`
	WindSpeedKnots       *int `json:"wind_speed_kts,omitempty"`
	WindDirectionDegrees *int `json:"wind_direction,omitempty"`
	TemperatureC         *int `json:"temperature_c,omitempty"`
	TemperatureF         *int `json:"temperature_f,omitempty"`

	Position *Position `json:"position,omitempty"`

	RawObservation string `json:"raw_ob,omitempty"`
	Cycle          *int   `json:"cycle,omitempty"`
}

// Key returns the identity of the record: station and observation time.
func (r Record) Key() string {
	return r.Station + "|" + r.ObservedAt.UTC().Format(time.RFC3339)
}

// Observation is the flattened row handed to renderers. It only exists for
// records that carry a position.
type Observation struct {
	Station              string    `json:"station"`
	Label                string    `json:"label,omitempty"`
	Country              string    `json:"country,omitempty"`
	ObservedAt           time.Time `json:"observed_at"`
	WindSpeedMph         *int      `json:"wind_speed_mph,omitempty"`
	WindDirectionDegrees *int      `json:"wind_direction,omitempty"`
	TemperatureC         *int      `json:"temperature_c,omitempty"`
	Lon                  float64   `json:"lon"`
	Lat                  float64   `json:"lat"`
}

// ToObservation flattens a positioned record. It reports false when the
// record has no position.
func (r Record) ToObservation() (Observation, bool) {
	if r.Position == nil {
		return Observation{}, false
	}
	return Observation{
		Station:              r.Station,
		Label:                r.Label,
		Country:              r.Country,
		ObservedAt:           r.ObservedAt,
		WindSpeedMph:         r.WindSpeedMph,
		WindDirectionDegrees: r.WindDirectionDegrees,
		TemperatureC:         r.TemperatureC,
		Lon:                  r.Position.Lon,
		Lat:                  r.Position.Lat,
	}, true
}

// NormalizeStation upper-cases and trims a station code.
func NormalizeStation(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NormalizeStations normalizes a station filter, dropping blanks and
// duplicates while keeping the first-seen order.
func NormalizeStations(codes []string) []string {
	if len(codes) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = NormalizeStation(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func intPtr(v int) *int { return &v }

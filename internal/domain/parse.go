package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Section names of a decoded report, in their canonical spelling.
const (
	SectionWind             = "Wind"
	SectionVisibility       = "Visibility"
	SectionSkyConditions    = "Sky conditions"
	SectionTemperature      = "Temperature"
	SectionDewPoint         = "Dew Point"
	SectionRelativeHumidity = "Relative Humidity"
	SectionPressure         = "Pressure (altimeter)"
	SectionObservation      = "ob"
	SectionCycle            = "cycle"
)

// ErrInvalidStation means the station code is not a 4-character
// alphanumeric identifier.
var ErrInvalidStation = errors.New("invalid station code")

var (
	stationRe = regexp.MustCompile(`^[A-Z0-9]{4}$`)

	// knownSections maps normalized keys to canonical section names.
	knownSections = func() map[string]string {
		m := make(map[string]string)
		for _, s := range []string{
			SectionWind, SectionVisibility, SectionSkyConditions,
			SectionTemperature, SectionDewPoint, SectionRelativeHumidity,
			SectionPressure, SectionObservation, SectionCycle,
		} {
			m[normalizeKey(s)] = s
		}
		return m
	}()

	noStationNames = map[string]struct{}{
		"station name not available": {},
		"no station name available":  {},
	}
)

// Report is the outcome of parsing one raw report. Violations lists the
// format violations that were tolerated while building the record.
type Report struct {
	Record     Record
	Sections   map[string]string
	Violations []error
}

// ValidStation reports whether code is a normalized 4-character station
// identifier.
func ValidStation(code string) bool {
	return stationRe.MatchString(code)
}

// ParseReport parses the raw text of a decoded report for station.
// Reports without a usable observation time return ErrNoTimestamp and must
// be discarded.
func ParseReport(station, raw string) (Report, error) {
	return ParseLines(station, splitLines(raw))
}

// ParseLines parses an already split report. Blank lines must have been
// removed.
func ParseLines(station string, lines []string) (Report, error) {
	station = NormalizeStation(station)
	if !ValidStation(station) {
		return Report{}, fmt.Errorf("%w: %q", ErrInvalidStation, station)
	}
	if len(lines) < 2 {
		return Report{}, fmt.Errorf("station %s: %w", station, ErrEmptyReport)
	}

	locale := strings.TrimSpace(lines[0])
	if _, ok := noStationNames[strings.ToLower(locale)]; ok {
		locale = ""
	}

	observedAt, ok := ExtractTimestamp(lines[1])
	if !ok {
		return Report{}, fmt.Errorf("station %s: %w", station, ErrNoTimestamp)
	}

	sections := parseSections(lines[2:])
	rep := Report{
		Record: Record{
			Station:    station,
			ObservedAt: observedAt,
		},
		Sections: sections,
	}
	rec := &rep.Record

	if locale != "" {
		rec.Label, _ = ExtractLabel(locale)
		rec.Country, _ = ExtractCountry(locale)
		rep.Violations = append(rep.Violations, rec.locate(locale)...)
	}

	if wind, ok := sections[SectionWind]; ok {
		rec.WindSpeedMph = optional(ExtractWindSpeed(wind, MilesPerHour))
		rec.WindSpeedKnots = optional(ExtractWindSpeed(wind, Knots))
		rec.WindDirectionDegrees = optional(ExtractWindDirection(wind))
	}
	if temp, ok := sections[SectionTemperature]; ok {
		rec.TemperatureC = optional(ExtractTemperature(temp, Celsius))
		rec.TemperatureF = optional(ExtractTemperature(temp, Fahrenheit))
	}

	rec.RawObservation = sections[SectionObservation]
	if c, ok := sections[SectionCycle]; ok {
		if v, err := strconv.Atoi(c); err == nil {
			rec.Cycle = intPtr(v)
		}
	}

	return rep, nil
}

// locate sets the record position from the locale line. A malformed
// elevation does not drop the position: it is clamped to 0, as are
// negative elevations. A malformed coordinate pair drops the position.
func (r *Record) locate(locale string) []error {
	coords, ok, err := ExtractCoordinates(locale)
	if err != nil {
		return []error{err}
	}
	if !ok {
		return nil
	}

	var violations []error
	elevation, ok, err := ExtractElevation(locale)
	switch {
	case err != nil:
		violations = append(violations, err)
		elevation = 0
	case !ok:
		elevation = 0
	}
	r.Position = &Position{
		Lon:        coords.Lon,
		Lat:        coords.Lat,
		ElevationM: max(elevation, 0),
		Epoch:      r.ObservedAt.Unix(),
	}
	return violations
}

// parseSections builds the section map from "Key: value" lines. Unknown
// keys are kept verbatim; lines without a colon are skipped.
func parseSections(lines []string) map[string]string {
	sections := make(map[string]string, len(lines))
	for _, line := range lines {
		k, v, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key := strings.TrimSpace(k)
		if canonical, ok := knownSections[normalizeKey(key)]; ok {
			key = canonical
		}
		if key == "" {
			continue
		}
		sections[key] = strings.TrimSpace(v)
	}
	return sections
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.Join(strings.Fields(k), " "))
}

func splitLines(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	var lines []string
	for _, l := range strings.Split(raw, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func optional(v int, ok bool) *int {
	if !ok {
		return nil
	}
	return intPtr(v)
}

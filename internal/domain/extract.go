package domain

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// labelRe matches the leading "<label>," of a locale line. Only a match
	// at offset 0 is accepted.
	labelRe = regexp.MustCompile(`[\w\s]+,`)

	// countryRe matches ", <country> (" where the country contains no comma.
	countryRe = regexp.MustCompile(`,\s*([\w\s]+?)\s*\(`)

	// coordTokenRe matches a degrees-minutes token with a hemisphere letter,
	// e.g. "41-20S" or "087-55W". A seconds component is tolerated and ignored.
	coordTokenRe = regexp.MustCompile(`(?:^|\s)(\d+)-(\d+)(?:-\d+)?([A-Za-z])\b`)

	// elevationRe matches the elevation that follows the longitude token,
	// e.g. "174-48E 13M" -> 13, "M".
	elevationRe = regexp.MustCompile(`\d+-\d+(?:-\d+)?[EW]\s+(-?\d+)([A-Za-z]*)`)

	// whenRe matches the UTC token of the when-line: "2014.09.30 1100 UTC".
	whenRe = regexp.MustCompile(`(\d{4}\.\d{2}\.\d{2})\s+(\d{4})\s+UTC`)

	windMphRe = regexp.MustCompile(`(\d+)\s+MPH\b`)
	windKtRe  = regexp.MustCompile(`(\d+)\s+KT\b`)
	windDirRe = regexp.MustCompile(`(\d+)\s+degrees`)

	tempCRe = regexp.MustCompile(`(-?\d+)(?:\.\d+)?\s+C\b`)
	tempFRe = regexp.MustCompile(`(-?\d+)(?:\.\d+)?\s+F\b`)
)

const (
	calmToken  = "calm"
	whenLayout = "2006.01.02 1504"
	dateLayout = "2006.01.02"
)

// SpeedUnit selects the wind speed unit to extract.
type SpeedUnit int

const (
	MilesPerHour SpeedUnit = iota
	Knots
)

// TemperatureUnit selects the temperature scale to extract.
type TemperatureUnit int

const (
	Celsius TemperatureUnit = iota
	Fahrenheit
)

// Coordinates is a signed latitude/longitude pair in decimal form.
type Coordinates struct {
	Lat float64
	Lon float64
}

// ExtractLabel returns the site name: the text before the first comma of
// the locale line. The match must start the line.
func ExtractLabel(locale string) (string, bool) {
	loc := labelRe.FindStringIndex(locale)
	if loc == nil || loc[0] != 0 {
		return "", false
	}
	label := strings.TrimSpace(strings.TrimSuffix(locale[loc[0]:loc[1]], ","))
	if label == "" {
		return "", false
	}
	return label, true
}

// ExtractCountry returns the comma-free text between a comma and the next
// opening parenthesis, e.g. "New Zealand".
func ExtractCountry(locale string) (string, bool) {
	m := countryRe.FindStringSubmatch(locale)
	if m == nil {
		return "", false
	}
	country := strings.TrimSpace(m[1])
	if country == "" {
		return "", false
	}
	return country, true
}

// ExtractCoordinates reads the latitude and longitude tokens of a locale
// line. Tokens are searched after the station-code parenthesis when one is
// present. A hemisphere letter that does not fit its axis is a
// *FormatViolationError; a missing pair is simply absent.
func ExtractCoordinates(locale string) (Coordinates, bool, error) {
	region := locale
	if i := strings.LastIndexByte(locale, ')'); i >= 0 {
		region = locale[i+1:]
	}

	tokens := coordTokenRe.FindAllStringSubmatch(region, 2)
	if len(tokens) < 2 {
		return Coordinates{}, false, nil
	}

	lat, err := signedDegrees(tokens[0], "N", "S", "latitude")
	if err != nil {
		return Coordinates{}, false, err
	}
	lon, err := signedDegrees(tokens[1], "E", "W", "longitude")
	if err != nil {
		return Coordinates{}, false, err
	}
	return Coordinates{Lat: lat, Lon: lon}, true, nil
}

// signedDegrees converts a "D-M<H>" submatch to D.M, negated for the
// negative hemisphere.
func signedDegrees(m []string, positive, negative, field string) (float64, error) {
	hemi := strings.ToUpper(m[3])
	if hemi != positive && hemi != negative {
		return 0, &FormatViolationError{Field: field, Value: strings.TrimSpace(m[0])}
	}
	v, err := strconv.ParseFloat(m[1]+"."+m[2], 64)
	if err != nil {
		return 0, &FormatViolationError{Field: field, Value: strings.TrimSpace(m[0])}
	}
	if hemi == negative {
		v = -v
	}
	return v, nil
}

// ExtractElevation returns the station elevation in metres. The number
// must carry the "M" unit suffix; any other suffix is a
// *FormatViolationError. The value is returned as written, negative
// included; callers decide how to clamp it.
func ExtractElevation(locale string) (int, bool, error) {
	m := elevationRe.FindStringSubmatch(locale)
	if m == nil {
		return 0, false, nil
	}
	if m[2] != "M" {
		return 0, false, &FormatViolationError{Field: "elevation", Value: m[1] + m[2]}
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false, &FormatViolationError{Field: "elevation", Value: m[1] + m[2]}
	}
	return v, true, nil
}

// ExtractTimestamp reads the UTC token of the when-line. The clock value
// 2400 is read as midnight of the following day; any other invalid value is
// absent.
func ExtractTimestamp(when string) (time.Time, bool) {
	m := whenRe.FindStringSubmatch(when)
	if m == nil {
		return time.Time{}, false
	}
	date, hhmm := m[1], m[2]

	t, err := time.ParseInLocation(whenLayout, date+" "+hhmm, time.UTC)
	if err == nil {
		return t, true
	}
	if hhmm != "2400" {
		return time.Time{}, false
	}
	day, err := time.ParseInLocation(dateLayout, date, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return day.AddDate(0, 0, 1), true
}

// ExtractWindSpeed returns the wind speed in the requested unit. A calm
// report resolves to 0.
func ExtractWindSpeed(wind string, unit SpeedUnit) (int, bool) {
	re := windMphRe
	if unit == Knots {
		re = windKtRe
	}
	if v, ok := firstInt(re, wind); ok {
		return v, true
	}
	if isCalm(wind) {
		return 0, true
	}
	return 0, false
}

// ExtractWindDirection returns the direction the wind blows from, in
// degrees within [0, 360). A calm report resolves to 0.
func ExtractWindDirection(wind string) (int, bool) {
	if v, ok := firstInt(windDirRe, wind); ok {
		return v % 360, true
	}
	if isCalm(wind) {
		return 0, true
	}
	return 0, false
}

// ExtractTemperature returns the temperature in the requested scale.
// Decimal readings are truncated toward zero.
func ExtractTemperature(temp string, unit TemperatureUnit) (int, bool) {
	re := tempCRe
	if unit == Fahrenheit {
		re = tempFRe
	}
	return firstInt(re, temp)
}

func isCalm(wind string) bool {
	return strings.Contains(strings.ToLower(wind), calmToken)
}

func firstInt(re *regexp.Regexp, s string) (int, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return v, true
}

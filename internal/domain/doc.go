// Package domain models decoded METAR observation reports.
//
// # Data Source
//
// NOAA publishes one decoded report per station under
// https://tgftp.nws.noaa.gov/data/observations/metar/decoded/<STATION>.TXT.
// Each file describes the latest observation for a single station and is
// overwritten in place on every reporting cycle, so the same observation is
// usually fetched many times before it changes.
//
// # Report Layout
//
//	Wellington Airport, New Zealand (NZWN) 41-20S 174-48E 13M
//	Sep 30, 2014 - 07:00 AM EDT / 2014.09.30 1100 UTC
//	Wind: from the SSE (160 degrees) at 12 MPH (10 KT):0
//	Visibility: greater than 7 mile(s):0
//	Temperature: 55 F (13 C)
//	Dew Point: 46 F (8 C)
//	Relative Humidity: 71%
//	Pressure (altimeter): 30.03 in. Hg (1017 hPa)
//	ob: NZWN 301100Z 16010KT 9999 FEW020 13/08 Q1017
//	cycle: 11
//
// Line 0 is the locale: label, country, station code in parentheses,
// latitude and longitude as degrees-minutes with a hemisphere letter, and the
// elevation in metres. Stations without metadata carry the sentinel
// "Station name not available" instead.
//
// Line 1 is the when-line. Only the UTC token "YYYY.MM.DD HHMM UTC" is
// used. Some reports carry the clock value 2400, which is normalized to
// midnight of the following day.
//
// The remaining lines are "Key: value" sections. Any of them may be missing.
// A wind section reading "Calm:0" resolves speed and direction to zero.
//
// # Coordinates
//
// The degrees-minutes token is read as a decimal number by replacing the
// hyphen with a point, so "42-29S" becomes -42.29. Southern and western
// hemispheres are negative. Positions are WGS-84 longitude/latitude pairs.
//
// # Identity
//
// An observation is identified by (station, observed time). Stores keep the
// first copy of each pair and ignore later ones, which makes re-fetching an
// unchanged file harmless.
package domain

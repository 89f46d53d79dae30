// Command validate checks a directory of saved NOAA decoded reports
// (one STATION.TXT per file) end to end: every report parses, decoded
// values are physically consistent, storing is idempotent, and the
// freshness query returns the latest report per station.
//
// Usage:
//
//	go run ./cmd/validate -dir testdata/reports
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/metarvis-service/internal/domain"
	"github.com/couchcryptid/metarvis-service/internal/store"
	"github.com/jonboulle/clockwork"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// parsed is a report file together with its decoded record.
type parsed struct {
	file   string
	report domain.Report
}

func main() {
	dir := flag.String("dir", "", "directory containing decoded report files (*.TXT)")
	flag.Parse()

	if *dir == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*dir); code != 0 {
		os.Exit(code)
	}
}

func run(dir string) int {
	fmt.Println("=== METAR Report Validation ===")
	fmt.Println()

	files, err := filepath.Glob(filepath.Join(dir, "*.TXT"))
	if err != nil || len(files) == 0 {
		fmt.Fprintf(os.Stderr, "FATAL: no *.TXT reports in %s\n", dir)
		return 1
	}
	sort.Strings(files)

	parsePhase, reports := validateParsing(files)

	phases := []*phase{
		parsePhase,
		validateConsistency(reports),
		validateStoreIdempotence(reports),
		validateFreshness(reports),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Reports: %d files, %d decoded\n", len(files), len(reports))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			if i >= 20 {
				fmt.Printf("  ... and %d more\n", len(p.errors)-20)
				break
			}
			fmt.Printf("  %s\n", e)
		}
	}

	if !allPassed {
		return 1
	}
	return 0
}

func validateParsing(files []string) (*phase, []parsed) {
	p := &phase{name: "Report parsing"}
	var out []parsed

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			p.errorf("%s: %v", file, err)
			continue
		}
		base := filepath.Base(file)
		station := strings.TrimSuffix(base, filepath.Ext(base))

		rep, err := domain.ParseReport(station, string(data))
		if err != nil {
			p.errorf("%s: %v", base, err)
			continue
		}
		for _, v := range rep.Violations {
			p.errorf("%s: %v", base, v)
		}
		out = append(out, parsed{file: base, report: rep})
	}
	return p, out
}

func validateConsistency(reports []parsed) *phase {
	p := &phase{name: "Decoded value consistency"}

	for _, r := range reports {
		rec := r.report.Record
		if pos := rec.Position; pos != nil {
			if pos.Lon < -180 || pos.Lon > 180 || pos.Lat < -90 || pos.Lat > 90 {
				p.errorf("%s: position out of range (%g, %g)", r.file, pos.Lon, pos.Lat)
			}
			if pos.ElevationM < 0 {
				p.errorf("%s: negative elevation %d", r.file, pos.ElevationM)
			}
			if pos.Epoch != rec.ObservedAt.Unix() {
				p.errorf("%s: position epoch %d differs from observation time", r.file, pos.Epoch)
			}
		}
		if d := rec.WindDirectionDegrees; d != nil && (*d < 0 || *d >= 360) {
			p.errorf("%s: wind direction %d outside [0, 360)", r.file, *d)
		}
		if c, f := rec.TemperatureC, rec.TemperatureF; c != nil && f != nil {
			if math.Abs(float64(*c)*9/5+32-float64(*f)) > 2 {
				p.errorf("%s: %d C and %d F disagree", r.file, *c, *f)
			}
		}
		if mph, kt := rec.WindSpeedMph, rec.WindSpeedKnots; mph != nil && kt != nil {
			if math.Abs(float64(*kt)*1.15078-float64(*mph)) > 2 {
				p.errorf("%s: %d MPH and %d KT disagree", r.file, *mph, *kt)
			}
		}
	}
	return p
}

func validateStoreIdempotence(reports []parsed) *phase {
	p := &phase{name: "Store idempotence"}
	ctx := context.Background()

	dir, err := os.MkdirTemp("", "metarvis-validate-*")
	if err != nil {
		p.errorf("temp dir: %v", err)
		return p
	}
	defer os.RemoveAll(dir)

	st, err := store.OpenSQLite(filepath.Join(dir, "validate.db"))
	if err != nil {
		p.errorf("open store: %v", err)
		return p
	}
	defer st.Close()

	keys := map[string]bool{}
	for _, r := range reports {
		keys[r.report.Record.Key()] = true
		if _, err := st.UpsertIfAbsent(ctx, r.report.Record); err != nil {
			p.errorf("%s: first insert: %v", r.file, err)
		}
	}
	for _, r := range reports {
		inserted, err := st.UpsertIfAbsent(ctx, r.report.Record)
		if err != nil {
			p.errorf("%s: second insert: %v", r.file, err)
			continue
		}
		if inserted {
			p.errorf("%s: second insert of %s was not ignored", r.file, r.report.Record.Key())
		}
	}

	n, err := st.Count(ctx)
	if err != nil {
		p.errorf("count: %v", err)
		return p
	}
	if n != len(keys) {
		p.errorf("store holds %d rows, want %d distinct keys", n, len(keys))
	}
	return p
}

func validateFreshness(reports []parsed) *phase {
	p := &phase{name: "Freshness query"}
	if len(reports) == 0 {
		return p
	}
	ctx := context.Background()

	latest := map[string]time.Time{}
	var newest time.Time
	for _, r := range reports {
		rec := r.report.Record
		if rec.ObservedAt.After(latest[rec.Station]) {
			latest[rec.Station] = rec.ObservedAt
		}
		if rec.ObservedAt.After(newest) {
			newest = rec.ObservedAt
		}
	}

	dir, err := os.MkdirTemp("", "metarvis-validate-*")
	if err != nil {
		p.errorf("temp dir: %v", err)
		return p
	}
	defer os.RemoveAll(dir)

	// Freeze the clock at the newest report so fixtures never go stale.
	st, err := store.OpenSQLite(filepath.Join(dir, "validate.db"), store.WithClock(clockwork.NewFakeClockAt(newest)))
	if err != nil {
		p.errorf("open store: %v", err)
		return p
	}
	defer st.Close()

	for _, r := range reports {
		if _, err := st.UpsertIfAbsent(ctx, r.report.Record); err != nil {
			p.errorf("%s: insert: %v", r.file, err)
		}
	}

	got, err := st.MostRecentPerStation(ctx, domain.DefaultStaleness, nil)
	if err != nil {
		p.errorf("query: %v", err)
		return p
	}

	cutoff := newest.Add(-domain.DefaultStaleness)
	want := 0
	for _, t := range latest {
		if !t.Before(cutoff) {
			want++
		}
	}
	if len(got) != want {
		p.errorf("query returned %d stations, want %d", len(got), want)
	}
	for i, rec := range got {
		if !rec.ObservedAt.Equal(latest[rec.Station]) {
			p.errorf("%s: returned %s, latest is %s", rec.Station, rec.ObservedAt, latest[rec.Station])
		}
		if i > 0 && rec.ObservedAt.After(got[i-1].ObservedAt) {
			p.errorf("results not ordered newest first at %s", rec.Station)
		}
	}
	return p
}

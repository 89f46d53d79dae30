// Command decode parses saved NOAA decoded reports and prints one JSON
// record per file. With -sqlite the records are also stored, which makes
// it handy for seeding a local database from fixtures.
//
// Usage:
//
//	go run ./cmd/decode testdata/NZWN.TXT testdata/KORD.TXT
//	curl -s .../NZWN.TXT | go run ./cmd/decode -station NZWN -
//	go run ./cmd/decode -sqlite metarvis.db reports/*.TXT
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/metarvis-service/internal/domain"
	"github.com/couchcryptid/metarvis-service/internal/store"
)

// output is the printed form of a parsed report.
type output struct {
	File       string        `json:"file"`
	Record     domain.Record `json:"record"`
	Violations []string      `json:"violations,omitempty"`
	Inserted   *bool         `json:"inserted,omitempty"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	station := flag.String("station", "", "station code (default: file name without extension)")
	sqlitePath := flag.String("sqlite", "", "store parsed records in this SQLite database")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		flag.Usage()
		return fmt.Errorf("no report files given")
	}

	ctx := context.Background()

	var st *store.SQLite
	if *sqlitePath != "" {
		var err error
		st, err = store.OpenSQLite(*sqlitePath)
		if err != nil {
			return err
		}
		defer st.Close()
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	var failed int
	for _, file := range files {
		out, err := decodeFile(file, *station)
		if err != nil {
			log.Printf("%s: %v", file, err)
			failed++
			continue
		}

		if st != nil {
			inserted, err := st.UpsertIfAbsent(ctx, out.Record)
			if err != nil {
				return fmt.Errorf("store %s: %w", file, err)
			}
			out.Inserted = &inserted
		}

		if err := enc.Encode(out); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d reports could not be decoded", failed, len(files))
	}
	return nil
}

func decodeFile(file, station string) (output, error) {
	var (
		data []byte
		err  error
	)
	if file == "-" {
		if station == "" {
			return output{}, fmt.Errorf("-station is required when reading stdin")
		}
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return output{}, err
	}

	if station == "" {
		station = stationFromPath(file)
	}

	rep, err := domain.ParseReport(station, string(data))
	if err != nil {
		return output{}, err
	}

	out := output{File: file, Record: rep.Record}
	for _, v := range rep.Violations {
		out.Violations = append(out.Violations, v.Error())
	}
	return out, nil
}

// stationFromPath returns the file name without its extension, which is how
// NOAA names decoded reports (NZWN.TXT).
func stationFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

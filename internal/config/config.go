package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	Stations          []string
	NOAABaseURL       string
	FetchTimeout      time.Duration
	IngestInterval    time.Duration
	IngestConcurrency int
	Staleness         time.Duration

	StoreDriver string
	SQLitePath  string
	PostgresURL string

	// Kafka export of newly stored records.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	fetchTimeout, err := parsePositiveDuration("FETCH_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	ingestInterval, err := parsePositiveDuration("INGEST_INTERVAL", "15m")
	if err != nil {
		return nil, err
	}
	staleness, err := parsePositiveDuration("STALENESS", "24h")
	if err != nil {
		return nil, err
	}

	concurrency, err := parseConcurrency()
	if err != nil {
		return nil, err
	}

	brokers := os.Getenv("KAFKA_BROKERS")
	kafkaEnabled := brokers != ""
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		Stations:          parseStations(os.Getenv("STATIONS")),
		NOAABaseURL:       sharedcfg.EnvOrDefault("NOAA_BASE_URL", "https://tgftp.nws.noaa.gov/data/observations/metar/decoded"),
		FetchTimeout:      fetchTimeout,
		IngestInterval:    ingestInterval,
		IngestConcurrency: concurrency,
		Staleness:         staleness,

		StoreDriver: strings.ToLower(sharedcfg.EnvOrDefault("STORE_DRIVER", "sqlite")),
		SQLitePath:  sharedcfg.EnvOrDefault("SQLITE_PATH", "metarvis.db"),
		PostgresURL: os.Getenv("POSTGRES_URL"),

		KafkaEnabled: kafkaEnabled,
		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "metar-observations"),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	switch cfg.StoreDriver {
	case "sqlite":
		if cfg.SQLitePath == "" {
			return nil, errors.New("SQLITE_PATH is required when STORE_DRIVER is sqlite")
		}
	case "postgres":
		if cfg.PostgresURL == "" {
			return nil, errors.New("POSTGRES_URL is required when STORE_DRIVER is postgres")
		}
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when kafka export is enabled")
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseConcurrency() (int, error) {
	s := sharedcfg.EnvOrDefault("INGEST_CONCURRENCY", "8")
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 256 {
		return 0, fmt.Errorf("invalid INGEST_CONCURRENCY %q: must be 1-256", s)
	}
	return n, nil
}

// parseStations splits a comma-separated list, upper-casing and dropping
// blanks and repeats.
func parseStations(s string) []string {
	var out []string
	seen := map[string]bool{}
	for _, part := range strings.Split(s, ",") {
		code := strings.ToUpper(strings.TrimSpace(part))
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	return out
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	httpadapter "github.com/couchcryptid/metarvis-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/metarvis-service/internal/adapter/kafka"
	"github.com/couchcryptid/metarvis-service/internal/adapter/noaa"
	"github.com/couchcryptid/metarvis-service/internal/config"
	"github.com/couchcryptid/metarvis-service/internal/observability"
	"github.com/couchcryptid/metarvis-service/internal/pipeline"
	"github.com/couchcryptid/metarvis-service/internal/query"
	"github.com/couchcryptid/metarvis-service/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, store.Config{
		Driver:      cfg.StoreDriver,
		SQLitePath:  cfg.SQLitePath,
		PostgresURL: cfg.PostgresURL,
	})
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	logger.Info("store opened", "driver", cfg.StoreDriver)

	fetcher := noaa.NewClient(cfg.NOAABaseURL, cfg.FetchTimeout, metrics, logger)

	opts := []pipeline.Option{
		pipeline.WithConcurrency(cfg.IngestConcurrency),
		pipeline.WithFetchTimeout(cfg.FetchTimeout),
	}

	// Kafka export is feature-flagged via KAFKA_ENABLED / KAFKA_BROKERS.
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		opts = append(opts, pipeline.WithPublisher(writer))
		logger.Info("kafka export enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka export disabled")
	}

	p := pipeline.New(fetcher, st, logger, metrics, opts...)
	engine := query.NewEngine(st, cfg.Staleness)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, engine, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start ingestion.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Run(ctx, cfg.Stations, cfg.IngestInterval); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("ingestion did not stop before shutdown timeout")
	}

	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if err := st.Close(); err != nil {
		logger.Error("store close error", "error", err)
	}

	logger.Info("shutdown complete")
}

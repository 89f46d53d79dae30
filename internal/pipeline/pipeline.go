package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/metarvis-service/internal/domain"
	"github.com/couchcryptid/metarvis-service/internal/observability"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// Fetcher retrieves the raw decoded report for a station.
type Fetcher interface {
	Fetch(ctx context.Context, station string) (string, error)
}

// Store persists records, ignoring keys it already holds.
type Store interface {
	UpsertIfAbsent(ctx context.Context, rec domain.Record) (bool, error)
	Ping(ctx context.Context) error
}

// Publisher exports newly stored records downstream.
type Publisher interface {
	Publish(ctx context.Context, records []domain.Record) error
}

// RunSummary tallies the outcome of one ingestion run.
type RunSummary struct {
	Requested   int
	Fetched     int
	Unavailable int
	FetchErrors int
	Discarded   int
	Stored      int
	Duplicates  int
	StoreErrors int
	Duration    time.Duration
}

// Pipeline fetches, parses and stores reports for a set of stations.
type Pipeline struct {
	fetcher      Fetcher
	store        Store
	publisher    Publisher
	logger       *slog.Logger
	metrics      *observability.Metrics
	clock        clockwork.Clock
	concurrency  int
	fetchTimeout time.Duration
	ready        atomic.Bool
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithPublisher exports every newly stored record after each run.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithClock sets the clock used for scheduling and run timing.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithConcurrency bounds the number of stations fetched at once.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithFetchTimeout bounds each station fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.fetchTimeout = d }
}

// New creates a Pipeline with the given stages and observability.
func New(f Fetcher, s Store, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Pipeline {
	p := &Pipeline{
		fetcher:     f,
		store:       s,
		logger:      logger,
		metrics:     metrics,
		clock:       clockwork.NewRealClock(),
		concurrency: 8,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckReadiness returns nil once the store is reachable and the first run
// has completed.
func (p *Pipeline) CheckReadiness(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		return err
	}
	if !p.ready.Load() {
		return errors.New("no ingestion run has completed yet")
	}
	return nil
}

// Run ingests stations immediately and then once per interval until the
// context is cancelled.
func (p *Pipeline) Run(ctx context.Context, stations []string, interval time.Duration) error {
	stations = domain.NormalizeStations(stations)
	p.logger.Info("pipeline started", "stations", len(stations), "interval", interval, "concurrency", p.concurrency)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	if len(stations) == 0 {
		p.logger.Warn("no stations configured, ingestion idle")
		p.ready.Store(true)
		<-ctx.Done()
		return nil
	}

	ticker := p.clock.NewTicker(interval)
	defer ticker.Stop()

	for ctx.Err() == nil {
		p.logSummary(p.RunOnce(ctx, stations))

		select {
		case <-ctx.Done():
		case <-ticker.Chan():
		}
	}

	p.logger.Info("pipeline stopping", "reason", ctx.Err())
	return nil
}

func (p *Pipeline) logSummary(s RunSummary) {
	p.logger.Info("ingestion run complete",
		"requested", s.Requested,
		"fetched", s.Fetched,
		"unavailable", s.Unavailable,
		"fetch_errors", s.FetchErrors,
		"discarded", s.Discarded,
		"stored", s.Stored,
		"duplicates", s.Duplicates,
		"store_errors", s.StoreErrors,
		"duration", s.Duration,
	)
}

type stage int

const (
	stageFetch stage = iota
	stageParse
	stageDone
)

type result struct {
	station string
	stage   stage
	err     error
	record  domain.Record
}

// RunOnce fetches and parses stations on a bounded pool and stores the
// results through a single writer. Unavailable stations and unparsable
// reports are skipped. It never returns early on a per-station failure.
func (p *Pipeline) RunOnce(ctx context.Context, stations []string) RunSummary {
	stations = domain.NormalizeStations(stations)
	start := p.clock.Now()
	summary := RunSummary{Requested: len(stations)}
	p.metrics.RunStations.Observe(float64(len(stations)))

	results := make(chan result)
	written := make(chan []domain.Record, 1)
	go func() {
		written <- p.write(ctx, results, &summary)
	}()

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for _, station := range stations {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results <- p.process(ctx, station)
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	fresh := <-written

	p.publish(ctx, fresh)

	summary.Duration = p.clock.Since(start)
	p.metrics.RunDuration.Observe(summary.Duration.Seconds())
	p.ready.Store(true)
	return summary
}

func (p *Pipeline) process(ctx context.Context, station string) result {
	fetchCtx := ctx
	if p.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, p.fetchTimeout)
		defer cancel()
	}

	raw, err := p.fetcher.Fetch(fetchCtx, station)
	if err != nil {
		if _, ok := domain.IsUnavailable(err); !ok && errors.Is(err, context.DeadlineExceeded) {
			err = &domain.UnavailableError{Station: station, Reason: domain.ReasonTimeout, Err: err}
		}
		return result{station: station, stage: stageFetch, err: err}
	}

	rep, err := domain.ParseReport(station, raw)
	if err != nil {
		return result{station: station, stage: stageParse, err: err}
	}
	for _, v := range rep.Violations {
		field := "unknown"
		var fv *domain.FormatViolationError
		if errors.As(v, &fv) {
			field = fv.Field
		}
		p.metrics.FormatViolations.WithLabelValues(field).Inc()
		p.logger.Warn("malformed report field", "station", station, "field", field, "error", v)
	}
	return result{station: station, stage: stageDone, record: rep.Record}
}

// write is the only caller of UpsertIfAbsent during a run. It returns the
// records that were newly inserted.
func (p *Pipeline) write(ctx context.Context, results <-chan result, s *RunSummary) []domain.Record {
	var fresh []domain.Record
	for res := range results {
		switch res.stage {
		case stageFetch:
			if reason, ok := domain.IsUnavailable(res.err); ok {
				s.Unavailable++
				p.metrics.StationsSkipped.WithLabelValues(string(reason)).Inc()
				p.logger.Warn("station unavailable, skipping", "station", res.station, "reason", reason)
				continue
			}
			s.FetchErrors++
			p.metrics.StationsSkipped.WithLabelValues("error").Inc()
			p.logger.Error("fetch failed, skipping", "station", res.station, "error", res.err)

		case stageParse:
			s.Fetched++
			s.Discarded++
			p.metrics.ReportsFetched.Inc()
			p.metrics.ReportsDiscarded.WithLabelValues(discardReason(res.err)).Inc()
			p.logger.Warn("report discarded", "station", res.station, "error", res.err)

		case stageDone:
			s.Fetched++
			p.metrics.ReportsFetched.Inc()

			inserted, err := p.store.UpsertIfAbsent(ctx, res.record)
			switch {
			case err != nil:
				s.StoreErrors++
				p.metrics.StoreErrors.Inc()
				p.logger.Error("store insert failed", "station", res.station, "key", res.record.Key(), "error", err)
			case inserted:
				s.Stored++
				p.metrics.RecordsStored.Inc()
				fresh = append(fresh, res.record)
			default:
				s.Duplicates++
				p.metrics.RecordsDuplicate.Inc()
				p.logger.Debug("observation already stored", "key", res.record.Key())
			}
		}
	}
	return fresh
}

func (p *Pipeline) publish(ctx context.Context, records []domain.Record) {
	if p.publisher == nil || len(records) == 0 {
		return
	}
	if err := p.publisher.Publish(ctx, records); err != nil {
		p.metrics.PublishErrors.Inc()
		p.logger.Error("publish failed", "records", len(records), "error", err)
	}
}

func discardReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrNoTimestamp):
		return "no-timestamp"
	case errors.Is(err, domain.ErrEmptyReport):
		return "empty"
	case errors.Is(err, domain.ErrInvalidStation):
		return "invalid-station"
	default:
		return "other"
	}
}

// Package noaa fetches decoded METAR reports from the NOAA observation
// directory, one plain-text file per station.
package noaa

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/metarvis-service/internal/domain"
	"github.com/couchcryptid/metarvis-service/internal/observability"
)

// DefaultBaseURL is the public decoded-report directory.
const DefaultBaseURL = "https://tgftp.nws.noaa.gov/data/observations/metar/decoded"

// maxReportBytes bounds a single report body. Real reports are well under
// 2 KiB.
const maxReportBytes = 64 << 10

// Client implements pipeline.Fetcher over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a client for baseURL. Each request is bounded by
// timeout.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: metrics,
		logger:  logger,
	}
}

// Fetch returns the raw decoded report for station. Blocked, missing and
// slow stations yield a *domain.UnavailableError.
func (c *Client) Fetch(ctx context.Context, station string) (string, error) {
	start := time.Now()
	body, err := c.fetch(ctx, station)
	c.metrics.FetchDuration.Observe(time.Since(start).Seconds())
	c.metrics.FetchRequests.WithLabelValues(outcome(err)).Inc()
	return body, err
}

func (c *Client) fetch(ctx context.Context, station string) (string, error) {
	station = domain.NormalizeStation(station)
	u := fmt.Sprintf("%s/%s.TXT", c.baseURL, station)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", &domain.UnavailableError{Station: station, Reason: domain.ReasonTimeout, Err: err}
		}
		return "", fmt.Errorf("fetch %s: %w", station, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("noaa response", "station", station, "status", resp.StatusCode)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden:
		return "", &domain.UnavailableError{Station: station, Reason: domain.ReasonForbidden}
	case http.StatusNotFound:
		return "", &domain.UnavailableError{Station: station, Reason: domain.ReasonNotFound}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("noaa error for %s: status %d: %s", station, resp.StatusCode, body)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReportBytes))
	if err != nil {
		if isTimeout(err) {
			return "", &domain.UnavailableError{Station: station, Reason: domain.ReasonTimeout, Err: err}
		}
		return "", fmt.Errorf("read %s: %w", station, err)
	}
	return string(body), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	if reason, ok := domain.IsUnavailable(err); ok {
		return string(reason)
	}
	return "error"
}

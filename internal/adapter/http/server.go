package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/metarvis-service/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// ObservationQuerier answers freshness queries. It is implemented by
// query.Engine.
type ObservationQuerier interface {
	LatestObservations(ctx context.Context, stations []string) ([]domain.Observation, error)
	Region(ctx context.Context, stations []string) (orb.Bound, bool, error)
	FeatureCollection(ctx context.Context, stations []string) (*geojson.FeatureCollection, error)
}

// Server exposes health, readiness, metrics and observation endpoints.
type Server struct {
	httpServer *http.Server
	querier    ObservationQuerier
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics,
// /observations, /observations.geojson and /region routes.
func NewServer(addr string, ready ReadinessChecker, q ObservationQuerier, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		querier: q,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /observations", s.handleObservations)
	mux.HandleFunc("GET /observations.geojson", s.handleGeoJSON)
	mux.HandleFunc("GET /region", s.handleRegion)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func (s *Server) handleObservations(w http.ResponseWriter, r *http.Request) {
	obs, err := s.querier.LatestObservations(r.Context(), stationFilter(r))
	if err != nil {
		s.queryFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, obs)
}

func (s *Server) handleGeoJSON(w http.ResponseWriter, r *http.Request) {
	fc, err := s.querier.FeatureCollection(r.Context(), stationFilter(r))
	if err != nil {
		s.queryFailed(w, r, err)
		return
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		s.queryFailed(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// regionResponse is the JSON shape of /region. Bounds are omitted when
// Empty is true.
type regionResponse struct {
	Empty  bool     `json:"empty"`
	MinLon *float64 `json:"min_lon,omitempty"`
	MinLat *float64 `json:"min_lat,omitempty"`
	MaxLon *float64 `json:"max_lon,omitempty"`
	MaxLat *float64 `json:"max_lat,omitempty"`
}

func (s *Server) handleRegion(w http.ResponseWriter, r *http.Request) {
	bound, ok, err := s.querier.Region(r.Context(), stationFilter(r))
	if err != nil {
		s.queryFailed(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, regionResponse{Empty: true})
		return
	}
	writeJSON(w, http.StatusOK, regionResponse{
		MinLon: &bound.Min[0],
		MinLat: &bound.Min[1],
		MaxLon: &bound.Max[0],
		MaxLat: &bound.Max[1],
	})
}

func (s *Server) queryFailed(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("query failed", "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
}

// stationFilter reads ?station=A,B (repeatable). Nil means all stations.
func stationFilter(r *http.Request) []string {
	var codes []string
	for _, v := range r.URL.Query()["station"] {
		codes = append(codes, strings.Split(v, ",")...)
	}
	return domain.NormalizeStations(codes)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}

package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/region-aggregator/internal/domain"
)

// RegionLocator finds the regions containing a coordinate.
type RegionLocator interface {
	Locate(lat, lng float64) ([]domain.Region, error)
}

// LatestStore returns the most recent aggregation result of a region.
type LatestStore interface {
	Latest(ctx context.Context, regionID string) (domain.AggregationResult, bool, error)
}

// Routes carries the dependencies of the region endpoints. Nil members
// disable their route with 503.
type Routes struct {
	Ready   sharedobs.ReadinessChecker
	Locator RegionLocator
	Latest  LatestStore
	// Stats describes the region load performed at startup.
	Stats domain.ProcessingStats
}

// Server exposes health, readiness, metrics and region lookup endpoints.
type Server struct {
	httpServer *http.Server
	routes     Routes
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /v1/regions routes.
func NewServer(addr string, routes Routes, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		routes: routes,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	if routes.Ready != nil {
		mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(routes.Ready))
	} else {
		mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusServiceUnavailable, "not ready", errors.New("no readiness checker"))
		})
	}
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/regions/locate", s.handleLocate)
	mux.HandleFunc("GET /v1/regions/stats", s.handleStats)
	mux.HandleFunc("GET /v1/regions/{id}/latest", s.handleLatest)

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

type locatedRegion struct {
	ID    string   `json:"id"`
	Name  string   `json:"name,omitempty"`
	Value *float64 `json:"value,omitempty"`
}

func (s *Server) handleLocate(w http.ResponseWriter, r *http.Request) {
	if s.routes.Locator == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", errors.New("region locator not configured"))
		return
	}
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if errLat != nil || errLng != nil || !domain.ValidLatLng(lat, lng) {
		writeError(w, http.StatusBadRequest, "bad request", errors.New("lat and lng must be valid WGS84 degrees"))
		return
	}

	found, err := s.routes.Locator.Locate(lat, lng)
	if err != nil {
		s.logger.Warn("region locate failed", "lat", lat, "lng", lng, "error", err)
		writeError(w, http.StatusInternalServerError, "error", err)
		return
	}
	out := make([]locatedRegion, len(found))
	for i, reg := range found {
		out[i] = locatedRegion{ID: reg.ID, Name: reg.Name, Value: reg.Value}
	}
	writeJSON(w, http.StatusOK, map[string]any{"lat": lat, "lng": lng, "regions": out})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.routes.Stats)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if s.routes.Latest == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", errors.New("latest-result store not configured"))
		return
	}
	id := r.PathValue("id")
	res, ok, err := s.routes.Latest.Latest(r.Context(), id)
	if err != nil {
		s.logger.Warn("latest result lookup failed", "region_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "error", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not found", errors.New("no result for region "+id))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeError(w http.ResponseWriter, status int, label string, err error) {
	writeJSON(w, status, map[string]string{"status": label, "error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	sharedobs.WriteJSON(w, status, v)
}

package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/valuemap-grid/internal/domain"
	"github.com/couchcryptid/valuemap-grid/internal/observability"
	"github.com/couchcryptid/valuemap-grid/internal/snapshot"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SnapshotQuerier serves filtered views of the resident snapshots.
type SnapshotQuerier interface {
	Rows(ctx context.Context, grid domain.GridSize, filter domain.CellFilter) (snapshot.CellSlice, error)
	Deltas(ctx context.Context, grid domain.GridSize, seg domain.Segment) (snapshot.DeltaSlice, error)
	Outcodes(ctx context.Context, grid domain.GridSize, filter domain.CellFilter, limit int) (snapshot.OutcodeRanking, error)
	CheckReadiness(ctx context.Context) error
}

// Server exposes the grid API alongside health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	snapshots  SnapshotQuerier
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewServer creates an HTTP server with /cells, /deltas, /outcodes, /healthz,
// /readyz, and /metrics routes.
func NewServer(addr string, snapshots SnapshotQuerier, logger *slog.Logger, metrics *observability.Metrics) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     observability.AccessMiddleware(logger)(mux),
			ReadTimeout: 10 * time.Second,
			// A cold request may wait on a full snapshot download.
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		snapshots: snapshots,
		logger:    logger,
		metrics:   metrics,
	}

	mux.Handle("GET /cells", s.instrument("cells", s.handleCells))
	mux.Handle("GET /deltas", s.instrument("deltas", s.handleDeltas))
	mux.Handle("GET /outcodes", s.instrument("outcodes", s.handleOutcodes))

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(snapshots))
	mux.Handle("GET /metrics", promhttp.Handler())

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

func (s *Server) instrument(route string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &observability.StatusWriter{ResponseWriter: w, Status: http.StatusOK}
		start := time.Now()
		h(sw, r)
		s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(sw.Status)).Inc()
		s.metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Package health exposes liveness, readiness, and metrics endpoints on
// an HTTP server independent of the TCP control protocol. This is
// additive operational surface a production deployment of this daemon
// would carry even though the original C program had none.
package health

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/e7canasta/kndd/internal/catalog"
)

// Status reports the subsystems readiness depends on.
type Status struct {
	SensorHealthy func() bool
}

// Counters tracks the values the metrics endpoint reports. All fields
// are updated with atomic operations from arbitrary goroutines.
type Counters struct {
	FramesProcessed  atomic.Uint64
	FramesDropped    atomic.Uint64
	FramesBusy       atomic.Uint64
	ClientsConnected atomic.Int64
	WatchdogOverruns atomic.Uint64
}

// Server is the operational HTTP surface.
type Server struct {
	httpServer *http.Server
	counters   *Counters
	catalog    *catalog.Catalog
	status     Status
}

// New builds a Server listening on addr. It does not start listening
// until Start is called.
func New(addr string, c *catalog.Catalog, counters *Counters, status Status) *Server {
	s := &Server{counters: counters, catalog: c, status: status}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/readiness", s.handleReadiness)
	mux.HandleFunc("/metrics", s.handleMetrics)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Start begins serving in a new goroutine. errCh receives the result
// of ListenAndServe once the server stops (nil on a clean Shutdown).
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	return errCh
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.status.SensorHealthy != nil && !s.status.SensorHealthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, "sensor not ready")
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ready")
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(w, "# TYPE kndd_frames_processed_total counter\nkndd_frames_processed_total %d\n", s.counters.FramesProcessed.Load())
	fmt.Fprintf(w, "# TYPE kndd_frames_dropped_total counter\nkndd_frames_dropped_total %d\n", s.counters.FramesDropped.Load())
	fmt.Fprintf(w, "# TYPE kndd_frames_busy_total counter\nkndd_frames_busy_total %d\n", s.counters.FramesBusy.Load())
	fmt.Fprintf(w, "# TYPE kndd_clients_connected gauge\nkndd_clients_connected %d\n", s.counters.ClientsConnected.Load())
	fmt.Fprintf(w, "# TYPE kndd_watchdog_overruns_total counter\nkndd_watchdog_overruns_total %d\n", s.counters.WatchdogOverruns.Load())
	fmt.Fprintf(w, "# TYPE kndd_zones gauge\nkndd_zones %d\n", s.catalog.Count())
	fmt.Fprintf(w, "# TYPE kndd_zones_occupied gauge\nkndd_zones_occupied %d\n", s.catalog.OccupiedCount())
	fmt.Fprintf(w, "# TYPE kndd_catalog_version gauge\nkndd_catalog_version %d\n", s.catalog.Version())
	fmt.Fprintf(w, "# TYPE kndd_scrape_timestamp gauge\nkndd_scrape_timestamp %d\n", time.Now().Unix())
}

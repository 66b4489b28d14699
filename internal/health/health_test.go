package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/e7canasta/kndd/internal/catalog"
	"github.com/e7canasta/kndd/internal/lut"
)

func newTestServer(t *testing.T, status Status) (*Server, *catalog.Catalog, *Counters) {
	t.Helper()
	c := catalog.New(lut.New(), catalog.DefaultStride, catalog.DefaultStride)
	counters := &Counters{}
	s := New("127.0.0.1:0", c, counters, status)
	return s, c, counters
}

func TestHandleHealthAlwaysOK(t *testing.T) {
	s, _, _ := newTestServer(t, Status{})
	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleReadinessReflectsSensorStatus(t *testing.T) {
	healthy := false
	s, _, _ := newTestServer(t, Status{SensorHealthy: func() bool { return healthy }})

	rec := httptest.NewRecorder()
	s.handleReadiness(rec, httptest.NewRequest(http.MethodGet, "/readiness", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 when sensor unhealthy", rec.Code)
	}

	healthy = true
	rec = httptest.NewRecorder()
	s.handleReadiness(rec, httptest.NewRequest(http.MethodGet, "/readiness", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 when sensor healthy", rec.Code)
	}
}

func TestHandleReadinessDefaultsHealthyWithNoCallback(t *testing.T) {
	s, _, _ := newTestServer(t, Status{})
	rec := httptest.NewRecorder()
	s.handleReadiness(rec, httptest.NewRequest(http.MethodGet, "/readiness", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 when no SensorHealthy callback is set", rec.Code)
	}
}

func TestHandleMetricsReportsCounters(t *testing.T) {
	s, c, counters := newTestServer(t, Status{})
	if _, err := c.Add("Zone1", catalog.WorldBox{XMin: 0, XMax: 100, YMin: -50, YMax: 50, ZMin: 500, ZMax: 4000}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	counters.FramesProcessed.Add(42)
	counters.FramesDropped.Add(3)
	counters.ClientsConnected.Add(2)

	rec := httptest.NewRecorder()
	s.handleMetrics(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "kndd_frames_processed_total 42") {
		t.Errorf("metrics body missing frames_processed: %s", body)
	}
	if !strings.Contains(body, "kndd_frames_dropped_total 3") {
		t.Errorf("metrics body missing frames_dropped: %s", body)
	}
	if !strings.Contains(body, "kndd_clients_connected 2") {
		t.Errorf("metrics body missing clients_connected: %s", body)
	}
	if !strings.Contains(body, "kndd_zones 1") {
		t.Errorf("metrics body missing zones count: %s", body)
	}
}

func TestStartAndShutdown(t *testing.T) {
	s, _, _ := newTestServer(t, Status{})
	errCh := s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Start error channel reported: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Start did not report completion after Shutdown")
	}
}

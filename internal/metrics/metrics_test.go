package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorsCount(t *testing.T) {
	c := New()
	c.ObserveQuery("proposals", "memory")
	c.ObserveQuery("proposals", "memory")
	c.ObserveQuery("problem_statements", "server")
	c.ObserveDecision("Approved", "ok")
	c.ObserveRequest(http.MethodGet, http.StatusOK, 15*time.Millisecond)

	if got := testutil.ToFloat64(c.ScopedQueries().WithLabelValues("proposals", "memory")); got != 2 {
		t.Fatalf("expected 2 memory-path queries, got %v", got)
	}
	if got := testutil.ToFloat64(c.Decisions().WithLabelValues("Approved", "ok")); got != 1 {
		t.Fatalf("expected 1 approved decision, got %v", got)
	}
}

func TestNilCollectorsAreSafe(t *testing.T) {
	var c *Collectors
	c.ObserveQuery("proposals", "memory")
	c.ObserveDecision("Rejected", "conflict")
	c.ObserveRequest(http.MethodPost, http.StatusCreated, time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 from nil collectors, got %d", rec.Code)
	}
}

func TestHandlerExposesPortalMetrics(t *testing.T) {
	c := New()
	c.ObserveRequest(http.MethodGet, http.StatusOK, time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `portal_http_requests_total{method="GET",status="200"} 1`) {
		t.Fatalf("expected request counter in exposition, got:\n%s", rec.Body.String())
	}
}

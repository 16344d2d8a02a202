package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder(t *testing.T) {
	r := New()
	r.Decision("OPCO_DELAI_DEPASSE", "engine", "admin", 5*time.Millisecond)
	r.Decision("FALLBACK_GENERAL", "holding", "", time.Millisecond)
	r.Decision("FALLBACK_GENERAL", "generation", "", time.Millisecond)
	r.Failure("store")

	if got := testutil.ToFloat64(r.decisions.WithLabelValues("FALLBACK_GENERAL")); got != 2 {
		t.Errorf("fallback decisions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.escalations.WithLabelValues("admin")); got != 1 {
		t.Errorf("admin escalations = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(r.escalations); got != 1 {
		t.Errorf("escalation series = %d, want 1", got)
	}
	if got := testutil.ToFloat64(r.failures.WithLabelValues("store")); got != 1 {
		t.Errorf("store failures = %v, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	r := New()
	r.Decision("AGRESSIVITE", "engine", "", time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `triage_decisions_total{label="AGRESSIVITE"} 1`) {
		t.Errorf("metrics output missing decision counter:\n%s", rec.Body.String())
	}
}

package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewCollector_RegistersAndServes(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector failed: %v", err)
	}

	c.RecordOutcome("committed")
	c.RecordOutcome("outside_area")
	c.RecordScanStart("return")
	c.RecordScanEnd()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`return_confirmation_attempts_total{outcome="committed"} 1`,
		`return_confirmation_attempts_total{outcome="outside_area"} 1`,
		`scan_sessions_total{channel="return"} 1`,
		"scan_sessions_active 0",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNewCollector_DoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewCollector(reg); err != nil {
		t.Fatalf("first NewCollector failed: %v", err)
	}
	if _, err := NewCollector(reg); err != nil {
		t.Fatalf("second NewCollector on same registry failed: %v", err)
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	c.RecordOutcome("committed")
	c.RecordScanStart("login")
	c.RecordScanEnd()
}

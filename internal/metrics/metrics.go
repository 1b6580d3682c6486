// Package metrics bundles Prometheus instrumentation for the verification
// pipeline and exposes a ready-to-mount /metrics handler.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the service's Prometheus metrics.
type Collector struct {
	gatherer prometheus.Gatherer

	ConfirmationAttempts *prometheus.CounterVec
	ScanSessions         *prometheus.CounterVec
	FaceMatchDuration    prometheus.Histogram
	ActiveScans          prometheus.Gauge
}

// NewCollector registers the pipeline metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "return_confirmation_attempts_total",
		Help: "Return confirmation attempts, labeled by terminal outcome.",
	}, []string{"outcome"})
	attempts, err := registerCounterVec(reg, attempts, "return_confirmation_attempts_total")
	if err != nil {
		return nil, err
	}

	sessions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scan_sessions_total",
		Help: "Scan sessions started, labeled by channel.",
	}, []string{"channel"})
	sessions, err = registerCounterVec(reg, sessions, "scan_sessions_total")
	if err != nil {
		return nil, err
	}

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "face_match_duration_seconds",
		Help:    "Latency of a single live-frame match against the analysis service.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})
	duration, err = registerHistogram(reg, duration, "face_match_duration_seconds")
	if err != nil {
		return nil, err
	}

	active, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scan_sessions_active",
		Help: "Number of currently active scan sessions.",
	}), "scan_sessions_active")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:             gatherer,
		ConfirmationAttempts: attempts,
		ScanSessions:         sessions,
		FaceMatchDuration:    duration,
		ActiveScans:          active,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RecordOutcome increments the attempt counter for a terminal outcome.
func (c *Collector) RecordOutcome(outcome string) {
	if c == nil || c.ConfirmationAttempts == nil {
		return
	}
	c.ConfirmationAttempts.WithLabelValues(outcome).Inc()
}

// RecordScanStart counts a new scan session on a channel.
func (c *Collector) RecordScanStart(channel string) {
	if c == nil {
		return
	}
	if c.ScanSessions != nil {
		c.ScanSessions.WithLabelValues(channel).Inc()
	}
	if c.ActiveScans != nil {
		c.ActiveScans.Inc()
	}
}

// ObserveMatchDuration records the latency of one live-frame match.
func (c *Collector) ObserveMatchDuration(d time.Duration) {
	if c == nil || c.FaceMatchDuration == nil {
		return
	}
	c.FaceMatchDuration.Observe(d.Seconds())
}

// RecordScanEnd marks a scan session as finished.
func (c *Collector) RecordScanEnd() {
	if c == nil || c.ActiveScans == nil {
		return
	}
	c.ActiveScans.Dec()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

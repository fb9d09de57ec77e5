package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles Prometheus metrics for the surveillance core and
// provides helpers to wire them into the HTTP surface, the track store,
// and the distribution hub.
type Collector struct {
	gatherer prometheus.Gatherer

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec

	TrackedAircraft      prometheus.Gauge
	TrackedRestrictions  prometheus.Gauge
	PendingNotifications prometheus.Gauge
	DataSources          prometheus.Gauge

	HubSessions       prometheus.Gauge
	BroadcastsTotal   *prometheus.CounterVec
	DetectionPasses   *prometheus.CounterVec
	DetectionDuration *prometheus.HistogramVec
	DetectionFindings *prometheus.CounterVec
}

// NewCollector registers surveillance metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "surveillance_http_requests_total",
		Help: "Total number of handled HTTP requests, labeled by route, method, and status code.",
	}, []string{"route", "method", "code"})
	requests, err := registerCounterVec(reg, requests, "surveillance_http_requests_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "surveillance_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"route", "method"})
	durations, err = registerHistogramVec(reg, durations, "surveillance_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	aircraft, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "surveillance_tracked_aircraft",
		Help: "Current number of aircraft in the track store.",
	}), "surveillance_tracked_aircraft")
	if err != nil {
		return nil, err
	}
	restrictions, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "surveillance_restrictions",
		Help: "Current number of airspace restrictions in the track store.",
	}), "surveillance_restrictions")
	if err != nil {
		return nil, err
	}
	pending, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "surveillance_pending_notifications",
		Help: "Current number of pending notifications.",
	}), "surveillance_pending_notifications")
	if err != nil {
		return nil, err
	}
	sources, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "surveillance_data_sources",
		Help: "Current number of configured data sources.",
	}), "surveillance_data_sources")
	if err != nil {
		return nil, err
	}
	sessions, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "surveillance_hub_sessions",
		Help: "Current number of sessions registered with the distribution hub.",
	}), "surveillance_hub_sessions")
	if err != nil {
		return nil, err
	}

	broadcasts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "surveillance_broadcasts_total",
		Help: "Total envelopes broadcast to hub sessions, labeled by envelope type.",
	}, []string{"type"})
	broadcasts, err = registerCounterVec(reg, broadcasts, "surveillance_broadcasts_total")
	if err != nil {
		return nil, err
	}

	passes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "surveillance_detection_passes_total",
		Help: "Total detection passes run, labeled by detection kind and outcome.",
	}, []string{"kind", "outcome"})
	passes, err = registerCounterVec(reg, passes, "surveillance_detection_passes_total")
	if err != nil {
		return nil, err
	}

	passDurations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "surveillance_detection_duration_seconds",
		Help:    "Detection pass latency in seconds, labeled by kind.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"kind"})
	passDurations, err = registerHistogramVec(reg, passDurations, "surveillance_detection_duration_seconds")
	if err != nil {
		return nil, err
	}

	findings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "surveillance_detection_findings_total",
		Help: "Total findings emitted by detection passes, labeled by kind.",
	}, []string{"kind"})
	findings, err = registerCounterVec(reg, findings, "surveillance_detection_findings_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:             gatherer,
		HTTPRequests:         requests,
		HTTPDurations:        durations,
		TrackedAircraft:      aircraft,
		TrackedRestrictions:  restrictions,
		PendingNotifications: pending,
		DataSources:          sources,
		HubSessions:          sessions,
		BroadcastsTotal:      broadcasts,
		DetectionPasses:      passes,
		DetectionDuration:    passDurations,
		DetectionFindings:    findings,
	}, nil
}

// Middleware records request counts and durations for a named route.
func (c *Collector) Middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		if c == nil {
			return
		}
		if c.HTTPRequests != nil {
			c.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.code)).Inc()
		}
		if c.HTTPDurations != nil {
			c.HTTPDurations.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		}
	})
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetTrackCounts satisfies the kb.CountsRecorder interface so the track
// store can drive gauge values directly from its mutators.
func (c *Collector) SetTrackCounts(aircraft, restrictions, pendingNotifications, sources int) {
	if c == nil {
		return
	}
	if c.TrackedAircraft != nil {
		c.TrackedAircraft.Set(float64(aircraft))
	}
	if c.TrackedRestrictions != nil {
		c.TrackedRestrictions.Set(float64(restrictions))
	}
	if c.PendingNotifications != nil {
		c.PendingNotifications.Set(float64(pendingNotifications))
	}
	if c.DataSources != nil {
		c.DataSources.Set(float64(sources))
	}
}

// SetSessionCount satisfies the hub's metrics recorder.
func (c *Collector) SetSessionCount(n int) {
	if c == nil || c.HubSessions == nil {
		return
	}
	c.HubSessions.Set(float64(n))
}

// IncBroadcast counts one broadcast envelope by type.
func (c *Collector) IncBroadcast(envelopeType string) {
	if c == nil || c.BroadcastsTotal == nil {
		return
	}
	c.BroadcastsTotal.WithLabelValues(envelopeType).Inc()
}

// ObserveDetection records one detection pass.
func (c *Collector) ObserveDetection(kind, outcome string, findings int, elapsed time.Duration) {
	if c == nil {
		return
	}
	if c.DetectionPasses != nil {
		c.DetectionPasses.WithLabelValues(kind, outcome).Inc()
	}
	if c.DetectionDuration != nil {
		c.DetectionDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	}
	if c.DetectionFindings != nil && findings > 0 {
		c.DetectionFindings.WithLabelValues(kind).Add(float64(findings))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
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

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
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

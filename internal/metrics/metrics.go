// Package metrics defines the prometheus collectors for the link lifecycle.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shortlinks"

// Outcome label values
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeExpired  = "expired"
	OutcomeInvalid  = "invalid"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

// Geo lookup result label values
const (
	GeoHit   = "hit"
	GeoMiss  = "miss"
	GeoError = "error"
)

// Metrics holds the service's collectors
type Metrics struct {
	registry prometheus.Gatherer

	LinksCreated   *prometheus.CounterVec
	Resolves       *prometheus.CounterVec
	Inspects       *prometheus.CounterVec
	ClicksRecorded prometheus.Counter
	ClicksFailed   prometheus.Counter
	GeoLookups     *prometheus.CounterVec
	GeoDuration    prometheus.Histogram
}

// New creates the collectors and registers them with reg
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		LinksCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "links_created_total",
			Help:      "Create operations by outcome.",
		}, []string{"outcome"}),
		Resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolves_total",
			Help:      "Resolve operations by outcome.",
		}, []string{"outcome"}),
		Inspects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inspects_total",
			Help:      "Inspect operations by outcome.",
		}, []string{"outcome"}),
		ClicksRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clicks_recorded_total",
			Help:      "Click events appended to a link history.",
		}),
		ClicksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clicks_failed_total",
			Help:      "Click events that could not be appended.",
		}),
		GeoLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geo_lookups_total",
			Help:      "Geolocation lookups by result.",
		}, []string{"result"}),
		GeoDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geo_lookup_duration_seconds",
			Help:      "Latency of geolocation lookups.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
	}

	reg.MustRegister(
		m.LinksCreated,
		m.Resolves,
		m.Inspects,
		m.ClicksRecorded,
		m.ClicksFailed,
		m.GeoLookups,
		m.GeoDuration,
	)

	return m
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCreate counts a create outcome
func (m *Metrics) ObserveCreate(outcome string) {
	if m == nil {
		return
	}
	m.LinksCreated.WithLabelValues(outcome).Inc()
}

// ObserveResolve counts a resolve outcome
func (m *Metrics) ObserveResolve(outcome string) {
	if m == nil {
		return
	}
	m.Resolves.WithLabelValues(outcome).Inc()
}

// ObserveInspect counts an inspect outcome
func (m *Metrics) ObserveInspect(outcome string) {
	if m == nil {
		return
	}
	m.Inspects.WithLabelValues(outcome).Inc()
}

// ObserveClick counts an append attempt
func (m *Metrics) ObserveClick(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ClicksFailed.Inc()
		return
	}
	m.ClicksRecorded.Inc()
}

// ObserveGeoLookup counts a lookup result and its latency
func (m *Metrics) ObserveGeoLookup(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.GeoLookups.WithLabelValues(result).Inc()
	m.GeoDuration.Observe(elapsed.Seconds())
}

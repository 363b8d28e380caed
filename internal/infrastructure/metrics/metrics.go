// Package metrics exposes Prometheus instrumentation for the polling
// loops and the event bus. All collectors live on a private registry so
// tests can create isolated instances.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skolbridge/skolbridge/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COLLECTORS
// ══════════════════════════════════════════════════════════════════════════════

// Metrics holds every Prometheus collector the process registers.
type Metrics struct {
	registry *prometheus.Registry

	// SyncCycles counts completed poll cycles per coordinator and outcome.
	SyncCycles *prometheus.CounterVec

	// SyncDuration observes poll cycle durations per coordinator.
	SyncDuration *prometheus.HistogramVec

	// RecordsFetched counts records seen during cycles per coordinator.
	RecordsFetched *prometheus.CounterVec

	// NewRecords counts novelty events per coordinator.
	NewRecords *prometheus.CounterVec

	// ReauthRequests counts re-login requests per child key.
	ReauthRequests *prometheus.CounterVec

	// EventsPublished counts bus events by type.
	EventsPublished *prometheus.CounterVec
}

// New creates the metric set on a fresh registry with the standard Go
// and process collectors attached.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		SyncCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skolbridge",
			Name:      "sync_cycles_total",
			Help:      "Completed poll cycles per coordinator and outcome.",
		}, []string{"coordinator", "outcome"}),
		SyncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "skolbridge",
			Name:      "sync_duration_seconds",
			Help:      "Poll cycle duration per coordinator.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"coordinator"}),
		RecordsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skolbridge",
			Name:      "records_fetched_total",
			Help:      "Records returned by successful cycles per coordinator.",
		}, []string{"coordinator"}),
		NewRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skolbridge",
			Name:      "new_records_total",
			Help:      "Records announced as new per coordinator.",
		}, []string{"coordinator"}),
		ReauthRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skolbridge",
			Name:      "reauth_requests_total",
			Help:      "Re-login requests per child.",
		}, []string{"child_key"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skolbridge",
			Name:      "events_published_total",
			Help:      "Domain events published by type.",
		}, []string{"type"}),
	}

	reg.MustRegister(
		m.SyncCycles,
		m.SyncDuration,
		m.RecordsFetched,
		m.NewRecords,
		m.ReauthRequests,
		m.EventsPublished,
	)
	return m
}

// Handler returns the HTTP handler serving the registry in the
// Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for additional collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT BUS BRIDGE
// ══════════════════════════════════════════════════════════════════════════════

// ObserveEvent translates a domain event into metric updates. Intended
// to be registered as a SubscribeAll handler on the event bus.
func (m *Metrics) ObserveEvent(event shared.Event) error {
	m.EventsPublished.WithLabelValues(string(event.EventType())).Inc()

	switch e := event.(type) {
	case shared.SyncCompletedEvent:
		m.SyncCycles.WithLabelValues(e.Coordinator, "success").Inc()
		m.SyncDuration.WithLabelValues(e.Coordinator).Observe(e.Duration.Seconds())
		m.RecordsFetched.WithLabelValues(e.Coordinator).Add(float64(e.Records))
		m.NewRecords.WithLabelValues(e.Coordinator).Add(float64(e.NewRecords))
	case shared.SyncFailedEvent:
		m.SyncCycles.WithLabelValues(e.Coordinator, "failure").Inc()
	case shared.ReauthRequiredEvent:
		m.ReauthRequests.WithLabelValues(e.ChildKey).Inc()
	}
	return nil
}

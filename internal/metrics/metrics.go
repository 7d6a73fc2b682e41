// Package metrics holds the Prometheus instruments for the dashboard.
//
// Every method is safe on a nil *Metrics, so components constructed without
// metrics (most tests) need no special casing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "upscale"
	subsystem = "dashboard"
)

// Label values for Malformed.
const (
	SourceEvent  = "event"
	SourceRecord = "record"
)

// Label values for result counters.
const (
	ResultOK      = "ok"
	ResultFailure = "failure"
)

// Metrics bundles the instruments registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	mutations     *prometheus.CounterVec
	malformed     *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
	submissions   *prometheus.CounterVec
	subscriptions *prometheus.CounterVec
	jobs          *prometheus.GaugeVec
}

// New creates a registry with Go and process collectors plus the dashboard
// instruments.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		mutations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "mutations_total",
			Help:      "Store mutations applied, by kind and outcome",
		}, []string{"kind", "outcome"}),
		malformed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "malformed_total",
			Help:      "Stream events and snapshot records dropped as malformed",
		}, []string{"source"}),
		refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "snapshot_refreshes_total",
			Help:      "Snapshot fetches, by result",
		}, []string{"result"}),
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "submissions_total",
			Help:      "Submit calls settled, by result",
		}, []string{"result"}),
		subscriptions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stream_subscriptions_total",
			Help:      "Event stream connection attempts, by result",
		}, []string{"result"}),
		jobs: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "jobs",
			Help:      "Jobs in the current projection, by state",
		}, []string{"state"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Mutation counts one applied store mutation.
func (m *Metrics) Mutation(kind, outcome string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(kind, outcome).Inc()
}

// Malformed counts one dropped event or record.
func (m *Metrics) Malformed(source string) {
	if m == nil {
		return
	}
	m.malformed.WithLabelValues(source).Inc()
}

// Refresh counts one snapshot fetch.
func (m *Metrics) Refresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

// Submission counts one settled submit call.
func (m *Metrics) Submission(result string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(result).Inc()
}

// Subscription counts one stream connection attempt.
func (m *Metrics) Subscription(result string) {
	if m == nil {
		return
	}
	m.subscriptions.WithLabelValues(result).Inc()
}

// Jobs sets the projection gauges.
func (m *Metrics) Jobs(pending, inFlight, completed int) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues("pending").Set(float64(pending))
	m.jobs.WithLabelValues("in_flight").Set(float64(inFlight))
	m.jobs.WithLabelValues("completed").Set(float64(completed))
}

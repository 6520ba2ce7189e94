// Package metrics exposes client-side Prometheus metrics: catalog reloads,
// user actions, notifications, backend requests and the cached VM counts.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vmdash.io/vmdash/internal/catalog"
	"vmdash.io/vmdash/internal/dispatch"
	"vmdash.io/vmdash/internal/domain"
	"vmdash.io/vmdash/internal/notification"
)

const namespace = "vmdash"

// StatsSource reports the cached VM counts. *catalog.Catalog satisfies it.
type StatsSource interface {
	Stats() domain.VMStats
}

// Metrics owns a private registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	reloads         *prometheus.CounterVec
	reloadDuration  *prometheus.HistogramVec
	actions         *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
}

// New creates the collectors and registers them with a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		reloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "catalog_reloads_total",
				Help:      "Catalog reloads by resource and outcome (applied, stale, failed).",
			},
			[]string{"resource", "outcome"},
		),
		reloadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "catalog_reload_duration_seconds",
				Help:      "Catalog reload latency in seconds by resource.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"resource"},
		),
		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "User actions by action and outcome.",
			},
			[]string{"action", "outcome"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Notifications shown by severity.",
			},
			[]string{"severity"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_requests_total",
				Help:      "Requests sent to the backend by method and status code.",
			},
			[]string{"method", "code"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_request_duration_seconds",
				Help:      "Backend request latency in seconds by method.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_requests_in_flight",
			Help:      "Backend requests currently in flight.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.reloads,
		m.reloadDuration,
		m.actions,
		m.notifications,
		m.requests,
		m.requestDuration,
		m.inFlight,
	)
	return m
}

// Registry returns the registry backing the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ReloadFinished implements catalog.Observer.
func (m *Metrics) ReloadFinished(resource domain.Resource, elapsed time.Duration, outcome catalog.Outcome) {
	m.reloads.WithLabelValues(string(resource), string(outcome)).Inc()
	m.reloadDuration.WithLabelValues(string(resource)).Observe(elapsed.Seconds())
}

// ActionFinished implements dispatch.Observer.
func (m *Metrics) ActionFinished(action string, outcome dispatch.Outcome) {
	m.actions.WithLabelValues(action, string(outcome)).Inc()
}

// Show implements notification.Sink.
func (m *Metrics) Show(n notification.Notification) {
	m.notifications.WithLabelValues(string(n.Severity)).Inc()
}

// Remove implements notification.Sink.
func (m *Metrics) Remove(string, notification.RemovalReason) {}

// InstrumentTransport wraps rt so every backend request is counted and timed.
func (m *Metrics) InstrumentTransport(rt http.RoundTripper) http.RoundTripper {
	if rt == nil {
		rt = http.DefaultTransport
	}
	return promhttp.InstrumentRoundTripperInFlight(m.inFlight,
		promhttp.InstrumentRoundTripperCounter(m.requests,
			promhttp.InstrumentRoundTripperDuration(m.requestDuration, rt),
		),
	)
}

// WatchVMs registers a collector that reports the cached VM counts on each
// scrape.
func (m *Metrics) WatchVMs(src StatsSource) {
	m.registry.MustRegister(newVMCollector(src))
}

// vmCollector reads the catalog on each scrape.
type vmCollector struct {
	src        StatsSource
	stateDesc  *prometheus.Desc
	vmTotal    *prometheus.Desc
	byProvider *prometheus.Desc
}

func newVMCollector(src StatsSource) *vmCollector {
	return &vmCollector{
		src: src,
		vmTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "vms"),
			"Number of cached VMs.",
			nil, nil,
		),
		stateDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "vms_by_state"),
			"Number of cached VMs, partitioned by running or stopped.",
			[]string{"state"}, nil,
		),
		byProvider: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "vms_by_provider"),
			"Number of cached VMs, partitioned by provider.",
			[]string{"provider"}, nil,
		),
	}
}

func (c *vmCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.vmTotal
	ch <- c.stateDesc
	ch <- c.byProvider
}

func (c *vmCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.src.Stats()
	ch <- prometheus.MustNewConstMetric(c.vmTotal, prometheus.GaugeValue, float64(stats.Total))
	ch <- prometheus.MustNewConstMetric(c.stateDesc, prometheus.GaugeValue, float64(stats.Running), string(domain.VMStateRunning))
	ch <- prometheus.MustNewConstMetric(c.stateDesc, prometheus.GaugeValue, float64(stats.Stopped), string(domain.VMStateStopped))
	for _, p := range domain.KnownProviders {
		ch <- prometheus.MustNewConstMetric(c.byProvider, prometheus.GaugeValue, float64(stats.ByProvider[p]), string(p))
	}
}

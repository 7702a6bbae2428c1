// Package metrics exposes prometheus counters for the poll loop, alert
// delivery and the ops HTTP surface.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cctvbot"

// Poll results.
const (
	PollOK      = "ok"
	PollError   = "error"
	PollSkipped = "skipped"
	PollPanic   = "panic"
)

type Recorder interface {
	IncPolls(result string)
	ObservePollDuration(d time.Duration)
	AddNewRecords(n int)
	IncDeliveries(tier, result string)
	SetSubscribers(n int)
	SetSeen(n int)
	SetMonitoring(active bool)

	IncRequestsTotal(endpoint string, status int)
	ObserveRequestDuration(endpoint string, d time.Duration)
	IncCacheHits()
	IncCacheMisses()
}

type Prometheus struct {
	polls        *prometheus.CounterVec
	pollDuration prometheus.Histogram
	newRecords   prometheus.Counter
	deliveries   *prometheus.CounterVec
	subscribers  prometheus.Gauge
	seen         prometheus.Gauge
	monitoring   prometheus.Gauge

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// New returns a prometheus recorder registered on reg, or a no-op recorder
// when disabled.
func New(enabled bool, reg prometheus.Registerer) Recorder {
	if !enabled {
		return Nop()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Prometheus{
		polls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Poll cycles by result",
		}, []string{"result"}),
		pollDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Duration of a poll cycle including delivery",
			Buckets:   prometheus.DefBuckets,
		}),
		newRecords: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "new_records_total",
			Help:      "Violation records observed for the first time",
		}),
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Alert delivery attempts by tier and result",
		}, []string{"tier", "result"}),
		subscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Registered alert recipients",
		}),
		seen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "seen_records",
			Help:      "Record identities in the seen set",
		}),
		monitoring: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitoring_active",
			Help:      "1 while the polling loop runs",
		}),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Ops HTTP requests",
		}, []string{"endpoint", "status"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Ops HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_cache_hits_total",
			Help:      "Status cache hits",
		}),
		cacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_cache_misses_total",
			Help:      "Status cache misses",
		}),
	}
}

func (m *Prometheus) IncPolls(result string)              { m.polls.WithLabelValues(result).Inc() }
func (m *Prometheus) ObservePollDuration(d time.Duration) { m.pollDuration.Observe(d.Seconds()) }

func (m *Prometheus) AddNewRecords(n int) {
	if n > 0 {
		m.newRecords.Add(float64(n))
	}
}

func (m *Prometheus) IncDeliveries(tier, result string) {
	m.deliveries.WithLabelValues(tier, result).Inc()
}

func (m *Prometheus) SetSubscribers(n int) { m.subscribers.Set(float64(n)) }
func (m *Prometheus) SetSeen(n int)        { m.seen.Set(float64(n)) }

func (m *Prometheus) SetMonitoring(active bool) {
	if active {
		m.monitoring.Set(1)
		return
	}
	m.monitoring.Set(0)
}

func (m *Prometheus) IncRequestsTotal(endpoint string, status int) {
	m.requests.WithLabelValues(endpoint, statusBucket(status)).Inc()
}

func (m *Prometheus) ObserveRequestDuration(endpoint string, d time.Duration) {
	m.requestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

func (m *Prometheus) IncCacheHits()   { m.cacheHits.Inc() }
func (m *Prometheus) IncCacheMisses() { m.cacheMisses.Inc() }

func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// Nop returns a recorder that discards everything.
func Nop() Recorder { return noop{} }

type noop struct{}

func (noop) IncPolls(string)                              {}
func (noop) ObservePollDuration(time.Duration)            {}
func (noop) AddNewRecords(int)                            {}
func (noop) IncDeliveries(string, string)                 {}
func (noop) SetSubscribers(int)                           {}
func (noop) SetSeen(int)                                  {}
func (noop) SetMonitoring(bool)                           {}
func (noop) IncRequestsTotal(string, int)                 {}
func (noop) ObserveRequestDuration(string, time.Duration) {}
func (noop) IncCacheHits()                                {}
func (noop) IncCacheMisses()                              {}

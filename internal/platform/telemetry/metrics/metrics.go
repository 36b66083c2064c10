package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dataplane"

// Cache lookup results.
const (
	CacheHit        = "hit"
	CacheMiss       = "miss"
	CacheDedup      = "dedup"
	CacheRevalidate = "revalidate"
)

// Mutation outcomes.
const (
	MutationCommitted  = "committed"
	MutationRolledBack = "rolled_back"
)

// Metrics groups every data plane collector.
type Metrics struct {
	transportAttempts *prometheus.CounterVec
	transportRetries  *prometheus.CounterVec
	transportDuration *prometheus.HistogramVec
	cacheRequests     *prometheus.CounterVec
	cacheEntries      prometheus.Gauge
	cacheEvictions    prometheus.Counter
	cacheDiscarded    prometheus.Counter
	mutations         *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. A nil reg leaves the
// collectors unregistered, which is useful in tests that read values directly.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		transportAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transport_attempts_total",
				Help:      "HTTP attempts issued by the transport client",
			},
			[]string{"method", "outcome"},
		),
		transportRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transport_retries_total",
				Help:      "Retries scheduled by the transport client",
			},
			[]string{"kind"},
		),
		transportDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transport_call_duration_seconds",
				Help:      "Transport call duration including retries",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
			[]string{"method", "outcome"},
		),
		cacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_requests_total",
				Help:      "Query cache lookups by result",
			},
			[]string{"result"},
		),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Entries currently held by the query cache",
		}),
		cacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Idle entries removed by the query cache",
		}),
		cacheDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_discarded_total",
			Help:      "Fetch results dropped because a newer fetch superseded them",
		}),
		mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mutations_total",
				Help:      "Settled mutations by outcome",
			},
			[]string{"outcome"},
		),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.transportAttempts,
		m.transportRetries,
		m.transportDuration,
		m.cacheRequests,
		m.cacheEntries,
		m.cacheEvictions,
		m.cacheDiscarded,
		m.mutations,
	}
}

// TransportAttempt records one HTTP attempt.
func (m *Metrics) TransportAttempt(method, outcome string) {
	if m == nil {
		return
	}
	m.transportAttempts.WithLabelValues(method, outcome).Inc()
}

// TransportRetry records a scheduled retry for a failure kind.
func (m *Metrics) TransportRetry(kind string) {
	if m == nil {
		return
	}
	m.transportRetries.WithLabelValues(kind).Inc()
}

// TransportCall records the full duration of a call.
func (m *Metrics) TransportCall(method, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.transportDuration.WithLabelValues(method, outcome).Observe(d.Seconds())
}

// CacheRequest records a cache lookup result.
func (m *Metrics) CacheRequest(result string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}

// CacheEntries sets the live entry gauge.
func (m *Metrics) CacheEntries(n int) {
	if m == nil {
		return
	}
	m.cacheEntries.Set(float64(n))
}

// CacheEvicted records evicted entries.
func (m *Metrics) CacheEvicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cacheEvictions.Add(float64(n))
}

// CacheDiscarded records a superseded fetch result.
func (m *Metrics) CacheDiscarded() {
	if m == nil {
		return
	}
	m.cacheDiscarded.Inc()
}

// Mutation records a settled mutation.
func (m *Metrics) Mutation(outcome string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(outcome).Inc()
}

package telemetry

import (
	"bytes"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/hostfn"
)

// Metrics counts invocations and cache traffic on a private registry. It
// implements runtime.Observer and linker.CacheObserver.
type Metrics struct {
	Invocations  *prometheus.CounterVec
	GasConsumed  *prometheus.HistogramVec
	LinkFailures *prometheus.CounterVec

	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheEvictions prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers all metrics under namespace.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		Invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "invoke",
			Name:      "total",
			Help:      "Invocations by engine and outcome.",
		}, []string{"engine", "outcome"}),
		GasConsumed: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "invoke",
			Name:      "gas_consumed",
			Help:      "Gas consumed per invocation.",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		}, []string{"engine"}),
		LinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "failures_total",
			Help:      "Failed lazy instantiations by engine.",
		}, []string{"engine"}),

		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Pre-instance cache hits.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Pre-instance cache misses.",
		}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Pre-instances evicted from the cache.",
		}),
	}

	reg.MustRegister(
		m.Invocations,
		m.GasConsumed,
		m.LinkFailures,
		m.CacheHits,
		m.CacheMisses,
		m.CacheEvictions,
	)
	return m
}

// Invoked implements runtime.Observer.
func (m *Metrics) Invoked(kind engine.Kind, outcome hostfn.InvokeError, consumed uint64) {
	m.Invocations.WithLabelValues(kind.String(), outcome.String()).Inc()
	m.GasConsumed.WithLabelValues(kind.String()).Observe(float64(consumed))
}

// LinkFailed implements runtime.Observer.
func (m *Metrics) LinkFailed(kind engine.Kind) {
	m.LinkFailures.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) CacheHit()   { m.CacheHits.Inc() }
func (m *Metrics) CacheMiss()  { m.CacheMisses.Inc() }
func (m *Metrics) CacheEvict() { m.CacheEvictions.Inc() }

// Gatherer exposes the registry.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Dump renders every metric in the Prometheus text format.
func (m *Metrics) Dump() ([]byte, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "gather metrics")
	}
	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "encode metrics")
		}
	}
	return buf.Bytes(), nil
}

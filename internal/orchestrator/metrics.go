package orchestrator

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report run activity.
type Metrics struct {
	runDuration   *prometheus.HistogramVec
	runFailures   *prometheus.CounterVec
	pollCycles    prometheus.Counter
	toolDispatch  prometheus.Counter
	runsActive    prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// defaultMetrics returns the package-level metrics instance registered with the
// global Prometheus registry. The collectors are created only once to avoid
// duplicate registration panics when the runner is instantiated multiple times
// (e.g. in unit tests or per-request wiring).
func defaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// The caller is responsible for supplying a fresh registry when unique metric
// names are required (for example in tests). Any registration error will panic
// which mirrors the semantics of promauto helpers and surfaces configuration
// bugs early.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aide",
			Subsystem: "runs",
			Name:      "duration_seconds",
			Help:      "Wall-clock time from run start to terminal status.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"status"},
	)
	runFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aide",
			Subsystem: "runs",
			Name:      "failures_total",
			Help:      "Runs that ended without a completed status.",
		},
		[]string{"reason"},
	)
	pollCycles := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aide",
			Subsystem: "runs",
			Name:      "poll_cycles_total",
			Help:      "Status polls issued against the remote API.",
		},
	)
	toolDispatch := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aide",
			Subsystem: "runs",
			Name:      "tool_dispatch_total",
			Help:      "Dispatch and submit cycles triggered by requires_action.",
		},
	)
	runsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "aide",
			Subsystem: "runs",
			Name:      "active",
			Help:      "Runs currently being awaited.",
		},
	)

	collectors := []prometheus.Collector{runDuration, runFailures, pollCycles, toolDispatch, runsActive}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch collector.(type) {
				case *prometheus.HistogramVec:
					runDuration = already.ExistingCollector.(*prometheus.HistogramVec)
				case *prometheus.CounterVec:
					runFailures = already.ExistingCollector.(*prometheus.CounterVec)
				case prometheus.Gauge:
					runsActive = already.ExistingCollector.(prometheus.Gauge)
				case prometheus.Counter:
					if collector == pollCycles {
						pollCycles = already.ExistingCollector.(prometheus.Counter)
					} else {
						toolDispatch = already.ExistingCollector.(prometheus.Counter)
					}
				}
				continue
			}
			panic(err)
		}
	}

	return &Metrics{
		runDuration:  runDuration,
		runFailures:  runFailures,
		pollCycles:   pollCycles,
		toolDispatch: toolDispatch,
		runsActive:   runsActive,
	}
}

// ObserveRunDuration records the time a run took to reach a terminal status.
func (m *Metrics) ObserveRunDuration(status string, duration time.Duration) {
	if m == nil || m.runDuration == nil {
		return
	}
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// IncRunFailure increments the failure counter for the given reason.
func (m *Metrics) IncRunFailure(reason string) {
	if m == nil || m.runFailures == nil {
		return
	}
	m.runFailures.WithLabelValues(reason).Inc()
}

// IncPollCycle counts one status poll.
func (m *Metrics) IncPollCycle() {
	if m == nil || m.pollCycles == nil {
		return
	}
	m.pollCycles.Inc()
}

// IncToolDispatch counts one dispatch and submit cycle.
func (m *Metrics) IncToolDispatch() {
	if m == nil || m.toolDispatch == nil {
		return
	}
	m.toolDispatch.Inc()
}

// IncActiveRuns marks a run as awaited.
func (m *Metrics) IncActiveRuns() {
	if m == nil || m.runsActive == nil {
		return
	}
	m.runsActive.Inc()
}

// DecActiveRuns marks a run as no longer awaited.
func (m *Metrics) DecActiveRuns() {
	if m == nil || m.runsActive == nil {
		return
	}
	m.runsActive.Dec()
}

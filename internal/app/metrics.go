package app

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the run's collectors. Each App registers them on its own
// registry so that concurrent apps in tests never collide.
type metrics struct {
	registry *prometheus.Registry

	testsDiscovered prometheus.Gauge
	testsBuilt      prometheus.Counter
	testsExecuted   *prometheus.CounterVec
	batches         prometheus.Gauge
	buildDuration   prometheus.Histogram
	execDuration    prometheus.Histogram
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &metrics{
		registry: reg,
		testsDiscovered: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ceautotest",
			Name:      "tests_discovered",
			Help:      "Number of test directories found in the suite.",
		}),
		testsBuilt: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ceautotest",
			Name:      "tests_built_total",
			Help:      "Tests built and analyzed.",
		}),
		testsExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ceautotest",
			Name:      "tests_executed_total",
			Help:      "Tests executed in the emulator, by result.",
		}, []string{"result"}),
		batches: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ceautotest",
			Name:      "batches",
			Help:      "Number of batches in the execution plan.",
		}),
		buildDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ceautotest",
			Name:      "build_duration_seconds",
			Help:      "Time to build and analyze one test.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		execDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ceautotest",
			Name:      "exec_duration_seconds",
			Help:      "Time the harness spent on one test.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
}

func (m *metrics) observeBuild(d time.Duration) {
	m.testsBuilt.Inc()
	m.buildDuration.Observe(d.Seconds())
}

func (m *metrics) observeExecution(passed bool, d time.Duration) {
	result := "passed"
	if !passed {
		result = "failed"
	}
	m.testsExecuted.WithLabelValues(result).Inc()
	m.execDuration.Observe(d.Seconds())
}

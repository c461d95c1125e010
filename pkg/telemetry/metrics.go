// Package telemetry exposes Prometheus metrics for layer estimation: job
// counts and durations, dependency waits and artifact cache operations.
package telemetry

import (
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/YuminosukeSato/mlstack/pkg/errors"
)

const namespace = "mlstack"

// Job outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Dependency wait outcomes.
const (
	WaitReady     = "ready"
	WaitWarned    = "warned"
	WaitTimeout   = "timeout"
	WaitCancelled = "cancelled"
)

// Cache operations.
const (
	CacheSave = "save"
	CacheLoad = "load"
	CacheHit  = "memo_hit"
)

// Registry holds every metric of this package. It is separate from the
// global default registry so that embedding programs choose what to expose.
var Registry = prometheus.NewRegistry()

var (
	jobsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "layer",
			Name:      "jobs_total",
			Help:      "Count of layer jobs by kind and outcome.",
		},
		[]string{"layer", "kind", "outcome"},
	)
	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "layer",
			Name:      "job_duration_seconds",
			Help:      "Wall time of layer jobs by kind.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"layer", "kind"},
	)
	waitCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "layer",
			Name:      "dependency_waits_total",
			Help:      "Count of transformer dependency waits by outcome.",
		},
		[]string{"layer", "outcome"},
	)
	waitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "layer",
			Name:      "dependency_wait_seconds",
			Help:      "Time spent waiting for transformer artifacts.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 12),
		},
		[]string{"layer"},
	)
	cacheCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "operations_total",
			Help:      "Count of artifact cache operations by kind and outcome.",
		},
		[]string{"operation", "outcome"},
	)
)

var registerMetrics sync.Once

// Register all metrics.
func Register() {
	registerMetrics.Do(func() {
		Registry.MustRegister(jobsCounter)
		Registry.MustRegister(jobDuration)
		Registry.MustRegister(waitCounter)
		Registry.MustRegister(waitDuration)
		Registry.MustRegister(cacheCounter)
	})
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// RecordJob records one finished job of the given kind.
func RecordJob(layer, kind string, elapsed time.Duration, err error) {
	jobsCounter.WithLabelValues(layer, kind, outcome(err)).Inc()
	jobDuration.WithLabelValues(layer, kind).Observe(elapsed.Seconds())
}

// RecordWait records the end of a dependency wait.
func RecordWait(layer, result string, waited time.Duration) {
	waitCounter.WithLabelValues(layer, result).Inc()
	waitDuration.WithLabelValues(layer).Observe(waited.Seconds())
}

// RecordCacheOp records one artifact cache operation.
func RecordCacheOp(op string, err error) {
	cacheCounter.WithLabelValues(op, outcome(err)).Inc()
}

// RecordCacheHit records a load served from the decoded-artifact memo.
func RecordCacheHit() {
	cacheCounter.WithLabelValues(CacheHit, OutcomeSuccess).Inc()
}

// Gather returns the current state of all registered metrics.
func Gather() ([]*dto.MetricFamily, error) {
	mfs, err := Registry.Gather()
	if err != nil {
		return nil, errors.Wrap(err, "failed to gather metrics")
	}
	return mfs, nil
}

// WriteText writes all registered metrics in the Prometheus text format.
func WriteText(w io.Writer) error {
	mfs, err := Gather()
	if err != nil {
		return err
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return errors.Wrap(err, "failed to encode metrics")
		}
	}
	return nil
}

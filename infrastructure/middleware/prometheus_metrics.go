package middleware

import (
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"

	"github.com/ahrav/go-tally/internal/ports"
)

// Metric names understood by PrometheusMetrics. Any other name falls back to
// the generic operation counter or system gauge.
const (
	MetricAwards       = "tally_awards_total"
	MetricEliminations = "tally_eliminations_total"
	MetricTransferred  = "tally_votes_transferred_total"
	MetricRuns         = "tally_runs_total"
	MetricQuota        = "tally_quota"
	MetricSeats        = "tally_seats"
	MetricRounds       = "tally_rounds"
)

// PrometheusMetrics implements the MetricsCollector interface using Prometheus.
// It provides real-time monitoring of apportionment runs: how many rounds a
// count takes, how seats are awarded and how many votes move on elimination.
//
// Values Prometheus cannot record (non-finite values, negative counter
// increments) are dropped and reported as *ports.MetricsError to the error
// handler, which defaults to otel.Handle.
type PrometheusMetrics struct {
	handleError      func(error)
	awards           *prometheus.CounterVec
	eliminations     *prometheus.CounterVec
	transferred      *prometheus.CounterVec
	runs             *prometheus.CounterVec
	countGauges      *prometheus.GaugeVec
	rounds           *prometheus.HistogramVec
	executionLatency *prometheus.HistogramVec
	operationCounter *prometheus.CounterVec
	systemGauges     *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a new PrometheusMetrics instance and registers
// all required metrics in the global Prometheus registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWith(prometheus.DefaultRegisterer)
}

// NewPrometheusMetricsWith registers the metrics with reg instead of the
// global registry.
func NewPrometheusMetricsWith(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)
	return &PrometheusMetrics{
		handleError: otel.Handle,
		// Count-specific metrics.
		awards: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricAwards,
				Help: "Seats awarded, split by whether the award was forced below quota.",
			},
			[]string{"unit", "forced"},
		),
		eliminations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricEliminations,
				Help: "Candidates eliminated across all counts.",
			},
			[]string{"unit"},
		),
		transferred: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricTransferred,
				Help: "Vote weight redistributed to surviving candidates on elimination.",
			},
			[]string{"unit"},
		),
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRuns,
				Help: "Completed apportionment runs by outcome.",
			},
			[]string{"unit", "status"},
		),
		countGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tally_last_count",
				Help: "Parameters of the most recent count (quota, seats).",
			},
			[]string{"metric", "unit"},
		),
		rounds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricRounds,
				Help:    "Number of award and elimination rounds per count.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
			[]string{"unit"},
		),

		// General execution metrics for comprehensive observability.
		executionLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tally_execution_duration_seconds",
				Help:    "Execution time of tally operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "unit"},
		),
		operationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_operations_total",
				Help: "Total number of operations performed by the tally engine.",
			},
			[]string{"operation", "status", "unit"},
		),
		systemGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tally_system_state",
				Help: "Current system state values for the tally engine.",
			},
			[]string{"metric", "unit"},
		),
	}
}

// WithErrorHandler replaces the handler that receives rejected values and
// returns pm. It must be called before pm is shared between goroutines.
func (pm *PrometheusMetrics) WithErrorHandler(fn func(error)) *PrometheusMetrics {
	if fn != nil {
		pm.handleError = fn
	}
	return pm
}

// accept reports whether value can be recorded and hands a MetricsError to
// the error handler when it cannot.
func (pm *PrometheusMetrics) accept(operation, metric string, value float64, counter bool) bool {
	var reason string
	switch {
	case math.IsNaN(value) || math.IsInf(value, 0):
		reason = "not a finite number"
	case counter && value < 0:
		reason = "counters cannot decrease"
	default:
		return true
	}
	pm.handleError(ports.NewMetricsError(metric, operation,
		fmt.Errorf("%w: %v (%s)", ports.ErrInvalidMetricValue, value, reason)))
	return false
}

// unitLabel returns the unit label, defaulting to "unknown" when missing or empty.
func unitLabel(labels map[string]string) string {
	if unit := labels["unit"]; unit != "" {
		return unit
	}
	return "unknown"
}

// RecordLatency implements the MetricsCollector interface by recording
// execution latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	if !pm.accept("RecordLatency", operation, duration.Seconds(), true) {
		return
	}
	pm.executionLatency.WithLabelValues(operation, unitLabel(labels)).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by incrementing
// Prometheus counters.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	if !pm.accept("RecordCounter", metric, value, true) {
		return
	}
	unit := unitLabel(labels)

	switch metric {
	case MetricAwards:
		forced := labels["forced"]
		if forced == "" {
			forced = "false"
		}
		pm.awards.WithLabelValues(unit, forced).Add(value)
	case MetricEliminations:
		pm.eliminations.WithLabelValues(unit).Add(value)
	case MetricTransferred:
		pm.transferred.WithLabelValues(unit).Add(value)
	case MetricRuns:
		status := labels["status"]
		if status == "" {
			status = "success"
		}
		pm.runs.WithLabelValues(unit, status).Add(value)
	default:
		pm.operationCounter.WithLabelValues(metric, "success", unit).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, labels map[string]string,
) {
	if !pm.accept("RecordGauge", metric, value, false) {
		return
	}
	unit := unitLabel(labels)

	switch metric {
	case MetricQuota, MetricSeats:
		pm.countGauges.WithLabelValues(metric, unit).Set(value)
	default:
		pm.systemGauges.WithLabelValues(metric, unit).Set(value)
	}
}

// RecordHistogram implements the MetricsCollector interface by recording
// values in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	if !pm.accept("RecordHistogram", metric, value, false) {
		return
	}
	unit := unitLabel(labels)

	switch metric {
	case MetricRounds:
		pm.rounds.WithLabelValues(unit).Observe(value)
	default:
		pm.executionLatency.WithLabelValues(metric, unit).Observe(value)
	}
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)

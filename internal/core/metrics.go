package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder receives one observation per core write operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, err error, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, error, time.Duration) {}

// NoopMetrics discards every observation.
func NoopMetrics() MetricsRecorder { return noopMetrics{} }

// PrometheusMetrics counts operations by outcome code and tracks their latency.
type PrometheusMetrics struct {
	results   *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// NewPrometheusMetrics registers the stock-tracker collectors on reg.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stock",
			Name:      "operations_total",
			Help:      "Core write operations by operation and outcome code.",
		}, []string{"operation", "outcome"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stock",
			Name:      "operation_duration_seconds",
			Help:      "Latency of core write operations, lock wait included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	reg.MustRegister(m.results, m.durations)
	return m
}

func (m *PrometheusMetrics) Observe(_ context.Context, operation string, err error, duration time.Duration) {
	if operation == "" {
		return
	}
	m.results.WithLabelValues(operation, ErrorCode(err)).Inc()
	m.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// observe is deferred by service methods: defer observe(ctx, m, "op", time.Now(), &err).
func observe(ctx context.Context, m MetricsRecorder, operation string, start time.Time, errp *error) {
	if m == nil {
		return
	}
	var err error
	if errp != nil {
		err = *errp
	}
	m.Observe(ctx, operation, err, time.Since(start))
}

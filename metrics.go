package filesaga

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for saga execution.
type Metrics struct {
	SagaTotal         *prometheus.CounterVec
	StageDuration     *prometheus.HistogramVec
	StageFailures     *prometheus.CounterVec
	CompensationTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the saga metrics on the default
// registerer. Call it once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		SagaTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filesaga_runs_total",
				Help: "Total number of saga runs by terminal status",
			},
			[]string{"status"},
		),
		StageDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "filesaga_stage_duration_seconds",
				Help:    "Wall-clock duration of successful stage executions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		StageFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filesaga_stage_failures_total",
				Help: "Stage executions that exhausted their retry policy",
			},
			[]string{"stage"},
		),
		CompensationTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filesaga_compensations_total",
				Help: "Compensation executions by kind and result",
			},
			[]string{"kind", "result"}, // result: ok, failed
		),
	}
}

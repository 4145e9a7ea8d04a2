package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsRecorder exports service and taxonomy metrics.
type PrometheusMetricsRecorder struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	treeNodes  prometheus.Gauge
	treeBuilds *prometheus.CounterVec
	treeBuild  prometheus.Histogram
}

// NewPrometheusMetricsRecorder creates the collectors and registers them on reg.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	r := &PrometheusMetricsRecorder{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amari_service_operations_total",
				Help: "Number of service operations by operation and result.",
			},
			[]string{"operation", "result"},
		),
		durations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "amari_service_operation_duration_seconds",
				Help:    "Time taken by service operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		treeNodes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "amari_taxonomy_nodes",
				Help: "Number of nodes in the last successfully built ingredient tree.",
			},
		),
		treeBuilds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amari_taxonomy_builds_total",
				Help: "Number of ingredient tree builds by result.",
			},
			[]string{"result"},
		),
		treeBuild: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "amari_taxonomy_build_duration_seconds",
				Help:    "Time taken to build the ingredient tree.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
	for _, c := range []prometheus.Collector{r.operations, r.durations, r.treeNodes, r.treeBuilds, r.treeBuild} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.operations.WithLabelValues(operation, resultLabel(success)).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveTreeBuild implements TreeMetrics.
func (r *PrometheusMetricsRecorder) ObserveTreeBuild(nodes int, err error, duration time.Duration) {
	r.treeBuilds.WithLabelValues(resultLabel(err == nil)).Inc()
	r.treeBuild.Observe(duration.Seconds())
	if err == nil {
		r.treeNodes.Set(float64(nodes))
	}
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

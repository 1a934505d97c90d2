// Package metrics exposes Prometheus instrumentation for the detection
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReadingsTotal counts readings accepted into window buffers.
	ReadingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldwatch_readings_total",
			Help: "Total number of sensor readings ingested",
		},
		[]string{"sensor_type"},
	)

	// StaleReadingsTotal counts readings that arrived out of timestamp order.
	StaleReadingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldwatch_stale_readings_total",
			Help: "Total number of readings that arrived out of order",
		},
		[]string{"sensor_type"},
	)

	// SchemaRejectionsTotal counts readings rejected for schema mismatch.
	SchemaRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldwatch_schema_rejections_total",
			Help: "Total number of readings rejected as malformed or mismatched",
		},
	)

	// AnomalyEventsTotal counts emitted anomaly events.
	AnomalyEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldwatch_anomaly_events_total",
			Help: "Total number of anomaly events emitted",
		},
		[]string{"sensor_type", "severity"},
	)

	// TrainingRunsTotal counts model training attempts by outcome.
	TrainingRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldwatch_training_runs_total",
			Help: "Total number of model training runs",
		},
		[]string{"sensor_type", "status"},
	)

	// ModelActive reports whether a trained model is live per sensor type.
	ModelActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fieldwatch_model_active",
			Help: "Whether a trained outlier model is active (1) for a sensor type",
		},
		[]string{"sensor_type"},
	)

	// BaselineVectors reports accumulated baseline candidates per sensor type.
	BaselineVectors = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fieldwatch_baseline_vectors",
			Help: "Number of baseline feature vectors accumulated while bootstrapping",
		},
		[]string{"sensor_type"},
	)
)

// RecordTrainingRun records one training attempt.
func RecordTrainingRun(sensorType string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	TrainingRunsTotal.WithLabelValues(sensorType, status).Inc()
}

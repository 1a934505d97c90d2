// Package types contains the core domain types shared across the anomaly
// detection pipeline.
package types

import (
	"time"
)

// SensorType identifies the kind of measurement a reading carries.
type SensorType string

const (
	SensorMoisture    SensorType = "moisture"
	SensorTemperature SensorType = "temperature"
	SensorHumidity    SensorType = "humidity"
)

// AllSensorTypes lists every sensor type the pipeline understands.
var AllSensorTypes = []SensorType{SensorMoisture, SensorTemperature, SensorHumidity}

// Valid reports whether s is a registered sensor type.
func (s SensorType) Valid() bool {
	switch s {
	case SensorMoisture, SensorTemperature, SensorHumidity:
		return true
	}
	return false
}

// Severity is the discrete priority bucket derived from detection confidence.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Reading is a single sensor measurement for one plot. Readings are
// immutable once created; the ingestion boundary produces them and the
// matching window buffer consumes them exactly once.
type Reading struct {
	ID         int64      `gorm:"column:id;primaryKey;autoIncrement"`
	PlotID     int64      `gorm:"column:plot_id;index:idx_plot_sensor"`
	SensorType SensorType `gorm:"column:sensor_type;index:idx_plot_sensor"`
	Value      float64    `gorm:"column:value"`
	Timestamp  time.Time  `gorm:"column:time"`
	Source     string     `gorm:"column:source"`
}

// FeatureVector holds the summary statistics extracted from one full window.
// It is derived from exactly one window snapshot, consumed once by the
// outlier model, and never persisted.
type FeatureVector struct {
	Mean   float64 `msgpack:"mean"`
	StdDev float64 `msgpack:"std"`
	Min    float64 `msgpack:"min"`
	Max    float64 `msgpack:"max"`
	Range  float64 `msgpack:"range"`
}

// Values returns the vector in fixed feature order, the layout the outlier
// model trains and scores on.
func (f FeatureVector) Values() []float64 {
	return []float64{f.Mean, f.StdDev, f.Min, f.Max, f.Range}
}

// FeatureCount is the dimensionality of a FeatureVector.
const FeatureCount = 5

// AnomalyEvent records one window classified as an outlier. Immutable once
// created; consumed by the recommendation engine and the record store.
type AnomalyEvent struct {
	ID                  string     `gorm:"column:id;primaryKey"`
	PlotID              int64      `gorm:"column:plot_id;index"`
	SensorType          SensorType `gorm:"column:sensor_type"`
	Timestamp           time.Time  `gorm:"column:time"`
	RawScore            float64    `gorm:"column:raw_score"`
	Confidence          float64    `gorm:"column:confidence"`
	Severity            Severity   `gorm:"column:severity"`
	TriggeringReadingID int64      `gorm:"column:triggering_reading_id"`

	// TriggeringValue is the raw value of the reading that completed the
	// flagged window, used by rule predicates with agronomic thresholds.
	TriggeringValue float64 `gorm:"column:triggering_value"`

	// Features is the summary of the window that triggered the event. Rule
	// predicates match against it; it is carried on the event rather than
	// persisted separately.
	Features FeatureVector `gorm:"embedded;embeddedPrefix:feat_"`

	// ChangeRate is the percent change across the triggering window,
	// positive for rising values. Trend summarizes the window direction.
	ChangeRate float64 `gorm:"column:change_rate"`
	Trend      Trend   `gorm:"column:trend"`
}

// Trend classifies the direction of recent values in a window.
type Trend string

const (
	TrendUnknown     Trend = "unknown"
	TrendIncreasing  Trend = "increasing"
	TrendDecreasing  Trend = "decreasing"
	TrendFluctuating Trend = "fluctuating"
)

// Recommendation is the terminal output of the pipeline: one operational
// action for one anomaly event. Persisted by the record store, never mutated.
type Recommendation struct {
	AnomalyEventID string    `gorm:"column:anomaly_event_id;primaryKey"`
	Action         string    `gorm:"column:action"`
	Explanation    string    `gorm:"column:explanation"`
	Confidence     float64   `gorm:"column:confidence"`
	Priority       Severity  `gorm:"column:priority"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

// TrainingResult summarizes a completed model training run.
type TrainingResult struct {
	SensorType  SensorType
	TrainedAt   time.Time
	SampleCount int
	Threshold   float64
}

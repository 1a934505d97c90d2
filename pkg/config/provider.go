// Package config provides configuration loading for the fieldwatch
// pipeline from YAML files or an embedded SQLite database.
package config

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// LoadConfig loads the complete configuration
	LoadConfig() (*ConfigData, error)

	// IsReadOnly reports whether the provider can persist changes
	IsReadOnly() bool

	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Detection DetectionData `json:"detection" yaml:"detection"`
	Storage   StorageData   `json:"storage,omitempty" yaml:"storage,omitempty"`
	Metrics   MetricsData   `json:"metrics,omitempty" yaml:"metrics,omitempty"`

	// RulesFile optionally points at a YAML rule table; when empty the
	// built-in agronomic rules are used.
	RulesFile string `json:"rules_file,omitempty" yaml:"rules_file,omitempty"`
}

// DetectionData holds the tunables of the anomaly detection pipeline.
// Zero values fall back to the defaults from DefaultDetection.
type DetectionData struct {
	// WindowSize is the number of readings per feature window.
	WindowSize int `json:"window_size,omitempty" yaml:"window_size,omitempty"`

	// MinBaseline is the minimum number of feature vectors a training
	// call must supply.
	MinBaseline int `json:"min_baseline,omitempty" yaml:"min_baseline,omitempty"`

	// MaxBaselineVectors caps the baseline candidates accumulated per
	// sensor type while bootstrapping.
	MaxBaselineVectors int `json:"max_baseline_vectors,omitempty" yaml:"max_baseline_vectors,omitempty"`

	// Contamination is the expected outlier fraction used to calibrate
	// the decision threshold at training time.
	Contamination float64 `json:"contamination,omitempty" yaml:"contamination,omitempty"`

	// Trees and SampleSize control ensemble construction; Seed fixes the
	// randomization for reproducible training.
	Trees      int   `json:"trees,omitempty" yaml:"trees,omitempty"`
	SampleSize int   `json:"sample_size,omitempty" yaml:"sample_size,omitempty"`
	Seed       int64 `json:"seed,omitempty" yaml:"seed,omitempty"`

	// SeverityHigh and SeverityMedium are the confidence boundaries of
	// the severity buckets.
	SeverityHigh   float64 `json:"severity_high,omitempty" yaml:"severity_high,omitempty"`
	SeverityMedium float64 `json:"severity_medium,omitempty" yaml:"severity_medium,omitempty"`

	// BatchHistory is the number of recent readings pulled per plot for
	// on-demand batch re-scoring.
	BatchHistory int `json:"batch_history,omitempty" yaml:"batch_history,omitempty"`

	// Sensors carries per-sensor-type overrides keyed by sensor type
	// name (moisture, temperature, humidity).
	Sensors map[string]SensorOverrideData `json:"sensors,omitempty" yaml:"sensors,omitempty"`
}

// SensorOverrideData overrides detection tunables for one sensor type.
// Nil fields inherit the global value.
type SensorOverrideData struct {
	Contamination  *float64 `json:"contamination,omitempty" yaml:"contamination,omitempty"`
	SeverityHigh   *float64 `json:"severity_high,omitempty" yaml:"severity_high,omitempty"`
	SeverityMedium *float64 `json:"severity_medium,omitempty" yaml:"severity_medium,omitempty"`
}

// StorageData holds the configuration for the record and model stores
type StorageData struct {
	TimescaleDB *TimescaleDBData `json:"timescaledb,omitempty" yaml:"timescaledb,omitempty"`
	ModelStore  ModelStoreData   `json:"model_store,omitempty" yaml:"model_store,omitempty"`
}

// TimescaleDBData configures the record store backend
type TimescaleDBData struct {
	ConnectionString string `json:"connection_string" yaml:"connection_string"`
}

// ModelStoreData configures where trained model artifacts live
type ModelStoreData struct {
	// Backend is "file" or "sqlite"; empty defaults to "file".
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`

	// Path is the artifact directory for the file backend, or the
	// database path for the sqlite backend.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// MetricsData configures the Prometheus scrape endpoint
type MetricsData struct {
	ListenAddr string `json:"listen_addr,omitempty" yaml:"listen_addr,omitempty"`
}

// DefaultDetection returns the stock detection tunables.
func DefaultDetection() DetectionData {
	return DetectionData{
		WindowSize:         10,
		MinBaseline:        200,
		MaxBaselineVectors: 5000,
		Contamination:      0.1,
		Trees:              100,
		SampleSize:         256,
		Seed:               42,
		SeverityHigh:       0.85,
		SeverityMedium:     0.6,
		BatchHistory:       50,
	}
}

// ApplyDefaults fills zero-valued detection fields from DefaultDetection.
func (d *DetectionData) ApplyDefaults() {
	def := DefaultDetection()
	if d.WindowSize <= 0 {
		d.WindowSize = def.WindowSize
	}
	if d.MinBaseline <= 0 {
		d.MinBaseline = def.MinBaseline
	}
	if d.MaxBaselineVectors <= 0 {
		d.MaxBaselineVectors = def.MaxBaselineVectors
	}
	if d.Contamination <= 0 {
		d.Contamination = def.Contamination
	}
	if d.Trees <= 0 {
		d.Trees = def.Trees
	}
	if d.SampleSize <= 0 {
		d.SampleSize = def.SampleSize
	}
	if d.Seed == 0 {
		d.Seed = def.Seed
	}
	if d.SeverityHigh <= 0 {
		d.SeverityHigh = def.SeverityHigh
	}
	if d.SeverityMedium <= 0 {
		d.SeverityMedium = def.SeverityMedium
	}
	if d.BatchHistory <= 0 {
		d.BatchHistory = def.BatchHistory
	}
}

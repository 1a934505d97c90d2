package config

import (
	"database/sql"
	"fmt"
	"strconv"

	_ "modernc.org/sqlite"
)

// SQLiteProvider implements ConfigProvider for SQLite database configuration
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider creates a new SQLite configuration provider
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	return &SQLiteProvider{db: db, dbPath: dbPath}, nil
}

// LoadConfig loads the complete configuration from the SQLite database.
// Detection tunables live in a settings key/value table; per-sensor
// overrides have their own table.
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	config := &ConfigData{}

	settings, err := s.loadSettings()
	if err != nil {
		return nil, err
	}

	d := &config.Detection
	d.WindowSize = settings.intOr("window_size", 0)
	d.MinBaseline = settings.intOr("min_baseline", 0)
	d.MaxBaselineVectors = settings.intOr("max_baseline_vectors", 0)
	d.Contamination = settings.floatOr("contamination", 0)
	d.Trees = settings.intOr("trees", 0)
	d.SampleSize = settings.intOr("sample_size", 0)
	d.Seed = int64(settings.intOr("seed", 0))
	d.SeverityHigh = settings.floatOr("severity_high", 0)
	d.SeverityMedium = settings.floatOr("severity_medium", 0)
	d.BatchHistory = settings.intOr("batch_history", 0)
	d.ApplyDefaults()

	if v, ok := settings["timescaledb_connection_string"]; ok && v != "" {
		config.Storage.TimescaleDB = &TimescaleDBData{ConnectionString: v}
	}
	config.Storage.ModelStore.Backend = settings["model_store_backend"]
	config.Storage.ModelStore.Path = settings["model_store_path"]
	config.Metrics.ListenAddr = settings["metrics_listen_addr"]
	config.RulesFile = settings["rules_file"]

	overrides, err := s.loadSensorOverrides()
	if err != nil {
		return nil, err
	}
	if len(overrides) > 0 {
		d.Sensors = overrides
	}

	return config, nil
}

type settingsMap map[string]string

func (m settingsMap) intOr(key string, fallback int) int {
	if v, ok := m[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func (m settingsMap) floatOr(key string, fallback float64) float64 {
	if v, ok := m[key]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func (s *SQLiteProvider) loadSettings() (settingsMap, error) {
	rows, err := s.db.Query(`SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	defer rows.Close()

	settings := make(settingsMap)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

func (s *SQLiteProvider) loadSensorOverrides() (map[string]SensorOverrideData, error) {
	rows, err := s.db.Query(
		`SELECT sensor_type, contamination, severity_high, severity_medium FROM sensor_overrides`)
	if err != nil {
		return nil, fmt.Errorf("failed to load sensor overrides: %w", err)
	}
	defer rows.Close()

	overrides := make(map[string]SensorOverrideData)
	for rows.Next() {
		var sensorType string
		var contamination, severityHigh, severityMedium sql.NullFloat64
		if err := rows.Scan(&sensorType, &contamination, &severityHigh, &severityMedium); err != nil {
			return nil, fmt.Errorf("failed to scan sensor override: %w", err)
		}

		var o SensorOverrideData
		if contamination.Valid {
			o.Contamination = &contamination.Float64
		}
		if severityHigh.Valid {
			o.SeverityHigh = &severityHigh.Float64
		}
		if severityMedium.Valid {
			o.SeverityMedium = &severityMedium.Float64
		}
		overrides[sensorType] = o
	}
	return overrides, rows.Err()
}

// SaveConfig writes the complete configuration into the database,
// creating the schema if needed and replacing any existing values.
func (s *SQLiteProvider) SaveConfig(cfg *ConfigData) error {
	if err := s.ensureSchema(); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	d := cfg.Detection
	settings := map[string]string{
		"window_size":          strconv.Itoa(d.WindowSize),
		"min_baseline":         strconv.Itoa(d.MinBaseline),
		"max_baseline_vectors": strconv.Itoa(d.MaxBaselineVectors),
		"contamination":        strconv.FormatFloat(d.Contamination, 'g', -1, 64),
		"trees":                strconv.Itoa(d.Trees),
		"sample_size":          strconv.Itoa(d.SampleSize),
		"seed":                 strconv.FormatInt(d.Seed, 10),
		"severity_high":        strconv.FormatFloat(d.SeverityHigh, 'g', -1, 64),
		"severity_medium":      strconv.FormatFloat(d.SeverityMedium, 'g', -1, 64),
		"batch_history":        strconv.Itoa(d.BatchHistory),
		"model_store_backend":  cfg.Storage.ModelStore.Backend,
		"model_store_path":     cfg.Storage.ModelStore.Path,
		"metrics_listen_addr":  cfg.Metrics.ListenAddr,
		"rules_file":           cfg.RulesFile,
	}
	if cfg.Storage.TimescaleDB != nil {
		settings["timescaledb_connection_string"] = cfg.Storage.TimescaleDB.ConnectionString
	}
	for key, value := range settings {
		if _, err := tx.Exec(
			`INSERT INTO settings (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value); err != nil {
			return fmt.Errorf("failed to save setting %s: %w", key, err)
		}
	}

	for sensorType, o := range d.Sensors {
		var contamination, severityHigh, severityMedium sql.NullFloat64
		if o.Contamination != nil {
			contamination = sql.NullFloat64{Float64: *o.Contamination, Valid: true}
		}
		if o.SeverityHigh != nil {
			severityHigh = sql.NullFloat64{Float64: *o.SeverityHigh, Valid: true}
		}
		if o.SeverityMedium != nil {
			severityMedium = sql.NullFloat64{Float64: *o.SeverityMedium, Valid: true}
		}
		if _, err := tx.Exec(
			`INSERT INTO sensor_overrides (sensor_type, contamination, severity_high, severity_medium)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(sensor_type) DO UPDATE SET
			   contamination = excluded.contamination,
			   severity_high = excluded.severity_high,
			   severity_medium = excluded.severity_medium`,
			sensorType, contamination, severityHigh, severityMedium); err != nil {
			return fmt.Errorf("failed to save sensor override %s: %w", sensorType, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteProvider) ensureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS sensor_overrides (
			sensor_type TEXT PRIMARY KEY,
			contamination REAL,
			severity_high REAL,
			severity_medium REAL
		);`)
	if err != nil {
		return fmt.Errorf("failed to create configuration schema: %w", err)
	}
	return nil
}

// IsReadOnly returns false: the SQLite backend supports configuration writes
func (s *SQLiteProvider) IsReadOnly() bool { return false }

func (s *SQLiteProvider) Close() error { return s.db.Close() }

package modelstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"

	"github.com/fieldwatch/fieldwatch/internal/detect"
	"github.com/fieldwatch/fieldwatch/internal/types"
)

// SQLiteStore keeps model artifacts in a single-table SQLite database.
// Useful when the deployment already carries its configuration in SQLite
// and a directory of loose model files is unwelcome.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if necessary initializes) the artifact database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open model database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping model database: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS model_artifacts (
		sensor_type TEXT PRIMARY KEY,
		artifact    BLOB NOT NULL,
		updated_at  TIMESTAMP NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize model_artifacts table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save upserts the artifact row for a sensor type.
func (s *SQLiteStore) Save(ctx context.Context, sensor types.SensorType, artifact *detect.ForestArtifact) error {
	data, err := msgpack.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("encoding %s model: %w", sensor, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO model_artifacts (sensor_type, artifact, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(sensor_type) DO UPDATE SET artifact = excluded.artifact, updated_at = excluded.updated_at`,
		string(sensor), data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("storing %s model: %w", sensor, err)
	}
	return nil
}

// Load fetches and decodes the artifact row for a sensor type.
func (s *SQLiteStore) Load(ctx context.Context, sensor types.SensorType) (*detect.ForestArtifact, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT artifact FROM model_artifacts WHERE sensor_type = ?`,
		string(sensor)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", sensor, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching %s model: %w", sensor, err)
	}

	var artifact detect.ForestArtifact
	if err := msgpack.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("decoding %s model: %v: %w", sensor, err, types.ErrModelFormat)
	}
	return &artifact, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

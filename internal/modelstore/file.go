package modelstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/fieldwatch/fieldwatch/internal/detect"
	"github.com/fieldwatch/fieldwatch/internal/types"
)

// FileStore keeps one msgpack artifact file per sensor type under a
// directory, e.g. models/moisture.model.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns a store over it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating model directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(sensor types.SensorType) string {
	return filepath.Join(s.dir, string(sensor)+".model")
}

// Save writes the artifact atomically: encode to a temp file, then rename
// over the previous artifact.
func (s *FileStore) Save(_ context.Context, sensor types.SensorType, artifact *detect.ForestArtifact) error {
	data, err := msgpack.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("encoding %s model: %w", sensor, err)
	}

	tmp := s.path(sensor) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s model: %w", sensor, err)
	}
	if err := os.Rename(tmp, s.path(sensor)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing %s model: %w", sensor, err)
	}
	return nil
}

// Load reads and decodes the artifact for a sensor type.
func (s *FileStore) Load(_ context.Context, sensor types.SensorType) (*detect.ForestArtifact, error) {
	data, err := os.ReadFile(s.path(sensor))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: %w", sensor, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s model: %w", sensor, err)
	}

	var artifact detect.ForestArtifact
	if err := msgpack.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("decoding %s model: %v: %w", sensor, err, types.ErrModelFormat)
	}
	return &artifact, nil
}

func (s *FileStore) Close() error { return nil }

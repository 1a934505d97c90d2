// Package modelstore persists trained outlier models, one artifact per
// sensor type. Two backends are provided: flat msgpack files and an
// embedded SQLite database. Artifacts carry a format version; loading an
// incompatible artifact fails closed so the pipeline degrades to its
// untrained bootstrap state instead of scoring with garbage.
package modelstore

import (
	"context"
	"errors"

	"github.com/fieldwatch/fieldwatch/internal/detect"
	"github.com/fieldwatch/fieldwatch/internal/types"
)

// ErrNotFound reports that no artifact has been stored for a sensor type.
// Callers treat it as "never trained", not as a failure.
var ErrNotFound = errors.New("no model artifact for sensor type")

// Store is the persistence boundary for trained model state.
type Store interface {
	// Save persists the artifact for a sensor type, replacing any
	// previous artifact.
	Save(ctx context.Context, sensor types.SensorType, artifact *detect.ForestArtifact) error

	// Load retrieves the artifact for a sensor type. It returns
	// ErrNotFound when nothing has been saved, and types.ErrModelFormat
	// when the stored bytes are corrupt or version-incompatible.
	Load(ctx context.Context, sensor types.SensorType) (*detect.ForestArtifact, error)

	Close() error
}

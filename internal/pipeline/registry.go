// Package pipeline orchestrates the anomaly detection flow: it feeds
// readings into per-key window buffers, extracts features, scores them
// against the per-sensor-type outlier models, and emits anomaly events
// with calibrated confidence and severity.
package pipeline

import (
	"sync"

	"github.com/fieldwatch/fieldwatch/internal/detect"
	"github.com/fieldwatch/fieldwatch/internal/types"
)

// ModelRegistry holds the active outlier model for each sensor type.
// Models are read by many concurrent scoring calls and replaced wholesale
// on retraining; readers always observe either the fully-old or fully-new
// model, never a partial update.
type ModelRegistry struct {
	mu     sync.RWMutex
	models map[types.SensorType]*detect.Forest
}

// NewModelRegistry returns an empty registry.
func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{models: make(map[types.SensorType]*detect.Forest)}
}

// Get returns the active model for a sensor type, or nil when untrained.
func (r *ModelRegistry) Get(sensor types.SensorType) *detect.Forest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.models[sensor]
}

// Swap atomically replaces the active model for a sensor type.
func (r *ModelRegistry) Swap(sensor types.SensorType, f *detect.Forest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[sensor] = f
}

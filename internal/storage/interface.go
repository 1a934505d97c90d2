// Package storage defines the append-only record store boundary for
// readings, anomaly events, and recommendations, with a TimescaleDB
// (PostgreSQL) implementation.
package storage

import (
	"context"

	"github.com/fieldwatch/fieldwatch/internal/types"
)

// RecordStore is the persistence boundary the pipeline writes through.
// Records are append-only: nothing in the core mutates a persisted row.
type RecordStore interface {
	// SaveReading persists a reading and assigns its ID.
	SaveReading(ctx context.Context, r *types.Reading) error

	// SaveAnomalyEvent persists an emitted anomaly event.
	SaveAnomalyEvent(ctx context.Context, ev *types.AnomalyEvent) error

	// SaveRecommendation persists a recommendation.
	SaveRecommendation(ctx context.Context, rec *types.Recommendation) error

	// RecentReadings returns up to count of the most recent readings for
	// one plot and sensor type, ordered oldest first so they can be
	// re-windowed directly.
	RecentReadings(ctx context.Context, plotID int64, sensor types.SensorType, count int) ([]types.Reading, error)

	Close() error
}

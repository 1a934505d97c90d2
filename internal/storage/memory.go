package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/fieldwatch/fieldwatch/internal/types"
)

// MemoryStore is an in-process record store used by the simulator and in
// tests. Same append-only semantics as the database-backed store.
type MemoryStore struct {
	mu              sync.Mutex
	nextID          int64
	readings        map[string][]types.Reading // keyed by plot/sensor
	events          []types.AnomalyEvent
	recommendations []types.Recommendation
}

// NewMemoryStore returns an empty in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:   1,
		readings: make(map[string][]types.Reading),
	}
}

func recordKey(plotID int64, sensor types.SensorType) string {
	return fmt.Sprintf("%d/%s", plotID, sensor)
}

func (s *MemoryStore) SaveReading(_ context.Context, r *types.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		r.ID = s.nextID
		s.nextID++
	}
	key := recordKey(r.PlotID, r.SensorType)
	s.readings[key] = append(s.readings[key], *r)
	return nil
}

func (s *MemoryStore) SaveAnomalyEvent(_ context.Context, ev *types.AnomalyEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *ev)
	return nil
}

func (s *MemoryStore) SaveRecommendation(_ context.Context, rec *types.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recommendations = append(s.recommendations, *rec)
	return nil
}

func (s *MemoryStore) RecentReadings(_ context.Context, plotID int64, sensor types.SensorType, count int) ([]types.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.readings[recordKey(plotID, sensor)]
	if len(all) > count {
		all = all[len(all)-count:]
	}
	out := make([]types.Reading, len(all))
	copy(out, all)
	return out, nil
}

// Events returns a copy of all persisted anomaly events.
func (s *MemoryStore) Events() []types.AnomalyEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.AnomalyEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Recommendations returns a copy of all persisted recommendations.
func (s *MemoryStore) Recommendations() []types.Recommendation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Recommendation, len(s.recommendations))
	copy(out, s.recommendations)
	return out
}

func (s *MemoryStore) Close() error { return nil }

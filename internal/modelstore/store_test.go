package modelstore

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/fieldwatch/fieldwatch/internal/detect"
	"github.com/fieldwatch/fieldwatch/internal/types"
)

func trainedForest(t *testing.T, seed int64) *detect.Forest {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	baseline := make([]types.FeatureVector, 200)
	for i := range baseline {
		mean := 50 + rng.NormFloat64()*2
		std := 5 + rng.NormFloat64()*0.5
		baseline[i] = types.FeatureVector{
			Mean:   mean,
			StdDev: std,
			Min:    mean - 2*std,
			Max:    mean + 2*std,
			Range:  4 * std,
		}
	}
	forest, err := detect.TrainForest(context.Background(), baseline, 0.1, detect.ForestOptions{})
	if err != nil {
		t.Fatalf("training fixture forest: %v", err)
	}
	return forest
}

func probeVectors() []types.FeatureVector {
	return []types.FeatureVector{
		{Mean: 50, StdDev: 5, Min: 40, Max: 60, Range: 20},
		{Mean: 20, StdDev: 15, Min: 5, Max: 55, Range: 50},
		{Mean: 75, StdDev: 0.1, Min: 74.9, Max: 75.2, Range: 0.3},
	}
}

// The round-trip invariant: a loaded model scores every vector identically
// to the model that was stored.
func assertScoringIdentical(t *testing.T, original, restored *detect.Forest) {
	t.Helper()
	for i, v := range probeVectors() {
		rawA, outA, _ := original.Score(v)
		rawB, outB, err := restored.Score(v)
		if err != nil {
			t.Fatalf("probe %d: restored score failed: %v", i, err)
		}
		if rawA != rawB || outA != outB {
			t.Fatalf("probe %d diverged: (%v,%v) vs (%v,%v)", i, rawA, outA, rawB, outB)
		}
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	original := trainedForest(t, 1)

	if err := store.Save(ctx, types.SensorMoisture, original.Artifact()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	artifact, err := store.Load(ctx, types.SensorMoisture)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	restored, err := detect.ForestFromArtifact(artifact)
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	assertScoringIdentical(t, original, restored)
}

func TestFileStoreReplace(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	ctx := context.Background()

	first := trainedForest(t, 1)
	second := trainedForest(t, 2)

	store.Save(ctx, types.SensorHumidity, first.Artifact())
	store.Save(ctx, types.SensorHumidity, second.Artifact())

	artifact, err := store.Load(ctx, types.SensorHumidity)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if artifact.Threshold != second.Threshold() {
		t.Errorf("expected second model's threshold %v, got %v",
			second.Threshold(), artifact.Threshold)
	}
}

func TestFileStoreNotFound(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	if _, err := store.Load(context.Background(), types.SensorTemperature); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFileStoreCorruptArtifact(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}

	path := filepath.Join(dir, "moisture.model")
	if err := os.WriteFile(path, []byte("not a msgpack artifact"), 0o644); err != nil {
		t.Fatalf("writing corrupt file: %v", err)
	}

	if _, err := store.Load(context.Background(), types.SensorMoisture); !errors.Is(err, types.ErrModelFormat) {
		t.Errorf("expected ErrModelFormat, got %v", err)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "models.db"))
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	original := trainedForest(t, 3)

	if err := store.Save(ctx, types.SensorTemperature, original.Artifact()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	artifact, err := store.Load(ctx, types.SensorTemperature)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	restored, err := detect.ForestFromArtifact(artifact)
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	assertScoringIdentical(t, original, restored)
}

func TestSQLiteStoreNotFound(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "models.db"))
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	defer store.Close()

	if _, err := store.Load(context.Background(), types.SensorHumidity); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

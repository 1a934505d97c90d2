package detect

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/fieldwatch/fieldwatch/internal/types"
)

// syntheticBaseline builds feature vectors resembling windows of moisture
// readings uniformly distributed in [40, 60].
func syntheticBaseline(n int, seed int64) []types.FeatureVector {
	rng := rand.New(rand.NewSource(seed))
	out := make([]types.FeatureVector, n)
	for i := range out {
		vals := make([]float64, 10)
		for j := range vals {
			vals[j] = 40 + rng.Float64()*20
		}
		min, max := vals[0], vals[0]
		var sum float64
		for _, v := range vals {
			sum += v
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		mean := sum / float64(len(vals))
		var sq float64
		for _, v := range vals {
			sq += (v - mean) * (v - mean)
		}
		out[i] = types.FeatureVector{
			Mean:   mean,
			StdDev: math.Sqrt(sq / float64(len(vals)-1)),
			Min:    min,
			Max:    max,
			Range:  max - min,
		}
	}
	return out
}

func TestTrainForestValidation(t *testing.T) {
	baseline := syntheticBaseline(250, 1)

	tests := []struct {
		name          string
		baseline      []types.FeatureVector
		contamination float64
		wantErr       error
	}{
		{"too few vectors", baseline[:50], 0.1, types.ErrInsufficientBaseline},
		{"contamination zero", baseline, 0, nil},
		{"contamination too high", baseline, 0.5, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := TrainForest(context.Background(), tt.baseline, tt.contamination, ForestOptions{})
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestTrainForestContaminationCalibration(t *testing.T) {
	baseline := syntheticBaseline(200, 2)

	forest, err := TrainForest(context.Background(), baseline, 0.1, ForestOptions{})
	if err != nil {
		t.Fatalf("training failed: %v", err)
	}

	flagged := 0
	for _, v := range baseline {
		_, outlier, err := forest.Score(v)
		if err != nil {
			t.Fatalf("score failed: %v", err)
		}
		if outlier {
			flagged++
		}
	}

	// Roughly contamination * n of the baseline should re-score as outlier.
	frac := float64(flagged) / float64(len(baseline))
	if frac < 0.05 || frac > 0.15 {
		t.Errorf("expected ~10%% of baseline flagged, got %.1f%% (%d/%d)",
			frac*100, flagged, len(baseline))
	}
}

func TestForestFlagsExtremeVector(t *testing.T) {
	baseline := syntheticBaseline(250, 3)

	forest, err := TrainForest(context.Background(), baseline, 0.05, ForestOptions{})
	if err != nil {
		t.Fatalf("training failed: %v", err)
	}

	// A window that collapsed to a value of 5 is far outside the baseline.
	extreme := types.FeatureVector{Mean: 25, StdDev: 18, Min: 5, Max: 58, Range: 53}
	raw, outlier, err := forest.Score(extreme)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if !outlier {
		t.Errorf("extreme vector not flagged (raw %.4f, threshold %.4f)", raw, forest.Threshold())
	}

	// A typical baseline vector should stay quiet.
	typical := types.FeatureVector{Mean: 50, StdDev: 5.8, Min: 41, Max: 59, Range: 18}
	_, outlier, err = forest.Score(typical)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if outlier {
		t.Error("typical baseline vector flagged as outlier")
	}
}

func TestForestDeterminism(t *testing.T) {
	baseline := syntheticBaseline(200, 4)
	opts := ForestOptions{Seed: 99}

	a, err := TrainForest(context.Background(), baseline, 0.1, opts)
	if err != nil {
		t.Fatalf("training failed: %v", err)
	}
	b, err := TrainForest(context.Background(), baseline, 0.1, opts)
	if err != nil {
		t.Fatalf("training failed: %v", err)
	}

	if a.Threshold() != b.Threshold() {
		t.Errorf("same seed produced different thresholds: %v vs %v", a.Threshold(), b.Threshold())
	}
	for _, v := range baseline[:20] {
		ra, _, _ := a.Score(v)
		rb, _, _ := b.Score(v)
		if ra != rb {
			t.Fatalf("same seed produced different scores: %v vs %v", ra, rb)
		}
	}
}

func TestForestArtifactRoundTrip(t *testing.T) {
	baseline := syntheticBaseline(220, 5)

	original, err := TrainForest(context.Background(), baseline, 0.1, ForestOptions{})
	if err != nil {
		t.Fatalf("training failed: %v", err)
	}

	restored, err := ForestFromArtifact(original.Artifact())
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	if restored.Threshold() != original.Threshold() {
		t.Fatalf("threshold changed in round trip: %v vs %v",
			restored.Threshold(), original.Threshold())
	}

	probes := append(baseline[:50],
		types.FeatureVector{Mean: 10, StdDev: 1, Min: 8, Max: 12, Range: 4},
		types.FeatureVector{Mean: 90, StdDev: 30, Min: 40, Max: 130, Range: 90},
	)
	for i, v := range probes {
		rawA, outA, _ := original.Score(v)
		rawB, outB, err := restored.Score(v)
		if err != nil {
			t.Fatalf("restored score failed: %v", err)
		}
		if rawA != rawB || outA != outB {
			t.Fatalf("probe %d diverged after round trip: (%v,%v) vs (%v,%v)",
				i, rawA, outA, rawB, outB)
		}
	}
}

func TestForestArtifactVersionGate(t *testing.T) {
	baseline := syntheticBaseline(200, 6)
	forest, err := TrainForest(context.Background(), baseline, 0.1, ForestOptions{})
	if err != nil {
		t.Fatalf("training failed: %v", err)
	}

	artifact := forest.Artifact()
	artifact.FormatVersion = ArtifactFormatVersion + 1

	if _, err := ForestFromArtifact(artifact); !errors.Is(err, types.ErrModelFormat) {
		t.Errorf("expected ErrModelFormat for future version, got %v", err)
	}
}

func TestScoreUntrained(t *testing.T) {
	var f *Forest
	_, _, err := f.Score(types.FeatureVector{Mean: 1})
	if !errors.Is(err, types.ErrModelNotTrained) {
		t.Errorf("expected ErrModelNotTrained, got %v", err)
	}
}

func TestTrainForestCancellation(t *testing.T) {
	baseline := syntheticBaseline(200, 7)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := TrainForest(ctx, baseline, 0.1, ForestOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

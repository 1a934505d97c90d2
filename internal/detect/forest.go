package detect

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/fieldwatch/fieldwatch/internal/types"
)

// ArtifactFormatVersion is bumped whenever the persisted forest layout
// changes incompatibly. Loads of a different version fail closed.
const ArtifactFormatVersion = 1

// ForestOptions control ensemble construction. Zero values fall back to
// the defaults from DefaultForestOptions.
type ForestOptions struct {
	// Trees is the number of isolation trees in the ensemble.
	Trees int

	// SampleSize is the per-tree subsample size, capped at the baseline
	// size. It also fixes the path-length normalization constant.
	SampleSize int

	// MinBaseline is the minimum number of baseline vectors accepted by
	// Train.
	MinBaseline int

	// Seed makes tree construction reproducible.
	Seed int64
}

// DefaultForestOptions returns the standard ensemble parameters.
func DefaultForestOptions() ForestOptions {
	return ForestOptions{
		Trees:       100,
		SampleSize:  256,
		MinBaseline: 200,
		Seed:        42,
	}
}

func (o ForestOptions) withDefaults() ForestOptions {
	def := DefaultForestOptions()
	if o.Trees <= 0 {
		o.Trees = def.Trees
	}
	if o.SampleSize <= 0 {
		o.SampleSize = def.SampleSize
	}
	if o.MinBaseline <= 0 {
		o.MinBaseline = def.MinBaseline
	}
	if o.Seed == 0 {
		o.Seed = def.Seed
	}
	return o
}

// treeNode is one node of an isolation tree in flattened form. Children
// are indexes into the tree's node slice; leaves have Left == -1.
type treeNode struct {
	Feature int32   `msgpack:"f"`
	Split   float64 `msgpack:"v"`
	Left    int32   `msgpack:"l"`
	Right   int32   `msgpack:"r"`
	Size    int32   `msgpack:"n"`
}

// isoTree holds one randomized binary partition tree. Node 0 is the root.
type isoTree struct {
	Nodes []treeNode `msgpack:"nodes"`
}

// ForestArtifact is the serializable state of a fitted forest. The model
// store persists it verbatim; restoring it reproduces scoring exactly.
type ForestArtifact struct {
	FormatVersion int       `msgpack:"format_version"`
	Trees         []isoTree `msgpack:"trees"`
	SampleSize    int       `msgpack:"sample_size"`
	Threshold     float64   `msgpack:"threshold"`
	Contamination float64   `msgpack:"contamination"`
	TrainedAt     time.Time `msgpack:"trained_at"`
	SampleCount   int       `msgpack:"sample_count"`
}

// Forest is a fitted ensemble-of-random-partitions outlier model for one
// sensor type. It is immutable after training and safe for concurrent
// scoring; retraining builds a new Forest that replaces the old one
// wholesale.
type Forest struct {
	trees         []isoTree
	sampleSize    int
	threshold     float64
	contamination float64
	trainedAt     time.Time
	sampleCount   int
}

// TrainForest fits an isolation forest on baseline feature vectors.
// contamination must lie in (0, 0.5); it sets the score threshold at the
// (1-contamination) quantile of the baseline's own scores, so roughly that
// fraction of the baseline re-scores as outlier and the decision boundary
// is fixed by training data rather than live traffic.
//
// Training honors ctx between trees: a cancelled training run returns
// ctx.Err() and leaves no partial model behind.
func TrainForest(ctx context.Context, baseline []types.FeatureVector, contamination float64, opts ForestOptions) (*Forest, error) {
	opts = opts.withDefaults()

	if contamination <= 0 || contamination >= 0.5 {
		return nil, fmt.Errorf("contamination %v outside (0, 0.5)", contamination)
	}
	if len(baseline) < opts.MinBaseline {
		return nil, fmt.Errorf("have %d baseline vectors, need %d: %w",
			len(baseline), opts.MinBaseline, types.ErrInsufficientBaseline)
	}

	samples := make([][]float64, len(baseline))
	for i, v := range baseline {
		samples[i] = v.Values()
	}

	sampleSize := opts.SampleSize
	if sampleSize > len(samples) {
		sampleSize = len(samples)
	}
	maxDepth := int(math.Ceil(math.Log2(float64(sampleSize))))

	rng := rand.New(rand.NewSource(opts.Seed))
	trees := make([]isoTree, 0, opts.Trees)
	for i := 0; i < opts.Trees; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sub := subsample(samples, sampleSize, rng)
		var t isoTree
		buildNode(&t, sub, 0, maxDepth, rng)
		trees = append(trees, t)
	}

	f := &Forest{
		trees:         trees,
		sampleSize:    sampleSize,
		contamination: contamination,
		trainedAt:     time.Now().UTC(),
		sampleCount:   len(baseline),
	}

	// Calibrate the decision boundary on the baseline's own scores.
	scores := make([]float64, len(samples))
	for i, s := range samples {
		scores[i] = f.rawScore(s)
	}
	sort.Float64s(scores)
	f.threshold = stat.Quantile(1-contamination, stat.Empirical, scores, nil)

	return f, nil
}

// subsample picks size rows from samples without replacement.
func subsample(samples [][]float64, size int, rng *rand.Rand) [][]float64 {
	if len(samples) <= size {
		return samples
	}
	idx := rng.Perm(len(samples))[:size]
	sub := make([][]float64, size)
	for i, j := range idx {
		sub[i] = samples[j]
	}
	return sub
}

// buildNode appends a node isolating data to t and returns its index.
func buildNode(t *isoTree, data [][]float64, depth, maxDepth int, rng *rand.Rand) int32 {
	self := int32(len(t.Nodes))
	t.Nodes = append(t.Nodes, treeNode{Left: -1, Right: -1, Size: int32(len(data))})

	if len(data) <= 1 || depth >= maxDepth {
		return self
	}

	// Pick a feature with spread; a zero-variance subsample cannot be
	// split further and terminates as a leaf.
	feature, lo, hi, ok := pickSplitFeature(data, rng)
	if !ok {
		return self
	}
	split := lo + rng.Float64()*(hi-lo)

	var left, right [][]float64
	for _, row := range data {
		if row[feature] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return self
	}

	leftIdx := buildNode(t, left, depth+1, maxDepth, rng)
	rightIdx := buildNode(t, right, depth+1, maxDepth, rng)
	t.Nodes[self].Feature = int32(feature)
	t.Nodes[self].Split = split
	t.Nodes[self].Left = leftIdx
	t.Nodes[self].Right = rightIdx
	return self
}

// pickSplitFeature selects a random feature whose values in data are not
// all equal, returning its min and max.
func pickSplitFeature(data [][]float64, rng *rand.Rand) (feature int, lo, hi float64, ok bool) {
	order := rng.Perm(len(data[0]))
	for _, f := range order {
		lo, hi = data[0][f], data[0][f]
		for _, row := range data {
			if row[f] < lo {
				lo = row[f]
			}
			if row[f] > hi {
				hi = row[f]
			}
		}
		if lo < hi {
			return f, lo, hi, true
		}
	}
	return 0, 0, 0, false
}

// Score returns the raw anomaly score for v in [0, 1] and whether it
// exceeds the trained decision threshold. Higher scores are more anomalous.
func (f *Forest) Score(v types.FeatureVector) (raw float64, outlier bool, err error) {
	if f == nil || len(f.trees) == 0 {
		return 0, false, types.ErrModelNotTrained
	}
	raw = f.rawScore(v.Values())
	return raw, raw > f.threshold, nil
}

func (f *Forest) rawScore(sample []float64) float64 {
	var sum float64
	for i := range f.trees {
		sum += pathLength(&f.trees[i], sample)
	}
	avg := sum / float64(len(f.trees))
	return math.Pow(2, -avg/averagePathLength(float64(f.sampleSize)))
}

// pathLength walks sample down the tree; leaves holding more than one
// baseline point are credited the expected remaining depth for their size.
func pathLength(t *isoTree, sample []float64) float64 {
	depth := 0.0
	idx := int32(0)
	for {
		n := &t.Nodes[idx]
		if n.Left < 0 {
			if n.Size > 1 {
				return depth + averagePathLength(float64(n.Size))
			}
			return depth
		}
		depth++
		if sample[n.Feature] < n.Split {
			idx = n.Left
		} else {
			idx = n.Right
		}
	}
}

// eulerMascheroni approximates the harmonic number in the standard
// isolation-forest path-length normalization c(n).
const eulerMascheroni = 0.5772156649

func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	return 2*(math.Log(n-1)+eulerMascheroni) - 2*(n-1)/n
}

// Threshold returns the trained decision boundary.
func (f *Forest) Threshold() float64 { return f.threshold }

// TrainedAt returns when the forest was fitted.
func (f *Forest) TrainedAt() time.Time { return f.trainedAt }

// SampleCount returns the number of baseline vectors used for fitting.
func (f *Forest) SampleCount() int { return f.sampleCount }

// Artifact returns the serializable state of the forest.
func (f *Forest) Artifact() *ForestArtifact {
	return &ForestArtifact{
		FormatVersion: ArtifactFormatVersion,
		Trees:         f.trees,
		SampleSize:    f.sampleSize,
		Threshold:     f.threshold,
		Contamination: f.contamination,
		TrainedAt:     f.trainedAt,
		SampleCount:   f.sampleCount,
	}
}

// ForestFromArtifact restores a forest from persisted state. An artifact
// from an unknown format version is rejected so an incompatible trainer
// never silently misscores.
func ForestFromArtifact(a *ForestArtifact) (*Forest, error) {
	if a.FormatVersion != ArtifactFormatVersion {
		return nil, fmt.Errorf("artifact format_version %d, want %d: %w",
			a.FormatVersion, ArtifactFormatVersion, types.ErrModelFormat)
	}
	if len(a.Trees) == 0 || a.SampleSize <= 0 {
		return nil, fmt.Errorf("artifact has no fitted ensemble: %w", types.ErrModelFormat)
	}
	return &Forest{
		trees:         a.Trees,
		sampleSize:    a.SampleSize,
		threshold:     a.Threshold,
		contamination: a.Contamination,
		trainedAt:     a.TrainedAt,
		sampleCount:   a.SampleCount,
	}, nil
}

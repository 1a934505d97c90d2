package detect

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/fieldwatch/fieldwatch/internal/types"
)

// ExtractFeatures computes the summary statistics for one window. It is
// defined only for windows with at least two readings, since the sample
// standard deviation needs two points. A constant-valued window is valid
// and yields a zero standard deviation and range.
func ExtractFeatures(w *Window) (types.FeatureVector, error) {
	if len(w.Readings) < 2 {
		return types.FeatureVector{}, fmt.Errorf("window for %s has %d readings: %w",
			w.Key, len(w.Readings), types.ErrInsufficientData)
	}

	vals := w.Values()
	min := floats.Min(vals)
	max := floats.Max(vals)

	return types.FeatureVector{
		Mean:   stat.Mean(vals, nil),
		StdDev: stat.StdDev(vals, nil),
		Min:    min,
		Max:    max,
		Range:  max - min,
	}, nil
}

// ChangeRate returns the percent change from the oldest to the newest value
// in vals. A zero-valued start yields a zero rate rather than dividing by
// zero.
func ChangeRate(vals []float64) float64 {
	if len(vals) < 2 || vals[0] == 0 {
		return 0
	}
	return (vals[len(vals)-1] - vals[0]) / vals[0] * 100
}

// trendMajority is the fraction of successive deltas that must agree in
// direction before a window is classified as increasing or decreasing.
const trendMajority = 0.7

// ClassifyTrend labels the direction of vals. Fewer than three points is
// unknown; otherwise the label follows the majority direction of
// successive deltas, or fluctuating when neither direction dominates.
func ClassifyTrend(vals []float64) types.Trend {
	if len(vals) < 3 {
		return types.TrendUnknown
	}

	var ups, downs int
	for i := 1; i < len(vals); i++ {
		switch {
		case vals[i] > vals[i-1]:
			ups++
		case vals[i] < vals[i-1]:
			downs++
		}
	}

	total := float64(len(vals) - 1)
	switch {
	case float64(ups) > total*trendMajority:
		return types.TrendIncreasing
	case float64(downs) > total*trendMajority:
		return types.TrendDecreasing
	default:
		return types.TrendFluctuating
	}
}

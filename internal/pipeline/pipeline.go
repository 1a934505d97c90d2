package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldwatch/fieldwatch/internal/detect"
	"github.com/fieldwatch/fieldwatch/internal/metrics"
	"github.com/fieldwatch/fieldwatch/internal/modelstore"
	"github.com/fieldwatch/fieldwatch/internal/recommend"
	"github.com/fieldwatch/fieldwatch/internal/storage"
	"github.com/fieldwatch/fieldwatch/internal/types"
	"github.com/fieldwatch/fieldwatch/pkg/config"
)

// State tracks one (plot, sensor) stream through its lifecycle. Streams
// start untrained, collect baseline candidates while no model exists, and
// go active once a model is trained. Retraining re-enters active directly.
type State int

const (
	StateUntrained State = iota
	StateCollectingBaseline
	StateActive
)

func (s State) String() string {
	switch s {
	case StateCollectingBaseline:
		return "collecting_baseline"
	case StateActive:
		return "active"
	default:
		return "untrained"
	}
}

// SensorOverride adjusts detection tunables for one sensor type. Nil
// fields inherit the global option.
type SensorOverride struct {
	Contamination  *float64
	SeverityHigh   *float64
	SeverityMedium *float64
}

// Options are the detection tunables of a pipeline.
type Options struct {
	WindowSize         int
	MinBaseline        int
	MaxBaselineVectors int
	Contamination      float64
	Trees              int
	SampleSize         int
	Seed               int64
	SeverityHigh       float64
	SeverityMedium     float64
	BatchHistory       int
	Sensors            map[types.SensorType]SensorOverride
}

// OptionsFromConfig converts loaded configuration into pipeline options.
func OptionsFromConfig(d config.DetectionData) Options {
	opts := Options{
		WindowSize:         d.WindowSize,
		MinBaseline:        d.MinBaseline,
		MaxBaselineVectors: d.MaxBaselineVectors,
		Contamination:      d.Contamination,
		Trees:              d.Trees,
		SampleSize:         d.SampleSize,
		Seed:               d.Seed,
		SeverityHigh:       d.SeverityHigh,
		SeverityMedium:     d.SeverityMedium,
		BatchHistory:       d.BatchHistory,
	}
	if len(d.Sensors) > 0 {
		opts.Sensors = make(map[types.SensorType]SensorOverride, len(d.Sensors))
		for name, o := range d.Sensors {
			opts.Sensors[types.SensorType(name)] = SensorOverride{
				Contamination:  o.Contamination,
				SeverityHigh:   o.SeverityHigh,
				SeverityMedium: o.SeverityMedium,
			}
		}
	}
	return opts
}

// slot owns the window buffer for one (plot, sensor) key. Appends to the
// same key are serialized by the slot mutex; distinct keys proceed in
// parallel.
type slot struct {
	mu    sync.Mutex
	buf   *detect.WindowBuffer
	state State
}

// Pipeline is the synchronous per-reading entry point of the detection
// flow. Buffers are created lazily per key and live for the process
// lifetime, bounded by the number of live plot/sensor combinations.
type Pipeline struct {
	opts     Options
	logger   *zap.SugaredLogger
	registry *ModelRegistry
	models   modelstore.Store    // nil disables artifact persistence
	records  storage.RecordStore // nil disables record persistence
	engine   *recommend.Engine

	mu    sync.Mutex
	slots map[detect.Key]*slot

	baselineMu sync.Mutex
	baselines  map[types.SensorType][]types.FeatureVector
}

// New creates a pipeline. registry and engine are required; models and
// records may be nil for in-process use.
func New(opts Options, registry *ModelRegistry, models modelstore.Store, records storage.RecordStore, engine *recommend.Engine, logger *zap.SugaredLogger) *Pipeline {
	return &Pipeline{
		opts:      opts,
		logger:    logger,
		registry:  registry,
		models:    models,
		records:   records,
		engine:    engine,
		slots:     make(map[detect.Key]*slot),
		baselines: make(map[types.SensorType][]types.FeatureVector),
	}
}

// LoadModels restores persisted model artifacts for every sensor type.
// A missing artifact leaves that sensor in bootstrap; a corrupt or
// incompatible one is logged and skipped so the sensor degrades to
// bootstrap instead of scoring with garbage state. Other sensor types
// are unaffected.
func (p *Pipeline) LoadModels(ctx context.Context) {
	if p.models == nil {
		return
	}
	for _, sensor := range types.AllSensorTypes {
		artifact, err := p.models.Load(ctx, sensor)
		if errors.Is(err, modelstore.ErrNotFound) {
			p.logger.Debugw("no persisted model", "sensor_type", sensor)
			continue
		}
		if err != nil {
			p.logger.Warnw("failed to load persisted model, sensor stays untrained",
				"sensor_type", sensor, "error", err)
			continue
		}
		forest, err := detect.ForestFromArtifact(artifact)
		if err != nil {
			p.logger.Warnw("persisted model rejected, sensor stays untrained",
				"sensor_type", sensor, "error", err)
			continue
		}
		p.registry.Swap(sensor, forest)
		metrics.ModelActive.WithLabelValues(string(sensor)).Set(1)
		p.logger.Infow("model restored",
			"sensor_type", sensor,
			"trained_at", forest.TrainedAt(),
			"sample_count", forest.SampleCount(),
			"threshold", forest.Threshold())
	}
}

func (p *Pipeline) slotFor(key detect.Key) *slot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.slots[key]
	if !ok {
		s = &slot{buf: detect.NewWindowBuffer(key, p.opts.WindowSize)}
		p.slots[key] = s
	}
	return s
}

// State reports the lifecycle state of one (plot, sensor) stream.
func (p *Pipeline) State(key detect.Key) State {
	p.mu.Lock()
	s, ok := p.slots[key]
	p.mu.Unlock()
	if !ok {
		return StateUntrained
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SubmitReading pushes one reading through the pipeline. It returns the
// emitted anomaly event, or nil when the window is incomplete, the model
// is untrained (bootstrap), or the window scored as normal — silence is
// the expected common case. Per-reading errors are local: a rejected
// reading never corrupts buffers or aborts the stream.
func (p *Pipeline) SubmitReading(ctx context.Context, r types.Reading) (*types.AnomalyEvent, error) {
	if !r.SensorType.Valid() {
		metrics.SchemaRejectionsTotal.Inc()
		return nil, fmt.Errorf("reading for plot %d has unregistered sensor type %q: %w",
			r.PlotID, r.SensorType, types.ErrSchema)
	}

	if p.records != nil {
		if err := p.records.SaveReading(ctx, &r); err != nil {
			// Persistence trouble must not stall detection.
			p.logger.Errorw("failed to persist reading", "plot_id", r.PlotID,
				"sensor_type", r.SensorType, "error", err)
		}
	}

	key := detect.Key{PlotID: r.PlotID, SensorType: r.SensorType}
	s := p.slotFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	win, stale, err := s.buf.Append(r)
	if err != nil {
		metrics.SchemaRejectionsTotal.Inc()
		return nil, err
	}
	metrics.ReadingsTotal.WithLabelValues(string(r.SensorType)).Inc()
	if stale {
		metrics.StaleReadingsTotal.WithLabelValues(string(r.SensorType)).Inc()
		p.logger.Warnw("stale reading accepted out of order",
			"plot_id", r.PlotID, "sensor_type", r.SensorType, "time", r.Timestamp)
	}

	if win == nil {
		return nil, nil
	}

	features, err := detect.ExtractFeatures(win)
	if err != nil {
		// A full window is always long enough; guard anyway and skip.
		p.logger.Debugw("skipping window", "key", key, "error", err)
		return nil, nil
	}

	model := p.registry.Get(r.SensorType)
	if model == nil {
		s.state = StateCollectingBaseline
		p.addBaseline(r.SensorType, features)
		return nil, nil
	}
	s.state = StateActive

	raw, outlier, err := model.Score(features)
	if err != nil {
		return nil, fmt.Errorf("scoring window for %s: %w", key, err)
	}
	if !outlier {
		return nil, nil
	}

	vals := win.Values()
	newest := win.Newest()
	confidence := p.confidence(raw, model.Threshold())
	severity := p.severityFor(r.SensorType, confidence)

	event := &types.AnomalyEvent{
		ID:                  uuid.NewString(),
		PlotID:              r.PlotID,
		SensorType:          r.SensorType,
		Timestamp:           newest.Timestamp,
		RawScore:            raw,
		Confidence:          confidence,
		Severity:            severity,
		TriggeringReadingID: newest.ID,
		TriggeringValue:     newest.Value,
		Features:            features,
		ChangeRate:          detect.ChangeRate(vals),
		Trend:               detect.ClassifyTrend(vals),
	}

	metrics.AnomalyEventsTotal.WithLabelValues(string(r.SensorType), string(severity)).Inc()
	p.logger.Infow("anomaly detected",
		"event", event.ID,
		"plot_id", event.PlotID,
		"sensor_type", event.SensorType,
		"raw_score", raw,
		"confidence", confidence,
		"severity", severity,
		"value", newest.Value)

	if p.records != nil {
		if err := p.records.SaveAnomalyEvent(ctx, event); err != nil {
			p.logger.Errorw("failed to persist anomaly event", "event", event.ID, "error", err)
		}
	}
	return event, nil
}

// addBaseline accumulates a bootstrap candidate, keeping only the most
// recent MaxBaselineVectors per sensor type.
func (p *Pipeline) addBaseline(sensor types.SensorType, v types.FeatureVector) {
	p.baselineMu.Lock()
	defer p.baselineMu.Unlock()
	vecs := append(p.baselines[sensor], v)
	if max := p.opts.MaxBaselineVectors; max > 0 && len(vecs) > max {
		vecs = vecs[len(vecs)-max:]
	}
	p.baselines[sensor] = vecs
	metrics.BaselineVectors.WithLabelValues(string(sensor)).Set(float64(len(vecs)))
}

// BaselineCount reports how many baseline candidates have accumulated for
// a sensor type while bootstrapping.
func (p *Pipeline) BaselineCount(sensor types.SensorType) int {
	p.baselineMu.Lock()
	defer p.baselineMu.Unlock()
	return len(p.baselines[sensor])
}

// TrainModel fits a new outlier model for a sensor type and swaps it in
// atomically. An empty baseline uses the candidates accumulated during
// bootstrap. A failed or cancelled training attempt leaves the previously
// active model untouched.
func (p *Pipeline) TrainModel(ctx context.Context, sensor types.SensorType, baseline []types.FeatureVector, contamination float64) (*types.TrainingResult, error) {
	if !sensor.Valid() {
		return nil, fmt.Errorf("cannot train for sensor type %q: %w", sensor, types.ErrSchema)
	}
	if contamination == 0 {
		contamination = p.contaminationFor(sensor)
	}
	if len(baseline) == 0 {
		p.baselineMu.Lock()
		baseline = make([]types.FeatureVector, len(p.baselines[sensor]))
		copy(baseline, p.baselines[sensor])
		p.baselineMu.Unlock()
	}

	forest, err := detect.TrainForest(ctx, baseline, contamination, detect.ForestOptions{
		Trees:       p.opts.Trees,
		SampleSize:  p.opts.SampleSize,
		MinBaseline: p.opts.MinBaseline,
		Seed:        p.opts.Seed,
	})
	metrics.RecordTrainingRun(string(sensor), err)
	if err != nil {
		return nil, fmt.Errorf("training %s model: %w", sensor, err)
	}

	p.registry.Swap(sensor, forest)
	metrics.ModelActive.WithLabelValues(string(sensor)).Set(1)

	// Bootstrap candidates served their purpose.
	p.baselineMu.Lock()
	delete(p.baselines, sensor)
	p.baselineMu.Unlock()
	metrics.BaselineVectors.WithLabelValues(string(sensor)).Set(0)

	if p.models != nil {
		if err := p.models.Save(ctx, sensor, forest.Artifact()); err != nil {
			p.logger.Warnw("trained model active but not persisted",
				"sensor_type", sensor, "error", err)
		}
	}

	result := &types.TrainingResult{
		SensorType:  sensor,
		TrainedAt:   forest.TrainedAt(),
		SampleCount: forest.SampleCount(),
		Threshold:   forest.Threshold(),
	}
	p.logger.Infow("model trained",
		"sensor_type", sensor,
		"sample_count", result.SampleCount,
		"threshold", result.Threshold,
		"contamination", contamination)
	return result, nil
}

// ScoreBatch re-scores the recent history of the given plots for one
// sensor type against the active model, returning every window that
// classifies as an outlier. It requires a trained model and a record
// store to pull history from.
func (p *Pipeline) ScoreBatch(ctx context.Context, sensor types.SensorType, plotIDs []int64) ([]types.AnomalyEvent, error) {
	model := p.registry.Get(sensor)
	if model == nil {
		return nil, fmt.Errorf("batch scoring %s: %w", sensor, types.ErrModelNotTrained)
	}
	if p.records == nil {
		return nil, fmt.Errorf("batch scoring %s: no record store configured", sensor)
	}

	var events []types.AnomalyEvent
	for _, plotID := range plotIDs {
		readings, err := p.records.RecentReadings(ctx, plotID, sensor, p.opts.BatchHistory)
		if err != nil {
			return nil, err
		}
		if len(readings) < p.opts.WindowSize {
			continue
		}

		key := detect.Key{PlotID: plotID, SensorType: sensor}
		buf := detect.NewWindowBuffer(key, p.opts.WindowSize)
		for _, r := range readings {
			win, _, err := buf.Append(r)
			if err != nil || win == nil {
				continue
			}
			features, err := detect.ExtractFeatures(win)
			if err != nil {
				continue
			}
			raw, outlier, err := model.Score(features)
			if err != nil || !outlier {
				continue
			}

			vals := win.Values()
			newest := win.Newest()
			confidence := p.confidence(raw, model.Threshold())
			severity := p.severityFor(sensor, confidence)
			events = append(events, types.AnomalyEvent{
				ID:                  uuid.NewString(),
				PlotID:              plotID,
				SensorType:          sensor,
				Timestamp:           newest.Timestamp,
				RawScore:            raw,
				Confidence:          confidence,
				Severity:            severity,
				TriggeringReadingID: newest.ID,
				TriggeringValue:     newest.Value,
				Features:            features,
				ChangeRate:          detect.ChangeRate(vals),
				Trend:               detect.ClassifyTrend(vals),
			})
		}
	}
	return events, nil
}

// Recommend maps an anomaly event to its recommendation and persists it
// when a record store is configured.
func (p *Pipeline) Recommend(ctx context.Context, ev types.AnomalyEvent) types.Recommendation {
	rec := p.engine.Recommend(ev)
	if p.records != nil {
		if err := p.records.SaveRecommendation(ctx, &rec); err != nil {
			p.logger.Errorw("failed to persist recommendation", "event", ev.ID, "error", err)
		}
	}
	return rec
}

// confidence maps a raw score above the trained threshold onto [0, 1],
// increasing monotonically with the exceedance and saturating at 1.
func (p *Pipeline) confidence(raw, threshold float64) float64 {
	denom := 1 - threshold
	if denom <= 0 {
		return 1
	}
	c := (raw - threshold) / denom
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func (p *Pipeline) severityFor(sensor types.SensorType, confidence float64) types.Severity {
	high, medium := p.opts.SeverityHigh, p.opts.SeverityMedium
	if o, ok := p.opts.Sensors[sensor]; ok {
		if o.SeverityHigh != nil {
			high = *o.SeverityHigh
		}
		if o.SeverityMedium != nil {
			medium = *o.SeverityMedium
		}
	}
	switch {
	case confidence >= high:
		return types.SeverityHigh
	case confidence >= medium:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}

func (p *Pipeline) contaminationFor(sensor types.SensorType) float64 {
	if o, ok := p.opts.Sensors[sensor]; ok && o.Contamination != nil {
		return *o.Contamination
	}
	return p.opts.Contamination
}

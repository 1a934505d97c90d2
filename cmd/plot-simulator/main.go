// Command plot-simulator generates synthetic sensor readings for a set of
// plots and drives the detection pipeline in-process. It bootstraps a
// baseline from healthy traffic, trains the per-sensor models, then
// injects an anomaly scenario and prints the events and recommendations
// the pipeline produces.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/fieldwatch/fieldwatch/internal/pipeline"
	"github.com/fieldwatch/fieldwatch/internal/recommend"
	"github.com/fieldwatch/fieldwatch/internal/storage"
	"github.com/fieldwatch/fieldwatch/internal/types"
	"github.com/fieldwatch/fieldwatch/pkg/config"
)

const (
	defaultPlots    = 3
	defaultInterval = time.Minute
	defaultBaseline = 300
	defaultAnomaly  = 120
)

// sensorProfile describes healthy behavior for one sensor type.
type sensorProfile struct {
	base      float64
	amplitude float64 // slow sinusoidal swing over the day
	noise     float64
	min, max  float64
}

var profiles = map[types.SensorType]sensorProfile{
	types.SensorMoisture:    {base: 60, amplitude: 5, noise: 2, min: 0, max: 100},
	types.SensorTemperature: {base: 23, amplitude: 4, noise: 0.8, min: -10, max: 50},
	types.SensorHumidity:    {base: 60, amplitude: 8, noise: 3, min: 0, max: 100},
}

// PlotSimulator generates readings for every plot and sensor type and
// applies the selected anomaly scenario once models are trained.
type PlotSimulator struct {
	rng      *rand.Rand
	scenario string
	plots    int
	interval time.Duration
	logger   *log.Logger

	// scenario state
	scenarioStart int
	spikeLeft     map[int64]int // per plot
}

func main() {
	var (
		plots        = flag.Int("plots", defaultPlots, "Number of plots to simulate")
		interval     = flag.Duration("interval", defaultInterval, "Simulated time between readings")
		baselineLen  = flag.Int("baseline", defaultBaseline, "Healthy readings per plot/sensor before training")
		anomalyLen   = flag.Int("anomaly", defaultAnomaly, "Readings per plot/sensor after the scenario starts")
		scenario     = flag.String("scenario", "drift", "Anomaly scenario: drift, spike, dropout, none")
		seed         = flag.Int64("seed", time.Now().UnixNano(), "Random seed")
		realtime     = flag.Bool("realtime", false, "Sleep between ticks instead of running flat out")
		tickInterval = flag.Duration("tick", time.Second, "Wall-clock pause per tick in realtime mode")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[plot-simulator] ", log.LstdFlags)

	switch *scenario {
	case "drift", "spike", "dropout", "none":
	default:
		logger.Fatalf("Unknown scenario %q: use drift, spike, dropout, or none", *scenario)
	}

	sim := &PlotSimulator{
		rng:       rand.New(rand.NewSource(*seed)),
		scenario:  *scenario,
		plots:     *plots,
		interval:  *interval,
		logger:    logger,
		spikeLeft: make(map[int64]int),
	}

	zapLogger := zap.NewNop().Sugar()
	records := storage.NewMemoryStore()
	engine := recommend.NewEngine(recommend.DefaultRules(), zapLogger)
	opts := pipeline.OptionsFromConfig(config.DefaultDetection())
	p := pipeline.New(opts, pipeline.NewModelRegistry(), nil, records, engine, zapLogger)

	ctx := context.Background()
	if err := sim.Run(ctx, p, *baselineLen, *anomalyLen, *realtime, *tickInterval); err != nil {
		logger.Fatalf("Simulation failed: %v", err)
	}

	logger.Printf("Done: %d anomaly events, %d recommendations",
		len(records.Events()), len(records.Recommendations()))
}

// Run drives the three phases: bootstrap, training, anomaly injection.
func (s *PlotSimulator) Run(ctx context.Context, p *pipeline.Pipeline, baselineLen, anomalyLen int, realtime bool, tick time.Duration) error {
	start := time.Now().Add(-time.Duration(baselineLen+anomalyLen) * s.interval)

	s.logger.Printf("Bootstrapping: %d healthy readings per plot/sensor across %d plots", baselineLen, s.plots)
	for i := 0; i < baselineLen; i++ {
		ts := start.Add(time.Duration(i) * s.interval)
		if err := s.emitTick(ctx, p, i, ts, false); err != nil {
			return err
		}
		if realtime {
			time.Sleep(tick)
		}
	}

	for _, sensor := range types.AllSensorTypes {
		s.logger.Printf("Training %s model on %d baseline windows", sensor, p.BaselineCount(sensor))
		result, err := p.TrainModel(ctx, sensor, nil, 0)
		if err != nil {
			return fmt.Errorf("training %s: %w", sensor, err)
		}
		s.logger.Printf("Trained %s: %d samples, threshold %.4f", sensor, result.SampleCount, result.Threshold)
	}

	if s.scenario == "none" {
		s.logger.Println("No anomaly scenario selected; stopping after training")
		return nil
	}

	s.logger.Printf("Injecting %q scenario for %d readings per plot/sensor", s.scenario, anomalyLen)
	s.scenarioStart = baselineLen
	for i := 0; i < anomalyLen; i++ {
		ts := start.Add(time.Duration(baselineLen+i) * s.interval)
		if err := s.emitTick(ctx, p, baselineLen+i, ts, true); err != nil {
			return err
		}
		if realtime {
			time.Sleep(tick)
		}
	}
	return nil
}

func (s *PlotSimulator) emitTick(ctx context.Context, p *pipeline.Pipeline, tick int, ts time.Time, anomalous bool) error {
	for plot := int64(1); plot <= int64(s.plots); plot++ {
		for _, sensor := range types.AllSensorTypes {
			value := s.healthyValue(sensor, tick)
			if anomalous {
				value = s.applyScenario(plot, sensor, value, tick)
			}

			r := types.Reading{
				PlotID:     plot,
				SensorType: sensor,
				Value:      value,
				Timestamp:  ts,
			}
			event, err := p.SubmitReading(ctx, r)
			if err != nil {
				return err
			}
			if event == nil {
				continue
			}

			rec := p.Recommend(ctx, *event)
			s.logger.Printf("ANOMALY plot=%d sensor=%s value=%.1f severity=%s confidence=%.2f trend=%s",
				event.PlotID, event.SensorType, event.TriggeringValue,
				event.Severity, event.Confidence, event.Trend)
			s.logger.Printf("  -> %s", rec.Action)
		}
	}
	return nil
}

// healthyValue follows a slow daily cycle plus gaussian noise, clamped to
// the sensor's physical range.
func (s *PlotSimulator) healthyValue(sensor types.SensorType, tick int) float64 {
	prof := profiles[sensor]
	phase := float64(tick) * s.interval.Minutes() / (24 * 60) * 2 * math.Pi
	value := prof.base + prof.amplitude*math.Sin(phase) + s.rng.NormFloat64()*prof.noise
	return clamp(value, prof.min, prof.max)
}

func (s *PlotSimulator) applyScenario(plot int64, sensor types.SensorType, value float64, tick int) float64 {
	prof := profiles[sensor]
	switch s.scenario {
	case "drift":
		// Moisture drains steadily, the signature of failed irrigation.
		if sensor == types.SensorMoisture {
			value -= 0.25 * float64(tick-s.scenarioStart)
		}
	case "spike":
		// Occasional short-lived extreme excursions on every sensor.
		if s.spikeLeft[plot] == 0 && s.rng.Float64() < 0.05 {
			s.spikeLeft[plot] = 3
		}
		if s.spikeLeft[plot] > 0 {
			s.spikeLeft[plot]--
			if s.rng.Float64() < 0.5 {
				value = prof.max * 0.95
			} else {
				value = prof.min + (prof.max-prof.min)*0.02
			}
		}
	case "dropout":
		// Sensor fault: the value collapses to near zero and stays there.
		value = prof.min + s.rng.Float64()*2
	}
	return clamp(value, prof.min, prof.max)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

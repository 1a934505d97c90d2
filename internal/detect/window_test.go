package detect

import (
	"errors"
	"testing"
	"time"

	"github.com/fieldwatch/fieldwatch/internal/types"
)

func moistureReading(plot int64, value float64, ts time.Time) types.Reading {
	return types.Reading{
		PlotID:     plot,
		SensorType: types.SensorMoisture,
		Value:      value,
		Timestamp:  ts,
	}
}

func TestWindowBufferWarmup(t *testing.T) {
	key := Key{PlotID: 1, SensorType: types.SensorMoisture}
	buf := NewWindowBuffer(key, 10)
	start := time.Date(2025, time.June, 1, 8, 0, 0, 0, time.UTC)

	// No window until capacity is reached.
	for i := 0; i < 9; i++ {
		win, stale, err := buf.Append(moistureReading(1, 50, start.Add(time.Duration(i)*time.Minute)))
		if err != nil {
			t.Fatalf("append %d: unexpected error: %v", i, err)
		}
		if stale {
			t.Errorf("append %d: unexpected stale flag", i)
		}
		if win != nil {
			t.Fatalf("append %d: window emitted before warm-up", i)
		}
	}

	win, _, err := buf.Append(moistureReading(1, 55, start.Add(9*time.Minute)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if win == nil {
		t.Fatal("expected window at capacity")
	}
	if len(win.Readings) != 10 {
		t.Fatalf("expected 10 readings in window, got %d", len(win.Readings))
	}
	if win.Newest().Value != 55 {
		t.Errorf("expected newest value 55, got %v", win.Newest().Value)
	}
}

func TestWindowBufferSlidingEviction(t *testing.T) {
	key := Key{PlotID: 1, SensorType: types.SensorMoisture}
	buf := NewWindowBuffer(key, 3)
	start := time.Date(2025, time.June, 1, 8, 0, 0, 0, time.UTC)

	values := []float64{1, 2, 3, 4, 5, 6}
	var lastWin *Window
	for i, v := range values {
		win, _, err := buf.Append(moistureReading(1, v, start.Add(time.Duration(i)*time.Minute)))
		if err != nil {
			t.Fatalf("append %v: %v", v, err)
		}
		if i >= 2 && win == nil {
			t.Fatalf("append %v: expected sliding window once warmed up", v)
		}
		if win != nil {
			lastWin = win
		}
		if buf.Len() > 3 {
			t.Fatalf("buffer exceeded capacity: %d", buf.Len())
		}
	}

	got := lastWin.Values()
	want := []float64{4, 5, 6}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("window value %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestWindowSnapshotIsolation(t *testing.T) {
	key := Key{PlotID: 1, SensorType: types.SensorMoisture}
	buf := NewWindowBuffer(key, 2)
	start := time.Date(2025, time.June, 1, 8, 0, 0, 0, time.UTC)

	buf.Append(moistureReading(1, 10, start))
	win, _, _ := buf.Append(moistureReading(1, 20, start.Add(time.Minute)))
	buf.Append(moistureReading(1, 99, start.Add(2*time.Minute)))

	if got := win.Values(); got[0] != 10 || got[1] != 20 {
		t.Errorf("emitted window mutated by later append: %v", got)
	}
}

func TestWindowBufferSchemaRejection(t *testing.T) {
	key := Key{PlotID: 1, SensorType: types.SensorMoisture}
	buf := NewWindowBuffer(key, 3)
	ts := time.Date(2025, time.June, 1, 8, 0, 0, 0, time.UTC)

	buf.Append(moistureReading(1, 50, ts))

	tests := []struct {
		name    string
		reading types.Reading
	}{
		{
			name:    "unregistered sensor type",
			reading: types.Reading{PlotID: 1, SensorType: "pressure", Value: 1000, Timestamp: ts},
		},
		{
			name:    "wrong plot",
			reading: moistureReading(2, 50, ts),
		},
		{
			name:    "wrong sensor for key",
			reading: types.Reading{PlotID: 1, SensorType: types.SensorHumidity, Value: 60, Timestamp: ts},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			win, _, err := buf.Append(tt.reading)
			if !errors.Is(err, types.ErrSchema) {
				t.Fatalf("expected ErrSchema, got %v", err)
			}
			if win != nil {
				t.Error("rejected reading must not emit a window")
			}
		})
	}

	// The rejection must not corrupt buffered state.
	if buf.Len() != 1 {
		t.Errorf("buffer corrupted by rejected readings: len %d", buf.Len())
	}
}

func TestWindowBufferStaleReading(t *testing.T) {
	key := Key{PlotID: 1, SensorType: types.SensorMoisture}
	buf := NewWindowBuffer(key, 5)
	ts := time.Date(2025, time.June, 1, 8, 0, 0, 0, time.UTC)

	buf.Append(moistureReading(1, 50, ts))
	_, stale, err := buf.Append(moistureReading(1, 51, ts.Add(-time.Minute)))
	if err != nil {
		t.Fatalf("out-of-order reading must not fail: %v", err)
	}
	if !stale {
		t.Error("expected stale flag for out-of-order reading")
	}
	if buf.Len() != 2 {
		t.Errorf("stale reading should still be appended, len %d", buf.Len())
	}
}

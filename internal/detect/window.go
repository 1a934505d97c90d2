// Package detect implements the statistical core of the anomaly pipeline:
// per-plot sliding windows over raw readings, feature extraction, and an
// isolation-forest outlier model with a contamination-calibrated decision
// threshold.
package detect

import (
	"fmt"

	"github.com/fieldwatch/fieldwatch/internal/types"
)

// Key identifies one independent sensor stream.
type Key struct {
	PlotID     int64
	SensorType types.SensorType
}

func (k Key) String() string {
	return fmt.Sprintf("plot %d/%s", k.PlotID, k.SensorType)
}

// Window is a snapshot of the most recent readings for one key, oldest
// first. Snapshots are copies; later appends to the buffer do not mutate
// an emitted window.
type Window struct {
	Key      Key
	Readings []types.Reading
}

// Values returns the reading values in window order.
func (w *Window) Values() []float64 {
	vals := make([]float64, len(w.Readings))
	for i, r := range w.Readings {
		vals[i] = r.Value
	}
	return vals
}

// Newest returns the most recent reading in the window.
func (w *Window) Newest() types.Reading {
	return w.Readings[len(w.Readings)-1]
}

// WindowBuffer accumulates readings for a single (plot, sensor) key and
// emits sliding windows once warmed up. Capacity is fixed at construction;
// the oldest reading is evicted on overflow.
type WindowBuffer struct {
	key      Key
	capacity int
	readings []types.Reading
}

// NewWindowBuffer creates a buffer for key holding at most capacity readings.
func NewWindowBuffer(key Key, capacity int) *WindowBuffer {
	return &WindowBuffer{
		key:      key,
		capacity: capacity,
		readings: make([]types.Reading, 0, capacity),
	}
}

// Key returns the stream key this buffer accepts.
func (b *WindowBuffer) Key() Key { return b.key }

// Len returns the number of readings currently buffered.
func (b *WindowBuffer) Len() int { return len(b.readings) }

// Append adds a reading to the buffer. It rejects readings whose key does
// not match the buffer's key. A reading older than the newest buffered
// reading is still accepted but flagged stale, since sensors may deliver
// slightly out of order.
//
// Once the buffer has reached capacity, every append emits a new window
// snapshot (sliding, not tumbling): the oldest reading is evicted and the
// remaining N most recent readings are re-emitted.
func (b *WindowBuffer) Append(r types.Reading) (win *Window, stale bool, err error) {
	if !r.SensorType.Valid() {
		return nil, false, fmt.Errorf("unregistered sensor type %q: %w", r.SensorType, types.ErrSchema)
	}
	if r.PlotID != b.key.PlotID || r.SensorType != b.key.SensorType {
		return nil, false, fmt.Errorf("reading for plot %d/%s offered to buffer for %s: %w",
			r.PlotID, r.SensorType, b.key, types.ErrSchema)
	}

	if n := len(b.readings); n > 0 && r.Timestamp.Before(b.readings[n-1].Timestamp) {
		stale = true
	}

	if len(b.readings) == b.capacity {
		copy(b.readings, b.readings[1:])
		b.readings[len(b.readings)-1] = r
	} else {
		b.readings = append(b.readings, r)
	}

	if len(b.readings) < b.capacity {
		return nil, stale, nil
	}

	snapshot := make([]types.Reading, len(b.readings))
	copy(snapshot, b.readings)
	return &Window{Key: b.key, Readings: snapshot}, stale, nil
}

package types

import "errors"

// Sentinel errors for the detection pipeline. Callers match these with
// errors.Is; all wrapping adds context with fmt.Errorf("...: %w", err).
var (
	// ErrSchema marks a malformed or mismatched reading. The reading is
	// rejected; the buffer it was aimed at is left untouched.
	ErrSchema = errors.New("reading does not match buffer schema")

	// ErrInsufficientData marks feature extraction on a window that is too
	// short for a defined standard deviation.
	ErrInsufficientData = errors.New("window too short for feature extraction")

	// ErrInsufficientBaseline marks a training call with fewer baseline
	// vectors than the configured minimum. The previous model, if any, is
	// retained untouched.
	ErrInsufficientBaseline = errors.New("not enough baseline vectors to train")

	// ErrModelNotTrained marks scoring against an unfitted model. During
	// live ingest this is the bootstrap state, not a user-facing failure.
	ErrModelNotTrained = errors.New("outlier model not trained")

	// ErrModelFormat marks a corrupt or version-incompatible persisted
	// model artifact. Loads fail closed; the sensor pipeline stays
	// untrained rather than scoring with garbage state.
	ErrModelFormat = errors.New("incompatible model artifact format")
)

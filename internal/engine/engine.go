package engine

import (
	"context"
	"errors"
)

// ErrEngineUnavailable marks an engine call that failed or timed out.
// The caller skips the round and retries on the next cadence tick.
var ErrEngineUnavailable = errors.New("engine unavailable")

// ErrEmptyResult marks an engine call that returned no usable text.
var ErrEmptyResult = errors.New("empty transcription result")

// Segment is a timestamped span of transcribed text. Times are seconds
// relative to the start of the submitted chunk.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is the outcome of one transcription call. Segments are optional;
// engines that return plain text leave them empty and the caller derives
// approximate token timing by interpolation.
type Result struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments,omitempty"`
}

// Engine is the external speech-to-text collaborator: a blocking call that
// transcribes one block of mono PCM samples at a fixed rate, optionally
// biased by a short textual prompt. Must be safe to call with an empty
// prompt. The call is not cancellable mid-inference; ctx bounds the wait,
// not the engine's work.
type Engine interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int, prompt string) (*Result, error)
}

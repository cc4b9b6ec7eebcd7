// Package stream contains the streaming controller that turns a blocking,
// chunk-based transcription engine into an incremental transcript: it owns
// the sample buffer, the activity gate, hypothesis reconciliation and the
// commit timers, and emits Temporary/Confirmed/Final events.
package stream

// Package audio provides the bounded sample buffer that backs incremental
// transcription, plus WAV encoding for shipping snapshots to the engine.
package audio

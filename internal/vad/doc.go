// Package vad implements energy-based voice activity detection with
// debounced state transitions.
package vad

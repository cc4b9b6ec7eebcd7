package vad

import (
	"math"
	"testing"
)

func constantBlock(amplitude float32, n int) []float32 {
	block := make([]float32, n)
	for i := range block {
		block[i] = amplitude
	}
	return block
}

func TestNewGate(t *testing.T) {
	tests := []struct {
		name        string
		threshold   float64
		debounce    float64
		sampleRate  int
		expectError bool
	}{
		{name: "valid parameters", threshold: 0.02, debounce: 0.3, sampleRate: 16000},
		{name: "zero threshold", threshold: 0, debounce: 0.3, sampleRate: 16000, expectError: true},
		{name: "threshold too high", threshold: 1.0, debounce: 0.3, sampleRate: 16000, expectError: true},
		{name: "negative debounce", threshold: 0.02, debounce: -1, sampleRate: 16000, expectError: true},
		{name: "zero sample rate", threshold: 0.02, debounce: 0.3, sampleRate: 0, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGate(tt.threshold, tt.debounce, tt.sampleRate)
			if tt.expectError && err == nil {
				t.Errorf("Expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestRMS(t *testing.T) {
	tests := []struct {
		name     string
		samples  []float32
		expected float64
	}{
		{name: "empty", samples: nil, expected: 0},
		{name: "silence", samples: make([]float32, 100), expected: 0},
		{name: "constant amplitude", samples: constantBlock(0.5, 100), expected: 0.5},
		{name: "alternating sign", samples: []float32{0.5, -0.5, 0.5, -0.5}, expected: 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RMS(tt.samples)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("Expected RMS %f, got %f", tt.expected, got)
			}
		})
	}
}

func TestGateDebounce(t *testing.T) {
	gate, err := NewGate(0.1, 0.5, 1000)
	if err != nil {
		t.Fatalf("Failed to create gate: %v", err)
	}

	loud := constantBlock(0.5, 400) // 0.4 seconds per block

	// The flip to active must persist for the debounce duration.
	gate.Classify(loud)
	if gate.Active() {
		t.Errorf("Expected inactive after first loud block")
	}
	gate.Classify(loud)
	if gate.Active() {
		t.Errorf("Expected inactive before debounce elapsed")
	}
	gate.Classify(loud)
	if !gate.Active() {
		t.Errorf("Expected active after debounce elapsed")
	}
}

func TestGateDebounceRevert(t *testing.T) {
	gate, _ := NewGate(0.1, 0.5, 1000)

	loud := constantBlock(0.5, 400)
	quiet := make([]float32, 400)

	// A candidate flip that reverts before the debounce elapses is discarded.
	gate.Classify(loud)
	gate.Classify(quiet)
	gate.Classify(loud)
	gate.Classify(loud)
	if gate.Active() {
		t.Errorf("Expected flip discarded by intervening silence")
	}
	gate.Classify(loud)
	if !gate.Active() {
		t.Errorf("Expected active after uninterrupted persistence")
	}
}

func TestGateTimeSinceLastActivity(t *testing.T) {
	gate, _ := NewGate(0.1, 0.5, 1000)

	// A stream with no voice counts silence from the start.
	gate.Classify(make([]float32, 2000))
	if got := gate.TimeSinceLastActivity(); math.Abs(got-2.0) > 1e-9 {
		t.Errorf("Expected 2.0 seconds of silence, got %f", got)
	}
}

func TestGateSilenceAfterVoice(t *testing.T) {
	gate, _ := NewGate(0.1, 0.5, 1000)

	loud := constantBlock(0.5, 400)
	quiet := make([]float32, 400)

	// Confirm voice.
	gate.Classify(loud)
	gate.Classify(loud)
	gate.Classify(loud)
	if !gate.Active() {
		t.Fatalf("Expected active gate")
	}
	if got := gate.TimeSinceLastActivity(); got != 0 {
		t.Errorf("Expected zero silence while active, got %f", got)
	}

	// Silence accrues only after the gate flips inactive.
	gate.Classify(quiet)
	gate.Classify(quiet)
	gate.Classify(quiet)
	if gate.Active() {
		t.Fatalf("Expected inactive gate after debounced silence")
	}
	if got := gate.TimeSinceLastActivity(); math.Abs(got-0.4) > 1e-9 {
		t.Errorf("Expected 0.4 seconds of silence, got %f", got)
	}

	gate.Classify(quiet)
	if got := gate.TimeSinceLastActivity(); math.Abs(got-0.8) > 1e-9 {
		t.Errorf("Expected 0.8 seconds of silence, got %f", got)
	}
}

func TestGateClockAndReset(t *testing.T) {
	gate, _ := NewGate(0.1, 0.5, 1000)

	gate.Classify(make([]float32, 1500))
	if got := gate.Clock(); math.Abs(got-1.5) > 1e-9 {
		t.Errorf("Expected clock 1.5, got %f", got)
	}

	gate.Reset()
	if got := gate.Clock(); got != 0 {
		t.Errorf("Expected clock 0 after reset, got %f", got)
	}
	if gate.Active() {
		t.Errorf("Expected inactive after reset")
	}

	stats := gate.GetStats()
	if stats.TotalBlocks != 0 || stats.VoiceBlocks != 0 {
		t.Errorf("Expected zeroed stats after reset, got %+v", stats)
	}
}

func TestGateStats(t *testing.T) {
	gate, _ := NewGate(0.1, 0, 1000)

	loud := constantBlock(0.5, 100)
	quiet := make([]float32, 100)

	gate.Classify(quiet)
	gate.Classify(loud)
	gate.Classify(loud)
	gate.Classify(loud)

	stats := gate.GetStats()
	if stats.TotalBlocks != 4 {
		t.Errorf("Expected 4 blocks classified, got %d", stats.TotalBlocks)
	}
	if stats.VoiceBlocks == 0 {
		t.Errorf("Expected some voice blocks")
	}
	if stats.Threshold != 0.1 {
		t.Errorf("Expected threshold 0.1, got %f", stats.Threshold)
	}
}

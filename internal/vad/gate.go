package vad

import (
	"fmt"
	"math"
	"sync"
)

// Gate classifies audio blocks as voice or silence using RMS energy against
// a configurable threshold, with debouncing: a state flip (silence<->voice)
// is only confirmed after the raw classification persists for the debounce
// duration. A candidate flip that reverts before that is discarded.
//
// The gate keeps time in stream seconds derived from ingested sample counts
// rather than wall clock, so its behavior is a pure function of the audio.
type Gate struct {
	threshold  float64
	debounce   float64 // seconds a candidate flip must persist
	sampleRate int

	active         bool
	candidate      bool    // raw state of a pending flip
	candidateSince float64 // stream time the pending flip started
	hasCandidate   bool

	clock       float64 // total seconds of audio classified
	lastVoiceAt float64 // stream time voice was last confirmed active

	// Statistics
	totalBlocks uint64
	voiceBlocks uint64

	mu sync.Mutex
}

// Result is the outcome of classifying one block of samples.
type Result struct {
	Active bool    `json:"active"` // confirmed (debounced) voice state
	RMS    float64 `json:"rms"`
}

// GateStats represents gate statistics for monitoring.
type GateStats struct {
	Threshold       float64 `json:"threshold"`
	Active          bool    `json:"active"`
	TotalBlocks     uint64  `json:"total_blocks"`
	VoiceBlocks     uint64  `json:"voice_blocks"`
	VoicePercentage float64 `json:"voice_percentage"`
	ClockSeconds    float64 `json:"clock_seconds"`
}

// NewGate creates a voice activity gate. threshold is the RMS level above
// which a block counts as voice; debounce is the seconds a flip must persist
// before it takes effect.
func NewGate(threshold, debounce float64, sampleRate int) (*Gate, error) {
	if threshold <= 0 || threshold >= 1 {
		return nil, fmt.Errorf("threshold must be in (0, 1), got %f", threshold)
	}
	if debounce < 0 {
		return nil, fmt.Errorf("debounce must be non-negative, got %f", debounce)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	return &Gate{
		threshold:  threshold,
		debounce:   debounce,
		sampleRate: sampleRate,
	}, nil
}

// Classify processes one block of samples and returns the debounced voice
// state plus the block's RMS energy. Advances the gate's stream clock by the
// block duration.
func (g *Gate) Classify(samples []float32) Result {
	g.mu.Lock()
	defer g.mu.Unlock()

	rms := RMS(samples)
	g.clock += float64(len(samples)) / float64(g.sampleRate)
	g.totalBlocks++

	raw := rms >= g.threshold

	if raw == g.active {
		// Raw agrees with the confirmed state; discard any pending flip.
		g.hasCandidate = false
	} else if !g.hasCandidate || g.candidate != raw {
		// New candidate flip starts its persistence window.
		g.hasCandidate = true
		g.candidate = raw
		g.candidateSince = g.clock
	} else if g.clock-g.candidateSince >= g.debounce {
		g.active = raw
		g.hasCandidate = false
	}

	if g.active {
		g.lastVoiceAt = g.clock
		g.voiceBlocks++
	}

	return Result{Active: g.active, RMS: rms}
}

// TimeSinceLastActivity returns stream seconds elapsed since voice was last
// confirmed active. Stream start counts as activity, so a stream that never
// carried voice reports the time since start.
func (g *Gate) TimeSinceLastActivity() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.clock - g.lastVoiceAt
}

// Active returns the current confirmed voice state.
func (g *Gate) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// Clock returns the total seconds of audio classified so far.
func (g *Gate) Clock() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.clock
}

// Reset clears all debounce state and statistics.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.active = false
	g.hasCandidate = false
	g.clock = 0
	g.lastVoiceAt = 0
	g.totalBlocks = 0
	g.voiceBlocks = 0
}

// GetStats returns current gate statistics.
func (g *Gate) GetStats() GateStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	voicePct := float64(0)
	if g.totalBlocks > 0 {
		voicePct = float64(g.voiceBlocks) / float64(g.totalBlocks) * 100
	}

	return GateStats{
		Threshold:       g.threshold,
		Active:          g.active,
		TotalBlocks:     g.totalBlocks,
		VoiceBlocks:     g.voiceBlocks,
		VoicePercentage: voicePct,
		ClockSeconds:    g.clock,
	}
}

// RMS computes the root-mean-square energy of a sample block.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

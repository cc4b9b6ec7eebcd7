package audio

import (
	"fmt"
	"sync"
)

// SampleBuffer accumulates mono float32 PCM samples for a single stream.
// It keeps a bounded trailing window of audio and tracks how many seconds
// have been discarded from the front (the time offset), so that positions
// inside the buffer can always be mapped back to stream-relative time.
//
// Invariant: TimeOffset() + Duration() equals the stream-relative timestamp
// of the newest sample.
type SampleBuffer struct {
	sampleRate  int
	maxDuration float64 // trailing window ceiling in seconds

	samples    []float32
	timeOffset float64 // seconds discarded from the front

	// Statistics
	totalSamples  uint64
	totalTrimmed  uint64
	appendedCount uint64

	mu sync.Mutex
}

// BufferStats represents buffer statistics for monitoring.
type BufferStats struct {
	SampleRate      int     `json:"sample_rate"`
	DurationSeconds float64 `json:"duration_seconds"`
	TimeOffset      float64 `json:"time_offset_seconds"`
	TotalSamples    uint64  `json:"total_samples"`
	TrimmedSamples  uint64  `json:"trimmed_samples"`
	Appends         uint64  `json:"appends"`
}

// NewSampleBuffer creates a sample buffer for the given rate with a maximum
// retained duration in seconds.
func NewSampleBuffer(sampleRate int, maxDuration float64) (*SampleBuffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if maxDuration <= 0 {
		return nil, fmt.Errorf("max duration must be positive, got %f", maxDuration)
	}

	return &SampleBuffer{
		sampleRate:  sampleRate,
		maxDuration: maxDuration,
		samples:     make([]float32, 0, sampleRate*2),
	}, nil
}

// Append adds new samples to the end of the buffer. If the retained duration
// would exceed the configured ceiling, the oldest samples are discarded and
// the time offset advances. The returned value is the number of seconds
// discarded by this call, so dependent structures can purge state that
// refers to audio no longer held.
func (b *SampleBuffer) Append(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = append(b.samples, samples...)
	b.totalSamples += uint64(len(samples))
	b.appendedCount++

	maxSamples := int(b.maxDuration * float64(b.sampleRate))
	if len(b.samples) <= maxSamples {
		return 0
	}

	drop := len(b.samples) - maxSamples
	return b.dropFrontLocked(drop)
}

// TrimBefore discards audio older than stream-relative time t. Trimming never
// shrinks the buffer below zero length and never moves the offset backwards.
// Returns the number of seconds discarded.
func (b *SampleBuffer) TrimBefore(t float64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t <= b.timeOffset {
		return 0
	}

	drop := int((t - b.timeOffset) * float64(b.sampleRate))
	if drop > len(b.samples) {
		drop = len(b.samples)
	}
	return b.dropFrontLocked(drop)
}

// dropFrontLocked removes n samples from the front and advances the offset.
// Caller holds b.mu.
func (b *SampleBuffer) dropFrontLocked(n int) float64 {
	if n <= 0 {
		return 0
	}

	copy(b.samples, b.samples[n:])
	b.samples = b.samples[:len(b.samples)-n]
	b.totalTrimmed += uint64(n)

	advanced := float64(n) / float64(b.sampleRate)
	b.timeOffset += advanced
	return advanced
}

// Snapshot returns an immutable copy of the current contents together with
// the stream-relative time of the first returned sample. The copy decouples
// in-flight transcription reads from concurrent appends and trims.
func (b *SampleBuffer) Snapshot() ([]float32, float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]float32, len(b.samples))
	copy(out, b.samples)
	return out, b.timeOffset
}

// Duration returns the seconds of audio currently held.
func (b *SampleBuffer) Duration() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return float64(len(b.samples)) / float64(b.sampleRate)
}

// TimeOffset returns the seconds already discarded from the front.
func (b *SampleBuffer) TimeOffset() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.timeOffset
}

// EndTime returns the stream-relative timestamp of the newest sample.
func (b *SampleBuffer) EndTime() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.timeOffset + float64(len(b.samples))/float64(b.sampleRate)
}

// SampleRate returns the configured sample rate.
func (b *SampleBuffer) SampleRate() int {
	return b.sampleRate
}

// Reset clears all audio and rewinds the offset to zero.
func (b *SampleBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = b.samples[:0]
	b.timeOffset = 0
	b.totalSamples = 0
	b.totalTrimmed = 0
	b.appendedCount = 0
}

// GetStats returns current buffer statistics.
func (b *SampleBuffer) GetStats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BufferStats{
		SampleRate:      b.sampleRate,
		DurationSeconds: float64(len(b.samples)) / float64(b.sampleRate),
		TimeOffset:      b.timeOffset,
		TotalSamples:    b.totalSamples,
		TrimmedSamples:  b.totalTrimmed,
		Appends:         b.appendedCount,
	}
}

package stream

import "github.com/Onesoul0606/WhisperSTT/internal/transcript"

// EventKind tags the transcript event variants.
type EventKind int

const (
	// KindTemporary marks a revisable low-latency result. A temporary
	// event may be superseded and never appear again.
	KindTemporary EventKind = iota
	// KindConfirmed marks text appended to the growing transcript. It is
	// never revised except via hallucination rollback.
	KindConfirmed
	// KindFinal marks the end of an utterance; presentation should start
	// a new segment.
	KindFinal
)

// String returns a human-readable kind name.
func (k EventKind) String() string {
	switch k {
	case KindTemporary:
		return "temporary"
	case KindConfirmed:
		return "confirmed"
	case KindFinal:
		return "final"
	default:
		return "unknown"
	}
}

// Event is one transcript event delivered to the consumer. Events are
// delivered in the order their underlying audio occurs; no uniqueness
// guarantee exists between Temporary and Confirmed events covering
// overlapping audio.
type Event interface {
	Kind() EventKind
}

// Temporary is a revisable transcription preview.
type Temporary struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Kind implements Event.
func (Temporary) Kind() EventKind { return KindTemporary }

// Confirmed carries tokens committed to the transcript.
type Confirmed struct {
	Text   string             `json:"text"`
	Tokens []transcript.Token `json:"tokens,omitempty"`
}

// Kind implements Event.
func (Confirmed) Kind() EventKind { return KindConfirmed }

// Final marks the end of an utterance.
type Final struct{}

// Kind implements Event.
func (Final) Kind() EventKind { return KindFinal }

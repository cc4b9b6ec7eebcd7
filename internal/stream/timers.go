package stream

import "time"

// SilenceTimers holds the two deadlines measured from the last detected
// voice activity, plus the absolute ceiling on how long an unconfirmed
// hypothesis may stay unflushed.
type SilenceTimers struct {
	// TempFlush is the silence in seconds after which the pending
	// hypothesis is re-emitted as a Temporary event.
	TempFlush float64
	// FinalCommit is the silence in seconds after which pending tokens
	// are force-committed and the utterance is finalized.
	FinalCommit float64
	// PendingTimeout bounds the staleness of the pending hypothesis
	// regardless of voice activity.
	PendingTimeout time.Duration
}

// TempDue reports whether the temporary-flush deadline has passed.
func (t SilenceTimers) TempDue(silenceSeconds float64) bool {
	return silenceSeconds >= t.TempFlush
}

// FinalDue reports whether the final-commit deadline has passed.
func (t SilenceTimers) FinalDue(silenceSeconds float64) bool {
	return silenceSeconds >= t.FinalCommit
}

// PendingExpired reports whether a hypothesis pending since the given time
// has exceeded the staleness ceiling. A zero since time means nothing is
// pending.
func (t SilenceTimers) PendingExpired(since, now time.Time) bool {
	if since.IsZero() {
		return false
	}
	return now.Sub(since) >= t.PendingTimeout
}

package transcript

import "fmt"

// timeEpsilon absorbs re-segmentation jitter at chunk boundaries when
// filtering stale tokens from a fresh transcription pass.
const timeEpsilon = 0.1

// maxDedupNgram bounds the overlap search between the committed tail and
// the head of an incoming pass.
const maxDedupNgram = 5

// Hypothesis reconciles successive transcriptions of overlapping audio
// windows using LocalAgreement-N: a token is committed only once N
// consecutive passes agree on it from the start of the unconfirmed region.
//
// Not safe for concurrent use; the streaming controller owns the instance
// and funnels all mutation through its own critical section.
type Hypothesis struct {
	agreementN int

	committed []Token
	pending   []Token // unconfirmed tail from the previous pass
	counts    []int   // consecutive passes each pending token has been seen in
	incoming  []Token // staged by Insert, consumed by Flush

	lastCommitted float64 // end time of the most recently committed token

	// Statistics
	passes          uint64
	tokensCommitted uint64
	tokensDropped   uint64
}

// NewHypothesis creates a reconciliation buffer committing after n
// consecutive agreeing passes. n must be at least 2: a single observation
// is not evidence of stability.
func NewHypothesis(n int) (*Hypothesis, error) {
	if n < 2 {
		return nil, fmt.Errorf("agreement window must be at least 2, got %d", n)
	}
	return &Hypothesis{agreementN: n}, nil
}

// Insert stages the tokens of a fresh transcription pass. Tokens already
// superseded by committed output are dropped, then the leading n-gram that
// duplicates the committed tail (the engine re-emits context because the
// audio window overlaps committed audio) is removed.
func (h *Hypothesis) Insert(tokens []Token) {
	h.passes++

	filtered := make([]Token, 0, len(tokens))
	for _, t := range tokens {
		if t.End <= h.lastCommitted {
			h.tokensDropped++
			continue
		}
		filtered = append(filtered, t)
	}

	filtered = h.dropCommittedOverlap(filtered)
	h.incoming = filtered
}

// dropCommittedOverlap removes the first k tokens of in when they exactly
// repeat (normalized) the last k committed tokens, for the smallest
// matching k in 1..maxDedupNgram.
func (h *Hypothesis) dropCommittedOverlap(in []Token) []Token {
	kMax := maxDedupNgram
	if len(h.committed) < kMax {
		kMax = len(h.committed)
	}
	if len(in) < kMax {
		kMax = len(in)
	}

	for k := 1; k <= kMax; k++ {
		match := true
		tail := h.committed[len(h.committed)-k:]
		for i := 0; i < k; i++ {
			if Normalize(tail[i].Text) != Normalize(in[i].Text) {
				match = false
				break
			}
		}
		if match {
			h.tokensDropped += uint64(k)
			return in[k:]
		}
	}
	return in
}

// Flush compares the staged pass against the pending hypothesis and commits
// the leading tokens observed in agreementN consecutive passes, using the
// newest pass's timestamps. The uncommitted remainder becomes the pending
// hypothesis for the next round. A pass with no staged tokens is a no-op.
func (h *Hypothesis) Flush() []Token {
	in := h.incoming
	h.incoming = nil
	if len(in) == 0 {
		return nil
	}

	// Extend per-position observation counts over the agreeing prefix.
	agree := 0
	limit := len(h.pending)
	if len(in) < limit {
		limit = len(in)
	}
	for agree < limit && Normalize(h.pending[agree].Text) == Normalize(in[agree].Text) {
		agree++
	}

	counts := make([]int, len(in))
	for i := range counts {
		counts[i] = 1
	}
	for i := 0; i < agree; i++ {
		counts[i] = h.counts[i] + 1
	}

	commit := 0
	for commit < len(in) && counts[commit] >= h.agreementN {
		commit++
	}

	out := make([]Token, commit)
	copy(out, in[:commit])

	if commit > 0 {
		h.lastCommitted = out[commit-1].End
		h.committed = append(h.committed, out...)
		h.tokensCommitted += uint64(commit)
	}

	h.pending = in[commit:]
	h.counts = counts[commit:]
	return out
}

// ForceCommit commits all pending tokens immediately, bypassing the
// agreement requirement. Used when silence or a staleness deadline is
// itself evidence of stability.
func (h *Hypothesis) ForceCommit() []Token {
	if len(h.pending) == 0 {
		return nil
	}

	out := h.pending
	h.pending = nil
	h.counts = nil
	h.incoming = nil

	h.lastCommitted = out[len(out)-1].End
	h.committed = append(h.committed, out...)
	h.tokensCommitted += uint64(len(out))
	return out
}

// Reset returns the buffer to its initial empty state so the owner can be
// reused for a new stream starting at time zero.
func (h *Hypothesis) Reset() {
	h.committed = nil
	h.pending = nil
	h.counts = nil
	h.incoming = nil
	h.lastCommitted = 0
	h.passes = 0
	h.tokensCommitted = 0
	h.tokensDropped = 0
}

// ClearPending discards the unconfirmed hypothesis and any staged pass.
// Used on hallucination recovery.
func (h *Hypothesis) ClearPending() {
	h.pending = nil
	h.counts = nil
	h.incoming = nil
}

// Rollback truncates up to n tokens from the committed tail and returns how
// many were removed. lastCommitted never moves backwards past the remaining
// tail, so re-transcriptions of rolled-back audio are still filtered by
// their own merit rather than silently re-committed out of order.
func (h *Hypothesis) Rollback(n int) int {
	if n <= 0 || len(h.committed) == 0 {
		return 0
	}
	if n > len(h.committed) {
		n = len(h.committed)
	}

	h.committed = h.committed[:len(h.committed)-n]
	return n
}

// PurgeCommittedBefore drops committed tokens whose end time is at or
// before t, typically after the sample buffer trimmed audio older than t.
func (h *Hypothesis) PurgeCommittedBefore(t float64) {
	i := 0
	for i < len(h.committed) && h.committed[i].End <= t+timeEpsilon {
		i++
	}
	if i > 0 {
		h.committed = append([]Token(nil), h.committed[i:]...)
	}
}

// Committed returns the committed token history. The returned slice must
// not be mutated.
func (h *Hypothesis) Committed() []Token {
	return h.committed
}

// Pending returns the current unconfirmed hypothesis. The returned slice
// must not be mutated.
func (h *Hypothesis) Pending() []Token {
	return h.pending
}

// LastCommittedTime returns the end time of the most recently committed
// token. Non-decreasing over the life of the stream.
func (h *Hypothesis) LastCommittedTime() float64 {
	return h.lastCommitted
}

// HypothesisStats represents reconciliation statistics for monitoring.
type HypothesisStats struct {
	Passes          uint64  `json:"passes"`
	TokensCommitted uint64  `json:"tokens_committed"`
	TokensDropped   uint64  `json:"tokens_dropped"`
	PendingTokens   int     `json:"pending_tokens"`
	CommittedTokens int     `json:"committed_tokens"`
	LastCommitted   float64 `json:"last_committed_seconds"`
}

// GetStats returns current reconciliation statistics.
func (h *Hypothesis) GetStats() HypothesisStats {
	return HypothesisStats{
		Passes:          h.passes,
		TokensCommitted: h.tokensCommitted,
		TokensDropped:   h.tokensDropped,
		PendingTokens:   len(h.pending),
		CommittedTokens: len(h.committed),
		LastCommitted:   h.lastCommitted,
	}
}

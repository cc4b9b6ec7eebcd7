package transcript

import "strings"

// DefaultDenylist holds known degenerate filler that speech models emit on
// silence or noise. Domain-tunable mitigation, not a correctness guarantee.
var DefaultDenylist = []string{
	"thank you for watching",
	"thanks for watching",
	"please subscribe",
	"subscribe to my channel",
	"[blank_audio]",
	"[music]",
	"[silence]",
}

// Verdict is the outcome of screening one transcription result.
type Verdict struct {
	Hallucination bool
	Reason        string
}

// Guard screens transcription results for degenerate repeated output.
// It carries the repetition counter across results: an engine that keeps
// returning the same text for fresh audio is hallucinating.
//
// Not safe for concurrent use; owned by the streaming controller.
type Guard struct {
	maxTokens       int // sanity ceiling on tokens per result
	repeatThreshold int // consecutive identical results before flagging
	denylist        []string

	prevNormalized string
	repeatCount    int

	// Statistics
	checked uint64
	flagged uint64
}

// NewGuard creates a hallucination guard. maxTokens bounds the token count
// of a single result; repeatThreshold is the number of consecutive
// identical results that triggers detection.
func NewGuard(maxTokens, repeatThreshold int, denylist []string) *Guard {
	if maxTokens <= 0 {
		maxTokens = 50
	}
	if repeatThreshold <= 0 {
		repeatThreshold = 3
	}
	normalized := make([]string, 0, len(denylist))
	for _, d := range denylist {
		if n := Normalize(d); n != "" {
			normalized = append(normalized, n)
		}
	}
	return &Guard{
		maxTokens:       maxTokens,
		repeatThreshold: repeatThreshold,
		denylist:        normalized,
	}
}

// Check screens one transcription result. Each heuristic is an independent
// trigger; any one suffices. Accepted results update the repetition state.
func (g *Guard) Check(text string) Verdict {
	g.checked++
	words := NormalizeWords(text)
	normalized := strings.Join(words, " ")

	if normalized != "" && normalized == g.prevNormalized {
		g.repeatCount++
	} else {
		g.prevNormalized = normalized
		g.repeatCount = 1
	}

	switch {
	case g.repeatCount >= g.repeatThreshold:
		return g.flag("exact result repeated")
	case len(words) > g.maxTokens:
		return g.flag("token count over ceiling")
	case hasRepeatedPattern(words, 2) || hasRepeatedPattern(words, 3):
		return g.flag("repeated token pattern")
	case dominantToken(words):
		return g.flag("single token dominates")
	case g.matchesDenylist(normalized):
		return g.flag("denylisted filler")
	}

	return Verdict{}
}

func (g *Guard) flag(reason string) Verdict {
	g.flagged++
	return Verdict{Hallucination: true, Reason: reason}
}

// Reset clears the repetition state, called after hallucination recovery.
func (g *Guard) Reset() {
	g.prevNormalized = ""
	g.repeatCount = 0
}

// GuardStats represents guard statistics for monitoring.
type GuardStats struct {
	Checked uint64 `json:"checked"`
	Flagged uint64 `json:"flagged"`
}

// GetStats returns current guard statistics.
func (g *Guard) GetStats() GuardStats {
	return GuardStats{Checked: g.checked, Flagged: g.flagged}
}

func (g *Guard) matchesDenylist(normalized string) bool {
	if normalized == "" {
		return false
	}
	for _, d := range g.denylist {
		if strings.Contains(normalized, d) {
			return true
		}
	}
	return false
}

// hasRepeatedPattern reports whether a contiguous n-token pattern repeats
// at least three times in a row.
func hasRepeatedPattern(words []string, n int) bool {
	const repeats = 3
	if len(words) < n*repeats {
		return false
	}

	for start := 0; start+n*repeats <= len(words); start++ {
		match := true
		for rep := 1; rep < repeats && match; rep++ {
			for i := 0; i < n; i++ {
				if words[start+i] != words[start+rep*n+i] {
					match = false
					break
				}
			}
		}
		if match {
			return true
		}
	}
	return false
}

// dominantToken reports whether a single token accounts for more than
// ceil(len/3) occurrences and more than 5 occurrences.
func dominantToken(words []string) bool {
	if len(words) == 0 {
		return false
	}

	freq := make(map[string]int, len(words))
	for _, w := range words {
		freq[w]++
	}

	ceiling := (len(words) + 2) / 3
	for _, count := range freq {
		if count > ceiling && count > 5 {
			return true
		}
	}
	return false
}

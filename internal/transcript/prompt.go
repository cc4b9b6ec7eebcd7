package transcript

import "strings"

// PromptBuilder derives a bounded textual context from committed history.
// The prompt biases the engine toward continuing the transcript, so it is
// screened for self-reinforcing repetition before use: priming the engine
// with a hallucinated prompt tends to continue the hallucination, and an
// empty prompt is the safer fallback.
type PromptBuilder struct {
	charBudget int
	denylist   []string
}

// NewPromptBuilder creates a builder with the given character budget.
// denylist entries are normalized fragments that disqualify a prompt.
func NewPromptBuilder(charBudget int, denylist []string) *PromptBuilder {
	normalized := make([]string, 0, len(denylist))
	for _, d := range denylist {
		if n := Normalize(d); n != "" {
			normalized = append(normalized, n)
		}
	}
	return &PromptBuilder{charBudget: charBudget, denylist: normalized}
}

// Build returns at most charBudget characters of trailing committed context,
// or the empty string when the candidate looks degenerate.
func (p *PromptBuilder) Build(committed []Token) string {
	if p.charBudget <= 0 || len(committed) == 0 {
		return ""
	}

	// Walk backwards collecting whole tokens until the budget is spent;
	// truncation happens at token granularity, from the front.
	var words []string
	length := 0
	for i := len(committed) - 1; i >= 0; i-- {
		w := committed[i].Text
		add := len(w)
		if length > 0 {
			add++ // joining space
		}
		if length+add > p.charBudget {
			break
		}
		words = append(words, w)
		length += add
	}
	if len(words) == 0 {
		return ""
	}

	// Reverse into natural order.
	for i, j := 0, len(words)-1; i < j; i, j = i+1, j-1 {
		words[i], words[j] = words[j], words[i]
	}

	candidate := strings.Join(words, " ")
	if p.suspicious(candidate) {
		return ""
	}
	return candidate
}

// suspicious reports whether the candidate prompt shows degenerate
// repetition: any single normalized word occupying more than half the word
// count, or a denylisted fragment.
func (p *PromptBuilder) suspicious(candidate string) bool {
	words := NormalizeWords(candidate)
	if len(words) == 0 {
		return false
	}

	freq := make(map[string]int, len(words))
	for _, w := range words {
		freq[w]++
	}
	for _, count := range freq {
		if count*2 > len(words) {
			return true
		}
	}

	normalized := strings.Join(words, " ")
	for _, d := range p.denylist {
		if strings.Contains(normalized, d) {
			return true
		}
	}
	return false
}

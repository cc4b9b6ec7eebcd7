package transcript

import (
	"strings"
	"unicode"
)

// Token is one transcribed word with stream-relative timestamps in seconds.
type Token struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Segment is a timestamped span of transcribed text as reported by an
// engine. Segment times are relative to the start of the transcribed chunk.
type Segment struct {
	Start float64
	End   float64
	Text  string
}

// Normalize lower-cases a token, strips punctuation and collapses internal
// whitespace, for agreement and repetition comparisons.
func Normalize(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			space = true
		}
	}
	return b.String()
}

// NormalizeWords splits text into normalized words.
func NormalizeWords(text string) []string {
	var out []string
	for _, w := range strings.Fields(text) {
		if n := Normalize(w); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// Interpolate splits plain engine text into tokens with timestamps spread
// linearly across [start, end]. Used when the engine provides no per-word
// timing; the equal time-per-token assumption is an approximation.
func Interpolate(text string, start, end float64) []Token {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if end < start {
		end = start
	}

	step := (end - start) / float64(len(words))
	tokens := make([]Token, len(words))
	for i, w := range words {
		tokens[i] = Token{
			Start: start + float64(i)*step,
			End:   start + float64(i+1)*step,
			Text:  w,
		}
	}
	return tokens
}

// FromSegments converts engine segments into word tokens. Word timestamps
// are interpolated inside each segment; segment boundaries are taken as
// reported. offset shifts chunk-relative times to stream-relative times.
func FromSegments(segments []Segment, offset float64) []Token {
	var tokens []Token
	for _, seg := range segments {
		tokens = append(tokens, Interpolate(seg.Text, offset+seg.Start, offset+seg.End)...)
	}
	return tokens
}

// JoinTokens concatenates token text with single spaces.
func JoinTokens(tokens []Token) string {
	if len(tokens) == 0 {
		return ""
	}
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = t.Text
	}
	return strings.Join(parts, " ")
}

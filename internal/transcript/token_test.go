package transcript

import (
	"math"
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "lowercase", input: "Hello", expected: "hello"},
		{name: "strip punctuation", input: "Hello, world!", expected: "hello world"},
		{name: "collapse whitespace", input: "  a   b  ", expected: "a b"},
		{name: "keep numbers", input: "Take 5", expected: "take 5"},
		{name: "only punctuation", input: "---", expected: ""},
		{name: "empty", input: "", expected: ""},
		{name: "unicode letters", input: "Привіт, Світ", expected: "привіт світ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.expected {
				t.Errorf("Normalize(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeWords(t *testing.T) {
	got := NormalizeWords("The quick, brown... FOX")
	expected := []string{"the", "quick", "brown", "fox"}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}

	if got := NormalizeWords("... --- ..."); got != nil {
		t.Errorf("Expected nil for punctuation-only input, got %v", got)
	}
}

func TestInterpolate(t *testing.T) {
	tokens := Interpolate("hello world", 2.0, 4.0)
	if len(tokens) != 2 {
		t.Fatalf("Expected 2 tokens, got %d", len(tokens))
	}

	if tokens[0].Text != "hello" || tokens[1].Text != "world" {
		t.Errorf("Unexpected token text: %v", tokens)
	}
	if math.Abs(tokens[0].Start-2.0) > 1e-9 || math.Abs(tokens[0].End-3.0) > 1e-9 {
		t.Errorf("Expected first token [2.0, 3.0], got [%f, %f]", tokens[0].Start, tokens[0].End)
	}
	if math.Abs(tokens[1].Start-3.0) > 1e-9 || math.Abs(tokens[1].End-4.0) > 1e-9 {
		t.Errorf("Expected second token [3.0, 4.0], got [%f, %f]", tokens[1].Start, tokens[1].End)
	}
}

func TestInterpolateEdgeCases(t *testing.T) {
	if got := Interpolate("", 0, 1); got != nil {
		t.Errorf("Expected nil for empty text, got %v", got)
	}
	if got := Interpolate("   ", 0, 1); got != nil {
		t.Errorf("Expected nil for whitespace text, got %v", got)
	}

	// Inverted range collapses to the start point.
	tokens := Interpolate("word", 5.0, 3.0)
	if len(tokens) != 1 {
		t.Fatalf("Expected 1 token, got %d", len(tokens))
	}
	if tokens[0].Start != 5.0 || tokens[0].End != 5.0 {
		t.Errorf("Expected collapsed range [5.0, 5.0], got [%f, %f]", tokens[0].Start, tokens[0].End)
	}
}

func TestFromSegments(t *testing.T) {
	segments := []Segment{
		{Start: 0.0, End: 1.0, Text: "hello"},
		{Start: 1.0, End: 3.0, Text: "big world"},
	}

	tokens := FromSegments(segments, 10.0)
	if len(tokens) != 3 {
		t.Fatalf("Expected 3 tokens, got %d", len(tokens))
	}

	if math.Abs(tokens[0].Start-10.0) > 1e-9 || math.Abs(tokens[0].End-11.0) > 1e-9 {
		t.Errorf("Expected first token [10.0, 11.0], got [%f, %f]", tokens[0].Start, tokens[0].End)
	}
	if math.Abs(tokens[1].Start-11.0) > 1e-9 || math.Abs(tokens[1].End-12.0) > 1e-9 {
		t.Errorf("Expected second token [11.0, 12.0], got [%f, %f]", tokens[1].Start, tokens[1].End)
	}
	if tokens[2].Text != "world" {
		t.Errorf("Expected third token 'world', got %q", tokens[2].Text)
	}
}

func TestJoinTokens(t *testing.T) {
	tokens := []Token{
		{Text: "hello"},
		{Text: "world"},
	}
	if got := JoinTokens(tokens); got != "hello world" {
		t.Errorf("Expected 'hello world', got %q", got)
	}
	if got := JoinTokens(nil); got != "" {
		t.Errorf("Expected empty string for no tokens, got %q", got)
	}
}

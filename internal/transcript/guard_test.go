package transcript

import (
	"strings"
	"testing"
)

func TestGuardAcceptsNormalText(t *testing.T) {
	g := NewGuard(50, 3, DefaultDenylist)

	results := []string{
		"the meeting starts at noon",
		"we should review the quarterly numbers",
		"does anyone have questions",
	}
	for _, text := range results {
		if v := g.Check(text); v.Hallucination {
			t.Errorf("Expected %q accepted, flagged: %s", text, v.Reason)
		}
	}
}

func TestGuardRepeatedResult(t *testing.T) {
	g := NewGuard(50, 3, nil)

	if v := g.Check("so anyway"); v.Hallucination {
		t.Fatalf("First occurrence flagged: %s", v.Reason)
	}
	if v := g.Check("so anyway"); v.Hallucination {
		t.Fatalf("Second occurrence flagged: %s", v.Reason)
	}
	if v := g.Check("so anyway"); !v.Hallucination {
		t.Errorf("Expected third identical result flagged")
	}
}

func TestGuardRepeatCountersResetOnNewText(t *testing.T) {
	g := NewGuard(50, 3, nil)

	g.Check("so anyway")
	g.Check("so anyway")
	g.Check("something different")
	if v := g.Check("so anyway"); v.Hallucination {
		t.Errorf("Expected repeat counter reset by differing result: %s", v.Reason)
	}
}

func TestGuardReset(t *testing.T) {
	g := NewGuard(50, 3, nil)

	g.Check("so anyway")
	g.Check("so anyway")
	g.Reset()
	if v := g.Check("so anyway"); v.Hallucination {
		t.Errorf("Expected repeat state cleared by reset: %s", v.Reason)
	}
}

func TestGuardTokenCeiling(t *testing.T) {
	g := NewGuard(5, 3, nil)

	if v := g.Check("one two three four five"); v.Hallucination {
		t.Errorf("Expected result at ceiling accepted: %s", v.Reason)
	}
	if v := g.Check("a b c d e f"); !v.Hallucination {
		t.Errorf("Expected result over ceiling flagged")
	}
}

func TestGuardRepeatedPattern(t *testing.T) {
	g := NewGuard(50, 3, nil)

	tests := []struct {
		name    string
		text    string
		flagged bool
	}{
		{name: "bigram loop", text: "foo bar foo bar foo bar", flagged: true},
		{name: "trigram loop", text: "go to sleep go to sleep go to sleep", flagged: true},
		{name: "two repetitions only", text: "foo bar foo bar", flagged: false},
		{name: "varied text", text: "foo bar baz qux quux corge", flagged: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g.Reset()
			v := g.Check(tt.text)
			if v.Hallucination != tt.flagged {
				t.Errorf("Check(%q): flagged=%v, expected %v (%s)",
					tt.text, v.Hallucination, tt.flagged, v.Reason)
			}
		})
	}
}

func TestGuardDominantToken(t *testing.T) {
	g := NewGuard(50, 3, nil)

	// Six occurrences interleaved with unique fillers: over a third of the
	// words and over the absolute floor.
	text := "uh one uh two uh three uh four uh five uh six"
	if v := g.Check(text); !v.Hallucination {
		t.Errorf("Expected dominant token flagged")
	}

	// The same share in a short result stays under the absolute floor.
	if v := g.Check("uh one uh"); v.Hallucination {
		t.Errorf("Expected short result accepted: %s", v.Reason)
	}
}

func TestGuardDenylist(t *testing.T) {
	g := NewGuard(50, 3, DefaultDenylist)

	if v := g.Check("Thank you for watching."); !v.Hallucination {
		t.Errorf("Expected denylisted filler flagged")
	}
	if v := g.Check("thanks for the report"); v.Hallucination {
		t.Errorf("Expected ordinary thanks accepted: %s", v.Reason)
	}
}

func TestGuardEmptyText(t *testing.T) {
	g := NewGuard(50, 3, nil)

	for i := 0; i < 5; i++ {
		if v := g.Check(""); v.Hallucination {
			t.Fatalf("Empty result flagged on call %d: %s", i+1, v.Reason)
		}
	}
}

func TestGuardStats(t *testing.T) {
	g := NewGuard(50, 3, nil)

	g.Check("fine")
	g.Check(strings.Repeat("loop ", 60))

	stats := g.GetStats()
	if stats.Checked != 2 {
		t.Errorf("Expected 2 checked, got %d", stats.Checked)
	}
	if stats.Flagged != 1 {
		t.Errorf("Expected 1 flagged, got %d", stats.Flagged)
	}
}

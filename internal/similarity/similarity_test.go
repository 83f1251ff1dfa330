package similarity

import (
	"strings"
	"testing"
)

func TestRatioIdentical(t *testing.T) {
	if r := Ratio("the build is broken", "the build is broken"); r != 1.0 {
		t.Fatalf("expected ratio 1.0 for identical strings, got %v", r)
	}
}

func TestRatioCaseInsensitive(t *testing.T) {
	if r := Ratio("Connection Timeout", "connection timeout"); r != 1.0 {
		t.Fatalf("expected case-insensitive match, got %v", r)
	}
}

func TestRatioEmptyStrings(t *testing.T) {
	if r := Ratio("", ""); r != 1.0 {
		t.Fatalf("expected ratio 1.0 for two empty strings, got %v", r)
	}
}

func TestRatioCompletelyDifferent(t *testing.T) {
	r := Ratio("abc", "xyz")
	if r > 0.5 {
		t.Fatalf("expected low ratio for disjoint strings, got %v", r)
	}
}

func TestJaccardOverlap(t *testing.T) {
	a := "database connection pool exhausted"
	b := "database connection pool exhausted again"
	if j := Jaccard(a, b); j < 0.7 {
		t.Fatalf("expected high jaccard for near-identical sentences, got %v", j)
	}
}

func TestJaccardDisjoint(t *testing.T) {
	if j := Jaccard("apples oranges", "bicycles trains"); j != 0.0 {
		t.Fatalf("expected jaccard 0.0 for disjoint word sets, got %v", j)
	}
}

func TestJaccardBothEmpty(t *testing.T) {
	if j := Jaccard("", ""); j != 1.0 {
		t.Fatalf("expected jaccard 1.0 for two empty strings, got %v", j)
	}
}

func TestJaccardOneEmpty(t *testing.T) {
	if j := Jaccard("", "something"); j != 0.0 {
		t.Fatalf("expected jaccard 0.0 when one side is empty, got %v", j)
	}
}

func TestRatioQuickIgnoresTailBeyondWindow(t *testing.T) {
	a := strings.Repeat("x", 200) + "AAAA"
	b := strings.Repeat("x", 200) + "BBBB"
	if r := RatioQuick(a, b); r != 1.0 {
		t.Fatalf("expected RatioQuick to ignore content past 200 runes, got %v", r)
	}
}

func TestFuzzyPrefilter(t *testing.T) {
	if !FuzzyPrefilter("tmeout", "connection timeout exceeded") {
		t.Fatalf("expected fold-case fuzzy match to find a near-miss query")
	}
	if FuzzyPrefilter("zzz", "connection timeout exceeded") {
		t.Fatalf("expected fold-case fuzzy match to reject unrelated query")
	}
}

func TestIsNearDuplicate(t *testing.T) {
	cases := []struct {
		name string
		a, b string
		want bool
	}{
		{"identical", "use context.Context for cancellation", "use context.Context for cancellation", true},
		{"reworded slightly", "always close the response body", "always close response body", true},
		{"unrelated", "prefer composition over inheritance", "the build takes four minutes", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := IsNearDuplicate(c.a, c.b); got != c.want {
				t.Errorf("IsNearDuplicate(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
			}
		})
	}
}

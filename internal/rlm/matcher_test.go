package rlm

import (
	"testing"
)

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"kitten", "sitting", 3},
		{"same", "same", 0},
		{"", "abc", 3},
		{"postgres", "postgress", 1},
	}
	for _, c := range cases {
		if got := levenshtein(c.a, c.b); got != c.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestFuzzyEqual(t *testing.T) {
	cases := []struct {
		q, c string
		want bool
	}{
		{"postgres", "postgress", true}, // distance 1
		{"pods", "post", false},         // same prefix but short word, distance 2 > 1
		{"dart", "date", false},         // distance 2 on a 4-char word
		{"cat", "car", false},           // under 4 chars never fuzzy
		{"kubernetes", "kubernets", true},
		{"auth", "oauth", false}, // prefix differs
	}
	for _, c := range cases {
		if got := fuzzyEqual(c.q, c.c); got != c.want {
			t.Errorf("fuzzyEqual(%q, %q) = %v, want %v", c.q, c.c, got, c.want)
		}
	}
}

func TestMatcherScore_Exact(t *testing.T) {
	m := newMatcher([]string{"glicko"})
	score, matches := m.Score("We use Glicko-2 rating for the leaderboard")
	if score <= 0 {
		t.Fatalf("expected positive score, got %f", score)
	}
	if len(matches) != 1 || matches[0].Kind != matchExact {
		t.Fatalf("expected one exact match, got %+v", matches)
	}
}

func TestMatcherScore_Compound(t *testing.T) {
	m := newMatcher([]string{"message"})
	score, matches := m.Score("The ReadMessageItem function handles retrieval")
	if score <= 0 {
		t.Fatalf("expected compound match, got score %f", score)
	}
	if len(matches) == 0 {
		t.Fatal("expected at least one match")
	}
}

func TestMatcherScore_Fuzzy(t *testing.T) {
	m := newMatcher([]string{"kubernets"}) // typo
	score, matches := m.Score("deployed to kubernetes yesterday")
	if score <= 0 {
		t.Fatalf("expected fuzzy match, got score %f", score)
	}
	found := false
	for _, mt := range matches {
		if mt.Kind == matchFuzzy || mt.Kind == matchSubstring {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected fuzzy or substring match, got %+v", matches)
	}
}

func TestMatcherScore_Concept(t *testing.T) {
	m := newMatcher([]string{"glicko"})
	score, _ := m.Score("the rating went up after the match")
	if score <= 0 {
		t.Fatal("expected concept expansion (glicko -> rating) to match")
	}
}

func TestMatcherScore_NoMatch(t *testing.T) {
	m := newMatcher([]string{"zephyr"})
	score, matches := m.Score("completely unrelated content about cooking")
	if score != 0 || len(matches) != 0 {
		t.Fatalf("expected no match, got score %f matches %+v", score, matches)
	}
}

func TestWordBoundaryMatch(t *testing.T) {
	if !wordBoundaryMatch("the auth flow", "auth") {
		t.Error("expected boundary match for standalone word")
	}
	if wordBoundaryMatch("the oauth flow", "auth") {
		t.Error("did not expect boundary match inside oauth")
	}
}

package rlm

import (
	"reflect"
	"testing"
)

func TestTokenize_Boundaries(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"foo-bar", []string{"foo", "bar"}},
		{"snake_case_name", []string{"snake", "case", "name"}},
		{"readMessage", []string{"read", "message"}},
		{"getHTTPResponse", []string{"response"}}, // "get" is a stopword, "http" domain noise
		{"ab x y", nil},      // everything under 3 runes drops
		{"the and for", nil}, // stopwords drop
		{"Deploy the ChessRT leaderboard", []string{"deploy", "chess", "leaderboard"}},
	}

	for _, c := range cases {
		got := Tokenize(c.in)
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("Tokenize(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestTokenize_Deterministic(t *testing.T) {
	text := "Incremental index update for session-transcripts using camelCaseTokens and kebab-case-words"
	first := Tokenize(text)
	for i := 0; i < 5; i++ {
		if got := Tokenize(text); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d produced %v, first run produced %v", i, got, first)
		}
	}
}

func TestTokenize_LowercasesEverything(t *testing.T) {
	for _, tok := range Tokenize("PostgreSQL OAuth GitHub") {
		for _, r := range tok {
			if r >= 'A' && r <= 'Z' {
				t.Fatalf("token %q not lowercased", tok)
			}
		}
	}
}

func TestSplitCamel(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"ReadMessageItem", []string{"Read", "Message", "Item"}},
		{"XMLParser", []string{"XML", "Parser"}},
		{"simple", []string{"simple"}},
	}
	for _, c := range cases {
		if got := splitCamel(c.in); !reflect.DeepEqual(got, c.want) {
			t.Errorf("splitCamel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestUniqueTokens(t *testing.T) {
	got := uniqueTokens([]string{"alpha", "beta", "alpha", "gamma", "beta"})
	want := []string{"alpha", "beta", "gamma"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("uniqueTokens = %v, want %v", got, want)
	}
}

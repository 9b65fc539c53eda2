package rlm

import (
	"strings"
)

// Caps bounding worst-case matcher cost per scored text. Score runs once per
// transcript record, so the caps apply to each record, not to a session as a
// whole. The exact-occurrence check reads the whole text; only the word-level
// strategies stop at these limits.
const (
	maxContentWords  = 2000
	maxSubstringScan = 1000
	maxFuzzyScan     = 500
)

// matchKind classifies how a query term matched content.
type matchKind int

const (
	matchExact matchKind = iota
	matchSubstring
	matchCompound
	matchFuzzy
	matchConcept
)

// termMatch records one query-term hit for diagnostics.
type termMatch struct {
	Term    string
	Matched string
	Kind    matchKind
}

// matcher scores text against a tokenized query using four strategies:
// substring containment, compound splitting, bounded fuzzy matching
// (Levenshtein with conservative thresholds), and concept expansion.
type matcher struct {
	terms    []string
	concepts map[string][]string // term -> expansion terms, precomputed
}

func newMatcher(queryTokens []string) *matcher {
	m := &matcher{
		terms:    queryTokens,
		concepts: make(map[string][]string, len(queryTokens)),
	}
	for _, t := range queryTokens {
		if rel := relatedConcepts(t); len(rel) > 0 {
			m.concepts[t] = rel
		}
	}
	return m
}

// Score rates text against the query. Exact occurrences dominate; the
// other strategies each contribute a fixed weight per term. The per-term
// average is multiplied by min(term count, 3).
func (m *matcher) Score(text string) (float64, []termMatch) {
	if text == "" || len(m.terms) == 0 {
		return 0, nil
	}

	textLower := strings.ToLower(text)
	var contentWords []string // built lazily, only when a term misses

	score := 0.0
	var matches []termMatch

	for _, term := range m.terms {
		if idx := strings.Index(textLower, term); idx >= 0 {
			score += 2.0
			count := strings.Count(textLower, term)
			score += minF(float64(count)*0.3, 1.5)
			if wordBoundaryMatch(textLower, term) {
				score += 0.5
			}
			matches = append(matches, termMatch{Term: term, Matched: term, Kind: matchExact})
			continue
		}

		if contentWords == nil {
			contentWords = contentWordList(textLower)
		}

		if kind, matched, ok := m.partialMatch(term, contentWords); ok {
			switch kind {
			case matchSubstring:
				score += 1.5
			case matchFuzzy:
				score += 1.0
			default: // compound or concept
				score += 1.8
			}
			matches = append(matches, termMatch{Term: term, Matched: matched, Kind: kind})
		}
	}

	n := len(m.terms)
	score = score / float64(n) * minF(float64(n), 3)
	return score, matches
}

// partialMatch tries substring, compound, fuzzy, then concept expansion.
func (m *matcher) partialMatch(term string, contentWords []string) (matchKind, string, bool) {
	if len(term) >= 3 {
		limit := min(len(contentWords), maxSubstringScan)
		for _, w := range contentWords[:limit] {
			if strings.Contains(w, term) {
				return matchSubstring, w, true
			}
			for _, part := range splitCamel(w) {
				if strings.EqualFold(part, term) {
					return matchCompound, w, true
				}
			}
		}
	}

	limit := min(len(contentWords), maxFuzzyScan)
	for _, w := range contentWords[:limit] {
		if fuzzyEqual(term, w) {
			return matchFuzzy, w, true
		}
	}

	for _, rel := range m.concepts[term] {
		limit := min(len(contentWords), maxSubstringScan)
		for _, w := range contentWords[:limit] {
			if w == rel {
				return matchConcept, rel, true
			}
		}
	}

	return 0, "", false
}

// contentWordList extracts up to maxContentWords lowercase words from text.
func contentWordList(textLower string) []string {
	words := make([]string, 0, 256)
	var b strings.Builder
	flush := func() {
		if b.Len() >= 2 {
			words = append(words, b.String())
		}
		b.Reset()
	}
	for _, r := range textLower {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else {
			flush()
			if len(words) >= maxContentWords {
				return words
			}
		}
	}
	flush()
	return words
}

// wordBoundaryMatch reports whether term occurs in text delimited by
// non-alphanumeric runes on both sides.
func wordBoundaryMatch(textLower, term string) bool {
	for from := 0; ; {
		idx := strings.Index(textLower[from:], term)
		if idx < 0 {
			return false
		}
		idx += from
		leftOK := idx == 0 || !isAlnum(textLower[idx-1])
		end := idx + len(term)
		rightOK := end == len(textLower) || !isAlnum(textLower[end])
		if leftOK && rightOK {
			return true
		}
		from = idx + 1
	}
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// fuzzyEqual reports whether two words match within a bounded edit
// distance. Conservative thresholds: words under 4 runes never fuzzy-match,
// the first two characters must agree, 4-6 char words allow distance 1 and
// longer words distance 2.
func fuzzyEqual(q, c string) bool {
	if q == c {
		return true
	}
	if len(q) < 4 || len(c) < 4 {
		return false
	}
	if q[:2] != c[:2] {
		return false
	}
	maxDist := 2
	if len(q) <= 6 {
		maxDist = 1
	}
	if abs(len(q)-len(c)) > maxDist {
		return false
	}
	return levenshtein(q, c) <= maxDist
}

// levenshtein computes edit distance with the two-row dynamic program.
func levenshtein(s1, s2 string) int {
	if len(s1) < len(s2) {
		s1, s2 = s2, s1
	}
	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 0; i < len(s1); i++ {
		curr[0] = i + 1
		for j := 0; j < len(s2); j++ {
			cost := 1
			if s1[i] == s2[j] {
				cost = 0
			}
			curr[j+1] = min(prev[j+1]+1, min(curr[j]+1, prev[j]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(s2)]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

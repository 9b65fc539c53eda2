package refs

import (
	"regexp"
	"strings"
)

// Extraction order matters: URLs carry the strongest signal, then file-like
// tokens, then bare identifiers.
var (
	urlPattern   = regexp.MustCompile(`https?://\S+`)
	filePattern  = regexp.MustCompile(`\b[\w./-]+\.(?:md|ts|tsx|js|jsx|json|py|yml|yaml|toml|sh)\b`)
	identPattern = regexp.MustCompile(`\b[a-zA-Z][a-zA-Z0-9_-]{2,}\b`)
)

// deriveStopwords is the closed stopword set for derived terms.
var deriveStopwords = map[string]struct{}{
	"http": {}, "https": {}, "from": {}, "lines": {},
	"default": {}, "true": {}, "false": {},
}

// DeriveQuery extracts follow-up query terms from expanded text: URLs, then
// file-like tokens, then identifiers; filtered to length 4-80, stopwords
// dropped, deduplicated preserving order, capped at maxTerms. The result is
// the terms joined by spaces ("" when nothing usable was found).
func DeriveQuery(text string, maxTerms int) string {
	if text == "" || maxTerms <= 0 {
		return ""
	}

	var terms []string
	seen := make(map[string]struct{})

	add := func(candidates []string) {
		for _, c := range candidates {
			if len(terms) >= maxTerms {
				return
			}
			if len(c) < 4 || len(c) > 80 {
				continue
			}
			lower := strings.ToLower(c)
			if _, stop := deriveStopwords[lower]; stop {
				continue
			}
			if _, dup := seen[lower]; dup {
				continue
			}
			seen[lower] = struct{}{}
			terms = append(terms, c)
		}
	}

	add(urlPattern.FindAllString(text, -1))
	add(filePattern.FindAllString(text, -1))
	add(identPattern.FindAllString(text, -1))

	return strings.Join(terms, " ")
}

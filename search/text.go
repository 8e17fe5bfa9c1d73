package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Stop words ignored when checking for verbatim matches
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "be": {}, "is": {}, "are": {},
	"was": {}, "to": {}, "of": {}, "and": {}, "in": {}, "that": {},
	"have": {}, "it": {}, "for": {}, "not": {}, "on": {}, "with": {},
	"as": {}, "you": {}, "do": {}, "at": {}, "this": {}, "but": {},
	"by": {}, "from": {}, "what": {}, "who": {}, "how": {}, "did": {},
	"does": {}, "about": {}, "say": {}, "said": {},
}

// tokenizeAndFilter splits text into case-folded words with surrounding
// punctuation removed, dropping stop words.
func tokenizeAndFilter(text string) []string {
	folder := cases.Fold()
	words := strings.Fields(text)
	filtered := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := folder.String(strings.TrimFunc(word, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		}))
		if cleaned == "" {
			continue
		}
		if _, stop := stopWords[cleaned]; stop {
			continue
		}
		filtered = append(filtered, cleaned)
	}
	return filtered
}

// containsAllQueryWords reports whether every non stop word of query appears
// in document. A query made only of stop words never matches.
func containsAllQueryWords(document, query string) bool {
	queryWords := tokenizeAndFilter(query)
	if len(queryWords) == 0 {
		return false
	}

	docWords := tokenizeAndFilter(document)
	docWordSet := make(map[string]struct{}, len(docWords))
	for _, word := range docWords {
		docWordSet[word] = struct{}{}
	}

	for _, qWord := range queryWords {
		if _, ok := docWordSet[qWord]; !ok {
			return false
		}
	}
	return true
}

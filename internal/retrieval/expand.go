package retrieval

import (
	"sort"
	"strings"
)

// Expander widens the embedded query text with configured synonym
// expansions, so domain shorthand retrieves chunks written in full terms.
type Expander struct {
	synonyms map[string]string
}

// NewExpander builds an Expander; a nil or empty map disables expansion.
func NewExpander(synonyms map[string]string) *Expander {
	return &Expander{synonyms: synonyms}
}

// Expand appends the expansion of every synonym term appearing in the
// question. Matching is case-insensitive on whole words; expansion order is
// sorted for determinism.
func (e *Expander) Expand(question string) string {
	if len(e.synonyms) == 0 {
		return question
	}
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		words[w] = true
	}

	var additions []string
	for term, expansion := range e.synonyms {
		if words[strings.ToLower(term)] {
			additions = append(additions, expansion)
		}
	}
	if len(additions) == 0 {
		return question
	}
	sort.Strings(additions)
	return question + " " + strings.Join(additions, " ")
}

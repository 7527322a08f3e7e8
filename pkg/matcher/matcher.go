// Package matcher scores catalog entries against a conversation query.
// The scorer is deliberately a transparent lexical ranker: trigger
// descriptions are short, author-controlled enumerations, so keyword
// overlap gives adequate precision while staying fully auditable. No
// learned components, no randomness; identical query and catalog always
// produce identical ordering.
package matcher

import (
	"sort"
	"strings"

	"github.com/jingkaihe/skillet/pkg/catalog"
)

// Candidate pairs a skill document with its relevance score and the
// trigger clauses that matched. Created per query and discarded after
// the allocation pass.
type Candidate struct {
	Doc            *catalog.SkillDocument
	Score          float64
	MatchedClauses []string
}

// Weights are the per-signal multipliers of the lexical score
type Weights struct {
	Tag      float64 // exact tag overlap
	Clause   float64 // trigger-clause keyword overlap
	Category float64 // category name mentioned in the query
}

// DefaultWeights returns the standard 3/2/1 weighting
func DefaultWeights() Weights {
	return Weights{Tag: 3, Clause: 2, Category: 1}
}

// Matcher ranks skill documents for a query
type Matcher struct {
	weights Weights
}

// Option configures a Matcher
type Option func(*Matcher)

// WithWeights overrides the scoring weights
func WithWeights(w Weights) Option {
	return func(m *Matcher) {
		m.weights = w
	}
}

// New creates a matcher with the default weights
func New(opts ...Option) *Matcher {
	m := &Matcher{weights: DefaultWeights()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match scores every catalog entry against the query and returns the
// candidates ordered highest score first, ties broken by ascending
// identifier. Candidates scoring zero are excluded. An empty query (or
// one that is all stop words) returns nil; the caller supplies its
// always-on defaults instead of guessing.
func (m *Matcher) Match(query string, idx *catalog.Index) []Candidate {
	queryTokens := TokenSet(query)
	if len(queryTokens) == 0 {
		return nil
	}

	var candidates []Candidate
	for _, doc := range idx.All() {
		c := m.score(queryTokens, doc)
		if c.Score > 0 {
			candidates = append(candidates, c)
		}
	}

	// idx.All is already sorted by identifier, so a stable sort on the
	// score keeps the ascending-identifier tie break.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	return candidates
}

func (m *Matcher) score(queryTokens map[string]bool, doc *catalog.SkillDocument) Candidate {
	tagHits := 0
	for _, tag := range doc.Tags {
		if queryTokens[strings.ToLower(tag)] {
			tagHits++
		}
	}

	clauseHits := 0
	var matched []string
	seen := make(map[string]bool)
	for _, clause := range doc.Clauses {
		hit := false
		for _, token := range Tokenize(clause) {
			if !queryTokens[token] || seen[token] {
				continue
			}
			seen[token] = true
			clauseHits++
			hit = true
		}
		if hit {
			matched = append(matched, clause)
		}
	}

	categoryHits := 0
	if queryTokens[string(doc.Category)] {
		categoryHits = 1
	}

	return Candidate{
		Doc: doc,
		Score: m.weights.Tag*float64(tagHits) +
			m.weights.Clause*float64(clauseHits) +
			m.weights.Category*float64(categoryHits),
		MatchedClauses: matched,
	}
}

// stopWords are tokens too common to carry relevance signal
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true,
	"at": true, "be": true, "but": true, "by": true, "for": true,
	"from": true, "has": true, "have": true, "i": true, "if": true,
	"in": true, "is": true, "it": true, "its": true, "my": true,
	"need": true, "of": true, "on": true, "or": true, "our": true,
	"that": true, "the": true, "this": true, "to": true, "use": true,
	"user": true, "we": true, "when": true, "with": true, "you": true,
	"your": true,
}

// Tokenize lower-cases the text, splits on non-alphanumeric runes and
// removes stop words. Order follows the input; duplicates are kept.
func Tokenize(text string) []string {
	var tokens []string
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9')
	}) {
		if len(word) < 2 || stopWords[word] {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

// TokenSet returns the distinct tokens of the text
func TokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, token := range Tokenize(text) {
		set[token] = true
	}
	return set
}

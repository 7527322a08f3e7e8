// Package disclosure resolves which reference files accompany the
// skills of a load plan. A reference is loaded only when it passes two
// gates: the skill's main body must declare it as progressive-disclosure
// content (a relative markdown link), and the query must overlap its
// declared topic keywords. The first gate stops over-loading ("pull in
// every reference just in case"); the second stops under-loading by
// flagging relevant-but-unaffordable references as deferred rather than
// dropping them.
package disclosure

import (
	"context"

	"github.com/jingkaihe/skillet/pkg/budget"
	"github.com/jingkaihe/skillet/pkg/catalog"
	"github.com/jingkaihe/skillet/pkg/logger"
	"github.com/jingkaihe/skillet/pkg/matcher"
)

// Loader expands load plans with reference files
type Loader struct {
	threshold int
}

// Option configures a Loader
type Option func(*Loader)

// WithRelevanceThreshold sets how many of a reference's topic keywords
// the query must contain before the reference is loaded. Defaults to 1.
func WithRelevanceThreshold(n int) Option {
	return func(l *Loader) {
		l.threshold = n
	}
}

// NewLoader creates a disclosure loader
func NewLoader(opts ...Option) *Loader {
	l := &Loader{threshold: 1}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Expand returns a new plan with references resolved. Only declared
// references are considered; each is included when the query meets the
// relevance threshold and the reference fits the plan's remaining
// budget, and is otherwise recorded as deferred with the failing gate as
// the reason. Expand is idempotent: re-running it on an expanded plan
// with the same query adds nothing.
func (l *Loader) Expand(ctx context.Context, plan *budget.LoadPlan, query string) *budget.LoadPlan {
	log := logger.G(ctx)
	queryTokens := matcher.TokenSet(query)

	next := &budget.LoadPlan{
		Entries:  make([]budget.Entry, 0, len(plan.Entries)),
		Consumed: plan.Consumed,
		Budget:   plan.Budget,
	}

	for _, entry := range plan.Entries {
		included := make(map[string]bool, len(entry.References))
		for _, ref := range entry.References {
			included[ref.Path] = true
		}

		nextEntry := budget.Entry{
			Doc:        entry.Doc,
			References: append([]catalog.ReferenceFile(nil), entry.References...),
		}

		for _, ref := range entry.Doc.DeclaredReferences() {
			if included[ref.Path] {
				continue
			}

			if l.overlap(queryTokens, ref.Topics) < l.threshold {
				next.Deferred = append(next.Deferred, deferred(entry.Doc.ID, ref, budget.DeferredRelevance))
				continue
			}

			if ref.Tokens > next.Budget-next.Consumed {
				log.WithFields(map[string]interface{}{
					"skill":     entry.Doc.ID,
					"reference": ref.Path,
					"tokens":    ref.Tokens,
					"remainder": next.Budget - next.Consumed,
				}).Debug("relevant reference deferred for budget")
				next.Deferred = append(next.Deferred, deferred(entry.Doc.ID, ref, budget.DeferredBudget))
				continue
			}

			nextEntry.References = append(nextEntry.References, ref)
			next.Consumed += ref.Tokens
		}

		next.Entries = append(next.Entries, nextEntry)
	}

	return next
}

func (l *Loader) overlap(queryTokens map[string]bool, topics []string) int {
	n := 0
	for _, topic := range topics {
		if queryTokens[topic] {
			n++
		}
	}
	return n
}

func deferred(skillID string, ref catalog.ReferenceFile, reason budget.DeferralReason) budget.DeferredReference {
	return budget.DeferredReference{
		SkillID: skillID,
		Name:    ref.Name,
		Path:    ref.Path,
		Tokens:  ref.Tokens,
		Reason:  reason,
	}
}

// Package budget selects whole skill documents under a token ceiling.
// The allocator is a bounded greedy knapsack, not an exact solver:
// catalogs hold tens of documents, greedy-by-score is close enough to
// optimal there, and the result stays predictable and cheap to compute.
package budget

import (
	"fmt"

	"github.com/jingkaihe/skillet/pkg/catalog"
	"github.com/jingkaihe/skillet/pkg/matcher"
)

// Entry is one selected skill document plus the reference files included
// alongside it. References start empty; the disclosure loader fills them.
type Entry struct {
	Doc        *catalog.SkillDocument
	References []catalog.ReferenceFile
}

// DeferralReason explains why a declared reference was left out of a plan
type DeferralReason string

const (
	// DeferredRelevance means the query shared too few keywords with the
	// reference's declared topic.
	DeferredRelevance DeferralReason = "relevance"
	// DeferredBudget means the reference was relevant but did not fit the
	// remaining budget.
	DeferredBudget DeferralReason = "budget"
)

// DeferredReference records a declared reference that was not loaded, so
// the caller can offer it in a follow-up turn instead of silently
// dropping relevant detail.
type DeferredReference struct {
	SkillID string
	Name    string
	Path    string
	Tokens  int
	Reason  DeferralReason
}

// LoadPlan is the outcome of one allocation pass: the ordered selection,
// its total token cost, and every deferred reference. Plans are
// immutable once returned; the disclosure loader produces a new plan
// rather than mutating one in place.
type LoadPlan struct {
	Entries  []Entry
	Deferred []DeferredReference
	Consumed int
	Budget   int
}

// Remainder returns the unused part of the budget
func (p *LoadPlan) Remainder() int {
	return p.Budget - p.Consumed
}

// SkillIDs returns the selected identifiers in plan order
func (p *LoadPlan) SkillIDs() []string {
	ids := make([]string, 0, len(p.Entries))
	for _, e := range p.Entries {
		ids = append(ids, e.Doc.ID)
	}
	return ids
}

// ReferenceCount returns the number of included references across entries
func (p *LoadPlan) ReferenceCount() int {
	n := 0
	for _, e := range p.Entries {
		n += len(e.References)
	}
	return n
}

// BudgetExceededError signals that the single highest-ranked candidate
// alone exceeds the budget. Recoverable: the caller falls back to a
// reduced plan or asks the user to narrow scope.
type BudgetExceededError struct {
	SkillID string
	Tokens  int
	Budget  int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("skill %s needs %d tokens but the budget is %d", e.SkillID, e.Tokens, e.Budget)
}

// Allocator fills plans greedily in score order
type Allocator struct {
	minimums map[catalog.Category]int
}

// AllocatorOption configures an Allocator
type AllocatorOption func(*Allocator)

// WithCategoryMinimums reserves seats per category: before the general
// greedy fill, each category's top-scored candidates are seated up to
// its minimum, still subject to the ceiling.
func WithCategoryMinimums(minimums map[catalog.Category]int) AllocatorOption {
	return func(a *Allocator) {
		a.minimums = minimums
	}
}

// NewAllocator creates an allocator. Without options there are no
// per-category minimums.
func NewAllocator(opts ...AllocatorOption) *Allocator {
	a := &Allocator{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allocate builds a plan from ranked candidates. Whole documents only:
// a candidate is included when its full main-body cost fits, skipped
// otherwise, and the plan total never exceeds budgetTokens. If the
// top-ranked candidate alone cannot fit, the returned plan is empty and
// the error is a *BudgetExceededError naming it.
func (a *Allocator) Allocate(candidates []matcher.Candidate, budgetTokens int) (*LoadPlan, error) {
	plan := &LoadPlan{Budget: budgetTokens}
	if len(candidates) == 0 {
		return plan, nil
	}

	if top := candidates[0]; top.Doc.Tokens > budgetTokens {
		return plan, &BudgetExceededError{
			SkillID: top.Doc.ID,
			Tokens:  top.Doc.Tokens,
			Budget:  budgetTokens,
		}
	}

	seated := make(map[string]bool)

	// Seat category minimums first, in global score order.
	if len(a.minimums) > 0 {
		counts := make(map[catalog.Category]int)
		for _, c := range candidates {
			min := a.minimums[c.Doc.Category]
			if counts[c.Doc.Category] >= min {
				continue
			}
			if c.Doc.Tokens > plan.Remainder() {
				continue
			}
			seated[c.Doc.ID] = true
			counts[c.Doc.Category]++
			plan.Entries = append(plan.Entries, Entry{Doc: c.Doc})
			plan.Consumed += c.Doc.Tokens
		}
	}

	for _, c := range candidates {
		if seated[c.Doc.ID] {
			continue
		}
		if c.Doc.Tokens > plan.Remainder() {
			continue
		}
		plan.Entries = append(plan.Entries, Entry{Doc: c.Doc})
		plan.Consumed += c.Doc.Tokens
	}

	return plan, nil
}

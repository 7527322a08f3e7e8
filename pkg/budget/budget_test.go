package budget

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/skillet/pkg/catalog"
	"github.com/jingkaihe/skillet/pkg/matcher"
)

func candidate(id string, score float64, tokens int, category catalog.Category) matcher.Candidate {
	return matcher.Candidate{
		Doc: &catalog.SkillDocument{
			ID:       id,
			Category: category,
			Tokens:   tokens,
		},
		Score: score,
	}
}

func TestAllocateGreedyFill(t *testing.T) {
	// Scores 0.9/0.5/0.1 with costs 400/300/200 under a 700 budget: the
	// top two fill the budget exactly and the third is excluded.
	candidates := []matcher.Candidate{
		candidate("skill-one", 0.9, 400, catalog.CategoryStack),
		candidate("skill-two", 0.5, 300, catalog.CategoryStack),
		candidate("skill-three", 0.1, 200, catalog.CategoryStack),
	}

	plan, err := NewAllocator().Allocate(candidates, 700)
	require.NoError(t, err)

	assert.Equal(t, []string{"skill-one", "skill-two"}, plan.SkillIDs())
	assert.Equal(t, 700, plan.Consumed)
	assert.Equal(t, 0, plan.Remainder())
}

func TestAllocateTopCandidateTooLarge(t *testing.T) {
	candidates := []matcher.Candidate{
		candidate("giant-skill", 0.9, 1000, catalog.CategoryDomain),
	}

	plan, err := NewAllocator().Allocate(candidates, 500)
	require.Error(t, err)

	var exceeded *BudgetExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, "giant-skill", exceeded.SkillID)
	assert.Equal(t, 1000, exceeded.Tokens)
	assert.Equal(t, 500, exceeded.Budget)

	assert.Empty(t, plan.Entries)
	assert.Equal(t, 0, plan.Consumed)
}

func TestAllocateSkipsOversizedAndContinues(t *testing.T) {
	candidates := []matcher.Candidate{
		candidate("small-top", 0.9, 100, catalog.CategoryStack),
		candidate("too-big", 0.8, 900, catalog.CategoryStack),
		candidate("fits-after", 0.7, 200, catalog.CategoryStack),
	}

	plan, err := NewAllocator().Allocate(candidates, 400)
	require.NoError(t, err)
	assert.Equal(t, []string{"small-top", "fits-after"}, plan.SkillIDs())
	assert.Equal(t, 300, plan.Consumed)
}

func TestAllocateEmptyCandidates(t *testing.T) {
	plan, err := NewAllocator().Allocate(nil, 1000)
	require.NoError(t, err)
	assert.Empty(t, plan.Entries)
	assert.Equal(t, 1000, plan.Remainder())
}

func TestAllocateCategoryMinimums(t *testing.T) {
	// Without the minimum the three stack skills would consume the whole
	// budget; the meta minimum seats context-monitor ahead of the fill.
	candidates := []matcher.Candidate{
		candidate("stack-a", 0.9, 300, catalog.CategoryStack),
		candidate("stack-b", 0.8, 300, catalog.CategoryStack),
		candidate("stack-c", 0.7, 300, catalog.CategoryStack),
		candidate("context-monitor", 0.2, 200, catalog.CategoryMeta),
	}

	allocator := NewAllocator(WithCategoryMinimums(map[catalog.Category]int{
		catalog.CategoryMeta: 1,
	}))
	plan, err := allocator.Allocate(candidates, 900)
	require.NoError(t, err)

	assert.Contains(t, plan.SkillIDs(), "context-monitor")
	assert.Equal(t, []string{"context-monitor", "stack-a", "stack-b"}, plan.SkillIDs())
	assert.Equal(t, 800, plan.Consumed)
}

func TestAllocateNeverExceedsBudget(t *testing.T) {
	// Property: for any candidate set and budget, consumed <= budget.
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 200; trial++ {
		n := rng.Intn(20)
		candidates := make([]matcher.Candidate, 0, n)
		for i := 0; i < n; i++ {
			candidates = append(candidates, candidate(
				string(rune('a'+i%26))+"-skill",
				float64(n-i),
				rng.Intn(2000),
				catalog.Categories[rng.Intn(len(catalog.Categories))],
			))
		}
		budgetTokens := rng.Intn(4000)

		plan, err := NewAllocator().Allocate(candidates, budgetTokens)
		if err != nil {
			var exceeded *BudgetExceededError
			require.ErrorAs(t, err, &exceeded)
			assert.Empty(t, plan.Entries)
			continue
		}
		assert.LessOrEqual(t, plan.Consumed, budgetTokens)
		assert.Equal(t, plan.Budget-plan.Consumed, plan.Remainder())
	}
}

func TestLoadPlanHelpers(t *testing.T) {
	plan := &LoadPlan{
		Entries: []Entry{
			{
				Doc: &catalog.SkillDocument{ID: "one"},
				References: []catalog.ReferenceFile{
					{Name: "guide", Path: "guide.md"},
				},
			},
			{Doc: &catalog.SkillDocument{ID: "two"}},
		},
		Consumed: 500,
		Budget:   800,
	}

	assert.Equal(t, []string{"one", "two"}, plan.SkillIDs())
	assert.Equal(t, 1, plan.ReferenceCount())
	assert.Equal(t, 300, plan.Remainder())
}

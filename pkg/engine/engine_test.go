package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/skillet/pkg/budget"
	"github.com/jingkaihe/skillet/pkg/catalog"
	"github.com/jingkaihe/skillet/pkg/config"
	"github.com/jingkaihe/skillet/pkg/history"
	"github.com/jingkaihe/skillet/pkg/monitor"
)

func writeSkillDir(t *testing.T, root, id, content string, sidecars map[string]string) {
	t.Helper()
	dir := filepath.Join(root, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(content), 0o644))
	for name, body := range sidecars {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, string) {
	t.Helper()
	root := t.TempDir()

	writeSkillDir(t, root, "terraform-modules", `---
name: terraform-modules
description: Use when provisioning terraform modules or auditing infrastructure plans.
tags:
  - terraform
  - infrastructure
category: stack
---

# Terraform Modules

Keep modules small. See the [state migration guide](references/state-migration.md).
`, map[string]string{
		"references/state-migration.md": "Steps for migrating terraform state between backends.",
	})

	writeSkillDir(t, root, "code-review", `---
name: code-review
description: Use when reviewing pull requests or code changes.
tags:
  - review
category: meta
---

# Code Review

Read the tests first.
`, nil)

	builder, err := catalog.NewBuilder(catalog.WithRoots(root))
	require.NoError(t, err)
	idx, err := builder.Build(context.Background())
	require.NoError(t, err)
	store := catalog.NewStore(idx)

	return New(store, opts...), root
}

func TestResolvePipeline(t *testing.T) {
	engine, _ := newTestEngine(t)
	session := engine.NewSession()

	plan, err := session.Resolve(context.Background(), "provisioning terraform modules with state migration")
	require.NoError(t, err)

	require.Len(t, plan.Entries, 1)
	assert.Equal(t, "terraform-modules", plan.Entries[0].Doc.ID)
	require.Len(t, plan.Entries[0].References, 1)
	assert.Equal(t, "state migration guide", plan.Entries[0].References[0].Name)
	assert.LessOrEqual(t, plan.Consumed, plan.Budget)

	payload, err := engine.Assemble(context.Background(), plan)
	require.NoError(t, err)
	assert.Contains(t, payload, `<skill name="terraform-modules" category="stack">`)
	assert.Contains(t, payload, "Keep modules small.")
	assert.Contains(t, payload, `<reference name="state migration guide">`)
	assert.Contains(t, payload, "migrating terraform state")
}

func TestResolveEmptyQueryUsesAlwaysOn(t *testing.T) {
	cfg := config.Default()
	cfg.AlwaysOn = []string{"code-review", "not-a-skill"}
	engine, _ := newTestEngine(t, WithConfig(cfg))
	session := engine.NewSession()

	plan, err := session.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"code-review"}, plan.SkillIDs())
}

func TestResolveEmptyQueryNoDefaults(t *testing.T) {
	engine, _ := newTestEngine(t)
	session := engine.NewSession()

	plan, err := session.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, plan.Entries)
	assert.Equal(t, engine.Config().BudgetTokens, plan.Remainder())
}

func TestResolveBudgetExceeded(t *testing.T) {
	cfg := config.Default()
	cfg.BudgetTokens = 5
	engine, _ := newTestEngine(t, WithConfig(cfg))
	session := engine.NewSession()

	plan, err := session.Resolve(context.Background(), "terraform modules provisioning")
	require.Error(t, err)

	var exceeded *budget.BudgetExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, "terraform-modules", exceeded.SkillID)
	assert.Empty(t, plan.Entries)
}

func TestResolveCachesUntilCatalogSwap(t *testing.T) {
	engine, root := newTestEngine(t)
	session := engine.NewSession()
	ctx := context.Background()
	query := "reviewing pull requests"

	first, err := session.Resolve(ctx, query)
	require.NoError(t, err)
	again, err := session.Resolve(ctx, query)
	require.NoError(t, err)
	assert.Same(t, first, again)

	// A catalog swap bumps the generation and invalidates the cache.
	builder, err := catalog.NewBuilder(catalog.WithRoots(root))
	require.NoError(t, err)
	idx, err := builder.Build(ctx)
	require.NoError(t, err)
	engine.Catalog().Swap(idx)

	rebuilt, err := session.Resolve(ctx, query)
	require.NoError(t, err)
	assert.NotSame(t, first, rebuilt)
	assert.Equal(t, first.SkillIDs(), rebuilt.SkillIDs())
}

func TestObserveEmitsAdvisoryAndPersists(t *testing.T) {
	stateStore, err := monitor.NewStateStore(t.TempDir())
	require.NoError(t, err)
	engine, _ := newTestEngine(t, WithStateStore(stateStore))
	session := engine.NewSession()
	ctx := context.Background()

	advisory, err := session.Observe(ctx, monitor.TurnEvent{
		Categories: []catalog.Category{catalog.CategoryStack, catalog.CategoryMeta},
	})
	require.NoError(t, err)
	require.NotNil(t, advisory)
	assert.Equal(t, monitor.StateWarning, advisory.State)
	assert.Equal(t, monitor.KindSplitTopics, advisory.Kind)

	// A resumed session picks the health state back up from disk.
	resumed, err := engine.ResumeSession(ctx, session.ID())
	require.NoError(t, err)
	assert.Equal(t, monitor.StateWarning, resumed.Health())

	require.NoError(t, session.Reset(ctx))
	assert.Equal(t, monitor.StateHealthy, session.Health())
	fresh, err := engine.ResumeSession(ctx, session.ID())
	require.NoError(t, err)
	assert.Equal(t, monitor.StateHealthy, fresh.Health())
}

func TestRefocusQuery(t *testing.T) {
	engine, _ := newTestEngine(t)
	session := engine.NewSession()
	ctx := context.Background()

	assert.Empty(t, session.RefocusQuery())

	_, err := session.Observe(ctx, monitor.TurnEvent{
		Categories: []catalog.Category{catalog.CategoryStack},
	})
	require.NoError(t, err)

	refocus := session.RefocusQuery()
	assert.Contains(t, refocus, "stack")
	assert.Contains(t, refocus, "terraform")
	assert.Contains(t, refocus, "infrastructure")
	assert.NotContains(t, refocus, "review")

	// The narrowed query restarts the pipeline on the dominant topic.
	plan, err := session.Resolve(ctx, refocus)
	require.NoError(t, err)
	assert.Equal(t, []string{"terraform-modules"}, plan.SkillIDs())
}

type capturingRecorder struct {
	resolutions []history.Resolution
}

func (r *capturingRecorder) RecordResolution(_ context.Context, res history.Resolution) error {
	r.resolutions = append(r.resolutions, res)
	return nil
}

func TestResolveRecordsHistory(t *testing.T) {
	recorder := &capturingRecorder{}
	engine, _ := newTestEngine(t, WithRecorder(recorder))
	session := engine.NewSession()

	_, err := session.Resolve(context.Background(), "reviewing pull requests")
	require.NoError(t, err)

	require.Len(t, recorder.resolutions, 1)
	res := recorder.resolutions[0]
	assert.Equal(t, session.ID(), res.SessionID)
	assert.Equal(t, 1, res.Turn)
	assert.Equal(t, []string{"code-review"}, res.SkillIDs)
	assert.Equal(t, string(monitor.StateHealthy), res.MonitorState)
	assert.NotEmpty(t, res.QueryHash)

	// Cache hits do not duplicate history entries.
	_, err = session.Resolve(context.Background(), "reviewing pull requests")
	require.NoError(t, err)
	assert.Len(t, recorder.resolutions, 1)
}

func TestAssembleResolvesSameLinkTextByPath(t *testing.T) {
	root := t.TempDir()
	writeSkillDir(t, root, "launch-plan", `---
name: launch-plan
description: Use when planning a product launch rollout or pricing.
tags:
  - launch
category: domain
---

# Launch Plan

Check the [details](references/rollout-details.md) and the
[details](references/pricing-details.md) before announcing.
`, map[string]string{
		"references/rollout-details.md": "Rollout happens region by region.",
		"references/pricing-details.md": "Pricing tiers are annual only.",
	})

	builder, err := catalog.NewBuilder(catalog.WithRoots(root))
	require.NoError(t, err)
	idx, err := builder.Build(context.Background())
	require.NoError(t, err)
	engine := New(catalog.NewStore(idx))
	session := engine.NewSession()

	plan, err := session.Resolve(context.Background(), "launch rollout pricing details")
	require.NoError(t, err)
	require.Len(t, plan.Entries, 1)
	require.Len(t, plan.Entries[0].References, 2)

	// Both references share the link text "details"; each must resolve
	// to its own file, not whichever declared that text first.
	payload, err := engine.Assemble(context.Background(), plan)
	require.NoError(t, err)
	assert.Contains(t, payload, "Rollout happens region by region.")
	assert.Contains(t, payload, "Pricing tiers are annual only.")
}

func TestAssembleOmitsUnreadableReference(t *testing.T) {
	engine, root := newTestEngine(t)
	session := engine.NewSession()
	ctx := context.Background()

	plan, err := session.Resolve(ctx, "terraform state migration")
	require.NoError(t, err)
	require.Equal(t, 1, plan.ReferenceCount())

	// The file vanishes between build and first read; the turn proceeds
	// with the reference omitted.
	require.NoError(t, os.Remove(filepath.Join(root, "terraform-modules", "references", "state-migration.md")))

	payload, err := engine.Assemble(ctx, plan)
	require.NoError(t, err)
	assert.Contains(t, payload, `<skill name="terraform-modules"`)
	assert.NotContains(t, payload, "<reference")
}

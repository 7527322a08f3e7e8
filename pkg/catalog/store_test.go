package catalog

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestIndex(t *testing.T, root string) *Index {
	t.Helper()
	builder, err := NewBuilder(WithRoots(root))
	require.NoError(t, err)
	idx, err := builder.Build(context.Background())
	require.NoError(t, err)
	return idx
}

func TestStoreSwapBumpsGeneration(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "code-review", minimalSkill("code-review", "meta"))

	store := NewStore(buildTestIndex(t, root))
	first := store.Index()
	assert.Equal(t, uint64(1), first.Generation())

	writeSkill(t, root, "terraform-modules", minimalSkill("terraform-modules", "stack"))
	displaced := store.Swap(buildTestIndex(t, root))

	assert.Same(t, first, displaced)
	next := store.Index()
	assert.Equal(t, uint64(2), next.Generation())
	assert.Equal(t, 2, next.Len())

	// The displaced snapshot is untouched by the swap.
	assert.Equal(t, 1, first.Len())
	assert.Equal(t, uint64(1), first.Generation())
}

func TestStoreConcurrentReadsDuringSwap(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "code-review", minimalSkill("code-review", "meta"))
	store := NewStore(buildTestIndex(t, root))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				idx := store.Index()
				// Every observed snapshot is internally consistent.
				assert.Len(t, idx.All(), idx.Len())
			}
		}()
	}
	for i := 0; i < 20; i++ {
		store.Swap(buildTestIndex(t, root))
	}
	wg.Wait()

	assert.Equal(t, uint64(21), store.Index().Generation())
}

func TestReferenceContentReadsAndCaches(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "terraform-modules", `---
name: terraform-modules
description: Use when provisioning Terraform modules.
category: stack
---

See the [state migration guide](references/state-migration.md).
`)
	writeSidecar(t, root, "terraform-modules", "references/state-migration.md", "Original migration notes.")

	idx := buildTestIndex(t, root)
	ctx := context.Background()

	content, err := idx.ReferenceContent(ctx, "terraform-modules", "references/state-migration.md")
	require.NoError(t, err)
	assert.Equal(t, "Original migration notes.", content)

	// Cached: a rewrite on disk is not observed by this snapshot.
	writeSidecar(t, root, "terraform-modules", "references/state-migration.md", "Rewritten notes.")
	content, err = idx.ReferenceContent(ctx, "terraform-modules", "references/state-migration.md")
	require.NoError(t, err)
	assert.Equal(t, "Original migration notes.", content)
}

func TestReferenceContentVanishedFile(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "terraform-modules", `---
name: terraform-modules
description: Use when provisioning Terraform modules.
category: stack
---

See the [state migration guide](references/state-migration.md).
`)
	writeSidecar(t, root, "terraform-modules", "references/state-migration.md", "Migration notes.")

	idx := buildTestIndex(t, root)
	ctx := context.Background()
	refPath := filepath.Join(root, "terraform-modules", "references", "state-migration.md")
	require.NoError(t, os.Remove(refPath))

	_, err := idx.ReferenceContent(ctx, "terraform-modules", "references/state-migration.md")
	require.Error(t, err)

	var refErr *ReferenceResolutionError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "terraform-modules", refErr.SkillID)
	assert.Equal(t, "references/state-migration.md", refErr.Path)

	// A failed load is not cached, so restoring the file recovers.
	writeSidecar(t, root, "terraform-modules", "references/state-migration.md", "Migration notes.")
	content, err := idx.ReferenceContent(ctx, "terraform-modules", "references/state-migration.md")
	require.NoError(t, err)
	assert.Equal(t, "Migration notes.", content)
}

func TestReferenceContentUnknownSkillAndReference(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "code-review", minimalSkill("code-review", "meta"))
	idx := buildTestIndex(t, root)
	ctx := context.Background()

	var refErr *ReferenceResolutionError

	_, err := idx.ReferenceContent(ctx, "no-such-skill", "anything")
	require.ErrorAs(t, err, &refErr)

	_, err = idx.ReferenceContent(ctx, "code-review", "no-such-reference")
	require.ErrorAs(t, err, &refErr)
}

package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/skillet/pkg/catalog"
)

func observeQuiet(t *testing.T, m *Monitor, n int, ev TurnEvent) {
	t.Helper()
	for i := 0; i < n; i++ {
		m.ObserveTurn(ev)
	}
}

func TestMonitorStaysHealthyUnderThresholds(t *testing.T) {
	m := New()

	for i := 0; i < 39; i++ {
		advisory := m.ObserveTurn(TurnEvent{
			Role:       "user",
			Content:    "more terraform work",
			Categories: []catalog.Category{catalog.CategoryStack},
		})
		assert.Nil(t, advisory)
	}
	assert.Equal(t, StateHealthy, m.State())
	assert.Equal(t, 39, m.MessageCount())
}

func TestMonitorWarnsAtMessageCount(t *testing.T) {
	// 45 single-category messages: healthy until the count reaches 40,
	// then a warning; the category-spread threshold never fires.
	m := New()

	var advisories []*Advisory
	for i := 0; i < 45; i++ {
		if a := m.ObserveTurn(TurnEvent{
			Role:       "user",
			Categories: []catalog.Category{catalog.CategoryStack},
		}); a != nil {
			advisories = append(advisories, a)
			assert.Equal(t, 40, m.MessageCount())
		}
	}

	require.Len(t, advisories, 1)
	assert.Equal(t, StateWarning, advisories[0].State)
	assert.Equal(t, KindSummarize, advisories[0].Kind)
	assert.Equal(t, StateWarning, m.State())
}

func TestMonitorEscalatesOnRepeatedError(t *testing.T) {
	// The same normalized error at three well-separated turns reaches
	// ActionNeeded on the third occurrence regardless of message count.
	m := New()
	errText := "connection refused to 10.0.0.7:5432"

	observeQuiet(t, m, 9, TurnEvent{Role: "user"})
	assert.Nil(t, m.ObserveTurn(TurnEvent{Role: "assistant", ErrorText: errText}))
	assert.Equal(t, StateHealthy, m.State())

	observeQuiet(t, m, 14, TurnEvent{Role: "user"})
	second := m.ObserveTurn(TurnEvent{Role: "assistant", ErrorText: "Connection refused  to 10.0.0.7:5432"})
	require.NotNil(t, second)
	assert.Equal(t, StateWarning, second.State)
	assert.Equal(t, KindReassessError, second.Kind)

	observeQuiet(t, m, 14, TurnEvent{Role: "user"})
	third := m.ObserveTurn(TurnEvent{Role: "assistant", ErrorText: errText})
	require.NotNil(t, third)
	assert.Equal(t, StateActionNeeded, third.State)
	assert.Equal(t, KindReassessError, third.Kind)
}

func TestMonitorNeverSkipsWarning(t *testing.T) {
	// Three distinct categories in one turn satisfies the ActionNeeded
	// spread condition immediately, but from Healthy only a Warning may
	// surface.
	m := New()

	advisory := m.ObserveTurn(TurnEvent{
		Role: "user",
		Categories: []catalog.Category{
			catalog.CategoryStack, catalog.CategoryDomain, catalog.CategoryMeta,
		},
	})
	require.NotNil(t, advisory)
	assert.Equal(t, StateWarning, advisory.State)
	assert.Equal(t, KindSplitTopics, advisory.Kind)

	advisory = m.ObserveTurn(TurnEvent{Role: "user", Categories: []catalog.Category{catalog.CategoryMeta}})
	require.NotNil(t, advisory)
	assert.Equal(t, StateActionNeeded, advisory.State)
}

func TestMonitorActionNeededSticky(t *testing.T) {
	m := New()
	errText := "segfault at 0x7fff5694"

	m.ObserveTurn(TurnEvent{ErrorText: errText})
	m.ObserveTurn(TurnEvent{ErrorText: errText})
	m.ObserveTurn(TurnEvent{ErrorText: errText})
	require.Equal(t, StateActionNeeded, m.State())

	// No further turn returns the session to healthy on its own.
	for i := 0; i < 30; i++ {
		assert.Nil(t, m.ObserveTurn(TurnEvent{Role: "user", Content: "all calm now"}))
	}
	assert.Equal(t, StateActionNeeded, m.State())

	m.Reset()
	assert.Equal(t, StateHealthy, m.State())
	assert.Equal(t, 0, m.MessageCount())
}

func TestMonitorAcknowledgeKeepsCounters(t *testing.T) {
	m := New()
	errText := "build failed: missing symbol"

	m.ObserveTurn(TurnEvent{ErrorText: errText})
	m.ObserveTurn(TurnEvent{ErrorText: errText})
	m.ObserveTurn(TurnEvent{ErrorText: errText})
	require.Equal(t, StateActionNeeded, m.State())

	m.Acknowledge()
	assert.Equal(t, StateHealthy, m.State())
	assert.Equal(t, 3, m.MessageCount())
}

func TestMonitorClarificationLoop(t *testing.T) {
	m := New()

	assert.Nil(t, m.ObserveTurn(TurnEvent{
		Role: "assistant", Clarification: true,
		Content: "Which environment should this deploy to?",
	}))
	advisory := m.ObserveTurn(TurnEvent{
		Role: "assistant", Clarification: true,
		Content: "Which environment should this deploy to?",
	})
	require.NotNil(t, advisory)
	assert.Equal(t, StateWarning, advisory.State)
	assert.Equal(t, KindVerifyUnderstanding, advisory.Kind)
}

func TestMonitorSpawnsWithoutCompletion(t *testing.T) {
	m := New()

	// Reach Warning first via topic spread.
	m.ObserveTurn(TurnEvent{Categories: []catalog.Category{catalog.CategoryStack, catalog.CategoryDomain}})
	require.Equal(t, StateWarning, m.State())

	m.ObserveTurn(TurnEvent{Spawned: true})
	m.ObserveTurn(TurnEvent{Spawned: true})
	advisory := m.ObserveTurn(TurnEvent{Spawned: true})
	require.NotNil(t, advisory)
	assert.Equal(t, StateActionNeeded, advisory.State)
	assert.Equal(t, KindSplitTopics, advisory.Kind)
}

func TestMonitorCompletionsOffsetSpawns(t *testing.T) {
	m := New()
	m.ObserveTurn(TurnEvent{Categories: []catalog.Category{catalog.CategoryStack, catalog.CategoryDomain}})
	require.Equal(t, StateWarning, m.State())

	for i := 0; i < 5; i++ {
		m.ObserveTurn(TurnEvent{Spawned: true})
		advisory := m.ObserveTurn(TurnEvent{Completed: true})
		assert.Nil(t, advisory)
	}
	assert.Equal(t, StateWarning, m.State())
}

func TestMonitorAdvisoryPrecedence(t *testing.T) {
	// When length and a repeated error fire in the same turn the error
	// wins: it is the most actionable signal.
	thresholds := DefaultThresholds()
	thresholds.WarningMessages = 2
	m := New(WithThresholds(thresholds))

	m.ObserveTurn(TurnEvent{ErrorText: "timeout waiting for lock"})
	advisory := m.ObserveTurn(TurnEvent{ErrorText: "timeout waiting for lock"})
	require.NotNil(t, advisory)
	assert.Equal(t, KindReassessError, advisory.Kind)
}

func TestMonitorCategoryWindowEvicts(t *testing.T) {
	// Raised spread thresholds so two concurrent categories alone never
	// trip a warning; only a three-way spread could.
	thresholds := DefaultThresholds()
	thresholds.CategoryWindow = 5
	thresholds.WarningCategories = 3
	thresholds.ActionCategories = 4
	m := New(WithThresholds(thresholds))

	m.ObserveTurn(TurnEvent{Categories: []catalog.Category{catalog.CategoryDomain}})
	// Five stack-only turns push the domain turn out of the window.
	for i := 0; i < 5; i++ {
		m.ObserveTurn(TurnEvent{Categories: []catalog.Category{catalog.CategoryStack}})
	}
	assert.Equal(t, StateHealthy, m.State())

	// With the domain turn evicted, a meta turn makes only two distinct
	// categories in the window; without eviction it would be the third.
	assert.Nil(t, m.ObserveTurn(TurnEvent{Categories: []catalog.Category{catalog.CategoryMeta}}))
	assert.Equal(t, StateHealthy, m.State())

	dominant, ok := m.DominantCategory()
	require.True(t, ok)
	assert.Equal(t, catalog.CategoryStack, dominant)
	// Topics seen over the whole session still include everything.
	assert.Equal(t, []catalog.Category{catalog.CategoryStack, catalog.CategoryDomain, catalog.CategoryMeta}, m.Topics())
}

func TestSnapshotRoundTrip(t *testing.T) {
	m := New()
	m.ObserveTurn(TurnEvent{
		Categories: []catalog.Category{catalog.CategoryStack, catalog.CategoryDomain},
		ErrorText:  "oom killed",
		Spawned:    true,
	})
	require.Equal(t, StateWarning, m.State())

	store, err := NewStateStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Save("session-1", m))

	restored := New()
	found, err := store.Load("session-1", restored)
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, StateWarning, restored.State())
	assert.Equal(t, 1, restored.MessageCount())
	assert.Equal(t, m.Topics(), restored.Topics())

	// The restored window still carries the error fingerprint: two more
	// repeats escalate exactly as they would have without the restart.
	assert.Nil(t, restored.ObserveTurn(TurnEvent{ErrorText: "oom killed"}))
	advisory := restored.ObserveTurn(TurnEvent{ErrorText: "oom killed"})
	require.NotNil(t, advisory)
	assert.Equal(t, StateActionNeeded, advisory.State)
	assert.Equal(t, KindReassessError, advisory.Kind)
}

func TestStateStoreMissingSession(t *testing.T) {
	store, err := NewStateStore(t.TempDir())
	require.NoError(t, err)

	found, err := store.Load("nope", New())
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, store.Clear("nope"))
}

func TestFingerprintNormalization(t *testing.T) {
	// Case and whitespace are normalized away.
	assert.Equal(t,
		Fingerprint("connection refused to 10.0.0.7:5432"),
		Fingerprint("Connection  refused to 10.0.0.7:5432"))

	// Long ids and addresses collapse; the failures match.
	assert.Equal(t,
		Fingerprint("request 8f3a9b21 failed: connection refused"),
		Fingerprint("request 77c0de19 failed: connection refused"))

	assert.Equal(t,
		Fingerprint("panic at 0xdead1234"),
		Fingerprint("panic at 0xcafe5678"))

	// Different failures keep different fingerprints.
	assert.NotEqual(t,
		Fingerprint("connection refused"),
		Fingerprint("permission denied"))

	// Short codes are significant.
	assert.NotEqual(t,
		Fingerprint("exit code 1"),
		Fingerprint("exit code 2"))
}

func TestFingerprintWindowEviction(t *testing.T) {
	w := newFingerprintWindow(3)

	assert.Equal(t, 1, w.push("aa"))
	assert.Equal(t, 2, w.push("aa"))
	assert.Equal(t, 1, w.push("bb"))
	assert.Equal(t, 1, w.push("cc")) // evicts the first "aa"
	assert.Equal(t, 2, w.push("cc")) // evicts the second "aa"
	assert.Equal(t, []string{"bb", "cc", "cc"}, w.snapshot())
}

// Package monitor watches a conversation session for drift: sessions
// that run too long, sprawl across topics, loop on the same error, or
// keep re-asking clarifying questions. It is a per-session state machine
// over Healthy, Warning and ActionNeeded that emits descriptive
// advisories; it never mutates a load plan itself, the host decides
// whether to act.
package monitor

import (
	"fmt"
	"sync"

	"github.com/jingkaihe/skillet/pkg/catalog"
)

// State is the health of a conversation session
type State string

const (
	// StateHealthy means no drift signal has fired
	StateHealthy State = "healthy"
	// StateWarning means at least one drift signal has fired
	StateWarning State = "warning"
	// StateActionNeeded means drift has escalated; only an explicit
	// reset or acknowledgement returns the session to healthy.
	StateActionNeeded State = "action-needed"
)

// AdvisoryKind classifies the suggested remediation
type AdvisoryKind string

const (
	// KindSummarize suggests condensing a long conversation
	KindSummarize AdvisoryKind = "summarize"
	// KindSplitTopics suggests separating unrelated work streams
	KindSplitTopics AdvisoryKind = "split-topics"
	// KindReassessError suggests stepping back from a repeating failure
	KindReassessError AdvisoryKind = "reassess-error"
	// KindVerifyUnderstanding suggests restating the goal after repeated
	// clarification questions.
	KindVerifyUnderstanding AdvisoryKind = "verify-understanding"
)

// Advisory is the structured record emitted on a state transition. It is
// descriptive only; acting on it is the host's decision.
type Advisory struct {
	State   State        `json:"state"`
	Kind    AdvisoryKind `json:"kind"`
	Message string       `json:"message"`
}

// Thresholds are the tunable drift limits. The defaults are design
// choices, not contractual constants; hosts override them through
// configuration.
type Thresholds struct {
	WarningMessages   int // message count for Healthy -> Warning
	ActionMessages    int // message count for Warning -> ActionNeeded
	WarningCategories int // distinct categories in the trailing window for Warning
	ActionCategories  int // distinct categories in the trailing window for ActionNeeded
	WarningRepeats    int // identical error/clarification fingerprints for Warning
	ActionRepeats     int // identical error fingerprints for ActionNeeded
	SpawnLimit        int // specialist spawns without completion for ActionNeeded
	CategoryWindow    int // trailing messages considered for topic spread
	FingerprintWindow int // rolling fingerprints kept per signal
}

// DefaultThresholds returns the standard limits
func DefaultThresholds() Thresholds {
	return Thresholds{
		WarningMessages:   40,
		ActionMessages:    60,
		WarningCategories: 2,
		ActionCategories:  3,
		WarningRepeats:    2,
		ActionRepeats:     3,
		SpawnLimit:        3,
		CategoryWindow:    20,
		FingerprintWindow: 16,
	}
}

// TurnEvent describes one observed conversation turn
type TurnEvent struct {
	Role          string              // who produced the turn
	Content       string              // turn text, used only for counters
	ErrorText     string              // error surfaced this turn, if any
	Clarification bool                // the assistant asked a clarifying question
	Categories    []catalog.Category  // skill categories matched this turn
	Spawned       bool                // a specialist context was spawned
	Completed     bool                // a specialist reported completion
}

// Monitor tracks the drift state of one session. Counters other than
// the rolling windows only grow within a session; Reset starts over.
type Monitor struct {
	mu         sync.Mutex
	thresholds Thresholds

	state          State
	messageCount   int
	topics         map[catalog.Category]bool
	categoryWindow *categoryWindow
	errors         *fingerprintWindow
	clarifications *fingerprintWindow
	spawns         int
	completions    int
}

// Option configures a Monitor
type Option func(*Monitor)

// WithThresholds overrides the default drift limits
func WithThresholds(t Thresholds) Option {
	return func(m *Monitor) {
		m.thresholds = t
	}
}

// New creates a healthy monitor
func New(opts ...Option) *Monitor {
	m := &Monitor{thresholds: DefaultThresholds()}
	for _, opt := range opts {
		opt(m)
	}
	m.reset()
	return m
}

func (m *Monitor) reset() {
	m.state = StateHealthy
	m.messageCount = 0
	m.topics = make(map[catalog.Category]bool)
	m.categoryWindow = newCategoryWindow(m.thresholds.CategoryWindow)
	m.errors = newFingerprintWindow(m.thresholds.FingerprintWindow)
	m.clarifications = newFingerprintWindow(m.thresholds.FingerprintWindow)
	m.spawns = 0
	m.completions = 0
}

// State returns the current session state
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// MessageCount returns the number of observed turns
func (m *Monitor) MessageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.messageCount
}

// Topics returns every distinct category seen this session
func (m *Monitor) Topics() []catalog.Category {
	m.mu.Lock()
	defer m.mu.Unlock()
	var topics []catalog.Category
	for _, c := range catalog.Categories {
		if m.topics[c] {
			topics = append(topics, c)
		}
	}
	return topics
}

// DominantCategory returns the category appearing most often in the
// trailing window, for hosts that narrow the query when refocusing.
func (m *Monitor) DominantCategory() (catalog.Category, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.categoryWindow.dominant()
}

// Reset returns the session to healthy and clears every counter. This
// is the explicit new-session escape hatch; nothing else leaves
// ActionNeeded.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
}

// Acknowledge records that the user accepted a remediation suggestion,
// returning an ActionNeeded session to healthy without discarding its
// counters. Rolling windows keep their contents; only the state moves.
func (m *Monitor) Acknowledge() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateHealthy
}

// signal is one fired drift trigger, ordered by kind precedence
type signal struct {
	kind    AdvisoryKind
	message string
}

// kindPrecedence orders advisory kinds when several triggers fire in the
// same turn: a repeating error is the most actionable signal, drowning
// in topics the next, and sheer length the least specific.
var kindPrecedence = map[AdvisoryKind]int{
	KindReassessError:       0,
	KindSplitTopics:         1,
	KindVerifyUnderstanding: 2,
	KindSummarize:           3,
}

// ObserveTurn updates the counters with one turn and evaluates the state
// machine. It returns a non-nil advisory exactly when the state
// escalates; transitions never skip a state, so a turn that satisfies an
// ActionNeeded condition from Healthy surfaces a Warning first.
func (m *Monitor) ObserveTurn(ev TurnEvent) *Advisory {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messageCount++
	m.categoryWindow.push(ev.Categories)
	for _, c := range ev.Categories {
		m.topics[c] = true
	}

	errorRepeats := 0
	if ev.ErrorText != "" {
		errorRepeats = m.errors.push(Fingerprint(ev.ErrorText))
	}
	clarificationRepeats := 0
	if ev.Clarification {
		clarificationRepeats = m.clarifications.push(Fingerprint(ev.Content))
	}
	if ev.Spawned {
		m.spawns++
	}
	if ev.Completed {
		m.completions++
	}

	switch m.state {
	case StateHealthy:
		if s := m.warningSignal(errorRepeats, clarificationRepeats); s != nil {
			m.state = StateWarning
			return &Advisory{State: StateWarning, Kind: s.kind, Message: s.message}
		}
		// An ActionNeeded-grade trigger still only produces a Warning
		// from here; the user is never startled by a direct escalation.
		if s := m.actionSignal(errorRepeats); s != nil {
			m.state = StateWarning
			return &Advisory{State: StateWarning, Kind: s.kind, Message: s.message}
		}
	case StateWarning:
		if s := m.actionSignal(errorRepeats); s != nil {
			m.state = StateActionNeeded
			return &Advisory{State: StateActionNeeded, Kind: s.kind, Message: s.message}
		}
	case StateActionNeeded:
		// Sticky until Reset or Acknowledge.
	}

	return nil
}

func (m *Monitor) warningSignal(errorRepeats, clarificationRepeats int) *signal {
	var fired []signal
	if errorRepeats >= m.thresholds.WarningRepeats {
		fired = append(fired, signal{
			kind:    KindReassessError,
			message: fmt.Sprintf("the same error has now appeared %d times; step back and reassess the approach", errorRepeats),
		})
	}
	if distinct := m.categoryWindow.distinct(); distinct >= m.thresholds.WarningCategories {
		fired = append(fired, signal{
			kind:    KindSplitTopics,
			message: fmt.Sprintf("%d distinct skill categories matched within the last %d messages; consider splitting topics", distinct, m.thresholds.CategoryWindow),
		})
	}
	if clarificationRepeats >= m.thresholds.WarningRepeats {
		fired = append(fired, signal{
			kind:    KindVerifyUnderstanding,
			message: fmt.Sprintf("the same clarification has been asked %d times; restate the goal to verify understanding", clarificationRepeats),
		})
	}
	if m.messageCount >= m.thresholds.WarningMessages {
		fired = append(fired, signal{
			kind:    KindSummarize,
			message: fmt.Sprintf("conversation has reached %d messages; consider summarizing before continuing", m.messageCount),
		})
	}
	return pick(fired)
}

func (m *Monitor) actionSignal(errorRepeats int) *signal {
	var fired []signal
	if errorRepeats >= m.thresholds.ActionRepeats {
		fired = append(fired, signal{
			kind:    KindReassessError,
			message: fmt.Sprintf("the same error has appeared %d times without progress; a fresh approach is needed", errorRepeats),
		})
	}
	if distinct := m.categoryWindow.distinct(); distinct >= m.thresholds.ActionCategories {
		fired = append(fired, signal{
			kind:    KindSplitTopics,
			message: fmt.Sprintf("%d distinct skill categories matched within the last %d messages; split this into separate conversations", distinct, m.thresholds.CategoryWindow),
		})
	}
	if pending := m.spawns - m.completions; pending >= m.thresholds.SpawnLimit {
		fired = append(fired, signal{
			kind:    KindSplitTopics,
			message: fmt.Sprintf("%d specialists spawned without a completion marker; split or wind down the open work streams", pending),
		})
	}
	if m.messageCount >= m.thresholds.ActionMessages {
		fired = append(fired, signal{
			kind:    KindSummarize,
			message: fmt.Sprintf("conversation has reached %d messages; summarize and spawn a fresh context", m.messageCount),
		})
	}
	return pick(fired)
}

func pick(fired []signal) *signal {
	if len(fired) == 0 {
		return nil
	}
	best := fired[0]
	for _, s := range fired[1:] {
		if kindPrecedence[s.kind] < kindPrecedence[best.kind] {
			best = s
		}
	}
	return &best
}

// categoryWindow is a fixed-size queue of per-turn matched categories
type categoryWindow struct {
	size  int
	turns [][]catalog.Category
}

func newCategoryWindow(size int) *categoryWindow {
	return &categoryWindow{size: size}
}

func (w *categoryWindow) push(categories []catalog.Category) {
	w.turns = append(w.turns, append([]catalog.Category(nil), categories...))
	if len(w.turns) > w.size {
		w.turns = w.turns[1:]
	}
}

func (w *categoryWindow) distinct() int {
	seen := make(map[catalog.Category]bool)
	for _, turn := range w.turns {
		for _, c := range turn {
			seen[c] = true
		}
	}
	return len(seen)
}

func (w *categoryWindow) dominant() (catalog.Category, bool) {
	counts := make(map[catalog.Category]int)
	for _, turn := range w.turns {
		for _, c := range turn {
			counts[c]++
		}
	}
	best, bestCount := catalog.Category(""), 0
	// Iterate the fixed category order so ties resolve deterministically.
	for _, c := range catalog.Categories {
		if counts[c] > bestCount {
			best, bestCount = c, counts[c]
		}
	}
	return best, bestCount > 0
}

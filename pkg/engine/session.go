package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jingkaihe/skillet/pkg/budget"
	"github.com/jingkaihe/skillet/pkg/history"
	"github.com/jingkaihe/skillet/pkg/logger"
	"github.com/jingkaihe/skillet/pkg/matcher"
	"github.com/jingkaihe/skillet/pkg/monitor"
	"github.com/jingkaihe/skillet/pkg/telemetry"
)

// Session is one conversation's view of the engine. Each session owns
// its monitor and plan cache exclusively; the catalog store underneath
// is shared and read-only.
type Session struct {
	id      string
	engine  *Engine
	monitor *monitor.Monitor

	mu    sync.Mutex
	turn  int
	cache map[string]cachedPlan
}

type cachedPlan struct {
	generation uint64
	plan       *budget.LoadPlan
}

// NewSession starts a fresh conversation session
func (e *Engine) NewSession() *Session {
	return &Session{
		id:      uuid.NewString(),
		engine:  e,
		monitor: monitor.New(monitor.WithThresholds(e.cfg.MonitorThresholds())),
		cache:   make(map[string]cachedPlan),
	}
}

// ResumeSession recreates a session with a known identifier, restoring
// its monitor snapshot when a state store is configured and holds one.
func (e *Engine) ResumeSession(ctx context.Context, id string) (*Session, error) {
	s := &Session{
		id:      id,
		engine:  e,
		monitor: monitor.New(monitor.WithThresholds(e.cfg.MonitorThresholds())),
		cache:   make(map[string]cachedPlan),
	}
	if e.stateStore != nil {
		found, err := e.stateStore.Load(id, s.monitor)
		if err != nil {
			return nil, err
		}
		if found {
			logger.G(ctx).WithFields(map[string]interface{}{
				"session": id,
				"state":   s.monitor.State(),
			}).Debug("session health state restored")
		}
	}
	return s, nil
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Health returns the session's current drift state
func (s *Session) Health() monitor.State {
	return s.monitor.State()
}

// Resolve runs one full pipeline pass for the query and returns the
// resulting plan. An empty query loads the configured always-on skills
// rather than guessing at relevance. Identical queries against an
// unchanged catalog are served from the session's plan cache; a catalog
// swap invalidates it via the generation number.
func (s *Session) Resolve(ctx context.Context, query string) (*budget.LoadPlan, error) {
	e := s.engine
	idx := e.store.Index()
	key := queryHash(query)

	s.mu.Lock()
	s.turn++
	turn := s.turn
	if cached, ok := s.cache[key]; ok && cached.generation == idx.Generation() {
		s.mu.Unlock()
		logger.G(ctx).WithField("session", s.id).Debug("plan served from cache")
		return cached.plan, nil
	}
	s.mu.Unlock()

	ctx, span := e.tracer.Start(ctx, "engine.resolve")
	defer span.End()

	var candidates []matcher.Candidate
	_ = telemetry.WithSpan(ctx, "engine.match", func(ctx context.Context) error {
		if strings.TrimSpace(query) == "" {
			candidates = s.alwaysOnCandidates(ctx)
		} else {
			candidates = e.matcher.Match(query, idx)
		}
		telemetry.SetAttributes(ctx, attribute.Int("candidates", len(candidates)))
		return nil
	})

	var plan *budget.LoadPlan
	var allocErr error
	_ = telemetry.WithSpan(ctx, "engine.allocate", func(ctx context.Context) error {
		plan, allocErr = e.allocator.Allocate(candidates, e.cfg.BudgetTokens)
		telemetry.SetAttributes(ctx,
			attribute.Int("skills", len(plan.Entries)),
			attribute.Int("consumed_tokens", plan.Consumed),
		)
		return allocErr
	})
	if allocErr != nil {
		// Recoverable: the caller falls back to a reduced plan. The
		// outcome is still recorded so authors can spot oversized skills.
		s.record(ctx, turn, key, plan)
		return plan, allocErr
	}

	_ = telemetry.WithSpan(ctx, "engine.expand", func(ctx context.Context) error {
		plan = e.loader.Expand(ctx, plan, query)
		telemetry.SetAttributes(ctx,
			attribute.Int("references", plan.ReferenceCount()),
			attribute.Int("deferred", len(plan.Deferred)),
		)
		return nil
	})

	s.mu.Lock()
	s.cache[key] = cachedPlan{generation: idx.Generation(), plan: plan}
	s.mu.Unlock()

	s.record(ctx, turn, key, plan)
	return plan, nil
}

// alwaysOnCandidates builds zero-score candidates from the configured
// always-on skill ids, preserving configuration order. Unknown ids are
// logged and skipped.
func (s *Session) alwaysOnCandidates(ctx context.Context) []matcher.Candidate {
	idx := s.engine.store.Index()
	var candidates []matcher.Candidate
	for _, id := range s.engine.cfg.AlwaysOn {
		doc, ok := idx.Lookup(id)
		if !ok {
			logger.G(ctx).WithField("skill", id).Warn("always-on skill not in catalog")
			continue
		}
		candidates = append(candidates, matcher.Candidate{Doc: doc})
	}
	return candidates
}

// Observe feeds one conversation turn to the health monitor and returns
// its advisory, if the turn caused an escalation. When snapshot
// persistence is configured the updated state is saved before returning.
func (s *Session) Observe(ctx context.Context, ev monitor.TurnEvent) (*monitor.Advisory, error) {
	advisory := s.monitor.ObserveTurn(ev)

	if s.engine.stateStore != nil {
		if err := s.engine.stateStore.Save(s.id, s.monitor); err != nil {
			return advisory, err
		}
	}

	if advisory != nil {
		logger.G(ctx).WithFields(map[string]interface{}{
			"session": s.id,
			"state":   advisory.State,
			"kind":    advisory.Kind,
		}).Info("health advisory emitted")
	}
	return advisory, nil
}

// RefocusQuery builds a narrowed query from the dominant category's tag
// vocabulary, for restarting the pipeline after a drift advisory. It
// returns empty when the session has no dominant topic yet.
func (s *Session) RefocusQuery() string {
	dominant, ok := s.monitor.DominantCategory()
	if !ok {
		return ""
	}

	idx := s.engine.store.Index()
	seen := make(map[string]bool)
	var terms []string
	terms = append(terms, string(dominant))
	for _, doc := range idx.All() {
		if doc.Category != dominant {
			continue
		}
		for _, tag := range doc.Tags {
			lowered := strings.ToLower(tag)
			if seen[lowered] {
				continue
			}
			seen[lowered] = true
			terms = append(terms, lowered)
		}
	}
	return strings.Join(terms, " ")
}

// Acknowledge records the user's acceptance of a remediation suggestion
func (s *Session) Acknowledge() {
	s.monitor.Acknowledge()
}

// Reset starts the session over: monitor counters cleared, plan cache
// dropped, persisted snapshot removed.
func (s *Session) Reset(ctx context.Context) error {
	s.monitor.Reset()

	s.mu.Lock()
	s.cache = make(map[string]cachedPlan)
	s.turn = 0
	s.mu.Unlock()

	if s.engine.stateStore != nil {
		return s.engine.stateStore.Clear(s.id)
	}
	return nil
}

func (s *Session) record(ctx context.Context, turn int, queryHash string, plan *budget.LoadPlan) {
	if s.engine.recorder == nil {
		return
	}

	err := s.engine.recorder.RecordResolution(ctx, history.Resolution{
		SessionID:      s.id,
		Turn:           turn,
		QueryHash:      queryHash,
		SkillIDs:       plan.SkillIDs(),
		ConsumedTokens: plan.Consumed,
		BudgetTokens:   plan.Budget,
		DeferredCount:  len(plan.Deferred),
		MonitorState:   string(s.monitor.State()),
		CreatedAt:      time.Now(),
	})
	if err != nil {
		// History is advisory; never fail the turn over it.
		logger.G(ctx).WithError(err).Warn("failed to record resolution history")
	}
}

func queryHash(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])
}

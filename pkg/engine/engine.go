// Package engine orchestrates the per-turn resolution pipeline: match
// the catalog against the query, allocate skills under the token budget,
// expand references through progressive disclosure, and feed the
// conversation health monitor. The engine owns the shared read-only
// pieces; each conversation gets its own Session with an exclusive
// monitor and plan cache.
package engine

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/jingkaihe/skillet/pkg/budget"
	"github.com/jingkaihe/skillet/pkg/catalog"
	"github.com/jingkaihe/skillet/pkg/config"
	"github.com/jingkaihe/skillet/pkg/disclosure"
	"github.com/jingkaihe/skillet/pkg/history"
	"github.com/jingkaihe/skillet/pkg/matcher"
	"github.com/jingkaihe/skillet/pkg/monitor"
	"github.com/jingkaihe/skillet/pkg/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// Recorder logs resolution outcomes. *history.Store satisfies it; a nil
// recorder disables logging.
type Recorder interface {
	RecordResolution(ctx context.Context, res history.Resolution) error
}

// Engine wires the resolution pipeline together
type Engine struct {
	store      *catalog.Store
	cfg        *config.Config
	matcher    *matcher.Matcher
	allocator  *budget.Allocator
	loader     *disclosure.Loader
	recorder   Recorder
	stateStore *monitor.StateStore
	tracer     trace.Tracer
}

// Option configures an Engine
type Option func(*Engine)

// WithConfig replaces the default configuration
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithRecorder enables resolution history logging
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithStateStore enables monitor snapshot persistence, letting sessions
// resume their health state across host restarts.
func WithStateStore(s *monitor.StateStore) Option {
	return func(e *Engine) {
		e.stateStore = s
	}
}

// New creates an engine serving the given catalog store
func New(store *catalog.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		cfg:    config.Default(),
		tracer: telemetry.Tracer("skillet.engine"),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.stateStore == nil && e.cfg.Monitor.StateDir != "" {
		store, err := monitor.NewStateStore(e.cfg.Monitor.StateDir)
		if err != nil {
			logrus.WithError(err).Warn("failed to initialize monitor state store, session health will not persist")
		} else {
			e.stateStore = store
		}
	}

	e.matcher = matcher.New(matcher.WithWeights(e.cfg.MatcherWeights()))
	e.allocator = budget.NewAllocator(budget.WithCategoryMinimums(e.cfg.CategoryMinimums()))
	e.loader = disclosure.NewLoader(disclosure.WithRelevanceThreshold(e.cfg.Threshold))

	return e
}

// Catalog returns the engine's catalog store
func (e *Engine) Catalog() *catalog.Store {
	return e.store
}

// Config returns the engine's configuration
func (e *Engine) Config() *config.Config {
	return e.cfg
}

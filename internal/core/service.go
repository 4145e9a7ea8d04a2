// Package core orchestrates the taxonomy, expansion and resolution packages
// over a persistent store. It owns when the ingredient tree is rebuilt.
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"amari/internal/cache"
	"amari/internal/infra/persistence/memory"
	"amari/internal/inventory"
	"amari/internal/resolution"
	"amari/internal/taxonomy"
	"amari/pkg/domain"
)

// ErrTreeUnavailable is returned by tree-dependent reads after the last build
// failed. It wraps the construction error.
var ErrTreeUnavailable = errors.New("ingredient tree unavailable")

// treeState is one immutable build and the resolvers bound to it.
type treeState struct {
	tree     *taxonomy.Tree
	subs     *taxonomy.SubstitutionResolver
	expander *inventory.Expander
	resolver *resolution.Resolver
}

// treeHolder swaps whole tree states. Readers never see a partially built tree.
type treeHolder struct {
	current atomic.Pointer[treeState]
	mu      sync.Mutex
	failure error
}

// Service exposes transactional CRUD plus taxonomy and resolution queries.
type Service struct {
	store   PersistentStore
	policy  taxonomy.Policy
	tree    treeHolder
	cache   *cache.Registry
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	now     func() time.Time
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		policy:  taxonomy.DefaultPolicy,
		logger:  noopLogger{},
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = cache.NewRegistry(cache.NewLocal(cache.DefaultTTL), cache.DefaultTTL)
	}
	s.registerCaches()
	return s
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// Policy returns the implication policy in effect.
func (s *Service) Policy() taxonomy.Policy {
	return s.policy
}

// Cache returns the derived listing registry.
func (s *Service) Cache() *cache.Registry {
	return s.cache
}

// InvalidateTree drops the current tree; the next read rebuilds it.
func (s *Service) InvalidateTree() {
	s.tree.mu.Lock()
	s.tree.current.Store(nil)
	s.tree.failure = nil
	s.tree.mu.Unlock()
}

// RebuildTree forces a rebuild from the store and returns the new tree.
func (s *Service) RebuildTree(ctx context.Context) (*taxonomy.Tree, error) {
	s.InvalidateTree()
	st, err := s.state(ctx)
	if err != nil {
		return nil, err
	}
	return st.tree, nil
}

// Tree returns the current tree, building it if needed.
func (s *Service) Tree(ctx context.Context) (*taxonomy.Tree, error) {
	st, err := s.state(ctx)
	if err != nil {
		return nil, err
	}
	return st.tree, nil
}

func (s *Service) state(ctx context.Context) (*treeState, error) {
	if st := s.tree.current.Load(); st != nil {
		return st, nil
	}
	s.tree.mu.Lock()
	defer s.tree.mu.Unlock()
	if st := s.tree.current.Load(); st != nil {
		return st, nil
	}
	if s.tree.failure != nil {
		return nil, fmt.Errorf("%w: %w", ErrTreeUnavailable, s.tree.failure)
	}

	var records []domain.IngredientNode
	if err := s.store.View(ctx, func(v TransactionView) error {
		for _, ing := range v.ListIngredients() {
			records = append(records, ing.IngredientNode)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	start := s.now()
	tree, err := taxonomy.Build(records)
	elapsed := s.now().Sub(start)
	if tm, ok := s.metrics.(TreeMetrics); ok {
		nodes := 0
		if tree != nil {
			nodes = tree.Len()
		}
		tm.ObserveTreeBuild(nodes, err, elapsed)
	}
	if err != nil {
		s.tree.failure = err
		s.logger.Error("ingredient tree build failed", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrTreeUnavailable, err)
	}

	subs := taxonomy.NewSubstitutionResolver(tree, s.policy)
	st := &treeState{
		tree:     tree,
		subs:     subs,
		expander: inventory.NewExpander(subs),
		resolver: resolution.NewResolver(subs),
	}
	s.tree.current.Store(st)
	s.logger.Info("ingredient tree built", "nodes", tree.Len(), "duration", elapsed)
	return st, nil
}

// run executes fn in a store transaction under observe and logs non-blocking
// rule violations.
func (s *Service) run(ctx context.Context, operation string, fn func(Transaction) error) (Result, error) {
	var res Result
	err := s.observe(ctx, operation, func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, fn)
		return err
	})
	for _, v := range res.Violations {
		if v.Severity == domain.SeverityBlock {
			continue
		}
		s.logger.Warn("rule violation", "operation", operation, "rule", v.Rule, "severity", v.Severity, "msg", v.Message)
	}
	return res, err
}

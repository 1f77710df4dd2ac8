package access

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/dirsearch/internal/domain"
	"github.com/kailas-cloud/dirsearch/internal/domain/catalog"
	domgrant "github.com/kailas-cloud/dirsearch/internal/domain/grant"
	"github.com/kailas-cloud/dirsearch/internal/domain/scope"
	"github.com/kailas-cloud/dirsearch/internal/metrics"
)

// DefaultCacheTTL bounds how long a grant change may go unnoticed without explicit invalidation.
const DefaultCacheTTL = 30 * time.Second

// DefaultFillTimeout bounds one shared grant lookup.
const DefaultFillTimeout = 5 * time.Second

type entry struct {
	lists   []catalog.List
	expires time.Time
}

// Service resolves which lists an agent may read.
// Resolved sets are cached per agent; the cache map is replaced copy-on-write.
type Service struct {
	store       GrantStore
	ttl         time.Duration
	fillTimeout time.Duration
	now         func() time.Time
	logger      *zap.Logger

	cache      atomic.Pointer[map[string]entry]
	writeMu    sync.Mutex
	generation atomic.Uint64
	fills      singleflight.Group
}

// New creates an access resolver.
func New(store GrantStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:       store,
		ttl:         DefaultCacheTTL,
		fillTimeout: DefaultFillTimeout,
		now:         time.Now,
		logger:      logger,
	}
	empty := make(map[string]entry)
	s.cache.Store(&empty)
	return s
}

// WithCacheTTL overrides the per-agent cache lifetime. Zero disables caching.
func (s *Service) WithCacheTTL(ttl time.Duration) *Service {
	if ttl >= 0 {
		s.ttl = ttl
	}
	return s
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithFillTimeout overrides the deadline of a shared grant lookup.
func (s *Service) WithFillTimeout(d time.Duration) *Service {
	if d > 0 {
		s.fillTimeout = d
	}
	return s
}

// AuthorizedLists returns every list the agent holds a grant for.
// An empty or unknown agent gets an empty set. Store failures are fatal, never an empty set.
// Concurrent lookups for one agent share a fill that is detached from any single caller's
// cancellation; each caller still stops waiting when its own ctx is done.
func (s *Service) AuthorizedLists(ctx context.Context, agent string) ([]catalog.List, error) {
	if agent == "" {
		return nil, nil
	}

	if e, ok := (*s.cache.Load())[agent]; ok && s.now().Before(e.expires) {
		metrics.AccessCacheTotal.WithLabelValues("hit").Inc()
		return e.lists, nil
	}
	metrics.AccessCacheTotal.WithLabelValues("miss").Inc()

	gen := s.generation.Load()
	key := strconv.FormatUint(gen, 10) + "\x00" + agent
	ch := s.fills.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fillTimeout)
		defer cancel()
		return s.fill(fctx, agent, gen)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("list grants: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		lists, _ := res.Val.([]catalog.List)
		return lists, nil
	}
}

func (s *Service) fill(ctx context.Context, agent string, gen uint64) ([]catalog.List, error) {
	lists, err := s.store.ListsForAgent(ctx, agent)
	if err != nil {
		return nil, fmt.Errorf("%w: list grants: %w", domain.ErrFatal, err)
	}
	if s.ttl > 0 {
		s.publish(agent, entry{lists: lists, expires: s.now().Add(s.ttl)}, gen)
	}
	return lists, nil
}

// publish caches an entry unless an invalidation happened since the fill started.
func (s *Service) publish(agent string, e entry, gen uint64) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.generation.Load() != gen {
		return
	}
	cur := *s.cache.Load()
	next := make(map[string]entry, len(cur)+1)
	now := s.now()
	for k, v := range cur {
		if now.Before(v.expires) {
			next[k] = v
		}
	}
	next[agent] = e
	s.cache.Store(&next)
}

// Scope narrows the agent's authorized lists to the hinted list names.
func (s *Service) Scope(ctx context.Context, agent string, hint []string) (scope.Scope, error) {
	lists, err := s.AuthorizedLists(ctx, agent)
	if err != nil {
		return scope.Scope{}, err
	}
	return scope.Intersect(lists, hint), nil
}

// Invalidate drops the cached grants of one agent.
func (s *Service) Invalidate(agent string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.generation.Add(1)
	cur := *s.cache.Load()
	if _, ok := cur[agent]; !ok {
		return
	}
	next := make(map[string]entry, len(cur))
	for k, v := range cur {
		if k != agent {
			next[k] = v
		}
	}
	s.cache.Store(&next)
}

// InvalidateAll drops every cached grant set.
func (s *Service) InvalidateAll() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.generation.Add(1)
	empty := make(map[string]entry)
	s.cache.Store(&empty)
}

// Grant lets the agent read the list.
func (s *Service) Grant(ctx context.Context, agent, listID string) error {
	g, err := domgrant.New(agent, listID)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidGrant, err)
	}
	if err := s.store.Grant(ctx, g); err != nil {
		return fmt.Errorf("grant: %w", err)
	}
	s.Invalidate(agent)
	s.logger.Info("Access granted", zap.String("agent", agent), zap.String("list_id", listID))
	return nil
}

// Revoke removes the agent's access to the list.
func (s *Service) Revoke(ctx context.Context, agent, listID string) error {
	if agent == "" || listID == "" {
		return fmt.Errorf("%w: agent and list are required", domain.ErrInvalidGrant)
	}
	if err := s.store.Revoke(ctx, agent, listID); err != nil {
		return fmt.Errorf("revoke: %w", err)
	}
	s.Invalidate(agent)
	s.logger.Info("Access revoked", zap.String("agent", agent), zap.String("list_id", listID))
	return nil
}

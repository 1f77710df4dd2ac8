package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/dirsearch/internal/domain"
	domrec "github.com/kailas-cloud/dirsearch/internal/domain/record"
	"github.com/kailas-cloud/dirsearch/internal/domain/scope"
	"github.com/kailas-cloud/dirsearch/internal/domain/search/mode"
	"github.com/kailas-cloud/dirsearch/internal/domain/search/request"
	"github.com/kailas-cloud/dirsearch/internal/domain/search/result"
	"github.com/kailas-cloud/dirsearch/internal/metrics"
)

// Defaults for the hybrid pipeline.
const (
	DefaultCandidateLimit  = 200
	DefaultSemanticTimeout = 800 * time.Millisecond
)

// Degrade reasons, used as log fields and metric labels.
const (
	ReasonNoRanker            = "semantic_disabled"
	ReasonSemanticTimeout     = "semantic_timeout"
	ReasonSemanticUnavailable = "semantic_unavailable"
)

// Service answers search calls: scope resolution, structured candidates, optional semantic re-rank.
type Service struct {
	access          AccessResolver
	structured      StructuredEngine
	ranker          SemanticRanker
	candidateLimit  int
	semanticTimeout time.Duration
	logger          *zap.Logger
}

// New creates a search orchestrator. ranker may be nil; every search is then structured only.
func New(access AccessResolver, structured StructuredEngine, ranker SemanticRanker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		access:          access,
		structured:      structured,
		ranker:          ranker,
		candidateLimit:  DefaultCandidateLimit,
		semanticTimeout: DefaultSemanticTimeout,
		logger:          logger,
	}
}

// WithCandidateLimit sets how many structured candidates a free-text search re-ranks.
func (s *Service) WithCandidateLimit(n int) *Service {
	if n > 0 {
		s.candidateLimit = n
	}
	return s
}

// WithSemanticTimeout sets the soft deadline of the semantic pass.
func (s *Service) WithSemanticTimeout(d time.Duration) *Service {
	if d > 0 {
		s.semanticTimeout = d
	}
	return s
}

// Search runs one search call on behalf of the request's agent.
// Only lists granted to the agent are ever read. A failing or slow semantic pass degrades to the
// structured ordering; structured failures are returned.
func (s *Service) Search(ctx context.Context, req *request.Request) (result.Result, error) {
	if req.Limit() <= 0 {
		return result.Empty(), nil
	}

	start := time.Now()
	lists, err := s.access.AuthorizedLists(ctx, req.Agent())
	observe("access", start)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(string(mode.StructuredOnly), "error").Inc()
		return result.Result{}, fmt.Errorf("resolve access: %w", err)
	}

	sc := scope.Intersect(lists, req.ScopeHint())
	if sc.IsEmpty() {
		metrics.SearchRequestsTotal.WithLabelValues(string(mode.StructuredOnly), "empty_scope").Inc()
		return result.Empty().WithScopeSize(len(lists), 0), nil
	}

	limit := req.Limit()
	if req.HasQuery() && s.ranker != nil {
		limit = max(s.candidateLimit, req.Limit())
	}

	start = time.Now()
	candidates, err := s.structured.Query(ctx, sc, req.Filters(), limit)
	observe("structured", start)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(string(mode.StructuredOnly), "error").Inc()
		return result.Result{}, fmt.Errorf("structured candidates: %w", err)
	}

	hits := s.toHits(sc, req, candidates)
	if len(hits) == 0 {
		metrics.SearchRequestsTotal.WithLabelValues(string(mode.StructuredOnly), "ok").Inc()
		return result.Empty().WithScopeSize(len(lists), sc.Len()), nil
	}

	m, reason := mode.StructuredOnly, ""
	if req.HasQuery() {
		var ranked []result.Hit
		ranked, reason, err = s.rerank(ctx, sc, candidates, hits, req.Query())
		if err != nil {
			return result.Result{}, err
		}
		if reason == "" {
			hits, m = ranked, mode.Hybrid
		} else {
			metrics.SearchDegradedTotal.WithLabelValues(reason).Inc()
		}
	}

	if len(hits) > req.Limit() {
		hits = hits[:req.Limit()]
	}
	metrics.SearchRequestsTotal.WithLabelValues(string(m), "ok").Inc()
	return result.New(m, hits, reason).WithScopeSize(len(lists), sc.Len()), nil
}

// rerank runs the semantic pass under its soft deadline.
// A non-empty reason means the pass degraded and hits must keep their structured order.
func (s *Service) rerank(
	ctx context.Context, sc scope.Scope, candidates []domrec.Record, hits []result.Hit, text string,
) ([]result.Hit, string, error) {
	if s.ranker == nil {
		return nil, ReasonNoRanker, nil
	}

	sctx, cancel := context.WithTimeout(ctx, s.semanticTimeout)
	defer cancel()

	start := time.Now()
	scores, err := s.ranker.Query(sctx, sc, candidates, text)
	observe("semantic", start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", fmt.Errorf("semantic pass: %w", ctx.Err())
		}
		reason := ReasonSemanticUnavailable
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(sctx.Err(), context.DeadlineExceeded) {
			reason = ReasonSemanticTimeout
		}
		s.logger.Warn("Semantic pass degraded",
			zap.String("reason", reason),
			zap.Bool("upstream", errors.Is(err, domain.ErrUpstreamUnavailable)),
			zap.Error(err),
		)
		return nil, reason, nil
	}

	start = time.Now()
	merged := mergeScores(hits, scores)
	observe("merge", start)
	return merged, "", nil
}

// toHits pairs candidates with their lists. A record from outside the scope is never returned.
func (s *Service) toHits(sc scope.Scope, req *request.Request, candidates []domrec.Record) []result.Hit {
	hits := make([]result.Hit, 0, len(candidates))
	for _, rec := range candidates {
		l, ok := sc.List(rec.ListID())
		if !ok {
			s.logger.Error("Structured engine returned a record outside the scope",
				zap.String("record_id", rec.ID()),
				zap.String("list_id", rec.ListID()),
			)
			continue
		}
		hits = append(hits, result.NewHit(rec, l, len(hits),
			req.Filters().MatchCount(rec, l), req.Filters().MatchedFields(rec, l)))
	}
	return hits
}

func observe(stage string, start time.Time) {
	metrics.SearchStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

package tool

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/dirsearch/internal/domain/catalog/field"
	domrec "github.com/kailas-cloud/dirsearch/internal/domain/record"
	"github.com/kailas-cloud/dirsearch/internal/domain/search/mode"
	"github.com/kailas-cloud/dirsearch/internal/domain/search/request"
	"github.com/kailas-cloud/dirsearch/internal/domain/search/result"
	logpkg "github.com/kailas-cloud/dirsearch/internal/logger"
	"github.com/kailas-cloud/dirsearch/internal/metrics"
)

// Name is the tool name exposed to agents.
const Name = "search"

// Description is the tool description exposed to agents.
const Description = "Search the directories you have access to. Combine exact filters " +
	"(field to value or list of values) with an optional free-text query; " +
	"results are ranked by filter matches, then meaning, then recency."

// Service is the single entry point agents call.
type Service struct {
	search       Searcher
	defaultLimit int
	maxLimit     int
	logger       *zap.Logger

	rateLimit rate.Limit
	burst     int
	now       func() time.Time
	mu        sync.Mutex
	limiters  map[string]*agentLimiter
	swept     time.Time
}

// limiterIdleTTL bounds how long an unused bucket is kept, and how often idle buckets are swept.
const limiterIdleTTL = 10 * time.Minute

type agentLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// New creates the tool adapter. Rate limiting is off until WithRateLimit.
func New(search Searcher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		search:       search,
		defaultLimit: request.DefaultLimit,
		maxLimit:     request.MaxLimit,
		logger:       logger,
		now:          time.Now,
		limiters:     make(map[string]*agentLimiter),
	}
}

// WithLimits sets the default and maximum result counts.
func (s *Service) WithLimits(defaultLimit, maxLimit int) *Service {
	if maxLimit > 0 && maxLimit <= request.MaxLimit {
		s.maxLimit = maxLimit
	}
	if defaultLimit > 0 {
		s.defaultLimit = min(defaultLimit, s.maxLimit)
	}
	return s
}

// WithRateLimit enables a per-agent token bucket. perSec <= 0 disables it.
func (s *Service) WithRateLimit(perSec float64, burst int) *Service {
	if perSec <= 0 {
		s.rateLimit = 0
		return s
	}
	s.rateLimit = rate.Limit(perSec)
	s.burst = max(burst, 1)
	return s
}

func (s *Service) allow(agent string) bool {
	if s.rateLimit == 0 {
		return true
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.swept) >= limiterIdleTTL {
		s.sweep(now)
	}
	l, ok := s.limiters[agent]
	if !ok {
		l = &agentLimiter{lim: rate.NewLimiter(s.rateLimit, s.burst)}
		s.limiters[agent] = l
	}
	l.lastSeen = now
	return l.lim.AllowN(now, 1)
}

// sweep drops buckets idle long enough to have refilled, so a fresh bucket is equivalent.
// Caller holds s.mu.
func (s *Service) sweep(now time.Time) {
	idle := max(limiterIdleTTL, time.Duration(float64(s.burst)/float64(s.rateLimit)*float64(time.Second)))
	for agent, l := range s.limiters {
		if now.Sub(l.lastSeen) >= idle {
			delete(s.limiters, agent)
		}
	}
	s.swept = now
}

// Call runs one tool invocation for agent. A returned error is always an *Error.
func (s *Service) Call(ctx context.Context, agent string, args Args) (Response, error) {
	start := time.Now()
	logger := logpkg.FromContextOr(ctx, s.logger).With(zap.String("agent", agent))

	limit := s.defaultLimit
	if args.Limit != nil {
		limit = *args.Limit
	}
	if limit <= 0 {
		metrics.ToolCallsTotal.WithLabelValues("ok").Inc()
		return Response{Count: 0}, nil
	}
	limit = min(limit, s.maxLimit)

	filters, err := parseFilters(args.Filters)
	if err != nil {
		return Response{}, fail(logger, invalidFilter(err.Error()), err)
	}
	req, err := request.New(agent, args.Query, filters, args.ScopeHint, limit)
	if err != nil {
		return Response{}, fail(logger, invalidFilter(err.Error()), err)
	}

	if !s.allow(agent) {
		return Response{}, fail(logger, errUnavailable, fmt.Errorf("agent %s over rate limit", agent))
	}

	res, err := s.search.Search(ctx, &req)
	if err != nil {
		return Response{}, fail(logger, translate(err), err)
	}

	resp := render(&res)
	metrics.ToolCallsTotal.WithLabelValues("ok").Inc()
	logger.Info("Search tool call",
		zap.Int("authorized_lists", res.AuthorizedLists()),
		zap.Int("scoped_lists", res.ScopedLists()),
		zap.Strings("filter_fields", filters.Fields()),
		zap.Strings("scope_hint", req.ScopeHint()),
		zap.Bool("free_text", req.HasQuery()),
		zap.String("mode", string(res.Mode())),
		zap.String("degraded_reason", res.DegradedReason()),
		zap.Int("count", resp.Count),
		zap.Duration("latency", time.Since(start)),
	)
	return resp, nil
}

func fail(logger *zap.Logger, toolErr *Error, cause error) *Error {
	metrics.ToolCallsTotal.WithLabelValues(toolErr.Code).Inc()
	lvl := logger.Warn
	if toolErr.Code == CodeInvalidFilter {
		lvl = logger.Info
	}
	lvl("Search tool call failed",
		zap.String("code", toolErr.Code),
		zap.Error(cause),
	)
	return toolErr
}

func render(res *result.Result) Response {
	if res.Len() == 0 {
		return Response{Count: 0}
	}
	hits := res.Hits()
	out := make([]map[string]any, len(hits))
	for i := range hits {
		out[i] = renderHit(&hits[i], res.Mode())
	}
	return Response{Mode: string(res.Mode()), Count: len(out), Results: out}
}

// renderHit returns the display fields of a hit. Record, list and account ids are never included.
func renderHit(h *result.Hit, m mode.Mode) map[string]any {
	rec, l := h.Record(), h.List()
	row := map[string]any{"list": l.Name()}
	for _, f := range l.DisplayFields() {
		putField(row, rec, f)
	}
	if arr, ok := l.ArrayField(); ok {
		putField(row, rec, arr)
	}
	row["match_reason"] = matchReason(h, m)
	return row
}

func putField(row map[string]any, rec domrec.Record, f field.Field) {
	switch {
	case f.Name() == field.Name:
		row[f.Name()] = rec.Name()
	case f.Name() == field.Status:
		row[f.Name()] = string(rec.Status())
	case f.Kind() == field.Array:
		if tags := rec.Tags(); len(tags) > 0 {
			row[f.Name()] = tags
		}
	default:
		v, ok := rec.PayloadValue(f.Path())
		if !ok {
			return
		}
		if s := domrec.FormatValue(v); s != "" {
			row[f.Name()] = s
		}
	}
}

func matchReason(h *result.Hit, m mode.Mode) string {
	var parts []string
	if fields := h.MatchedFields(); len(fields) > 0 {
		parts = append(parts, "matches "+strings.Join(fields, ", "))
	}
	if m == mode.Hybrid && h.Scored() && h.Similarity() > 0 {
		parts = append(parts, fmt.Sprintf("semantic similarity %.2f", h.Similarity()))
	}
	if len(parts) == 0 {
		rec := h.Record()
		if rec.IsActive() {
			return "most recent active entry"
		}
		return "most recent entry"
	}
	return strings.Join(parts, "; ")
}

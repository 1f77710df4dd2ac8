package structured

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/dirsearch/internal/domain"
	domrec "github.com/kailas-cloud/dirsearch/internal/domain/record"
	"github.com/kailas-cloud/dirsearch/internal/domain/scope"
	"github.com/kailas-cloud/dirsearch/internal/domain/search/filter"
	"github.com/kailas-cloud/dirsearch/internal/domain/search/plan"
	"github.com/kailas-cloud/dirsearch/internal/retry"
)

// Defaults for the structured path.
const (
	DefaultTimeout      = 2 * time.Second
	DefaultMaxAttempts  = 2
	DefaultRetryBackoff = 50 * time.Millisecond
)

// Service runs scoped, filtered, ordered queries against the catalog.
type Service struct {
	repo      Repository
	timeout   time.Duration
	policy    retry.Policy
	transient func(error) bool
	logger    *zap.Logger
}

// New creates a structured query engine.
func New(repo Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:    repo,
		timeout: DefaultTimeout,
		policy: retry.Policy{
			MaxAttempts: DefaultMaxAttempts,
			BaseDelay:   DefaultRetryBackoff,
			MaxDelay:    time.Second,
		},
		transient: func(error) bool { return false },
		logger:    logger,
	}
}

// WithTimeout sets the hard deadline of one query, retries included.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// WithRetry bounds retries of connection-level failures.
func (s *Service) WithRetry(maxAttempts int, backoff time.Duration) *Service {
	if maxAttempts > 0 {
		s.policy.MaxAttempts = maxAttempts
	}
	if backoff > 0 {
		s.policy.BaseDelay = backoff
	}
	return s
}

// WithTransient sets the classifier of retryable storage errors.
func (s *Service) WithTransient(fn func(error) bool) *Service {
	if fn != nil {
		s.transient = fn
	}
	return s
}

// Query returns up to limit records of the lists in scope that satisfy every filter,
// active records first, then most recently inserted.
// An empty scope or a non-positive limit returns nothing without touching storage.
func (s *Service) Query(
	ctx context.Context, sc scope.Scope, filters filter.Set, limit int,
) ([]domrec.Record, error) {
	if sc.IsEmpty() || limit <= 0 {
		return nil, nil
	}

	p, err := plan.Compile(sc, filters, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidFilter, err)
	}

	qctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var recs []domrec.Record
	attempt := 0
	err = retry.Do(qctx, s.policy, s.transient, func(c context.Context) error {
		attempt++
		var qerr error
		recs, qerr = s.repo.Query(c, p)
		if qerr != nil && s.transient(qerr) {
			s.logger.Warn("Structured query attempt failed",
				zap.Int("attempt", attempt),
				zap.Error(qerr),
			)
		}
		return qerr
	})
	if err == nil {
		return recs, nil
	}

	switch {
	case ctx.Err() != nil:
		return nil, fmt.Errorf("structured query: %w", ctx.Err())
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(qctx.Err(), context.DeadlineExceeded):
		return nil, fmt.Errorf("%w: structured query exceeded %s", domain.ErrTimeout, s.timeout)
	case errors.Is(err, domain.ErrUnscopedQuery):
		return nil, fmt.Errorf("structured query: %w", err)
	default:
		return nil, fmt.Errorf("%w: structured query: %w", domain.ErrFatal, err)
	}
}

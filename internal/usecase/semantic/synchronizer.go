package semantic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/dirsearch/internal/domain"
	domrec "github.com/kailas-cloud/dirsearch/internal/domain/record"
	domsem "github.com/kailas-cloud/dirsearch/internal/domain/semantic"
	"github.com/kailas-cloud/dirsearch/internal/metrics"
	"github.com/kailas-cloud/dirsearch/internal/retry"
)

// SyncConfig tunes background synchronization.
type SyncConfig struct {
	Workers        int
	QueueSize      int
	MaxAttempts    int
	RetryBackoff   time.Duration
	ReplayInterval time.Duration
	ReplayBatch    int
	// MaxRounds parks a task after that many failed rounds; enqueueing the record again re-arms it.
	MaxRounds int
}

// DefaultSyncConfig returns the defaults for a small deployment.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		Workers:        4,
		QueueSize:      1024,
		MaxAttempts:    3,
		RetryBackoff:   500 * time.Millisecond,
		ReplayInterval: 30 * time.Second,
		ReplayBatch:    1000,
		MaxRounds:      20,
	}
}

const resyncPageSize = 200

// Sync outcomes, used as metric labels.
const (
	outcomeSynced    = "synced"
	outcomeUnchanged = "unchanged"
	outcomeGone      = "gone"
	outcomeFailed    = "failed"
	outcomeDeferred  = "deferred"
	outcomeParked    = "parked"
)

// Synchronizer keeps the semantic index eventually consistent with the catalog.
// Tasks are persisted to the outbox before dispatch and acknowledged only after they took effect.
type Synchronizer struct {
	index   Index
	embed   domain.Embedder
	records RecordReader
	lists   ListReader
	outbox  Outbox
	pool    *ants.Pool
	cfg     SyncConfig
	policy  retry.Policy
	now     func() time.Time
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	loop   sync.WaitGroup

	tasks    chan domsem.Task
	mu       sync.Mutex
	inflight map[string]bool
	queued   map[string]domsem.Task
}

// NewSynchronizer creates a synchronizer with its own worker pool.
// embed may be nil when the index does not need vectors.
func NewSynchronizer(
	index Index, embed domain.Embedder, records RecordReader, lists ListReader,
	outbox Outbox, cfg SyncConfig, logger *zap.Logger,
) (*Synchronizer, error) {
	def := DefaultSyncConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = def.RetryBackoff
	}
	if cfg.ReplayInterval <= 0 {
		cfg.ReplayInterval = def.ReplayInterval
	}
	if cfg.ReplayBatch <= 0 {
		cfg.ReplayBatch = def.ReplayBatch
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = def.MaxRounds
	}
	if index.NeedsVectors() && embed == nil {
		return nil, fmt.Errorf("semantic index needs vectors but no embedder is configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("create sync pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Synchronizer{
		index:   index,
		embed:   embed,
		records: records,
		lists:   lists,
		outbox:  outbox,
		pool:    pool,
		cfg:     cfg,
		policy: retry.Policy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.RetryBackoff,
			MaxDelay:    30 * time.Second,
		},
		now:      time.Now,
		logger:   logger.Named("sync"),
		ctx:      ctx,
		cancel:   cancel,
		tasks:    make(chan domsem.Task, cfg.QueueSize),
		inflight: make(map[string]bool),
		queued:   make(map[string]domsem.Task),
	}, nil
}

// Start runs the dispatcher and replays pending tasks now and then every replay interval until Close.
func (s *Synchronizer) Start() {
	s.loop.Add(2)
	go func() {
		defer s.loop.Done()
		for {
			select {
			case <-s.ctx.Done():
				return
			case t := <-s.tasks:
				s.submit(t)
			}
		}
	}()
	go func() {
		defer s.loop.Done()
		s.Replay(s.ctx)

		ticker := time.NewTicker(s.cfg.ReplayInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.Replay(s.ctx)
			}
		}
	}()
}

// Close stops the replay loop and waits for running workers.
func (s *Synchronizer) Close() error {
	s.cancel()
	s.loop.Wait()
	if err := s.pool.ReleaseTimeout(10 * time.Second); err != nil {
		return fmt.Errorf("release sync pool: %w", err)
	}
	return nil
}

// Sync brings one record's embedding up to date.
// A stored embedding with the same fingerprint is returned as is: no embedding call, no write.
func (s *Synchronizer) Sync(ctx context.Context, rec domrec.Record) (domrec.Embedding, error) {
	emb, _, err := s.sync(ctx, rec)
	return emb, err
}

func (s *Synchronizer) sync(ctx context.Context, rec domrec.Record) (domrec.Embedding, bool, error) {
	stored, err := s.index.Get(ctx, []string{rec.ID()})
	if err != nil {
		return domrec.Embedding{}, false, fmt.Errorf("%w: load embedding: %w", domain.ErrUpstreamUnavailable, err)
	}
	var prev *domrec.Embedding
	if e, ok := stored[rec.ID()]; ok {
		if e.FreshFor(rec.Fingerprint()) {
			return e, false, nil
		}
		prev = &e
	}

	l, err := s.lists.GetListByID(ctx, rec.ListID())
	if err != nil {
		return domrec.Embedding{}, false, fmt.Errorf("load list: %w", err)
	}

	entry := domsem.Entry{Content: rec.Content(l)}
	if s.index.NeedsVectors() {
		res, err := s.embed.Embed(ctx, entry.Content)
		if err != nil {
			return domrec.Embedding{}, false, fmt.Errorf("%w: embed record: %w", domain.ErrUpstreamUnavailable, err)
		}
		entry.Vector = res.Embedding
	}
	entry.Meta = domrec.NextEmbedding(rec, prev, s.now())

	if err := s.index.Upsert(ctx, entry); err != nil {
		return domrec.Embedding{}, false, fmt.Errorf("%w: store embedding: %w", domain.ErrUpstreamUnavailable, err)
	}
	return entry.Meta, true, nil
}

// Enqueue persists a sync task and hands it to the worker pool.
// It never blocks on the sync itself; a task the pool cannot take now is picked up by the replay loop.
func (s *Synchronizer) Enqueue(ctx context.Context, recordID, fingerprint string) error {
	if s.ctx.Err() != nil {
		return fmt.Errorf("enqueue %s: synchronizer closed", recordID)
	}
	task := domsem.Task{RecordID: recordID, Fingerprint: fingerprint, EnqueuedAt: s.now()}
	if err := s.outbox.Put(ctx, task); err != nil {
		return fmt.Errorf("enqueue %s: %w", recordID, err)
	}
	s.reportDepth()
	s.dispatch(task)
	return nil
}

// dispatch queues a task for the workers without blocking.
// A task that does not fit the queue stays in the outbox for the replay loop.
func (s *Synchronizer) dispatch(task domsem.Task) {
	select {
	case s.tasks <- task:
	default:
		metrics.SyncTasksTotal.WithLabelValues(outcomeDeferred).Inc()
		s.logger.Debug("Sync queue full, task left for replay", zap.String("record_id", task.RecordID))
	}
}

// submit hands a task to the pool unless one for the same record is running; then it runs right after.
func (s *Synchronizer) submit(task domsem.Task) {
	s.mu.Lock()
	if s.inflight[task.RecordID] {
		s.queued[task.RecordID] = task
		s.mu.Unlock()
		return
	}
	s.inflight[task.RecordID] = true
	s.mu.Unlock()

	if err := s.pool.Submit(func() { s.process(task) }); err != nil {
		s.mu.Lock()
		delete(s.inflight, task.RecordID)
		s.mu.Unlock()
		if !errors.Is(err, ants.ErrPoolClosed) {
			s.logger.Warn("Sync pool rejected task, left for replay",
				zap.String("record_id", task.RecordID),
				zap.Error(err),
			)
		}
	}
}

func (s *Synchronizer) process(task domsem.Task) {
	defer s.finish(task.RecordID)

	var outcome string
	err := retry.Do(s.ctx, s.policy, retryable, func(ctx context.Context) error {
		var err error
		outcome, err = s.apply(ctx, task)
		return err
	})
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		attempts, markErr := s.outbox.MarkFailed(s.ctx, task.RecordID, task.Fingerprint)
		if markErr != nil {
			s.logger.Warn("Failed to record sync failure", zap.String("record_id", task.RecordID), zap.Error(markErr))
		}
		metrics.SyncTasksTotal.WithLabelValues(outcomeFailed).Inc()
		s.logger.Error("Semantic sync failed",
			zap.String("record_id", task.RecordID),
			zap.Int("rounds", attempts),
			zap.Error(err),
		)
		if attempts >= s.cfg.MaxRounds {
			s.park(task.RecordID, attempts)
		}
		return
	}

	if err := s.outbox.Ack(s.ctx, task.RecordID, task.Fingerprint); err != nil {
		s.logger.Warn("Failed to ack sync task", zap.String("record_id", task.RecordID), zap.Error(err))
	}
	metrics.SyncTasksTotal.WithLabelValues(outcome).Inc()
	s.reportDepth()
	s.logger.Debug("Semantic sync done",
		zap.String("record_id", task.RecordID),
		zap.String("outcome", outcome),
	)
}

// apply syncs the record's current state; the task fingerprint only identifies the task.
func (s *Synchronizer) apply(ctx context.Context, task domsem.Task) (string, error) {
	rec, err := s.records.Get(ctx, task.RecordID)
	if errors.Is(err, domain.ErrNotFound) {
		if err := s.index.Delete(ctx, task.RecordID); err != nil {
			return "", fmt.Errorf("%w: delete embedding: %w", domain.ErrUpstreamUnavailable, err)
		}
		return outcomeGone, nil
	}
	if err != nil {
		return "", fmt.Errorf("load record: %w", err)
	}
	if rec.Status() == domrec.Deleted {
		if err := s.index.Delete(ctx, rec.ID()); err != nil {
			return "", fmt.Errorf("%w: delete embedding: %w", domain.ErrUpstreamUnavailable, err)
		}
		return outcomeGone, nil
	}

	_, changed, err := s.sync(ctx, rec)
	if err != nil {
		return "", err
	}
	if !changed {
		return outcomeUnchanged, nil
	}
	return outcomeSynced, nil
}

func retryable(err error) bool {
	return !errors.Is(err, context.Canceled)
}

func (s *Synchronizer) finish(recordID string) {
	s.mu.Lock()
	delete(s.inflight, recordID)
	next, ok := s.queued[recordID]
	if ok {
		delete(s.queued, recordID)
	}
	s.mu.Unlock()

	if ok && s.ctx.Err() == nil {
		s.dispatch(next)
	}
}

// Replay resubmits pending tasks of the outbox. Tasks that failed MaxRounds
// rounds stay parked in the outbox until the record changes again.
func (s *Synchronizer) Replay(ctx context.Context) {
	tasks, err := s.outbox.Pending(ctx, s.cfg.ReplayBatch)
	if err != nil {
		s.logger.Error("Failed to read sync outbox", zap.Error(err))
		return
	}
	replayed, parked := 0, 0
	for _, t := range tasks {
		if ctx.Err() != nil {
			return
		}
		if t.Attempts >= s.cfg.MaxRounds {
			parked++
			continue
		}
		s.dispatch(t)
		replayed++
	}
	s.reportDepth()
	if replayed > 0 {
		s.logger.Info("Replayed pending sync tasks", zap.Int("tasks", replayed), zap.Int("parked", parked))
	}
}

func (s *Synchronizer) park(recordID string, rounds int) {
	metrics.SyncTasksTotal.WithLabelValues(outcomeParked).Inc()
	s.logger.Warn("Sync task parked after repeated failures",
		zap.String("record_id", recordID),
		zap.Int("rounds", rounds),
	)
}

// Resync enqueues every record of a list (every list when listID is empty)
// whose embedding is missing or stale. It returns the number of enqueued records.
func (s *Synchronizer) Resync(ctx context.Context, listID string) (int, error) {
	var after int64
	enqueued := 0
	for {
		page, err := s.records.Page(ctx, listID, after, resyncPageSize)
		if err != nil {
			return enqueued, fmt.Errorf("page records: %w", err)
		}
		if len(page) == 0 {
			break
		}

		ids := make([]string, len(page))
		for i, r := range page {
			ids[i] = r.ID()
		}
		stored, err := s.index.Get(ctx, ids)
		if err != nil {
			return enqueued, fmt.Errorf("%w: load embeddings: %w", domain.ErrUpstreamUnavailable, err)
		}

		for _, r := range page {
			if e, ok := stored[r.ID()]; ok && e.FreshFor(r.Fingerprint()) {
				continue
			}
			if err := s.Enqueue(ctx, r.ID(), r.Fingerprint()); err != nil {
				return enqueued, err
			}
			enqueued++
		}

		after = page[len(page)-1].Seq()
		if len(page) < resyncPageSize {
			break
		}
	}

	s.logger.Info("Resync scheduled",
		zap.String("list_id", listID),
		zap.Int("records", enqueued),
	)
	return enqueued, nil
}

// Forget removes the embeddings of the given records.
func (s *Synchronizer) Forget(ctx context.Context, recordIDs ...string) error {
	if len(recordIDs) == 0 {
		return nil
	}
	if err := s.index.Delete(ctx, recordIDs...); err != nil {
		return fmt.Errorf("%w: delete embeddings: %w", domain.ErrUpstreamUnavailable, err)
	}
	return nil
}

func (s *Synchronizer) reportDepth() {
	n, err := s.outbox.Len(s.ctx)
	if err != nil {
		return
	}
	metrics.SyncQueueDepth.Set(float64(n))
}

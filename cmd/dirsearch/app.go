package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/dirsearch/internal/config"
	"github.com/kailas-cloud/dirsearch/internal/db/sqlstore"
	dbValkey "github.com/kailas-cloud/dirsearch/internal/db/valkey"
	"github.com/kailas-cloud/dirsearch/internal/domain"
	logpkg "github.com/kailas-cloud/dirsearch/internal/logger"
	"github.com/kailas-cloud/dirsearch/internal/metrics"
	catalogrepo "github.com/kailas-cloud/dirsearch/internal/repository/catalog"
	"github.com/kailas-cloud/dirsearch/internal/repository/embcache"
	grantrepo "github.com/kailas-cloud/dirsearch/internal/repository/grant"
	"github.com/kailas-cloud/dirsearch/internal/repository/outbox"
	recordrepo "github.com/kailas-cloud/dirsearch/internal/repository/record"
	"github.com/kailas-cloud/dirsearch/internal/repository/semantic/lexical"
	"github.com/kailas-cloud/dirsearch/internal/repository/semantic/memory"
	"github.com/kailas-cloud/dirsearch/internal/repository/semantic/pgvector"
	valkeyidx "github.com/kailas-cloud/dirsearch/internal/repository/semantic/valkey"
	structuredrepo "github.com/kailas-cloud/dirsearch/internal/repository/structured"
	openaiEmb "github.com/kailas-cloud/dirsearch/internal/transport/openai"
	accessuc "github.com/kailas-cloud/dirsearch/internal/usecase/access"
	cataloguc "github.com/kailas-cloud/dirsearch/internal/usecase/catalog"
	embeddinguc "github.com/kailas-cloud/dirsearch/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/dirsearch/internal/usecase/health"
	searchuc "github.com/kailas-cloud/dirsearch/internal/usecase/search"
	semanticuc "github.com/kailas-cloud/dirsearch/internal/usecase/semantic"
	structureduc "github.com/kailas-cloud/dirsearch/internal/usecase/structured"
	tooluc "github.com/kailas-cloud/dirsearch/internal/usecase/tool"
)

// app is the composition root shared by every command.
type app struct {
	env    string
	cfg    config.Config
	logger *zap.Logger

	db      *sqlstore.DB
	outbox  *outbox.Outbox
	syncer  *semanticuc.Synchronizer // nil without a semantic backend
	access  *accessuc.Service
	catalog *cataloguc.Service
	tool    *tooluc.Service
	health  *healthuc.Service

	closers []func()
}

// newApp loads configuration and connects storage. Services are built by wire.
func newApp(ctx context.Context, env string) (*app, error) {
	cfg, err := config.Load(env)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	a := &app{env: env, cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	db, err := sqlstore.Open(sqlstore.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: config.Sec(cfg.Database.ConnMaxLifetimeSec),
		ConnMaxIdleTime: config.Sec(cfg.Database.ConnMaxIdleTimeSec),
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, func() { _ = db.Close() })

	if err := db.WaitForReady(ctx, config.Sec(cfg.Database.ReadinessTimeout)); err != nil {
		a.close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	logger.Info("Connected to database", zap.String("driver", cfg.Database.Driver))

	return a, nil
}

// wire builds every service on top of the open database. The schema must exist.
// Without background the synchronizer and its outbox are not created: the process only reads.
func (a *app) wire(ctx context.Context, background bool) error {
	cfg := a.cfg
	logger := a.logger

	metrics.RegisterHTTPMetrics()
	metrics.RegisterSearchMetrics()
	metrics.RegisterEmbeddingMetrics()

	var kv *dbValkey.Store
	if len(cfg.Valkey.Addrs) > 0 {
		s, err := dbValkey.NewStore(dbValkey.Config{
			Addrs:    cfg.Valkey.Addrs,
			Username: cfg.Valkey.Username,
			Password: cfg.Valkey.Password,
		})
		if err != nil {
			return fmt.Errorf("connect valkey: %w", err)
		}
		kv = s
		a.closers = append(a.closers, s.Close)
	}

	docEmbedder, queryEmbedder, embHealth := a.buildEmbedders(kv)

	index, err := a.buildIndex(ctx, kv)
	if err != nil {
		return err
	}

	catalogRepo := catalogrepo.New(a.db)
	recordRepo := recordrepo.New(a.db)

	a.access = accessuc.New(grantrepo.New(a.db), logger).
		WithCacheTTL(config.Sec(cfg.Access.CacheTTLSec))

	// Interfaces stay untyped nil when there is no semantic backend.
	var (
		syncQueue cataloguc.SyncQueue
		ranker    searchuc.SemanticRanker
		idxHealth healthuc.IndexPinger
	)
	if index != nil {
		ranker = semanticuc.NewRanker(index, queryEmbedder).WithMinSimilarity(cfg.Semantic.MinSimilarity)
		idxHealth = index
	}
	if index != nil && background {
		outboxPath := cfg.Sync.OutboxPath
		if a.inProcessIndex() {
			// the index is rebuilt on every boot, so pending tasks are worthless after a restart
			outboxPath = ""
		}
		ob, err := outbox.Open(outboxPath, logger)
		if err != nil {
			return fmt.Errorf("open sync outbox: %w", err)
		}
		a.outbox = ob
		a.closers = append(a.closers, func() { _ = ob.Close() })

		syncer, err := semanticuc.NewSynchronizer(index, docEmbedder, recordRepo, catalogRepo, ob, semanticuc.SyncConfig{
			Workers:        cfg.Sync.Workers,
			QueueSize:      cfg.Sync.QueueSize,
			MaxAttempts:    cfg.Sync.MaxAttempts,
			RetryBackoff:   config.Ms(cfg.Sync.RetryBackoffMs),
			ReplayInterval: config.Sec(cfg.Sync.ReplayIntervalSec),
			MaxRounds:      cfg.Sync.MaxRounds,
		}, logger)
		if err != nil {
			return fmt.Errorf("create synchronizer: %w", err)
		}
		a.syncer = syncer
		syncQueue = syncer
	}

	a.catalog = cataloguc.New(catalogRepo, recordRepo, syncQueue, logger).WithAccessInvalidator(a.access)

	structured := structureduc.New(structuredrepo.New(a.db), logger).
		WithTimeout(config.Ms(cfg.Structured.TimeoutMs)).
		WithRetry(cfg.Structured.MaxAttempts, config.Ms(cfg.Structured.RetryBackoffMs)).
		WithTransient(sqlstore.IsTransient)

	search := searchuc.New(a.access, structured, ranker, logger).
		WithCandidateLimit(cfg.Search.CandidateLimit).
		WithSemanticTimeout(config.Ms(cfg.Semantic.TimeoutMs))

	a.tool = tooluc.New(search, logger).
		WithLimits(cfg.Tool.DefaultLimit, cfg.Tool.MaxLimit).
		WithRateLimit(cfg.Tool.RatePerSec, cfg.Tool.Burst)

	a.health = healthuc.New(a.db, idxHealth, embHealth)

	logger.Info("Services wired",
		zap.String("semantic_backend", cfg.Semantic.Backend),
		zap.Bool("embedding", docEmbedder != nil),
		zap.Bool("embedding_cache", cfg.Embedding.Cache && kv != nil),
	)
	return nil
}

// startSync starts background synchronization when a semantic backend is configured.
func (a *app) startSync() {
	if a.syncer == nil {
		return
	}
	a.syncer.Start()
	a.closers = append(a.closers, func() {
		if err := a.syncer.Close(); err != nil {
			a.logger.Error("Failed to stop synchronizer", zap.Error(err))
		}
	})
}

// inProcessIndex reports whether the semantic index lives in this process and starts empty.
func (a *app) inProcessIndex() bool {
	b := a.cfg.Semantic.Backend
	return b == config.BackendLexical || b == config.BackendMemory
}

// backfill schedules a full resync for in-process indexes.
func (a *app) backfill(ctx context.Context) {
	if a.syncer == nil || !a.inProcessIndex() {
		return
	}
	go func() {
		n, err := a.syncer.Resync(ctx, "")
		if err != nil {
			a.logger.Error("Initial semantic backfill failed", zap.Error(err))
			return
		}
		a.logger.Info("Initial semantic backfill scheduled", zap.Int("records", n))
	}()
}

// buildEmbedders assembles the decorator chains:
// document: OpenAI -> Instrumented -> Instruction;
// query: OpenAI -> Instrumented -> Cached -> Instruction (cache hits skip provider pacing).
func (a *app) buildEmbedders(kv *dbValkey.Store) (doc, query domain.Embedder, health healthuc.EmbeddingChecker) {
	cfg := a.cfg.Embedding
	if !a.cfg.NeedsEmbedding() {
		return nil, nil, nil
	}

	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Provider:   cfg.Provider,
		Timeout:    config.Sec(cfg.TimeoutSec),
		Logger:     a.logger,
	})

	// nil interface, not a typed nil pointer, when pacing is off
	var limiter embeddinguc.Limiter
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst)
	}
	instrumented := embeddinguc.NewInstrumentedEmbedder(base, cfg.Provider, cfg.Model, limiter, a.logger)

	var q domain.Embedder = instrumented
	if cfg.Cache && kv != nil {
		q = embcache.New(instrumented, kv, cfg.Model, metrics.EmbeddingCacheTotal, a.logger).
			WithTTL(time.Duration(cfg.CacheTTLHours) * time.Hour).
			WithDimensions(cfg.Dimensions)
	}

	doc = withInstruction(instrumented, cfg.DocumentInstruction)
	query = withInstruction(q, cfg.QueryInstruction)

	a.logger.Info("Embedders created",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Int("dimensions", cfg.Dimensions),
	)
	return doc, query, instrumented
}

func withInstruction(e domain.Embedder, instruction string) domain.Embedder {
	if instruction == "" {
		return e
	}
	return domain.NewInstructionEmbedder(e, instruction)
}

// buildIndex selects the semantic backend. It returns nil when semantic search is off.
func (a *app) buildIndex(ctx context.Context, kv *dbValkey.Store) (semanticuc.Index, error) {
	cfg := a.cfg
	switch cfg.Semantic.Backend {
	case config.BackendValkey:
		ix := valkeyidx.New(kv, cfg.Embedding.Dimensions).
			WithIndexName(cfg.Semantic.IndexName).
			WithHNSW(valkeyidx.HNSWConfig{M: cfg.Semantic.HNSW.M, EFConstruct: cfg.Semantic.HNSW.EFConstruct})
		if err := ix.EnsureIndex(ctx); err != nil {
			return nil, fmt.Errorf("ensure valkey index: %w", err)
		}
		return ix, nil
	case config.BackendPgvector:
		ix, err := pgvector.New(a.db, cfg.Embedding.Dimensions)
		if err != nil {
			return nil, fmt.Errorf("create pgvector index: %w", err)
		}
		if err := ix.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure pgvector schema: %w", err)
		}
		return ix, nil
	case config.BackendLexical:
		ix, err := lexical.New()
		if err != nil {
			return nil, fmt.Errorf("create lexical index: %w", err)
		}
		a.closers = append(a.closers, func() { _ = ix.Close() })
		return ix, nil
	case config.BackendMemory:
		return memory.New(), nil
	default:
		return nil, nil
	}
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

package valkey

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/dirsearch/internal/db"
	"github.com/kailas-cloud/dirsearch/internal/domain"
	"github.com/kailas-cloud/dirsearch/internal/domain/record"
	"github.com/kailas-cloud/dirsearch/internal/domain/semantic"
)

var (
	keyPrefix = domain.KeyPrefix + "emb:"
	// DefaultIndexName is the FT index over embedding hashes.
	DefaultIndexName = domain.KeyPrefix + "emb:idx"
)

// Hash field names.
const (
	fieldRecordID    = "record_id"
	fieldListID      = "list_id"
	fieldFingerprint = "fingerprint"
	fieldRevision    = "revision"
	fieldSyncedAt    = "synced_at"
	fieldVector      = "vector"
)

// store is the consumer interface for the embedding index (ISP).
type store interface {
	Ping(ctx context.Context) error
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, keys ...string) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// HNSWConfig HNSW index parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Index stores record embeddings as Valkey hashes under an FT vector index.
type Index struct {
	store     store
	indexName string
	dim       int
	hnsw      HNSWConfig
}

// New creates a Valkey-backed semantic index for vectors of the given dimension.
func New(s store, dim int) *Index {
	return &Index{store: s, indexName: DefaultIndexName, dim: dim, hnsw: HNSWConfig{M: 16, EFConstruct: 200}}
}

// WithIndexName overrides the FT index name.
func (ix *Index) WithIndexName(name string) *Index {
	if name != "" {
		ix.indexName = name
	}
	return ix
}

// WithHNSW configures HNSW index parameters.
func (ix *Index) WithHNSW(cfg HNSWConfig) *Index {
	if cfg.M > 0 {
		ix.hnsw.M = cfg.M
	}
	if cfg.EFConstruct > 0 {
		ix.hnsw.EFConstruct = cfg.EFConstruct
	}
	return ix
}

// EnsureIndex creates the FT index unless it already exists.
func (ix *Index) EnsureIndex(ctx context.Context) error {
	exists, err := ix.store.IndexExists(ctx, ix.indexName)
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	if exists {
		return nil
	}

	def, err := db.NewIndex(ix.indexName).
		Prefix(keyPrefix).
		Tag(fieldRecordID).
		Tag(fieldListID).
		Numeric(fieldRevision).
		VectorHNSW(fieldVector, ix.dim, ix.hnsw.M, ix.hnsw.EFConstruct).
		Build()
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	if err := ix.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// NeedsVectors reports that entries and queries carry embeddings.
func (ix *Index) NeedsVectors() bool { return true }

// Ping checks connectivity.
func (ix *Index) Ping(ctx context.Context) error {
	return ix.store.Ping(ctx) //nolint:wrapcheck // transparent
}

func key(recordID string) string { return keyPrefix + recordID }

// Get returns the stored embedding metadata for the ids that have one.
func (ix *Index) Get(ctx context.Context, recordIDs []string) (map[string]record.Embedding, error) {
	if len(recordIDs) == 0 {
		return map[string]record.Embedding{}, nil
	}
	keys := make([]string, len(recordIDs))
	for i, id := range recordIDs {
		keys[i] = key(id)
	}

	hashes, err := ix.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("get embeddings: %w", err)
	}

	out := make(map[string]record.Embedding, len(hashes))
	for i, h := range hashes {
		if len(h) == 0 {
			continue
		}
		out[recordIDs[i]] = embeddingFromHash(recordIDs[i], h)
	}
	return out, nil
}

// Upsert writes the embedding hash; the FT index picks it up by prefix.
func (ix *Index) Upsert(ctx context.Context, e semantic.Entry) error {
	if len(e.Vector) != ix.dim {
		return fmt.Errorf("vector dimension %d, index expects %d", len(e.Vector), ix.dim)
	}
	m := e.Meta
	fields := map[string]string{
		fieldRecordID:    m.RecordID(),
		fieldListID:      m.ListID(),
		fieldFingerprint: m.Fingerprint(),
		fieldRevision:    strconv.Itoa(m.Revision()),
		fieldSyncedAt:    strconv.FormatInt(m.SyncedAt().UnixMilli(), 10),
		fieldVector:      vectorToBytes(e.Vector),
	}
	if err := ix.store.HSet(ctx, key(m.RecordID()), fields); err != nil {
		return fmt.Errorf("hset embedding %s: %w", m.RecordID(), err)
	}
	return nil
}

// Delete removes embedding hashes.
func (ix *Index) Delete(ctx context.Context, recordIDs ...string) error {
	if len(recordIDs) == 0 {
		return nil
	}
	keys := make([]string, len(recordIDs))
	for i, id := range recordIDs {
		keys[i] = key(id)
	}
	if err := ix.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("delete embeddings: %w", err)
	}
	return nil
}

// Query runs a KNN search pre-filtered to the requested records and lists.
func (ix *Index) Query(ctx context.Context, q semantic.Query) ([]semantic.Match, error) {
	if len(q.RecordIDs) == 0 || len(q.ListIDs) == 0 {
		return nil, nil
	}

	res, err := ix.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName: ix.indexName,
		TagFilters: []db.TagFilter{
			{Field: fieldListID, Values: q.ListIDs},
			{Field: fieldRecordID, Values: q.RecordIDs},
		},
		Vector:       q.Vector,
		K:            len(q.RecordIDs),
		ReturnFields: []string{fieldRecordID, fieldFingerprint},
	})
	if err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}

	out := make([]semantic.Match, 0, len(res.Entries))
	for _, e := range res.Entries {
		id := e.Fields[fieldRecordID]
		if id == "" {
			continue
		}
		out = append(out, semantic.Match{
			RecordID:    id,
			Fingerprint: e.Fields[fieldFingerprint],
			Similarity:  e.Score,
		})
	}
	return out, nil
}

func embeddingFromHash(recordID string, h map[string]string) record.Embedding {
	revision, _ := strconv.Atoi(h[fieldRevision])
	var syncedAt time.Time
	if ms, err := strconv.ParseInt(h[fieldSyncedAt], 10, 64); err == nil {
		syncedAt = time.UnixMilli(ms).UTC()
	}
	return record.ReconstructEmbedding(recordID, h[fieldListID], h[fieldFingerprint], revision, syncedAt)
}

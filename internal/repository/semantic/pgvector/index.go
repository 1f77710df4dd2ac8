package pgvector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kailas-cloud/dirsearch/internal/db/sqlstore"
	"github.com/kailas-cloud/dirsearch/internal/domain/record"
	"github.com/kailas-cloud/dirsearch/internal/domain/semantic"
)

// store is the consumer interface for the relational pool (ISP).
type store interface {
	SQL() *sql.DB
	Dialect() sqlstore.Dialect
	Ping(ctx context.Context) error
}

// Index stores record embeddings in a pgvector column next to the catalog.
type Index struct {
	store store
	dim   int
}

// New creates a pgvector-backed semantic index. The pool must be Postgres.
func New(s store, dim int) (*Index, error) {
	if s.Dialect().Name() != sqlstore.DriverPostgres {
		return nil, fmt.Errorf("pgvector backend requires postgres, got %s", s.Dialect().Name())
	}
	if dim <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}
	return &Index{store: s, dim: dim}, nil
}

func schema(dim int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS record_embeddings (
			record_id TEXT PRIMARY KEY,
			list_id TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			revision INTEGER NOT NULL,
			synced_at TIMESTAMPTZ NOT NULL,
			vector vector(%d) NOT NULL
		)`, dim),
		`CREATE INDEX IF NOT EXISTS idx_record_embeddings_list ON record_embeddings (list_id)`,
		`CREATE INDEX IF NOT EXISTS idx_record_embeddings_hnsw ON record_embeddings USING hnsw (vector vector_cosine_ops)`,
	}
}

// EnsureSchema creates the embeddings table and its indexes.
func (ix *Index) EnsureSchema(ctx context.Context) error {
	for i, stmt := range schema(ix.dim) {
		if _, err := ix.store.SQL().ExecContext(ctx, stmt); err != nil {
			return &sqlstore.Error{Op: sqlstore.OpMigrate, Err: fmt.Errorf("embeddings statement %d: %w", i, err)}
		}
	}
	return nil
}

// NeedsVectors reports that entries and queries carry embeddings.
func (ix *Index) NeedsVectors() bool { return true }

// Ping checks connectivity.
func (ix *Index) Ping(ctx context.Context) error {
	return ix.store.Ping(ctx) //nolint:wrapcheck // transparent
}

// Get returns the stored embedding metadata for the ids that have one.
func (ix *Index) Get(ctx context.Context, recordIDs []string) (map[string]record.Embedding, error) {
	out := make(map[string]record.Embedding, len(recordIDs))
	if len(recordIDs) == 0 {
		return out, nil
	}

	rows, err := ix.store.SQL().QueryContext(ctx,
		`SELECT record_id, list_id, fingerprint, revision, synced_at
		FROM record_embeddings WHERE record_id = ANY($1)`, pq.Array(recordIDs))
	if err != nil {
		return nil, &sqlstore.Error{Op: sqlstore.OpSelect, Err: err}
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			recordID, listID, fp string
			revision             int
			syncedAt             time.Time
		)
		if err := rows.Scan(&recordID, &listID, &fp, &revision, &syncedAt); err != nil {
			return nil, &sqlstore.Error{Op: sqlstore.OpSelect, Err: err}
		}
		out[recordID] = record.ReconstructEmbedding(recordID, listID, fp, revision, syncedAt)
	}
	if err := rows.Err(); err != nil {
		return nil, &sqlstore.Error{Op: sqlstore.OpSelect, Err: err}
	}
	return out, nil
}

// Upsert inserts or replaces the embedding of a record.
func (ix *Index) Upsert(ctx context.Context, e semantic.Entry) error {
	if len(e.Vector) != ix.dim {
		return fmt.Errorf("vector dimension %d, index expects %d", len(e.Vector), ix.dim)
	}
	m := e.Meta
	_, err := ix.store.SQL().ExecContext(ctx, `
		INSERT INTO record_embeddings (record_id, list_id, fingerprint, revision, synced_at, vector)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (record_id) DO UPDATE SET
			list_id = EXCLUDED.list_id,
			fingerprint = EXCLUDED.fingerprint,
			revision = EXCLUDED.revision,
			synced_at = EXCLUDED.synced_at,
			vector = EXCLUDED.vector`,
		m.RecordID(), m.ListID(), m.Fingerprint(), m.Revision(), m.SyncedAt().UTC(), pgvector.NewVector(e.Vector),
	)
	if err != nil {
		return &sqlstore.Error{Op: sqlstore.OpInsert, Err: err}
	}
	return nil
}

// Delete removes embeddings; unknown ids are ignored.
func (ix *Index) Delete(ctx context.Context, recordIDs ...string) error {
	if len(recordIDs) == 0 {
		return nil
	}
	if _, err := ix.store.SQL().ExecContext(ctx,
		`DELETE FROM record_embeddings WHERE record_id = ANY($1)`, pq.Array(recordIDs)); err != nil {
		return &sqlstore.Error{Op: sqlstore.OpDelete, Err: err}
	}
	return nil
}

// Query scores the requested records by cosine similarity, best first.
func (ix *Index) Query(ctx context.Context, q semantic.Query) ([]semantic.Match, error) {
	if len(q.RecordIDs) == 0 || len(q.ListIDs) == 0 {
		return nil, nil
	}

	vector := pgvector.NewVector(q.Vector)
	rows, err := ix.store.SQL().QueryContext(ctx, `
		SELECT record_id, fingerprint, 1 - (vector <=> $1) AS similarity
		FROM record_embeddings
		WHERE record_id = ANY($2) AND list_id = ANY($3)
		ORDER BY vector <=> $1
		LIMIT $4`,
		vector, pq.Array(q.RecordIDs), pq.Array(q.ListIDs), len(q.RecordIDs),
	)
	if err != nil {
		return nil, &sqlstore.Error{Op: sqlstore.OpSelect, Err: err}
	}
	defer func() { _ = rows.Close() }()

	out := make([]semantic.Match, 0, len(q.RecordIDs))
	for rows.Next() {
		var m semantic.Match
		if err := rows.Scan(&m.RecordID, &m.Fingerprint, &m.Similarity); err != nil {
			return nil, &sqlstore.Error{Op: sqlstore.OpSelect, Err: err}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &sqlstore.Error{Op: sqlstore.OpSelect, Err: err}
	}
	return out, nil
}

package semantic

import (
	"context"

	domcat "github.com/kailas-cloud/dirsearch/internal/domain/catalog"
	domrec "github.com/kailas-cloud/dirsearch/internal/domain/record"
	domsem "github.com/kailas-cloud/dirsearch/internal/domain/semantic"
)

// Index stores one embedding per record and scores bounded candidate sets.
type Index interface {
	Get(ctx context.Context, recordIDs []string) (map[string]domrec.Embedding, error)
	Upsert(ctx context.Context, e domsem.Entry) error
	Delete(ctx context.Context, recordIDs ...string) error
	Query(ctx context.Context, q domsem.Query) ([]domsem.Match, error)
	Ping(ctx context.Context) error
	// NeedsVectors reports whether entries and queries must carry embedding vectors.
	NeedsVectors() bool
}

// RecordReader loads records from the catalog.
type RecordReader interface {
	Get(ctx context.Context, id string) (domrec.Record, error)
	Page(ctx context.Context, listID string, afterSeq int64, limit int) ([]domrec.Record, error)
}

// ListReader loads list schemas.
type ListReader interface {
	GetListByID(ctx context.Context, id string) (domcat.List, error)
}

// Outbox is the durable queue of pending sync tasks.
type Outbox interface {
	Put(ctx context.Context, t domsem.Task) error
	Ack(ctx context.Context, recordID, fingerprint string) error
	MarkFailed(ctx context.Context, recordID, fingerprint string) (int, error)
	Pending(ctx context.Context, limit int) ([]domsem.Task, error)
	Len(ctx context.Context) (int, error)
}

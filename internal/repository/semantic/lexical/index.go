// Package lexical is a BM25 semantic backend over an in-process bleve index.
// It needs no embedding provider; scores are normalised to [0,1] by the best hit of each query.
package lexical

import (
	"context"
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/kailas-cloud/dirsearch/internal/domain/record"
	"github.com/kailas-cloud/dirsearch/internal/domain/semantic"
)

const contentField = "content"

type document struct {
	Content string `json:"content"`
}

// Index keeps record content in bleve and embedding metadata alongside it.
type Index struct {
	bleve bleve.Index

	mu   sync.RWMutex
	meta map[string]record.Embedding
}

// New creates an in-memory lexical index.
func New() (*Index, error) {
	m := bleve.NewIndexMapping()
	m.DefaultAnalyzer = "standard"

	idx, err := bleve.NewMemOnly(m)
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}
	return &Index{bleve: idx, meta: make(map[string]record.Embedding)}, nil
}

// Close releases the bleve index.
func (ix *Index) Close() error {
	return ix.bleve.Close() //nolint:wrapcheck // transparent
}

// NeedsVectors reports that entries carry content instead of embeddings.
func (ix *Index) NeedsVectors() bool { return false }

// Ping checks that the index answers.
func (ix *Index) Ping(context.Context) error {
	if _, err := ix.bleve.DocCount(); err != nil {
		return fmt.Errorf("bleve doc count: %w", err)
	}
	return nil
}

// Get returns the stored embedding metadata for the ids that have one.
func (ix *Index) Get(_ context.Context, recordIDs []string) (map[string]record.Embedding, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make(map[string]record.Embedding, len(recordIDs))
	for _, id := range recordIDs {
		if m, ok := ix.meta[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

// Upsert indexes the record content.
func (ix *Index) Upsert(_ context.Context, e semantic.Entry) error {
	id := e.Meta.RecordID()
	if err := ix.bleve.Index(id, document{Content: e.Content}); err != nil {
		return fmt.Errorf("index %s: %w", id, err)
	}
	ix.mu.Lock()
	ix.meta[id] = e.Meta
	ix.mu.Unlock()
	return nil
}

// Delete removes records from the index; unknown ids are ignored.
func (ix *Index) Delete(_ context.Context, recordIDs ...string) error {
	for _, id := range recordIDs {
		if err := ix.bleve.Delete(id); err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
	}
	ix.mu.Lock()
	for _, id := range recordIDs {
		delete(ix.meta, id)
	}
	ix.mu.Unlock()
	return nil
}

// Query runs a BM25 match restricted to the requested records.
// Every requested record stored under a listed list yields a match; records without a hit score 0.
func (ix *Index) Query(ctx context.Context, q semantic.Query) ([]semantic.Match, error) {
	lists := make(map[string]bool, len(q.ListIDs))
	for _, id := range q.ListIDs {
		lists[id] = true
	}

	ix.mu.RLock()
	candidates := make([]record.Embedding, 0, len(q.RecordIDs))
	for _, id := range q.RecordIDs {
		if m, ok := ix.meta[id]; ok && lists[m.ListID()] {
			candidates = append(candidates, m)
		}
	}
	ix.mu.RUnlock()

	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]string, len(candidates))
	for i, m := range candidates {
		ids[i] = m.RecordID()
	}

	match := bleve.NewMatchQuery(q.Text)
	match.SetField(contentField)
	req := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(bleve.NewDocIDQuery(ids), match), len(ids), 0, false)

	res, err := ix.bleve.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}

	scores := make(map[string]float64, len(res.Hits))
	var best float64
	for _, h := range res.Hits {
		scores[h.ID] = h.Score
		if h.Score > best {
			best = h.Score
		}
	}

	out := make([]semantic.Match, len(candidates))
	for i, m := range candidates {
		sim := 0.0
		if best > 0 {
			sim = scores[m.RecordID()] / best
		}
		out[i] = semantic.Match{RecordID: m.RecordID(), Fingerprint: m.Fingerprint(), Similarity: sim}
	}
	return out, nil
}

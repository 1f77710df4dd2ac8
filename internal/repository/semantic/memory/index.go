package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/kailas-cloud/dirsearch/internal/domain/record"
	"github.com/kailas-cloud/dirsearch/internal/domain/semantic"
)

// Index is an in-process brute-force cosine index for local runs and tests.
type Index struct {
	mu      sync.RWMutex
	entries map[string]semantic.Entry
}

// New creates an empty index.
func New() *Index {
	return &Index{entries: make(map[string]semantic.Entry)}
}

// NeedsVectors reports that entries and queries carry embeddings.
func (ix *Index) NeedsVectors() bool { return true }

// Ping always succeeds.
func (ix *Index) Ping(context.Context) error { return nil }

// Get returns the stored embedding metadata for the ids that have one.
func (ix *Index) Get(_ context.Context, recordIDs []string) (map[string]record.Embedding, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make(map[string]record.Embedding, len(recordIDs))
	for _, id := range recordIDs {
		if e, ok := ix.entries[id]; ok {
			out[id] = e.Meta
		}
	}
	return out, nil
}

// Upsert stores or replaces the entry of a record.
func (ix *Index) Upsert(_ context.Context, e semantic.Entry) error {
	e.Vector = slices.Clone(e.Vector)

	ix.mu.Lock()
	ix.entries[e.Meta.RecordID()] = e
	ix.mu.Unlock()
	return nil
}

// Delete removes entries; unknown ids are ignored.
func (ix *Index) Delete(_ context.Context, recordIDs ...string) error {
	ix.mu.Lock()
	for _, id := range recordIDs {
		delete(ix.entries, id)
	}
	ix.mu.Unlock()
	return nil
}

// Query scores the requested records that are stored and belong to one of the listed lists.
func (ix *Index) Query(_ context.Context, q semantic.Query) ([]semantic.Match, error) {
	lists := make(map[string]bool, len(q.ListIDs))
	for _, id := range q.ListIDs {
		lists[id] = true
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]semantic.Match, 0, len(q.RecordIDs))
	for _, id := range q.RecordIDs {
		e, ok := ix.entries[id]
		if !ok || !lists[e.Meta.ListID()] {
			continue
		}
		out = append(out, semantic.Match{
			RecordID:    id,
			Fingerprint: e.Meta.Fingerprint(),
			Similarity:  semantic.CosineSimilarity(q.Vector, e.Vector),
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	return out, nil
}

// Len returns the number of stored entries.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

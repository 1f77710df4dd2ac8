package semantic

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/dirsearch/internal/domain"
	domrec "github.com/kailas-cloud/dirsearch/internal/domain/record"
	"github.com/kailas-cloud/dirsearch/internal/domain/scope"
	domsem "github.com/kailas-cloud/dirsearch/internal/domain/semantic"
)

// Ranker scores structured candidates against free text.
type Ranker struct {
	index         Index
	embed         domain.Embedder
	minSimilarity float64
}

// NewRanker creates the semantic query path. embed may be nil for indexes that do not need vectors.
func NewRanker(index Index, embed domain.Embedder) *Ranker {
	return &Ranker{index: index, embed: embed}
}

// WithMinSimilarity sets the similarity below which scores are floored to zero.
func (r *Ranker) WithMinSimilarity(v float64) *Ranker {
	r.minSimilarity = v
	return r
}

// Query scores the in-scope candidates, in candidate order.
// Candidates outside the scope are dropped before the index is called. Candidates without
// an embedding for their current fingerprint come back unscored.
func (r *Ranker) Query(
	ctx context.Context, sc scope.Scope, candidates []domrec.Record, text string,
) ([]domsem.Score, error) {
	kept := make([]domrec.Record, 0, len(candidates))
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if !sc.Contains(c.ListID()) {
			continue
		}
		kept = append(kept, c)
		ids = append(ids, c.ID())
	}
	if len(kept) == 0 {
		return nil, nil
	}

	q := domsem.Query{Text: text, ListIDs: sc.ListIDs(), RecordIDs: ids}
	if r.index.NeedsVectors() {
		if r.embed == nil {
			return nil, fmt.Errorf("%w: no embedding provider configured", domain.ErrUpstreamUnavailable)
		}
		res, err := r.embed.Embed(ctx, text)
		if err != nil {
			return nil, upstream("embed query", err)
		}
		q.Vector = res.Embedding
	}

	matches, err := r.index.Query(ctx, q)
	if err != nil {
		return nil, upstream("query index", err)
	}

	byID := make(map[string]domsem.Match, len(matches))
	for _, m := range matches {
		byID[m.RecordID] = m
	}

	scores := make([]domsem.Score, len(kept))
	for i, c := range kept {
		scores[i] = domsem.Score{RecordID: c.ID()}
		m, ok := byID[c.ID()]
		if !ok || m.Fingerprint != c.Fingerprint() {
			continue
		}
		sim := m.Similarity
		if sim < r.minSimilarity || sim < 0 {
			sim = 0
		}
		scores[i].Similarity = sim
		scores[i].Scored = true
	}
	return scores, nil
}

// upstream keeps the cause so callers can tell a deadline from an outage.
func upstream(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrUpstreamUnavailable, op, err)
}

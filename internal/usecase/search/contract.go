package search

import (
	"context"

	domcat "github.com/kailas-cloud/dirsearch/internal/domain/catalog"
	domrec "github.com/kailas-cloud/dirsearch/internal/domain/record"
	"github.com/kailas-cloud/dirsearch/internal/domain/scope"
	"github.com/kailas-cloud/dirsearch/internal/domain/search/filter"
	domsem "github.com/kailas-cloud/dirsearch/internal/domain/semantic"
)

// AccessResolver answers which lists an agent may read.
type AccessResolver interface {
	AuthorizedLists(ctx context.Context, agent string) ([]domcat.List, error)
}

// StructuredEngine runs the exact-filter candidate query.
type StructuredEngine interface {
	Query(ctx context.Context, sc scope.Scope, filters filter.Set, limit int) ([]domrec.Record, error)
}

// SemanticRanker scores structured candidates against free text.
type SemanticRanker interface {
	Query(ctx context.Context, sc scope.Scope, candidates []domrec.Record, text string) ([]domsem.Score, error)
}

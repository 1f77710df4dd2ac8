package tool

import (
	"context"

	"github.com/kailas-cloud/dirsearch/internal/domain/search/request"
	"github.com/kailas-cloud/dirsearch/internal/domain/search/result"
)

// Searcher runs a validated search call.
type Searcher interface {
	Search(ctx context.Context, req *request.Request) (result.Result, error)
}

package structured

import (
	"context"

	domrec "github.com/kailas-cloud/dirsearch/internal/domain/record"
	"github.com/kailas-cloud/dirsearch/internal/domain/search/plan"
)

// Repository executes compiled structured queries.
type Repository interface {
	Query(ctx context.Context, p plan.Plan) ([]domrec.Record, error)
}

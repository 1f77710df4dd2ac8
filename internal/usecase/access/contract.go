package access

import (
	"context"

	"github.com/kailas-cloud/dirsearch/internal/domain/catalog"
	domgrant "github.com/kailas-cloud/dirsearch/internal/domain/grant"
)

// GrantStore reads and writes agent grants.
type GrantStore interface {
	ListsForAgent(ctx context.Context, agent string) ([]catalog.List, error)
	Grant(ctx context.Context, g domgrant.Grant) error
	Revoke(ctx context.Context, agent, listID string) error
}

package request

import (
	"fmt"
	"slices"
	"strings"

	"github.com/kailas-cloud/dirsearch/internal/domain/search/filter"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed free-text query length.
	MaxQueryLength = 1024
	MaxScopeHint   = 16
	DefaultLimit   = 5
	MaxLimit       = 25
)

// Request is a validated search call on behalf of one agent.
type Request struct {
	agent     string
	query     string
	filters   filter.Set
	scopeHint []string
	limit     int
}

// New validates and normalizes search parameters.
// limit above MaxLimit is clamped; limit <= 0 yields a request that returns nothing.
func New(agent, query string, filters filter.Set, scopeHint []string, limit int) (Request, error) {
	query = strings.TrimSpace(query)
	if len(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("query too long (max %d chars)", MaxQueryLength)
	}
	if len(scopeHint) > MaxScopeHint {
		return Request{}, fmt.Errorf("too many scope hints (max %d)", MaxScopeHint)
	}
	hint := make([]string, 0, len(scopeHint))
	for _, h := range scopeHint {
		h = strings.TrimSpace(h)
		if h == "" {
			return Request{}, fmt.Errorf("scope hint entries must not be empty")
		}
		if len(h) > 64 {
			return Request{}, fmt.Errorf("scope hint %q too long (max 64)", h)
		}
		if !slices.Contains(hint, h) {
			hint = append(hint, h)
		}
	}
	if limit < 0 {
		limit = 0
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return Request{
		agent:     agent,
		query:     query,
		filters:   filters,
		scopeHint: hint,
		limit:     limit,
	}, nil
}

// Agent returns the calling agent identity.
func (r *Request) Agent() string { return r.agent }

// Query returns the free-text query (may be empty).
func (r *Request) Query() string { return r.query }

// HasQuery reports whether a semantic pass is requested.
func (r *Request) HasQuery() bool { return r.query != "" }

// Filters returns the structured filters.
func (r *Request) Filters() filter.Set { return r.filters }

// ScopeHint returns the requested list names.
func (r *Request) ScopeHint() []string { return r.scopeHint }

// Limit returns the clamped result limit.
func (r *Request) Limit() int { return r.limit }

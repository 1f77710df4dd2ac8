package scope

import (
	"slices"

	"github.com/kailas-cloud/dirsearch/internal/domain/catalog"
)

// Scope is the set of lists a single search call may read.
// It is always derived from the caller's authorized lists.
type Scope struct {
	lists []catalog.List
	byID  map[string]catalog.List
}

// New builds a scope from already-authorized lists.
func New(lists []catalog.List) Scope {
	s := Scope{
		lists: make([]catalog.List, 0, len(lists)),
		byID:  make(map[string]catalog.List, len(lists)),
	}
	for _, l := range lists {
		if _, dup := s.byID[l.ID()]; dup {
			continue
		}
		s.byID[l.ID()] = l
		s.lists = append(s.lists, l)
	}
	return s
}

// Intersect narrows the authorized lists to the hinted list names.
// An empty hint keeps every authorized list; unknown or unauthorized names are dropped.
func Intersect(authorized []catalog.List, hint []string) Scope {
	if len(hint) == 0 {
		return New(authorized)
	}
	kept := make([]catalog.List, 0, len(authorized))
	for _, l := range authorized {
		if slices.Contains(hint, l.Name()) {
			kept = append(kept, l)
		}
	}
	return New(kept)
}

// Lists returns the lists in scope.
func (s Scope) Lists() []catalog.List { return s.lists }

// ListIDs returns the ids of the lists in scope.
func (s Scope) ListIDs() []string {
	out := make([]string, len(s.lists))
	for i, l := range s.lists {
		out[i] = l.ID()
	}
	return out
}

// IsEmpty reports whether nothing may be read.
func (s Scope) IsEmpty() bool { return len(s.lists) == 0 }

// Len returns the number of lists in scope.
func (s Scope) Len() int { return len(s.lists) }

// Contains reports whether the list id is in scope.
func (s Scope) Contains(listID string) bool {
	_, ok := s.byID[listID]
	return ok
}

// List looks up an in-scope list by id.
func (s Scope) List(listID string) (catalog.List, bool) {
	l, ok := s.byID[listID]
	return l, ok
}

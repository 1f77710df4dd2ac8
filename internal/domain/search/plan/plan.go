package plan

import (
	"fmt"

	"github.com/kailas-cloud/dirsearch/internal/domain/catalog/field"
	"github.com/kailas-cloud/dirsearch/internal/domain/scope"
	"github.com/kailas-cloud/dirsearch/internal/domain/search/filter"
)

// MaxLimit caps the number of rows a structured query may return.
const MaxLimit = 500

// Group is a location predicate restricted to the lists that store the field there.
type Group struct {
	ListIDs []string
	Field   field.Field
	Values  []string
}

// Clause is one filter condition compiled against the scope: an OR over its groups.
type Clause struct {
	Field  string
	Groups []Group
}

// Plan is a structured query compiled against the schemas of the lists in scope.
type Plan struct {
	ListIDs []string
	Clauses []Clause
	Limit   int
}

// Compile resolves every filter field against the lists in scope.
// Lists that do not declare a field are left out of its clause, so they cannot satisfy it.
func Compile(sc scope.Scope, filters filter.Set, limit int) (Plan, error) {
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if limit < 0 {
		limit = 0
	}

	p := Plan{ListIDs: sc.ListIDs(), Limit: limit}

	for _, cond := range filters.Conditions() {
		clause := Clause{Field: cond.Field()}
		byLocation := make(map[string]int)

		for _, l := range sc.Lists() {
			f, ok := l.FieldByName(cond.Field())
			if !ok {
				continue
			}
			if !f.Filterable() {
				return Plan{}, fmt.Errorf("field %q is not filterable", cond.Field())
			}
			loc := f.Location()
			if i, seen := byLocation[loc]; seen {
				clause.Groups[i].ListIDs = append(clause.Groups[i].ListIDs, l.ID())
				continue
			}
			byLocation[loc] = len(clause.Groups)
			clause.Groups = append(clause.Groups, Group{
				ListIDs: []string{l.ID()},
				Field:   f,
				Values:  cond.Values(),
			})
		}

		if len(clause.Groups) == 0 {
			return Plan{}, fmt.Errorf("unknown filter field %q", cond.Field())
		}
		p.Clauses = append(p.Clauses, clause)
	}

	return p, nil
}

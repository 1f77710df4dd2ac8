package structured

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kailas-cloud/dirsearch/internal/db/sqlstore"
	"github.com/kailas-cloud/dirsearch/internal/domain"
	"github.com/kailas-cloud/dirsearch/internal/domain/catalog/field"
	domrec "github.com/kailas-cloud/dirsearch/internal/domain/record"
	"github.com/kailas-cloud/dirsearch/internal/domain/search/plan"
	recrepo "github.com/kailas-cloud/dirsearch/internal/repository/record"
)

// store is the consumer interface for the relational pool (ISP).
type store interface {
	SQL() *sql.DB
	Dialect() sqlstore.Dialect
}

// Repo runs compiled structured queries.
type Repo struct {
	store store
}

// New creates a structured query repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Query returns the non-deleted records matching every clause of the plan,
// active first, then most recently inserted.
// A plan without lists is refused with ErrUnscopedQuery.
func (r *Repo) Query(ctx context.Context, p plan.Plan) ([]domrec.Record, error) {
	if len(p.ListIDs) == 0 {
		return nil, domain.ErrUnscopedQuery
	}
	if p.Limit <= 0 {
		return nil, nil
	}

	d := r.store.Dialect()
	q, args := buildQuery(d, p)

	rows, err := r.store.SQL().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &sqlstore.Error{Op: sqlstore.OpSelect, Err: err}
	}
	defer func() { _ = rows.Close() }()

	out := make([]domrec.Record, 0, p.Limit)
	for rows.Next() {
		rec, err := recrepo.ScanRecord(rows, d)
		if err != nil {
			return nil, &sqlstore.Error{Op: sqlstore.OpSelect, Err: err}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &sqlstore.Error{Op: sqlstore.OpSelect, Err: err}
	}
	return out, nil
}

func buildQuery(d sqlstore.Dialect, p plan.Plan) (string, []any) {
	args := sqlstore.NewArgs(d)

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM records WHERE records.list_id IN %s AND records.status <> %s",
		recrepo.Columns, args.In(p.ListIDs), args.Add(string(domrec.Deleted)))

	for _, c := range p.Clauses {
		groups := make([]string, len(c.Groups))
		for i, g := range c.Groups {
			groups[i] = fmt.Sprintf("(records.list_id IN %s AND %s)",
				args.In(g.ListIDs), locationPredicate(d, args, g))
		}
		b.WriteString(" AND (")
		b.WriteString(strings.Join(groups, " OR "))
		b.WriteString(")")
	}

	fmt.Fprintf(&b, " ORDER BY CASE WHEN records.status = %s THEN 0 ELSE 1 END, records.seq DESC LIMIT %s",
		args.Add(string(domrec.Active)), args.Add(p.Limit))

	return b.String(), args.Values()
}

func locationPredicate(d sqlstore.Dialect, args *sqlstore.Args, g plan.Group) string {
	switch g.Field.Kind() {
	case field.Tag:
		return "records." + g.Field.Name() + " IN " + args.In(g.Values)
	case field.Array:
		return d.TagsOverlap(args, g.Values)
	default:
		return d.PayloadText(g.Field.Path()) + " IN " + args.In(g.Values)
	}
}

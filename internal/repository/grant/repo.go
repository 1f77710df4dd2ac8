package grant

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kailas-cloud/dirsearch/internal/db/sqlstore"
	"github.com/kailas-cloud/dirsearch/internal/domain"
	"github.com/kailas-cloud/dirsearch/internal/domain/catalog"
	domgrant "github.com/kailas-cloud/dirsearch/internal/domain/grant"
	catrepo "github.com/kailas-cloud/dirsearch/internal/repository/catalog"
)

// store is the consumer interface for the relational pool (ISP).
type store interface {
	SQL() *sql.DB
	Dialect() sqlstore.Dialect
}

// Repo persists access grants.
type Repo struct {
	store store
}

// New creates a grant repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

func (r *Repo) args() *sqlstore.Args { return sqlstore.NewArgs(r.store.Dialect()) }

// Grant records that the agent may read the list. Granting twice is a no-op.
func (r *Repo) Grant(ctx context.Context, g domgrant.Grant) error {
	args := r.args()
	q := fmt.Sprintf(`INSERT INTO access_grants (agent_id, list_id, created_at) VALUES (%s, %s, %s)
		ON CONFLICT (agent_id, list_id) DO NOTHING`,
		args.Add(g.Agent()), args.Add(g.ListID()), args.Add(g.CreatedAt().UTC()))

	if _, err := r.store.SQL().ExecContext(ctx, q, args.Values()...); err != nil {
		return &sqlstore.Error{Op: sqlstore.OpInsert, Err: err}
	}
	return nil
}

// Revoke removes a grant. A missing grant yields ErrNotFound.
func (r *Repo) Revoke(ctx context.Context, agent, listID string) error {
	args := r.args()
	q := fmt.Sprintf("DELETE FROM access_grants WHERE agent_id = %s AND list_id = %s",
		args.Add(agent), args.Add(listID))

	res, err := r.store.SQL().ExecContext(ctx, q, args.Values()...)
	if err != nil {
		return &sqlstore.Error{Op: sqlstore.OpDelete, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &sqlstore.Error{Op: sqlstore.OpDelete, Err: err}
	}
	if n == 0 {
		return fmt.Errorf("grant %s -> %s: %w", agent, listID, domain.ErrNotFound)
	}
	return nil
}

// ListsForAgent returns the lists the agent holds a grant on, ordered by name.
func (r *Repo) ListsForAgent(ctx context.Context, agent string) ([]catalog.List, error) {
	args := r.args()
	q := fmt.Sprintf(`SELECT %s FROM access_grants
		JOIN lists ON lists.id = access_grants.list_id
		WHERE access_grants.agent_id = %s
		ORDER BY lists.name, lists.id`, catrepo.ListColumns, args.Add(agent))

	rows, err := r.store.SQL().QueryContext(ctx, q, args.Values()...)
	if err != nil {
		return nil, &sqlstore.Error{Op: sqlstore.OpSelect, Err: err}
	}
	defer func() { _ = rows.Close() }()

	var out []catalog.List
	for rows.Next() {
		l, err := catrepo.ScanList(rows)
		if err != nil {
			return nil, &sqlstore.Error{Op: sqlstore.OpSelect, Err: err}
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, &sqlstore.Error{Op: sqlstore.OpSelect, Err: err}
	}
	return out, nil
}

// AgentsForList returns the agents holding a grant on the list.
func (r *Repo) AgentsForList(ctx context.Context, listID string) ([]string, error) {
	args := r.args()
	q := "SELECT agent_id FROM access_grants WHERE list_id = " + args.Add(listID) + " ORDER BY agent_id"

	rows, err := r.store.SQL().QueryContext(ctx, q, args.Values()...)
	if err != nil {
		return nil, &sqlstore.Error{Op: sqlstore.OpSelect, Err: err}
	}
	defer func() { _ = rows.Close() }()

	var agents []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, &sqlstore.Error{Op: sqlstore.OpSelect, Err: err}
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, &sqlstore.Error{Op: sqlstore.OpSelect, Err: err}
	}
	return agents, nil
}

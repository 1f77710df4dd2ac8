package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/dirsearch/internal/db/sqlstore"
	"github.com/kailas-cloud/dirsearch/internal/domain"
	"github.com/kailas-cloud/dirsearch/internal/domain/account"
	"github.com/kailas-cloud/dirsearch/internal/domain/catalog"
)

// store is the consumer interface for the relational pool (ISP).
type store interface {
	SQL() *sql.DB
	Dialect() sqlstore.Dialect
}

// Repo persists accounts and lists.
type Repo struct {
	store store
}

// New creates a catalog repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

func (r *Repo) args() *sqlstore.Args { return sqlstore.NewArgs(r.store.Dialect()) }

// CreateAccount inserts an account. A taken name yields ErrAlreadyExists.
func (r *Repo) CreateAccount(ctx context.Context, a account.Account) error {
	args := r.args()
	q := fmt.Sprintf("INSERT INTO accounts (id, name, created_at) VALUES (%s, %s, %s)",
		args.Add(a.ID()), args.Add(a.Name()), args.Add(a.CreatedAt().UTC()))

	if _, err := r.store.SQL().ExecContext(ctx, q, args.Values()...); err != nil {
		if sqlstore.IsUniqueViolation(err) {
			return fmt.Errorf("account %s: %w", a.Name(), domain.ErrAlreadyExists)
		}
		return &sqlstore.Error{Op: sqlstore.OpInsert, Err: err}
	}
	return nil
}

// GetAccount looks an account up by name.
func (r *Repo) GetAccount(ctx context.Context, name string) (account.Account, error) {
	args := r.args()
	q := "SELECT id, name, created_at FROM accounts WHERE name = " + args.Add(name)

	var (
		id, accName string
		createdAt   time.Time
	)
	err := r.store.SQL().QueryRowContext(ctx, q, args.Values()...).Scan(&id, &accName, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return account.Account{}, fmt.Errorf("account %s: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return account.Account{}, &sqlstore.Error{Op: sqlstore.OpSelect, Err: err}
	}
	return account.Reconstruct(id, accName, createdAt), nil
}

// CreateList inserts a list. A taken (account, name) pair yields ErrAlreadyExists.
func (r *Repo) CreateList(ctx context.Context, l catalog.List) error {
	fieldsJSON, err := encodeFields(l.Fields())
	if err != nil {
		return err
	}

	args := r.args()
	q := fmt.Sprintf(
		"INSERT INTO lists (id, account_id, name, record_type, fields, created_at) VALUES (%s, %s, %s, %s, %s, %s)",
		args.Add(l.ID()), args.Add(l.AccountID()), args.Add(l.Name()),
		args.Add(l.RecordType()), args.Add(fieldsJSON), args.Add(l.CreatedAt().UTC()),
	)

	if _, err := r.store.SQL().ExecContext(ctx, q, args.Values()...); err != nil {
		if sqlstore.IsUniqueViolation(err) {
			return fmt.Errorf("list %s: %w", l.Name(), domain.ErrAlreadyExists)
		}
		return &sqlstore.Error{Op: sqlstore.OpInsert, Err: err}
	}
	return nil
}

// GetList looks a list up by account id and name.
func (r *Repo) GetList(ctx context.Context, accountID, name string) (catalog.List, error) {
	args := r.args()
	q := fmt.Sprintf("SELECT %s FROM lists WHERE lists.account_id = %s AND lists.name = %s",
		ListColumns, args.Add(accountID), args.Add(name))
	return r.getOne(ctx, q, args, name)
}

// GetListByID looks a list up by id.
func (r *Repo) GetListByID(ctx context.Context, id string) (catalog.List, error) {
	args := r.args()
	q := fmt.Sprintf("SELECT %s FROM lists WHERE lists.id = %s", ListColumns, args.Add(id))
	return r.getOne(ctx, q, args, id)
}

func (r *Repo) getOne(ctx context.Context, q string, args *sqlstore.Args, label string) (catalog.List, error) {
	l, err := ScanList(r.store.SQL().QueryRowContext(ctx, q, args.Values()...))
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.List{}, fmt.Errorf("list %s: %w", label, domain.ErrNotFound)
	}
	if err != nil {
		return catalog.List{}, &sqlstore.Error{Op: sqlstore.OpSelect, Err: err}
	}
	return l, nil
}

// ListLists returns the lists of an account ordered by name; an empty account id returns every list.
func (r *Repo) ListLists(ctx context.Context, accountID string) ([]catalog.List, error) {
	args := r.args()
	q := "SELECT " + ListColumns + " FROM lists"
	if accountID != "" {
		q += " WHERE lists.account_id = " + args.Add(accountID)
	}
	q += " ORDER BY lists.name, lists.id"

	rows, err := r.store.SQL().QueryContext(ctx, q, args.Values()...)
	if err != nil {
		return nil, &sqlstore.Error{Op: sqlstore.OpSelect, Err: err}
	}
	defer func() { _ = rows.Close() }()

	var out []catalog.List
	for rows.Next() {
		l, err := ScanList(rows)
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

// DeleteList removes a list; records and grants go with it (ON DELETE CASCADE).
func (r *Repo) DeleteList(ctx context.Context, id string) error {
	args := r.args()
	q := "DELETE FROM lists WHERE id = " + args.Add(id)

	res, err := r.store.SQL().ExecContext(ctx, q, args.Values()...)
	if err != nil {
		return &sqlstore.Error{Op: sqlstore.OpDelete, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &sqlstore.Error{Op: sqlstore.OpDelete, Err: err}
	}
	if n == 0 {
		return fmt.Errorf("list %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kailas-cloud/dirsearch/internal/db/sqlstore"
	"github.com/kailas-cloud/dirsearch/internal/domain"
	domrec "github.com/kailas-cloud/dirsearch/internal/domain/record"
)

// store is the consumer interface for the relational pool (ISP).
type store interface {
	SQL() *sql.DB
	Dialect() sqlstore.Dialect
}

// Repo persists records.
type Repo struct {
	store store
}

// New creates a record repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

func (r *Repo) args() *sqlstore.Args { return sqlstore.NewArgs(r.store.Dialect()) }

// Upsert writes a record keyed by (list_id, external_id).
// A stored record with the same fingerprint is left untouched and returned as is.
// The record's id, seq and created_at are kept across updates.
func (r *Repo) Upsert(ctx context.Context, rec domrec.Record) (domrec.Record, domrec.Change, error) {
	stored, change, err := r.upsert(ctx, rec)
	if err != nil && sqlstore.IsUniqueViolation(err) {
		// lost an insert race for the same external id; the row exists now
		stored, change, err = r.upsert(ctx, rec)
	}
	return stored, change, err
}

func (r *Repo) upsert(ctx context.Context, rec domrec.Record) (domrec.Record, domrec.Change, error) {
	tx, err := r.store.SQL().BeginTx(ctx, nil)
	if err != nil {
		return domrec.Record{}, domrec.Change{}, &sqlstore.Error{Op: sqlstore.OpInsert, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	args := r.args()
	q := fmt.Sprintf("SELECT %s FROM records WHERE records.list_id = %s AND records.external_id = %s",
		Columns, args.Add(rec.ListID()), args.Add(rec.ExternalID()))
	existing, err := ScanRecord(tx.QueryRowContext(ctx, q, args.Values()...), r.store.Dialect())

	var (
		stored domrec.Record
		change domrec.Change
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		stored, err = r.insert(ctx, tx, rec)
		if err != nil {
			return domrec.Record{}, domrec.Change{}, err
		}
		change = domrec.Change{Created: true, Changed: true}
	case err != nil:
		return domrec.Record{}, domrec.Change{}, &sqlstore.Error{Op: sqlstore.OpSelect, Err: err}
	case existing.Fingerprint() == rec.Fingerprint():
		return existing, domrec.Change{}, nil
	default:
		stored, err = r.update(ctx, tx, existing, rec)
		if err != nil {
			return domrec.Record{}, domrec.Change{}, err
		}
		change = domrec.Change{Changed: true}
	}

	if err := tx.Commit(); err != nil {
		return domrec.Record{}, domrec.Change{}, &sqlstore.Error{Op: sqlstore.OpInsert, Err: err}
	}
	return stored, change, nil
}

func (r *Repo) insert(ctx context.Context, tx *sql.Tx, rec domrec.Record) (domrec.Record, error) {
	payload, err := encodePayload(rec.Payload())
	if err != nil {
		return domrec.Record{}, err
	}

	d := r.store.Dialect()
	args := r.args()
	q := fmt.Sprintf(`INSERT INTO records
		(id, list_id, external_id, name, status, tags, payload, fingerprint, created_at, updated_at)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s) RETURNING seq`,
		args.Add(rec.ID()), args.Add(rec.ListID()), args.Add(rec.ExternalID()),
		args.Add(rec.Name()), args.Add(string(rec.Status())), args.Add(d.TagsArg(rec.Tags())),
		args.Add(payload), args.Add(rec.Fingerprint()),
		args.Add(rec.CreatedAt().UTC()), args.Add(rec.UpdatedAt().UTC()),
	)

	var seq int64
	if err := tx.QueryRowContext(ctx, q, args.Values()...).Scan(&seq); err != nil {
		if sqlstore.IsUniqueViolation(err) {
			return domrec.Record{}, err
		}
		return domrec.Record{}, &sqlstore.Error{Op: sqlstore.OpInsert, Err: err}
	}

	return domrec.Reconstruct(rec.ID(), rec.ListID(), rec.ExternalID(), rec.Name(), rec.Status(),
		rec.Tags(), rec.Payload(), rec.Fingerprint(), seq, rec.CreatedAt(), rec.UpdatedAt()), nil
}

func (r *Repo) update(ctx context.Context, tx *sql.Tx, existing, rec domrec.Record) (domrec.Record, error) {
	payload, err := encodePayload(rec.Payload())
	if err != nil {
		return domrec.Record{}, err
	}

	d := r.store.Dialect()
	args := r.args()
	q := fmt.Sprintf(`UPDATE records SET name = %s, status = %s, tags = %s, payload = %s,
		fingerprint = %s, updated_at = %s WHERE id = %s`,
		args.Add(rec.Name()), args.Add(string(rec.Status())), args.Add(d.TagsArg(rec.Tags())),
		args.Add(payload), args.Add(rec.Fingerprint()), args.Add(rec.UpdatedAt().UTC()),
		args.Add(existing.ID()),
	)
	if _, err := tx.ExecContext(ctx, q, args.Values()...); err != nil {
		return domrec.Record{}, &sqlstore.Error{Op: sqlstore.OpUpdate, Err: err}
	}

	return domrec.Reconstruct(existing.ID(), existing.ListID(), existing.ExternalID(), rec.Name(), rec.Status(),
		rec.Tags(), rec.Payload(), rec.Fingerprint(), existing.Seq(), existing.CreatedAt(), rec.UpdatedAt()), nil
}

// Get loads a record by id.
func (r *Repo) Get(ctx context.Context, id string) (domrec.Record, error) {
	args := r.args()
	q := fmt.Sprintf("SELECT %s FROM records WHERE records.id = %s", Columns, args.Add(id))

	rec, err := ScanRecord(r.store.SQL().QueryRowContext(ctx, q, args.Values()...), r.store.Dialect())
	if errors.Is(err, sql.ErrNoRows) {
		return domrec.Record{}, fmt.Errorf("record %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domrec.Record{}, &sqlstore.Error{Op: sqlstore.OpSelect, Err: err}
	}
	return rec, nil
}

// Page returns up to limit non-deleted records with seq greater than afterSeq, in seq order.
// An empty listID pages over every list.
func (r *Repo) Page(ctx context.Context, listID string, afterSeq int64, limit int) ([]domrec.Record, error) {
	args := r.args()
	q := fmt.Sprintf("SELECT %s FROM records WHERE records.seq > %s AND records.status <> %s",
		Columns, args.Add(afterSeq), args.Add(string(domrec.Deleted)))
	if listID != "" {
		q += " AND records.list_id = " + args.Add(listID)
	}
	q += " ORDER BY records.seq LIMIT " + args.Add(limit)

	rows, err := r.store.SQL().QueryContext(ctx, q, args.Values()...)
	if err != nil {
		return nil, &sqlstore.Error{Op: sqlstore.OpSelect, Err: err}
	}
	defer func() { _ = rows.Close() }()

	var out []domrec.Record
	for rows.Next() {
		rec, err := ScanRecord(rows, r.store.Dialect())
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

// IDsByList returns the ids of every record in a list, deleted ones included.
func (r *Repo) IDsByList(ctx context.Context, listID string) ([]string, error) {
	args := r.args()
	q := "SELECT id FROM records WHERE list_id = " + args.Add(listID) + " ORDER BY seq"

	rows, err := r.store.SQL().QueryContext(ctx, q, args.Values()...)
	if err != nil {
		return nil, &sqlstore.Error{Op: sqlstore.OpSelect, Err: err}
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &sqlstore.Error{Op: sqlstore.OpSelect, Err: err}
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, &sqlstore.Error{Op: sqlstore.OpSelect, Err: err}
	}
	return ids, nil
}

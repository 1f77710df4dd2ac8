package sqlstore

import (
	"context"
	"fmt"
)

// Migrate creates the schema if it does not exist. It is safe to run on every start.
func (db *DB) Migrate(ctx context.Context) error {
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return &Error{Op: OpMigrate, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range db.dialect.Schema() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return &Error{Op: OpMigrate, Err: fmt.Errorf("statement %d: %w", i, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &Error{Op: OpMigrate, Err: err}
	}
	return nil
}

package sqlstore

import "context"

// OpenMemoryForTest opens a migrated in-memory SQLite database.
func OpenMemoryForTest(ctx context.Context) (*DB, error) {
	db, err := Open(Config{Driver: DriverSQLite, DSN: ":memory:"})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Register the PostgreSQL driver.
	_ "github.com/lib/pq"
	// Register the pure-Go SQLite driver.
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds connection and pool parameters.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DB is a pooled relational store shared by the catalog, grant and structured repositories.
// Every call takes its own connection from the pool.
type DB struct {
	sql     *sql.DB
	dialect Dialect
}

// Open opens the pool for the configured driver. It does not touch the network;
// use WaitForReady to block until the database answers.
func Open(cfg Config) (*DB, error) {
	var d Dialect
	dsn := cfg.DSN
	switch cfg.Driver {
	case DriverPostgres:
		d = postgres{}
	case DriverSQLite:
		d = sqlite{}
		dsn = sqliteDSN(dsn)
	default:
		return nil, fmt.Errorf("unknown db driver %q: only 'postgres' and 'sqlite' are supported", cfg.Driver)
	}
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required")
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	if isSQLiteMemory(cfg) {
		// each connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	return &DB{sql: db, dialect: d}, nil
}

// sqliteDSN enables foreign keys on every pooled connection (cascade deletes depend on it).
func sqliteDSN(dsn string) string {
	if dsn == "" || strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}

func isSQLiteMemory(cfg Config) bool {
	return cfg.Driver == DriverSQLite && strings.Contains(cfg.DSN, ":memory:")
}

// SQL exposes the pool to repositories.
func (db *DB) SQL() *sql.DB { return db.sql }

// Dialect returns the SQL flavour of the pool.
func (db *DB) Dialect() Dialect { return db.dialect }

// Ping checks connectivity.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.sql.PingContext(ctx); err != nil {
		return &Error{Op: OpPing, Err: err}
	}
	return nil
}

// Close releases the pool.
func (db *DB) Close() error {
	return db.sql.Close()
}

// WaitForReady polls Ping until the database responds or timeout expires.
func (db *DB) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.Ping(ctx); err == nil {
		return nil
	}

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w", ctx.Err())
		case <-ticker.C:
			if err := db.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

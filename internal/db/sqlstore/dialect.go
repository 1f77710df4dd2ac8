package sqlstore

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// Dialect hides the SQL differences between Postgres and SQLite.
type Dialect interface {
	Name() string
	// Placeholder returns the n-th (1-based) bind parameter marker.
	Placeholder(n int) string
	// TagsArg encodes a tag set for the records.tags column.
	TagsArg(tags []string) driver.Valuer
	// TagsDest returns a scanner that decodes records.tags into dst.
	TagsDest(dst *[]string) sql.Scanner
	// TagsOverlap renders "the record tags share at least one value with values".
	TagsOverlap(args *Args, values []string) string
	// PayloadText renders the payload value at path as text.
	PayloadText(path []string) string
	// Schema returns the idempotent DDL statements.
	Schema() []string
}

// Args accumulates bind parameters and hands out dialect placeholders.
type Args struct {
	d    Dialect
	vals []any
}

// NewArgs starts an empty parameter list.
func NewArgs(d Dialect) *Args {
	return &Args{d: d}
}

// Add appends a value and returns its placeholder.
func (a *Args) Add(v any) string {
	a.vals = append(a.vals, v)
	return a.d.Placeholder(len(a.vals))
}

// In appends values and returns a parenthesized placeholder list.
func (a *Args) In(values []string) string {
	ph := make([]string, len(values))
	for i, v := range values {
		ph[i] = a.Add(v)
	}
	return "(" + strings.Join(ph, ", ") + ")"
}

// Values returns the accumulated parameters.
func (a *Args) Values() []any { return a.vals }

type postgres struct{}

func (postgres) Name() string { return DriverPostgres }

func (postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (postgres) TagsArg(tags []string) driver.Valuer {
	if tags == nil {
		tags = []string{}
	}
	return pq.StringArray(tags)
}

func (postgres) TagsDest(dst *[]string) sql.Scanner {
	return (*pq.StringArray)(dst)
}

func (postgres) TagsOverlap(args *Args, values []string) string {
	return "tags && " + args.Add(pq.StringArray(values)) + "::text[]"
}

func (postgres) PayloadText(path []string) string {
	return fmt.Sprintf("(payload #>> '{%s}')", strings.Join(path, ","))
}

func (postgres) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS lists (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			record_type TEXT NOT NULL,
			fields JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (account_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS records (
			seq BIGSERIAL UNIQUE,
			id TEXT PRIMARY KEY,
			list_id TEXT NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
			external_id TEXT NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			tags TEXT[] NOT NULL DEFAULT '{}',
			payload JSONB NOT NULL DEFAULT '{}',
			fingerprint TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE (list_id, external_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_list_order ON records (list_id, status, seq DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_records_tags ON records USING GIN (tags)`,
		`CREATE TABLE IF NOT EXISTS access_grants (
			agent_id TEXT NOT NULL,
			list_id TEXT NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (agent_id, list_id)
		)`,
	}
}

type sqlite struct{}

func (sqlite) Name() string { return DriverSQLite }

func (sqlite) Placeholder(n int) string { return "?" + strconv.Itoa(n) }

func (sqlite) TagsArg(tags []string) driver.Valuer {
	return jsonTags(tags)
}

func (sqlite) TagsDest(dst *[]string) sql.Scanner {
	return &jsonTagsScanner{dst: dst}
}

func (sqlite) TagsOverlap(args *Args, values []string) string {
	return "EXISTS (SELECT 1 FROM json_each(records.tags) WHERE json_each.value IN " + args.In(values) + ")"
}

// PayloadText renders JSON booleans as true/false like Postgres #>>; json_extract alone yields 1/0.
func (sqlite) PayloadText(path []string) string {
	p := "'$." + strings.Join(path, ".") + "'"
	return fmt.Sprintf("(CASE json_type(payload, %[1]s) WHEN 'true' THEN 'true' WHEN 'false' THEN 'false' "+
		"ELSE CAST(json_extract(payload, %[1]s) AS TEXT) END)", p)
}

func (sqlite) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS lists (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			record_type TEXT NOT NULL,
			fields TEXT NOT NULL DEFAULT '[]',
			created_at TIMESTAMP NOT NULL,
			UNIQUE (account_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS records (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			list_id TEXT NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
			external_id TEXT NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			tags TEXT NOT NULL DEFAULT '[]',
			payload TEXT NOT NULL DEFAULT '{}',
			fingerprint TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (list_id, external_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_list_order ON records (list_id, status, seq DESC)`,
		`CREATE TABLE IF NOT EXISTS access_grants (
			agent_id TEXT NOT NULL,
			list_id TEXT NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (agent_id, list_id)
		)`,
	}
}

// jsonTags stores a tag set as a JSON array in a TEXT column.
type jsonTags []string

func (t jsonTags) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	raw, err := json.Marshal([]string(t))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

type jsonTagsScanner struct {
	dst *[]string
}

func (s *jsonTagsScanner) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*s.dst = []string{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported tags column type %T", src)
	}
	out := []string{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode tags: %w", err)
	}
	*s.dst = out
	return nil
}

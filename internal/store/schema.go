package store

import (
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "github.com/mattn/go-sqlite3"
)

// menus.parent_id deliberately carries no foreign key: records pointing at a
// missing parent must survive so the tree builder can report them.
const sqliteSchemaSQL = `
CREATE TABLE IF NOT EXISTS menus (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT    NOT NULL,
	parent_id  INTEGER,
	sort_order INTEGER NOT NULL DEFAULT 0,
	visible    INTEGER NOT NULL DEFAULT 1,
	type       TEXT    NOT NULL DEFAULT '',
	path       TEXT    NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_menus_parent ON menus(parent_id);

CREATE TABLE IF NOT EXISTS store_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT ''
);
`

const postgresSchemaSQL = `
CREATE TABLE IF NOT EXISTS menus (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT        NOT NULL,
	parent_id  BIGINT,
	sort_order INTEGER     NOT NULL DEFAULT 0,
	visible    BOOLEAN     NOT NULL DEFAULT TRUE,
	type       TEXT        NOT NULL DEFAULT '',
	path       TEXT        NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_menus_parent ON menus(parent_id);

CREATE TABLE IF NOT EXISTS store_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT ''
);
`

// dialect captures the few places SQLite and Postgres differ.
type dialect struct {
	name       string
	driver     string
	schema     string
	positional bool
	// lockMenus serialises writers inside a transaction; empty when the
	// connection already begins IMMEDIATE transactions.
	lockMenus string
	// afterUpsert realigns the id sequence after explicit ids were written.
	afterUpsert string
}

var (
	sqliteDialect = dialect{
		name:   DriverSQLite,
		driver: "sqlite3",
		schema: sqliteSchemaSQL,
	}
	postgresDialect = dialect{
		name:        DriverPostgres,
		driver:      "pgx",
		schema:      postgresSchemaSQL,
		positional:  true,
		lockMenus:   `LOCK TABLE menus IN SHARE ROW EXCLUSIVE MODE`,
		afterUpsert: `SELECT setval(pg_get_serial_sequence('menus', 'id'), COALESCE((SELECT MAX(id) FROM menus), 0) + 1, false)`,
	}
)

// rebind rewrites '?' placeholders to $1, $2, ... for Postgres.
func (d dialect) rebind(query string) string {
	if !d.positional {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

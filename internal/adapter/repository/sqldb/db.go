// Package sqldb persists raw traffic events through database/sql, on SQLite
// (modernc.org/sqlite) or PostgreSQL (lib/pq).
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects SQL syntax differences between the supported stores.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// ParseDialect maps a STORE_DRIVER value onto a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch Dialect(strings.ToLower(driver)) {
	case SQLite:
		return SQLite, nil
	case Postgres:
		return Postgres, nil
	default:
		return "", fmt.Errorf("unsupported store driver %q", driver)
	}
}

// placeholder returns the bind marker for the n-th (1-based) argument.
func (d Dialect) placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (d Dialect) placeholders(count int) string {
	marks := make([]string, count)
	for i := range marks {
		marks[i] = d.placeholder(i + 1)
	}
	return strings.Join(marks, ", ")
}

func (d Dialect) schema() []string {
	if d == Postgres {
		return []string{
			`CREATE TABLE IF NOT EXISTS raw_traffic (
				id         BIGSERIAL PRIMARY KEY,
				timestamp  TIMESTAMPTZ NOT NULL,
				ip         TEXT NOT NULL,
				user_agent TEXT NOT NULL,
				path       TEXT NOT NULL,
				status     INTEGER NOT NULL,
				referer    TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX IF NOT EXISTS raw_traffic_timestamp_idx ON raw_traffic (timestamp)`,
		}
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS raw_traffic (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp  TEXT NOT NULL,
			ip         TEXT NOT NULL,
			user_agent TEXT NOT NULL,
			path       TEXT NOT NULL,
			status     INTEGER NOT NULL,
			referer    TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS raw_traffic_timestamp_idx ON raw_traffic (timestamp)`,
	}
}

// Open connects to the store and applies connection settings. SQLite is
// limited to a single connection: the ingestor is the only writer and this
// keeps ":memory:" databases consistent.
func Open(ctx context.Context, dialect Dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", dialect, err)
	}

	if dialect == SQLite {
		db.SetMaxOpenConns(1)
		pragmas := []string{
			"PRAGMA busy_timeout = 5000",
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = FULL",
		}
		for _, p := range pragmas {
			if _, err := db.ExecContext(ctx, p); err != nil {
				db.Close()
				return nil, fmt.Errorf("apply %q: %w", p, err)
			}
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s store: %w", dialect, err)
	}
	return db, nil
}

package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// DB is the job store. Production runs on Postgres; local runs and tests use
// an SQLite file. Queries are written with "?" placeholders and rebound for
// the active driver.
type DB struct {
	*sql.DB
	driver string
}

// Open connects using a URL: postgres:// or postgresql:// selects Postgres,
// sqlite:// or a bare file path selects SQLite. The jobs schema is created if
// missing.
func Open(ctx context.Context, databaseURL string) (*DB, error) {
	driver, dsn, err := parseURL(databaseURL)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}

	if driver == "sqlite" {
		// One writer keeps SQLite from returning SQLITE_BUSY under the worker pool.
		conn.SetMaxOpenConns(1)
		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout = 5000",
		} {
			if _, err := conn.ExecContext(ctx, pragma); err != nil {
				conn.Close()
				return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
			}
		}
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s db: %w", driver, err)
	}

	db := &DB{DB: conn, driver: driver}
	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func parseURL(databaseURL string) (driver, dsn string, err error) {
	switch {
	case databaseURL == "":
		return "", "", fmt.Errorf("database url is empty")
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return "postgres", databaseURL, nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return "sqlite", strings.TrimPrefix(databaseURL, "sqlite://"), nil
	case strings.Contains(databaseURL, "://"):
		return "", "", fmt.Errorf("unsupported database url scheme: %s", databaseURL)
	}
	return "sqlite", databaseURL, nil
}

func (db *DB) migrate(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS jobs (
			id                  TEXT PRIMARY KEY,
			status              TEXT NOT NULL,
			language            TEXT NOT NULL,
			external_problem_id TEXT,
			algo                TEXT,
			playback_url        TEXT,
			stream_uid          TEXT,
			message             TEXT,
			created_at          BIGINT NOT NULL,
			updated_at          BIGINT NOT NULL
		)
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create jobs table: %w", err)
	}
	return nil
}

// rebind rewrites "?" placeholders as $1, $2, ... for Postgres.
func (db *DB) rebind(query string) string {
	if db.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

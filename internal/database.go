package internal

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// dialect captures the SQL differences between the supported engines
type dialect struct {
	name       string
	driver     string
	identity   string // column definition for the message identity
	greatest   string // two-argument max function
	missingRel func(err error) bool
}

var sqliteDialect = dialect{
	name:     "sqlite",
	driver:   "sqlite",
	identity: "INTEGER PRIMARY KEY AUTOINCREMENT",
	greatest: "MAX",
	missingRel: func(err error) bool {
		return err != nil && strings.Contains(err.Error(), "no such table")
	},
}

var postgresDialect = dialect{
	name:     "postgres",
	driver:   "pgx",
	identity: "BIGSERIAL PRIMARY KEY",
	greatest: "GREATEST",
	missingRel: func(err error) bool {
		var pgErr *pgconn.PgError
		// 42P01 undefined_table
		return errors.As(err, &pgErr) && pgErr.Code == "42P01"
	},
}

// rebind rewrites ? placeholders into the dialect's positional form
func (d dialect) rebind(query string) string {
	if d.name != "postgres" {
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

func (d dialect) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS discussion_counter (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			last_number BIGINT NOT NULL
		)`,
		`INSERT INTO discussion_counter (id, last_number) VALUES (1, 0) ON CONFLICT (id) DO NOTHING`,
		`CREATE TABLE IF NOT EXISTS discussions (
			id TEXT PRIMARY KEY,
			number BIGINT NOT NULL UNIQUE,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id ` + d.identity + `,
			discussion_id TEXT NOT NULL REFERENCES discussions(id) ON DELETE CASCADE,
			sender TEXT NOT NULL,
			message TEXT NOT NULL,
			timestamp TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_discussion ON messages (discussion_id, id)`,
	}
}

// IsPostgresURL reports whether dsn addresses a PostgreSQL server
func IsPostgresURL(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// OpenDatabase opens a read-write SQLite database, creating parent directories as needed
func OpenDatabase(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open(sqliteDialect.driver, path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection for the lifetime of the process: single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return db, nil
}

// OpenPostgres opens a PostgreSQL database through the pgx stdlib driver
func OpenPostgres(url string) (*sql.DB, error) {
	db, err := sql.Open(postgresDialect.driver, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return db, nil
}

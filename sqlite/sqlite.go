// Package sqlite provides SQLite-based implementations of the metadata
// store services: docsets, pages, chunks and the keyword index.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB represents a SQLite database connection.
type DB struct {
	db   *sql.DB
	path string
}

// NewDB creates a new DB instance with the given path.
// Use ":memory:" for an in-memory database.
func NewDB(path string) *DB {
	return &DB{path: path}
}

// Open opens the database connection, creates the schema if needed, and
// applies additive migrations to older database files.
func (db *DB) Open() error {
	conn, err := sql.Open("sqlite3", db.path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit to one connection.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Wait up to 5 seconds on lock contention instead of failing.
	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// WAL gives concurrent readers during writes. Not supported for
	// in-memory databases.
	if db.path != ":memory:" {
		if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
			conn.Close()
			return fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		conn.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	db.db = conn

	if err := db.createSchema(); err != nil {
		conn.Close()
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if err := db.migrate(); err != nil {
		conn.Close()
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.db != nil {
		return db.db.Close()
	}
	return nil
}

// QueryRowContext executes a query that returns a single row.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.db.QueryRowContext(ctx, query, args...)
}

// QueryContext executes a query that returns rows.
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

// ExecContext executes a statement that doesn't return rows.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.db.ExecContext(ctx, query, args...)
}

// BeginTx starts a transaction.
func (db *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return db.db.BeginTx(ctx, nil)
}

// createSchema creates the database tables if they don't exist.
func (db *DB) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS docsets (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			base_url TEXT NOT NULL,
			seed_path TEXT NOT NULL DEFAULT '/',
			allowed_paths TEXT NOT NULL DEFAULT '[]',
			framework TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_docsets_base_url ON docsets(base_url);

		CREATE TABLE IF NOT EXISTS pages (
			id TEXT PRIMARY KEY,
			docset_id TEXT NOT NULL REFERENCES docsets(id) ON DELETE CASCADE,
			url TEXT NOT NULL,
			path TEXT NOT NULL DEFAULT '',
			section TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			content_hash TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			error_message TEXT NOT NULL DEFAULT '',
			etag TEXT NOT NULL DEFAULT '',
			last_modified TEXT NOT NULL DEFAULT '',
			retry_count INTEGER NOT NULL DEFAULT 0,
			depth INTEGER NOT NULL DEFAULT 0,
			fetched_at TEXT,
			indexed_at TEXT,
			last_attempt_at TEXT,
			created_at TEXT NOT NULL,
			UNIQUE(docset_id, url)
		);

		CREATE INDEX IF NOT EXISTS idx_pages_docset_status ON pages(docset_id, status);

		CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			page_id TEXT NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
			docset_id TEXT NOT NULL REFERENCES docsets(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			heading TEXT NOT NULL DEFAULT '',
			start_offset INTEGER NOT NULL DEFAULT 0,
			end_offset INTEGER NOT NULL DEFAULT 0,
			chunk_index INTEGER NOT NULL DEFAULT 0,
			embedding_id TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_chunks_page_id ON chunks(page_id);
		CREATE INDEX IF NOT EXISTS idx_chunks_docset_id ON chunks(docset_id);

		CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
			url, title, heading, content,
			chunk_id UNINDEXED, page_id UNINDEXED, docset_id UNINDEXED
		);
	`

	_, err := db.db.Exec(schema)
	return err
}

// migrate applies additive migrations for databases created by earlier
// schema versions: missing page columns are added and the section field
// is backfilled deterministically from the URL path.
func (db *DB) migrate() error {
	cols, err := db.tableColumns("pages")
	if err != nil {
		return err
	}

	type addition struct {
		name string
		ddl  string
	}
	additions := []addition{
		{"retry_count", "ALTER TABLE pages ADD COLUMN retry_count INTEGER NOT NULL DEFAULT 0"},
		{"last_attempt_at", "ALTER TABLE pages ADD COLUMN last_attempt_at TEXT"},
		{"depth", "ALTER TABLE pages ADD COLUMN depth INTEGER NOT NULL DEFAULT 0"},
		{"section", "ALTER TABLE pages ADD COLUMN section TEXT NOT NULL DEFAULT ''"},
	}

	backfillSection := false
	for _, add := range additions {
		if cols[add.name] {
			continue
		}
		if _, err := db.db.Exec(add.ddl); err != nil {
			return fmt.Errorf("adding pages.%s: %w", add.name, err)
		}
		if add.name == "section" {
			backfillSection = true
		}
	}

	if backfillSection {
		if err := db.backfillSections(); err != nil {
			return err
		}
	}

	return nil
}

// backfillSections derives pages.section from the URL path: the path
// with its final segment removed, "/" when nothing remains.
func (db *DB) backfillSections() error {
	rows, err := db.db.Query("SELECT id, path FROM pages")
	if err != nil {
		return err
	}
	defer rows.Close()

	type rec struct{ id, section string }
	var recs []rec
	for rows.Next() {
		var id, path string
		if err := rows.Scan(&id, &path); err != nil {
			return err
		}
		recs = append(recs, rec{id: id, section: SectionFromPath(path)})
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, r := range recs {
		if _, err := db.db.Exec("UPDATE pages SET section = ? WHERE id = ?", r.section, r.id); err != nil {
			return err
		}
	}
	return nil
}

// SectionFromPath derives the section label for a URL path: the path
// with its final segment removed, "/" when nothing remains.
func SectionFromPath(p string) string {
	p = strings.TrimSuffix(p, "/")
	idx := strings.LastIndex(p, "/")
	if idx <= 0 {
		return "/"
	}
	return p[:idx]
}

// tableColumns returns the set of column names of a table.
func (db *DB) tableColumns(table string) (map[string]bool, error) {
	rows, err := db.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite persists namespaces in a single memory_items table.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path. ":memory:" gives a
// private in-process database.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps ":memory:" databases alive and serializes writers
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS memory_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE(namespace, key)
	);
	CREATE INDEX IF NOT EXISTS idx_memory_items_namespace ON memory_items(namespace);`)
	return err
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Put(ctx context.Context, ns Namespace, key string, value json.RawMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_items (namespace, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		ns.String(), key, string(value), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", ns, key, err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, ns Namespace, key string) (json.RawMessage, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM memory_items WHERE namespace = ? AND key = ?`, ns.String(), key).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s/%s: %w", ns, key, err)
	}
	return json.RawMessage(v), true, nil
}

func (s *SQLite) Search(ctx context.Context, ns Namespace) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM memory_items WHERE namespace = ? ORDER BY id`, ns.String())
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", ns, err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out = append(out, Item{Key: k, Value: json.RawMessage(v)})
	}
	return out, rows.Err()
}

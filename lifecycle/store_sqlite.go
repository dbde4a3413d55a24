package lifecycle

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteStoreSchema = `
CREATE TABLE IF NOT EXISTS installations (
	backend_id TEXT PRIMARY KEY,
	payload BLOB NOT NULL,
	updated_at TEXT NOT NULL
);`

// SQLiteStoreConfig configures the SQLite-backed snapshot store.
type SQLiteStoreConfig struct {
	DSN string
}

// SQLiteStore persists installation snapshots in SQLite. It is an optional
// alternative to FileStore for deployments that already carry a database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite-backed snapshot store.
func NewSQLiteStore(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("lifecycle: sqlite store dsn is required")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: sqlite store open: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("lifecycle: sqlite store set WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteStoreSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("lifecycle: sqlite store create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load reads all installation snapshots.
func (s *SQLiteStore) Load(ctx context.Context) ([]Installation, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("lifecycle: sqlite store is nil")
	}

	rows, err := s.db.QueryContext(ctx, "SELECT payload FROM installations ORDER BY backend_id")
	if err != nil {
		return nil, fmt.Errorf("lifecycle: sqlite store query: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	out := make([]Installation, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("lifecycle: sqlite store scan: %w", err)
		}
		var inst Installation
		if err := json.Unmarshal(payload, &inst); err != nil {
			return nil, fmt.Errorf("lifecycle: sqlite store decode: %w", err)
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lifecycle: sqlite store rows: %w", err)
	}
	return out, nil
}

// Save replaces all installation snapshots in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, installs []Installation) error {
	if s == nil || s.db == nil {
		return errors.New("lifecycle: sqlite store is nil")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("lifecycle: sqlite store begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM installations"); err != nil {
		return fmt.Errorf("lifecycle: sqlite store clear: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, inst := range installs {
		payload, err := json.Marshal(inst)
		if err != nil {
			return fmt.Errorf("lifecycle: sqlite store encode %q: %w", inst.BackendID, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO installations (backend_id, payload, updated_at) VALUES (?, ?, ?)",
			inst.BackendID, payload, now,
		); err != nil {
			return fmt.Errorf("lifecycle: sqlite store insert %q: %w", inst.BackendID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("lifecycle: sqlite store commit: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)

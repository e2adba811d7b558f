package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist. File databases must live on a local
// filesystem.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
		if err := checkPlacement(path, detectFilesystemType); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == MemoryPath {
		// Each connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// busyTimeoutMillis is how long a writer waits on a locked database before
// failing with SQLITE_BUSY.
const busyTimeoutMillis = 5000

// sqliteDSN carries the connection pragmas in the DSN so the driver applies
// them to every pooled connection, not only the first one.
func sqliteDSN(path string) string {
	pragmas := url.Values{}
	pragmas.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMillis))
	if path != MemoryPath {
		pragmas.Add("_pragma", "journal_mode(WAL)")
		pragmas.Add("_pragma", "synchronous(NORMAL)")
	}
	return path + "?" + pragmas.Encode()
}

// BootstrapSQLite creates tables/indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS reply_cache (
  app        TEXT NOT NULL,
  key        TEXT NOT NULL,
  body       TEXT NOT NULL,
  encrypt    INTEGER NOT NULL,
  created_at TEXT NOT NULL,
  expires_at INTEGER NOT NULL,
  PRIMARY KEY (app, key)
);`,
		`CREATE TABLE IF NOT EXISTS message_log (
  id         TEXT PRIMARY KEY,
  app        TEXT NOT NULL,
  dedup_key  TEXT NOT NULL,
  kind       TEXT NOT NULL,
  event      TEXT,
  from_user  TEXT,
  source     TEXT,
  status     TEXT NOT NULL,
  body_hash  TEXT,
  reply      TEXT,
  error      TEXT,
  created_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS reply_cache_expires_at_idx ON reply_cache(expires_at);`,
		`CREATE INDEX IF NOT EXISTS message_log_app_created_at_idx ON message_log(app, created_at);`,
		`CREATE INDEX IF NOT EXISTS message_log_created_at_idx ON message_log(created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}

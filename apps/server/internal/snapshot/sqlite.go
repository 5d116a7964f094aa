package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"npcchat/dialogue"
)

const defaultLocalDBName = "dialogue.db"

// SQLiteLoader reads the dataset from a local SQLite database.
type SQLiteLoader struct {
	db *sql.DB
}

func NewSQLiteLoaderFromEnv() (*SQLiteLoader, error) {
	dbPath, err := localDatabasePathFromEnv()
	if err != nil {
		return nil, err
	}
	return NewSQLiteLoader(dbPath)
}

func NewSQLiteLoader(dbPath string) (*SQLiteLoader, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("empty sqlite database path")
	}
	if dbPath != ":memory:" {
		parent := filepath.Dir(dbPath)
		if parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureSQLiteSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteLoader{db: db}, nil
}

func (l *SQLiteLoader) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

func (l *SQLiteLoader) Fetch(ctx context.Context) (*dialogue.Snapshot, error) {
	records, err := scanEntries(ctx, l.db, sqliteSelectEntriesSQL)
	if err != nil {
		return nil, fmt.Errorf("read sqlite dataset: %w", err)
	}
	version, err := readVersion(ctx, l.db)
	if err != nil {
		return nil, fmt.Errorf("read sqlite dataset version: %w", err)
	}
	return &dialogue.Snapshot{Version: version, Records: records}, nil
}

// Import replaces the stored dataset with the given snapshot in one transaction.
func (l *SQLiteLoader) Import(ctx context.Context, snap *dialogue.Snapshot) (int, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM dialogue_entries`); err != nil {
		return 0, err
	}
	// Records are stored as authored, duplicates and malformed ones included.
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO dialogue_entries (
    id, npc_slug, pool, context_hash, conditions, text, mood, priority, record
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	n := 0
	for _, rec := range snap.Records {
		row, err := toRow(rec)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx,
			row.ID, row.NPCSlug, row.Pool, row.ContextHash, row.Conditions, row.Text, row.Mood, row.Priority, row.Record,
		); err != nil {
			return 0, err
		}
		n++
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO dialogue_meta (key, value) VALUES ('version', ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`, snap.Version); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

func ensureSQLiteSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS dialogue_entries (
    seq INTEGER PRIMARY KEY,
    id TEXT NOT NULL,
    npc_slug TEXT NOT NULL,
    pool TEXT NOT NULL,
    context_hash TEXT,
    conditions TEXT,
    text TEXT NOT NULL,
    mood TEXT NOT NULL,
    priority INTEGER,
    record TEXT
)`); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `
CREATE INDEX IF NOT EXISTS dialogue_entries_bucket
ON dialogue_entries (npc_slug, pool, id)`); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS dialogue_meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
)`)
	return err
}

func localDatabasePathFromEnv() (string, error) {
	candidates := []string{
		strings.TrimSpace(os.Getenv("DIALOGUE_SQLITE_PATH")),
		strings.TrimSpace(os.Getenv("LOCAL_DATABASE_PATH")),
	}
	for _, candidate := range candidates {
		if candidate != "" {
			return filepath.Clean(candidate), nil
		}
	}

	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userConfigDir, "npcchat", defaultLocalDBName), nil
}

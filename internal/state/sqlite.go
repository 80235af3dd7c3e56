// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteBackend stores one row per document key. Save rewrites the table in
// a single transaction.
type SQLiteBackend struct {
	db   *sql.DB
	path string
}

// NewSQLiteBackend opens or creates the database at path and ensures the
// schema exists.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}

	b := &SQLiteBackend{db: db, path: path}
	if err := b.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return b, nil
}

func (b *SQLiteBackend) createSchema() error {
	_, err := b.db.Exec(`CREATE TABLE IF NOT EXISTS sync_state (
		document_key TEXT PRIMARY KEY,
		remote_index_id TEXT NOT NULL,
		content_fingerprint TEXT NOT NULL,
		last_synced_at TEXT,
		source_filename TEXT
	)`)
	return err
}

// Load returns every row. A row whose timestamp does not parse makes the
// whole snapshot corrupt.
func (b *SQLiteBackend) Load(ctx context.Context) (Snapshot, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT document_key, remote_index_id, content_fingerprint, last_synced_at, source_filename FROM sync_state`)
	if err != nil {
		return nil, fmt.Errorf("querying sync state: %w", err)
	}
	defer rows.Close()

	snap := Snapshot{}
	for rows.Next() {
		var key, remoteID, fingerprint string
		var syncedAt, filename sql.NullString
		if err := rows.Scan(&key, &remoteID, &fingerprint, &syncedAt, &filename); err != nil {
			return nil, fmt.Errorf("scanning sync state: %w", err)
		}
		e := entry(key, remoteID, fingerprint, filename.String)
		if syncedAt.Valid && syncedAt.String != "" {
			t, err := time.Parse(time.RFC3339Nano, syncedAt.String)
			if err != nil {
				return nil, &CorruptionError{Source: b.path, Err: fmt.Errorf("row %s: %w", key, err)}
			}
			e.LastSyncedAt = t
		}
		snap[key] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading sync state: %w", err)
	}
	return snap, nil
}

func (b *SQLiteBackend) Save(ctx context.Context, s Snapshot) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sync_state`); err != nil {
		return fmt.Errorf("clearing sync state: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO sync_state
		(document_key, remote_index_id, content_fingerprint, last_synced_at, source_filename)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, key := range s.Keys() {
		e := s[key]
		if _, err := stmt.ExecContext(ctx, key, e.RemoteIndexID, e.ContentFingerprint,
			e.LastSyncedAt.UTC().Format(time.RFC3339Nano), e.SourceFilename); err != nil {
			return fmt.Errorf("inserting %s: %w", key, err)
		}
	}
	return tx.Commit()
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

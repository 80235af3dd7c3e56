// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/pdiddy/kbsync/pkg/types"
)

const (
	postgresTableName        = "kbsync_state"
	postgresOperationTimeout = 10 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresBackend stores one row per document key in a shared database.
// The connection and table are created lazily on first use.
type PostgresBackend struct {
	dsn       string
	tableName string
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresBackend(dsn string) (*PostgresBackend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("postgres DSN is empty")
	}
	return &PostgresBackend{
		dsn:       dsn,
		tableName: postgresTableName,
		openDB:    sql.Open,
	}, nil
}

func (b *PostgresBackend) ensureReady(ctx context.Context) error {
	b.initOnce.Do(func() {
		db, err := b.openDB("postgres", b.dsn)
		if err != nil {
			b.initErr = fmt.Errorf("opening postgres: %w", err)
			return
		}
		ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				document_key TEXT PRIMARY KEY,
				remote_index_id TEXT NOT NULL,
				content_fingerprint TEXT NOT NULL,
				last_synced_at TIMESTAMPTZ,
				source_filename TEXT NOT NULL DEFAULT ''
			)`, quoteIdentifier(b.tableName))
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			b.initErr = fmt.Errorf("creating state table: %w", err)
			return
		}
		b.db = db
	})
	return b.initErr
}

func (b *PostgresBackend) Load(ctx context.Context) (Snapshot, error) {
	if err := b.ensureReady(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	rows, err := b.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT document_key, remote_index_id, content_fingerprint, last_synced_at, source_filename FROM %s`,
		quoteIdentifier(b.tableName)))
	if err != nil {
		return nil, fmt.Errorf("querying sync state: %w", err)
	}
	defer rows.Close()

	snap := Snapshot{}
	for rows.Next() {
		var key, remoteID, fingerprint, filename string
		var syncedAt sql.NullTime
		if err := rows.Scan(&key, &remoteID, &fingerprint, &syncedAt, &filename); err != nil {
			return nil, fmt.Errorf("scanning sync state: %w", err)
		}
		e := entry(key, remoteID, fingerprint, filename)
		if syncedAt.Valid {
			e.LastSyncedAt = syncedAt.Time.UTC()
		}
		snap[key] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading sync state: %w", err)
	}
	return snap, nil
}

// Save replaces the table contents in one transaction.
func (b *PostgresBackend) Save(ctx context.Context, s Snapshot) error {
	if err := b.ensureReady(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	table := quoteIdentifier(b.tableName)
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, table)); err != nil {
		return fmt.Errorf("clearing sync state: %w", err)
	}
	insert := fmt.Sprintf(`
		INSERT INTO %s (document_key, remote_index_id, content_fingerprint, last_synced_at, source_filename)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (document_key) DO UPDATE SET
			remote_index_id = EXCLUDED.remote_index_id,
			content_fingerprint = EXCLUDED.content_fingerprint,
			last_synced_at = EXCLUDED.last_synced_at,
			source_filename = EXCLUDED.source_filename`, table)
	for _, key := range s.Keys() {
		e := s[key]
		if _, err := tx.ExecContext(ctx, insert, key, e.RemoteIndexID, e.ContentFingerprint,
			e.LastSyncedAt.UTC(), e.SourceFilename); err != nil {
			return fmt.Errorf("inserting %s: %w", key, err)
		}
	}
	return tx.Commit()
}

func (b *PostgresBackend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

func quoteIdentifier(identifier string) string {
	return `"` + strings.ReplaceAll(strings.TrimSpace(identifier), `"`, `""`) + `"`
}

func entry(key, remoteID, fingerprint, filename string) types.SyncEntry {
	return types.SyncEntry{
		DocumentKey:        key,
		RemoteIndexID:      remoteID,
		ContentFingerprint: fingerprint,
		SourceFilename:     filename,
	}
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package state persists the sync state: for each document key, the remote
// index id and content fingerprint that are currently live in the index.
//
// A snapshot is always loaded and saved whole. Backends are chosen by DSN:
// a bare path or file:// URL selects a JSON file, sqlite:// a SQLite
// database, postgres:// a Postgres table, and memory:// an in-process map.
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"slices"
	"strings"

	"github.com/pdiddy/kbsync/pkg/types"
)

// Snapshot maps document key to its sync entry.
type Snapshot map[string]types.SyncEntry

// Clone returns a copy of s. A nil snapshot clones to an empty one.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	maps.Copy(out, s)
	return out
}

// Keys returns the document keys in sorted order.
func (s Snapshot) Keys() []string {
	return slices.Sorted(maps.Keys(s))
}

// Backend loads and saves whole snapshots. Save replaces everything
// previously stored. Implementations need not support concurrent writers.
type Backend interface {
	// Load returns the stored snapshot. Nothing stored yet yields an empty
	// snapshot and no error. Unreadable stored data yields a *CorruptionError.
	Load(ctx context.Context) (Snapshot, error)

	Save(ctx context.Context, s Snapshot) error

	Close() error
}

// CorruptionError reports stored state that exists but cannot be decoded.
type CorruptionError struct {
	Source string
	Err    error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("sync state %s is corrupt: %v", e.Source, e.Err)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

// Load reads the snapshot from b. Corrupt state is logged and replaced by an
// empty snapshot, so every document is treated as new. Other errors, such as
// an unreachable database, are returned.
func Load(ctx context.Context, b Backend, log *slog.Logger) (Snapshot, error) {
	snap, err := b.Load(ctx)
	var corrupt *CorruptionError
	if errors.As(err, &corrupt) {
		if log != nil {
			log.Warn("ignoring corrupt sync state", "source", corrupt.Source, "error", corrupt.Err)
		}
		return Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading sync state: %w", err)
	}
	if snap == nil {
		snap = Snapshot{}
	}
	for k, e := range snap {
		if e.DocumentKey != k {
			e.DocumentKey = k
			snap[k] = e
		}
	}
	return snap, nil
}

// Open returns the backend selected by dsn. An empty dsn uses
// types.DefaultStateDSN.
func Open(dsn string) (Backend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = types.DefaultStateDSN
	}
	if !strings.Contains(dsn, "://") {
		return NewJSONFileBackend(dsn), nil
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing state DSN: %w", err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "file":
		path, err := dsnPath(parsed)
		if err != nil {
			return nil, err
		}
		return NewJSONFileBackend(path), nil
	case "sqlite", "sqlite3":
		path, err := dsnPath(parsed)
		if err != nil {
			return nil, err
		}
		return NewSQLiteBackend(path)
	case "postgres", "postgresql":
		return NewPostgresBackend(dsn)
	case "memory", "mem":
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported state backend scheme %q", parsed.Scheme)
	}
}

// dsnPath extracts a filesystem path from scheme://path. Relative paths
// parse with their first segment as the host, so it is joined back on.
func dsnPath(u *url.URL) (string, error) {
	path := u.Host + u.Path
	if path == "" {
		path = u.Opaque
	}
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("state DSN %q has no path", u.String())
	}
	return path, nil
}

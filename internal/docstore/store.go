// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package docstore persists materialized documents keyed by slug. Two
// backends are provided: a directory of markdown files with YAML sidecars,
// readable by any downstream consumer, and a bbolt database holding body and
// metadata as one record per key.
package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/pdiddy/kbsync/pkg/types"
)

// ErrNotFound is returned by Get when no document exists for a key.
var ErrNotFound = errors.New("document not found")

// Store is the persisted document storage shared by the materializer and
// the delta engine.
type Store interface {
	// Put replaces the document stored under doc.Key.
	Put(ctx context.Context, doc types.Document) error

	// Get returns the document stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (types.Document, error)

	// List returns every stored document sorted by key. A document whose
	// content cannot be read is still returned, with Err set.
	List(ctx context.Context) ([]types.Document, error)

	Close() error
}

// Open returns the store selected by cfg.Backend.
func Open(cfg types.DocumentsConfig) (Store, error) {
	switch cfg.Backend {
	case types.DocumentsFile, "":
		dir := cfg.Dir
		if dir == "" {
			dir = types.DefaultDocumentsDir
		}
		return NewFileStore(dir)
	case types.DocumentsBolt:
		path := cfg.BoltPath
		if path == "" {
			path = types.DefaultBoltPath
		}
		return NewBoltStore(path)
	default:
		return nil, fmt.Errorf("unknown document backend %q (want file or bolt)", cfg.Backend)
	}
}

// Filename is the upload name of the document stored under key.
func Filename(key string) string {
	return key + ".md"
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package docstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/kbsync/internal/fsutil"
	"github.com/pdiddy/kbsync/pkg/types"
)

const (
	contentExt = ".md"
	metaExt    = ".meta.yaml"
)

// FileStore keeps each document as <key>.md with a <key>.meta.yaml sidecar.
// Both files are replaced by rename, so a reader never sees a partial file.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating documents directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory the store writes to.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) contentPath(key string) string {
	return filepath.Join(s.dir, key+contentExt)
}

func (s *FileStore) metaPath(key string) string {
	return filepath.Join(s.dir, key+metaExt)
}

// Put writes the content first and the sidecar second.
func (s *FileStore) Put(_ context.Context, doc types.Document) error {
	if doc.Key == "" {
		return errors.New("document key is empty")
	}
	if err := fsutil.WriteFileAtomic(s.contentPath(doc.Key), doc.Content, 0o644); err != nil {
		return fmt.Errorf("writing document %s: %w", doc.Key, err)
	}

	meta, err := yaml.Marshal(doc.Meta)
	if err != nil {
		return fmt.Errorf("marshaling metadata for %s: %w", doc.Key, err)
	}
	if err := fsutil.WriteFileAtomic(s.metaPath(doc.Key), meta, 0o644); err != nil {
		return fmt.Errorf("writing metadata for %s: %w", doc.Key, err)
	}
	return nil
}

// Get reads one document and its sidecar.
func (s *FileStore) Get(_ context.Context, key string) (types.Document, error) {
	content, err := os.ReadFile(s.contentPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return types.Document{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return types.Document{}, fmt.Errorf("reading document %s: %w", key, err)
	}
	return types.Document{
		Key:      key,
		Filename: Filename(key),
		Content:  content,
		Meta:     s.readMeta(key),
	}, nil
}

// List scans the directory for *.md files. A missing or unreadable sidecar
// leaves Meta with only the slug filled in.
func (s *FileStore) List(ctx context.Context) ([]types.Document, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading documents directory %s: %w", s.dir, err)
	}

	var docs []types.Document
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, contentExt) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return docs, err
		}

		key := strings.TrimSuffix(name, contentExt)
		doc := types.Document{Key: key, Filename: name, Meta: s.readMeta(key)}
		content, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			doc.Err = fmt.Errorf("reading %s: %w", name, err)
		} else {
			doc.Content = content
		}
		docs = append(docs, doc)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Key < docs[j].Key })
	return docs, nil
}

func (s *FileStore) readMeta(key string) types.DocumentMeta {
	meta := types.DocumentMeta{Slug: key}
	data, err := os.ReadFile(s.metaPath(key))
	if err != nil {
		return meta
	}
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return types.DocumentMeta{Slug: key}
	}
	return meta
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

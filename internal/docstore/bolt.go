// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/pdiddy/kbsync/pkg/types"
)

var bucketDocuments = []byte("documents")

// boltRecord is the value stored per key: body and metadata together, so
// one transaction replaces both.
type boltRecord struct {
	Filename string             `json:"filename"`
	Content  []byte             `json:"content"`
	Meta     types.DocumentMeta `json:"meta"`
}

// BoltStore keeps documents in a single bbolt file.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens or creates the database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening document database %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketDocuments)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating documents bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Put(_ context.Context, doc types.Document) error {
	if doc.Key == "" {
		return errors.New("document key is empty")
	}
	filename := doc.Filename
	if filename == "" {
		filename = Filename(doc.Key)
	}
	data, err := json.Marshal(boltRecord{Filename: filename, Content: doc.Content, Meta: doc.Meta})
	if err != nil {
		return fmt.Errorf("marshaling document %s: %w", doc.Key, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocuments).Put([]byte(doc.Key), data)
	})
}

func (s *BoltStore) Get(_ context.Context, key string) (types.Document, error) {
	var doc types.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocuments).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		doc = decodeRecord(key, data)
		return nil
	})
	return doc, err
}

// List walks the bucket in key order, which bbolt guarantees.
func (s *BoltStore) List(ctx context.Context) ([]types.Document, error) {
	var docs []types.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocuments).ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			docs = append(docs, decodeRecord(string(k), v))
			return nil
		})
	})
	return docs, err
}

// decodeRecord copies out of the bbolt page; a corrupt value becomes a
// document with Err set.
func decodeRecord(key string, data []byte) types.Document {
	var rec boltRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return types.Document{
			Key:      key,
			Filename: Filename(key),
			Meta:     types.DocumentMeta{Slug: key},
			Err:      fmt.Errorf("decoding document %s: %w", key, err),
		}
	}
	if rec.Filename == "" {
		rec.Filename = Filename(key)
	}
	return types.Document{Key: key, Filename: rec.Filename, Content: rec.Content, Meta: rec.Meta}
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

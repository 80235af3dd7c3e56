// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/pdiddy/kbsync/internal/fsutil"
)

const stateSchemaURL = "https://kbsync.local/schemas/state.json"

// stateSchema describes the JSON state file: an object keyed by document
// key. It is checked on load so a hand-edited or truncated file is caught
// before any entry is trusted.
const stateSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": {
    "type": "object",
    "required": ["remote_index_id", "content_fingerprint"],
    "properties": {
      "document_key":        {"type": "string"},
      "remote_index_id":     {"type": "string", "minLength": 1},
      "content_fingerprint": {"type": "string", "minLength": 1},
      "last_synced_at":      {"type": "string"},
      "source_filename":     {"type": "string"}
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(stateSchema))
		if err != nil {
			schemaErr = err
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(stateSchemaURL, doc); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = c.Compile(stateSchemaURL)
	})
	return compiledSchema, schemaErr
}

// JSONFileBackend stores the snapshot as one indented JSON file. Saves go
// through a temp file and rename.
type JSONFileBackend struct {
	Path string
}

func NewJSONFileBackend(path string) *JSONFileBackend {
	return &JSONFileBackend{Path: strings.TrimSpace(path)}
}

// Load treats a missing file as empty state. An empty, malformed, or
// schema-invalid file is a *CorruptionError.
func (b *JSONFileBackend) Load(_ context.Context) (Snapshot, error) {
	data, err := os.ReadFile(b.Path)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state file %s: %w", b.Path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &CorruptionError{Source: b.Path, Err: errors.New("file is empty")}
	}

	sch, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("compiling state schema: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, &CorruptionError{Source: b.Path, Err: err}
	}
	if err := sch.Validate(inst); err != nil {
		return nil, &CorruptionError{Source: b.Path, Err: err}
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, &CorruptionError{Source: b.Path, Err: err}
	}
	return snap, nil
}

func (b *JSONFileBackend) Save(_ context.Context, s Snapshot) error {
	if s == nil {
		s = Snapshot{}
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling sync state: %w", err)
	}
	data = append(data, '\n')
	if err := fsutil.WriteFileAtomic(b.Path, data, 0o644); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	return nil
}

func (b *JSONFileBackend) Close() error { return nil }

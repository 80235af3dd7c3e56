// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package index

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/pdiddy/kbsync/pkg/types"
)

// DryRun logs what would be sent to the index and returns synthetic ids.
type DryRun struct {
	log *slog.Logger
	n   atomic.Int64
}

func NewDryRun(log *slog.Logger) *DryRun {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &DryRun{log: log}
}

func (d *DryRun) Upload(_ context.Context, doc types.Document) (string, error) {
	d.n.Add(1)
	id := "dryrun-" + doc.Key
	d.log.Info("dry run: would upload", "key", doc.Key, "bytes", len(doc.Content))
	return id, nil
}

func (d *DryRun) Delete(_ context.Context, remoteID string) error {
	d.log.Info("dry run: would delete", "file_id", remoteID)
	return nil
}

func (d *DryRun) AttachBatch(_ context.Context, remoteIDs []string) (BatchResult, error) {
	d.log.Info("dry run: would attach batch", "files", len(remoteIDs))
	return BatchResult{Status: BatchCompleted, Completed: len(remoteIDs), Total: len(remoteIDs)}, nil
}

// Uploads returns the number of Upload calls seen.
func (d *DryRun) Uploads() int {
	return int(d.n.Load())
}

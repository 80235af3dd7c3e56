// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package index adapts the external vector-store API used as the search index.
package index

import (
	"context"
	"fmt"

	"github.com/pdiddy/kbsync/pkg/types"
)

// Client is what the delta engine needs from the index. Each operation can
// fail independently.
type Client interface {
	// Upload stores one document and returns its remote index id.
	// Failures are *UploadError.
	Upload(ctx context.Context, doc types.Document) (string, error)

	// Delete removes a previously uploaded document. Failures are
	// *DeleteError; callers treat them as best-effort.
	Delete(ctx context.Context, remoteID string) error

	// AttachBatch makes freshly uploaded documents searchable in one call.
	// Partial failure is reported in the result, not as an error.
	AttachBatch(ctx context.Context, remoteIDs []string) (BatchResult, error)
}

// UploadError reports a failed document upload.
type UploadError struct {
	Key string
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("uploading %s: %v", e.Key, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// DeleteError reports a failed delete of a remote entry.
type DeleteError struct {
	RemoteID string
	Err      error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("deleting %s: %v", e.RemoteID, e.Err)
}

func (e *DeleteError) Unwrap() error { return e.Err }

// BatchResult is the final state of a batch attach.
type BatchResult struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Completed  int    `json:"completed"`
	Failed     int    `json:"failed"`
	InProgress int    `json:"in_progress"`
	Cancelled  int    `json:"cancelled"`
	Total      int    `json:"total"`
}

// Batch status values reported by the index service.
const (
	BatchInProgress = "in_progress"
	BatchCompleted  = "completed"
	BatchFailed     = "failed"
	BatchCancelled  = "cancelled"
)

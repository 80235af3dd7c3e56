// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package delta

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pdiddy/kbsync/internal/index"
	"github.com/pdiddy/kbsync/internal/state"
	"github.com/pdiddy/kbsync/pkg/types"
)

// Options tune a reconciliation run.
type Options struct {
	// Workers bounds concurrent per-document index calls. Values below 1
	// mean one, which processes documents strictly in key order.
	Workers int

	// Prune deletes index entries and state for keys with no document.
	Prune bool

	// DryRun skips the final state save.
	DryRun bool

	// Now stamps last_synced_at. Defaults to time.Now.
	Now func() time.Time

	// Fingerprint defaults to ContentFingerprint.
	Fingerprint FingerprintFunc
}

// Summary holds counts from one run. Added, Updated, and Skipped partition
// the documents; Failed counts the added or updated documents whose upload
// failed and whose state was left as it was.
type Summary struct {
	Added   int
	Updated int
	Skipped int
	Failed  int

	// DeleteFailures counts best-effort deletes that did not succeed.
	DeleteFailures int

	// Pruned counts stale entries removed when pruning is enabled.
	Pruned int

	// Batch is the attach result; nil when nothing was uploaded or the
	// attach call itself failed, in which case BatchErr is set.
	Batch    *index.BatchResult
	BatchErr error

	FailedKeys []string
}

// Total returns the number of documents processed.
func (s Summary) Total() int {
	return s.Added + s.Updated + s.Skipped
}

// Uploaded returns the number of successful uploads.
func (s Summary) Uploaded() int {
	return s.Added + s.Updated - s.Failed
}

// Engine runs reconciliation passes. Only one pass may run at a time
// against a given state backend.
type Engine struct {
	state state.Backend
	index index.Client
	log   *slog.Logger
	opts  Options
}

func New(st state.Backend, ix index.Client, log *slog.Logger, opts Options) *Engine {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Fingerprint == nil {
		opts.Fingerprint = ContentFingerprint
	}
	return &Engine{state: st, index: ix, log: log, opts: opts}
}

// outcome is what happened to one non-skipped document.
type outcome struct {
	remoteID     string
	err          error
	deleteFailed bool
}

// Run reconciles docs against the stored state, drives the index, and saves
// the updated state once. Per-document failures are counted, not returned.
// The returned error is reserved for state that cannot be loaded or saved;
// the summary is printed to w in either case.
func (e *Engine) Run(ctx context.Context, docs []types.Document, w io.Writer) (Summary, error) {
	snap, err := state.Load(ctx, e.state, e.log)
	if err != nil {
		return Summary{}, err
	}

	for _, d := range docs {
		if d.Err != nil {
			e.log.Warn("document unreadable, reconciling with empty content", "key", d.Key, "error", d.Err)
		}
	}

	actions := Classify(docs, snap, e.opts.Fingerprint)
	outcomes := e.apply(ctx, actions)

	var summary Summary
	next := snap.Clone()
	var uploaded []string
	now := e.opts.Now().UTC()

	for i, a := range actions {
		switch a.Kind {
		case Skipped:
			summary.Skipped++
			fmt.Fprintf(w, "skipped: %s\n", a.Doc.Key)
			continue
		case Added:
			summary.Added++
		case Updated:
			summary.Updated++
		}

		o := outcomes[i]
		if o.deleteFailed {
			summary.DeleteFailures++
		}
		if o.err != nil {
			summary.Failed++
			summary.FailedKeys = append(summary.FailedKeys, a.Doc.Key)
			fmt.Fprintf(w, "failed:  %s (%v)\n", a.Doc.Key, o.err)
			continue
		}

		uploaded = append(uploaded, o.remoteID)
		next[a.Doc.Key] = types.SyncEntry{
			DocumentKey:        a.Doc.Key,
			RemoteIndexID:      o.remoteID,
			ContentFingerprint: a.Fingerprint,
			LastSyncedAt:       now,
			SourceFilename:     a.Doc.Filename,
		}
		fmt.Fprintf(w, "%-8s %s\n", a.Kind.String()+":", a.Doc.Key)
	}

	if len(uploaded) > 0 {
		res, err := e.index.AttachBatch(ctx, uploaded)
		if err != nil {
			e.log.Error("batch attach failed; state will still record uploads", "files", len(uploaded), "error", err)
			summary.BatchErr = err
		} else {
			e.log.Info("batch attached", "status", res.Status, "completed", res.Completed, "failed", res.Failed)
			summary.Batch = &res
		}
	}

	if e.opts.Prune {
		summary.Pruned = e.prune(ctx, docs, next, w)
	}

	var saveErr error
	if e.opts.DryRun {
		e.log.Info("dry run: sync state not saved", "entries", len(next))
	} else if err := e.state.Save(ctx, next); err != nil {
		saveErr = fmt.Errorf("saving sync state: %w", err)
	}

	printSummary(w, summary)
	return summary, saveErr
}

// apply issues the index calls for every non-skipped action, at most
// Workers at a time. Within one document the delete precedes the upload.
func (e *Engine) apply(ctx context.Context, actions []Action) []outcome {
	outcomes := make([]outcome, len(actions))
	sem := make(chan struct{}, e.opts.Workers)
	var wg sync.WaitGroup

	for i, a := range actions {
		if a.Kind == Skipped {
			continue
		}
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = e.sync(ctx, a)
		}()
	}
	wg.Wait()
	return outcomes
}

func (e *Engine) sync(ctx context.Context, a Action) outcome {
	var o outcome
	if a.Kind == Updated && a.Prior.RemoteIndexID != "" {
		if err := e.index.Delete(ctx, a.Prior.RemoteIndexID); err != nil {
			e.log.Warn("delete failed, leaving orphaned index entry", "key", a.Doc.Key, "file_id", a.Prior.RemoteIndexID, "error", err)
			o.deleteFailed = true
		}
	}

	id, err := e.index.Upload(ctx, a.Doc)
	if err != nil {
		e.log.Error("upload failed", "key", a.Doc.Key, "kind", a.Kind.String(), "error", err)
		o.err = err
		return o
	}
	e.log.Debug("uploaded", "key", a.Doc.Key, "kind", a.Kind.String(), "file_id", id)
	o.remoteID = id
	return o
}

// prune removes stale entries from next. An entry whose index delete fails
// is kept so the next pruning run retries it.
func (e *Engine) prune(ctx context.Context, docs []types.Document, next state.Snapshot, w io.Writer) int {
	pruned := 0
	for _, key := range Stale(docs, next) {
		entry := next[key]
		if err := e.index.Delete(ctx, entry.RemoteIndexID); err != nil {
			e.log.Warn("prune delete failed", "key", key, "file_id", entry.RemoteIndexID, "error", err)
			continue
		}
		delete(next, key)
		pruned++
		fmt.Fprintf(w, "pruned:  %s\n", key)
	}
	return pruned
}

func printSummary(w io.Writer, s Summary) {
	fmt.Fprintf(w, "\nSync summary: %d added, %d updated, %d skipped, %d failed (total: %d)\n",
		s.Added, s.Updated, s.Skipped, s.Failed, s.Total())
	if s.Pruned > 0 {
		fmt.Fprintf(w, "Pruned %d stale entries\n", s.Pruned)
	}
	if s.Batch != nil {
		fmt.Fprintf(w, "Batch %s: %d completed, %d failed\n", s.Batch.Status, s.Batch.Completed, s.Batch.Failed)
	}
	if s.BatchErr != nil {
		fmt.Fprintf(w, "Batch attach failed: %v\n", s.BatchErr)
	}
}

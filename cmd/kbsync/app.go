// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/pdiddy/kbsync/internal/delta"
	"github.com/pdiddy/kbsync/internal/docstore"
	"github.com/pdiddy/kbsync/internal/helpcenter"
	"github.com/pdiddy/kbsync/internal/index"
	"github.com/pdiddy/kbsync/internal/materialize"
	"github.com/pdiddy/kbsync/internal/render"
	"github.com/pdiddy/kbsync/internal/state"
	"github.com/pdiddy/kbsync/pkg/types"
)

// fetchPass pulls articles and materializes them into store. A fetch that
// fails on its first page, before anything was read, means the source is
// unreachable and is returned as an error. A later page failure only
// truncates the pass.
func fetchPass(ctx context.Context, cfg types.Config, store docstore.Store, log *slog.Logger, w io.Writer) (materialize.Summary, error) {
	hc := cfg.HelpCenter
	if hc.BaseURL == "" {
		return materialize.Summary{}, errors.New("help center base URL is not set (helpcenter.base_url or --base-url)")
	}

	client := helpcenter.NewClient(&http.Client{Timeout: hc.Timeout}, hc, log)
	m := materialize.New(store, render.NewMarkdown(hc.BaseURL), log)

	seq := client.Articles(ctx, helpcenter.Limits{MaxDocuments: hc.MaxDocuments, MaxPages: hc.MaxPages})
	summary, err := m.Run(ctx, seq, w)

	var fe *helpcenter.FetchError
	if errors.As(err, &fe) {
		if fe.Page == 1 && summary.Total() == 0 {
			return summary, fmt.Errorf("content source unreachable: %w", err)
		}
		log.Warn("fetch truncated; continuing with partial results", "page", fe.Page, "error", fe.Err)
		return summary, nil
	}
	return summary, err
}

// newIndexClient returns the configured index client, or a dry-run client
// that makes no network calls.
func newIndexClient(cfg types.Config, log *slog.Logger) (index.Client, error) {
	if cfg.Sync.DryRun {
		return index.NewDryRun(log), nil
	}
	return index.NewOpenAI(&http.Client{Timeout: cfg.Index.Timeout}, cfg.Index, log)
}

// reconcilePass runs the delta engine over every stored document.
func reconcilePass(ctx context.Context, cfg types.Config, store docstore.Store, ix index.Client, log *slog.Logger, w io.Writer) (delta.Summary, error) {
	backend, err := state.Open(cfg.State.DSN)
	if err != nil {
		return delta.Summary{}, err
	}
	defer backend.Close()

	docs, err := store.List(ctx)
	if err != nil {
		return delta.Summary{}, fmt.Errorf("listing documents: %w", err)
	}
	log.Info("reconciling documents", "documents", len(docs), "state", cfg.State.DSN)

	engine := delta.New(backend, ix, log, delta.Options{
		Workers: cfg.Sync.Workers,
		Prune:   cfg.Sync.Prune,
		DryRun:  cfg.Sync.DryRun,
	})
	summary, err := engine.Run(ctx, docs, w)
	log.Info("reconcile summary",
		"added", summary.Added, "updated", summary.Updated, "skipped", summary.Skipped,
		"failed", summary.Failed, "pruned", summary.Pruned, "total", summary.Total())
	return summary, err
}

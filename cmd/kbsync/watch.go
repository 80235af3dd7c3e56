// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/pdiddy/kbsync/internal/docstore"
	"github.com/pdiddy/kbsync/pkg/types"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Reconcile whenever documents change, and optionally sync on a schedule",
	Long: `Watch monitors the documents directory and runs reconcile once writes
settle for the debounce period. With --interval it also runs a full sync
(fetch and reconcile) on that schedule, which is how the index is kept
current without an external scheduler.

Only one watch should run against a given state store.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Duration("debounce", 2*time.Second, "quiet period after the last change before reconciling")
	watchCmd.Flags().Duration("interval", 0, "run a full sync at this interval (0 disables)")
	addFetchFlags(watchCmd)
	addReconcileFlags(watchCmd)
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	ctx := cmd.Context()
	debounce, _ := cmd.Flags().GetDuration("debounce")
	interval, _ := cmd.Flags().GetDuration("interval")

	if cfg.Documents.Backend != types.DocumentsFile && interval <= 0 {
		return errors.New("watching needs the file document backend; use --interval with the bolt backend")
	}

	ix, err := newIndexClient(cfg, log)
	if err != nil {
		return err
	}

	reconcile := func() error {
		store, err := docstore.Open(cfg.Documents)
		if err != nil {
			return err
		}
		defer store.Close()
		_, err = reconcilePass(ctx, cfg, store, ix, log, os.Stdout)
		return err
	}
	fullSync := func() error {
		return syncOnce(ctx, cfg, log, os.Stdout)
	}

	var events <-chan fsnotify.Event
	var errs <-chan error
	if cfg.Documents.Backend == types.DocumentsFile {
		if err := os.MkdirAll(cfg.Documents.Dir, 0o755); err != nil {
			return fmt.Errorf("creating documents directory: %w", err)
		}
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("starting watcher: %w", err)
		}
		defer watcher.Close()
		if err := watcher.Add(cfg.Documents.Dir); err != nil {
			return fmt.Errorf("watching %s: %w", cfg.Documents.Dir, err)
		}
		events, errs = watcher.Events, watcher.Errors
		log.Info("watching documents", "dir", cfg.Documents.Dir, "debounce", debounce)
	}

	w := &watchLoop{
		debounce:  debounce,
		interval:  interval,
		onChange:  reconcile,
		onTick:    fullSync,
		log:       log,
		immediate: interval > 0,
	}
	return w.run(ctx, events, errs)
}

// watchLoop debounces document events into reconcile calls and runs a full
// sync every interval. Errors from either are logged and the loop goes on;
// only cancellation stops it.
type watchLoop struct {
	debounce time.Duration
	interval time.Duration
	onChange func() error
	onTick   func() error
	log      *slog.Logger

	// immediate runs onTick once at start.
	immediate bool
}

func (w *watchLoop) run(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) error {
	var tick <-chan time.Time
	if w.interval > 0 {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	debounce := time.NewTimer(w.debounce)
	debounce.Stop()
	defer debounce.Stop()

	// Changes made by our own sync pass are not worth a second reconcile.
	var quietUntil time.Time
	runTick := func() {
		if err := w.onTick(); err != nil {
			w.log.Error("scheduled sync failed", "error", err)
		}
		quietUntil = time.Now().Add(w.debounce)
	}

	if w.immediate {
		runTick()
	}

	for {
		select {
		case <-ctx.Done():
			w.log.Info("watch stopped")
			return nil

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !relevantEvent(ev) || time.Now().Before(quietUntil) {
				continue
			}
			w.log.Debug("document changed", "path", ev.Name, "op", ev.Op.String())
			debounce.Reset(w.debounce)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.log.Warn("watcher error", "error", err)

		case <-debounce.C:
			if err := w.onChange(); err != nil {
				w.log.Error("reconcile failed", "error", err)
			}

		case <-tick:
			runTick()
		}
	}
}

// relevantEvent reports whether ev touches a document or its sidecar.
// Temp files from atomic writes start with a dot and are ignored.
func relevantEvent(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return strings.HasSuffix(base, ".md") || strings.HasSuffix(base, ".meta.yaml")
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/kbsync/internal/docstore"
	"github.com/pdiddy/kbsync/pkg/types"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch articles, then reconcile them with the index",
	Long: `Sync runs fetch followed by reconcile. A truncated fetch still
reconciles whatever was materialized; an unreachable source stops the run
before the index is touched.`,
	RunE: runSync,
}

func init() {
	addFetchFlags(syncCmd)
	addReconcileFlags(syncCmd)
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	return syncOnce(cmd.Context(), appConfig, log, os.Stdout)
}

// syncOnce is one full fetch and reconcile pass.
func syncOnce(ctx context.Context, cfg types.Config, log *slog.Logger, w io.Writer) error {
	// Build the index client first so missing credentials fail before fetching.
	ix, err := newIndexClient(cfg, log)
	if err != nil {
		return err
	}
	store, err := docstore.Open(cfg.Documents)
	if err != nil {
		return err
	}
	defer store.Close()

	if _, err := fetchPass(ctx, cfg, store, log, w); err != nil {
		return err
	}
	fmt.Fprintln(w)
	_, err = reconcilePass(ctx, cfg, store, ix, log, w)
	return err
}

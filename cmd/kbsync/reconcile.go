// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/kbsync/internal/docstore"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Upload new and changed documents to the index",
	Long: `Reconcile compares every stored document against the sync state by
content fingerprint. New documents are uploaded, changed documents replace
their previous index entry, and unchanged documents are skipped. All uploads
are attached to the vector store in one batch and the state is saved once.

Failed uploads are reported and retried on the next run; they do not fail
the command.`,
	RunE: runReconcile,
}

func init() {
	addReconcileFlags(reconcileCmd)
	rootCmd.AddCommand(reconcileCmd)
}

// addReconcileFlags registers the index flags shared by reconcile, sync, and watch.
func addReconcileFlags(cmd *cobra.Command) {
	cmd.Flags().Int("workers", 0, "concurrent index calls (default 1)")
	cmd.Flags().Bool("prune", false, "delete index entries for documents that no longer exist")
	cmd.Flags().Bool("dry-run", false, "log index calls instead of making them and leave state untouched")
	cmd.Flags().String("vector-store", "", "target vector store id")

	bindFlag(cmd, false, "workers", "sync.workers")
	bindFlag(cmd, false, "prune", "sync.prune")
	bindFlag(cmd, false, "dry-run", "sync.dry_run")
	bindFlag(cmd, false, "vector-store", "index.vector_store_id")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg := appConfig

	ix, err := newIndexClient(cfg, log)
	if err != nil {
		return err
	}
	store, err := docstore.Open(cfg.Documents)
	if err != nil {
		return err
	}
	defer store.Close()

	_, err = reconcilePass(cmd.Context(), cfg, store, ix, log, os.Stdout)
	return err
}

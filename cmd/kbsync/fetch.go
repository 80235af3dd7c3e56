// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/kbsync/internal/docstore"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch published articles and write them as markdown documents",
	Long: `Fetch pages through the help center article listing, skips drafts and
outdated articles, and writes each remaining article as a markdown document
with a metadata sidecar. Documents are overwritten on every fetch; change
detection happens in reconcile.

A failure on a later page truncates the fetch without failing the command.`,
	RunE: runFetch,
}

func init() {
	addFetchFlags(fetchCmd)
	rootCmd.AddCommand(fetchCmd)
}

// addFetchFlags registers the help center flags shared by fetch and sync.
func addFetchFlags(cmd *cobra.Command) {
	cmd.Flags().String("base-url", "", "help center root URL, e.g. https://support.example.com")
	cmd.Flags().String("locale", "", "article locale (default en-us)")
	cmd.Flags().Int("max-documents", 0, "maximum articles to fetch (default 30)")
	cmd.Flags().Int("max-pages", 0, "maximum listing pages to request (default 10)")

	bindFlag(cmd, false, "base-url", "helpcenter.base_url")
	bindFlag(cmd, false, "locale", "helpcenter.locale")
	bindFlag(cmd, false, "max-documents", "helpcenter.max_documents")
	bindFlag(cmd, false, "max-pages", "helpcenter.max_pages")
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg := appConfig

	store, err := docstore.Open(cfg.Documents)
	if err != nil {
		return err
	}
	defer store.Close()

	_, err = fetchPass(cmd.Context(), cfg, store, log, os.Stdout)
	return err
}

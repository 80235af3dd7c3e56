// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/pdiddy/kbsync/internal/delta"
	"github.com/pdiddy/kbsync/internal/docstore"
	"github.com/pdiddy/kbsync/internal/state"
	"github.com/pdiddy/kbsync/pkg/types"
)

const maxTitleWidth = 40

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync state and pending changes",
	Long: `Status lists every stored document and state entry with what the next
reconcile would do to it: upload it as new, replace it as changed, leave it
as synced, or report it as stale when the document no longer exists.
Status makes no index calls.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().Bool("json", false, "output rows as JSON")
	rootCmd.AddCommand(statusCmd)
}

// statusRow is one line of status output.
type statusRow struct {
	Key           string    `json:"key"`
	Status        string    `json:"status"`
	RemoteIndexID string    `json:"remote_index_id,omitempty"`
	LastSyncedAt  time.Time `json:"last_synced_at,omitzero"`
	Title         string    `json:"title,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	ctx := cmd.Context()

	store, err := docstore.Open(cfg.Documents)
	if err != nil {
		return err
	}
	defer store.Close()

	rows, err := buildStatus(ctx, cfg, store)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	return formatStatus(os.Stdout, rows, jsonOutput)
}

func buildStatus(ctx context.Context, cfg types.Config, store docstore.Store) ([]statusRow, error) {
	backend, err := state.Open(cfg.State.DSN)
	if err != nil {
		return nil, err
	}
	defer backend.Close()

	snap, err := state.Load(ctx, backend, log)
	if err != nil {
		return nil, err
	}
	docs, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	var rows []statusRow
	for _, a := range delta.Classify(docs, snap, nil) {
		row := statusRow{Key: a.Doc.Key, Title: a.Doc.Meta.Title}
		switch a.Kind {
		case delta.Added:
			row.Status = "new"
		case delta.Updated:
			row.Status = "changed"
		default:
			row.Status = "synced"
		}
		if a.Kind != delta.Added {
			row.RemoteIndexID = a.Prior.RemoteIndexID
			row.LastSyncedAt = a.Prior.LastSyncedAt
		}
		rows = append(rows, row)
	}
	for _, key := range delta.Stale(docs, snap) {
		e := snap[key]
		rows = append(rows, statusRow{Key: key, Status: "stale", RemoteIndexID: e.RemoteIndexID, LastSyncedAt: e.LastSyncedAt})
	}
	return rows, nil
}

func formatStatus(w io.Writer, rows []statusRow, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Fprintln(w, "No documents or sync state found.")
		return nil
	}

	table := [][]string{{"KEY", "STATUS", "REMOTE ID", "LAST SYNCED", "TITLE"}}
	counts := map[string]int{}
	for _, r := range rows {
		synced := "-"
		if !r.LastSyncedAt.IsZero() {
			synced = r.LastSyncedAt.Local().Format("2006-01-02 15:04")
		}
		remote := r.RemoteIndexID
		if remote == "" {
			remote = "-"
		}
		table = append(table, []string{
			r.Key, r.Status, remote, synced,
			runewidth.Truncate(r.Title, maxTitleWidth, "..."),
		})
		counts[r.Status]++
	}
	writeTable(w, table)

	fmt.Fprintf(w, "\n%d new, %d changed, %d synced, %d stale (total: %d)\n",
		counts["new"], counts["changed"], counts["synced"], counts["stale"], len(rows))
	return nil
}

// writeTable pads each column to its widest cell by display width, so
// wide characters in titles keep the columns aligned.
func writeTable(w io.Writer, table [][]string) {
	widths := make([]int, len(table[0]))
	for _, row := range table {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}
	for i, row := range table {
		var sb strings.Builder
		for j, cell := range row {
			if j > 0 {
				sb.WriteString("  ")
			}
			if j == len(row)-1 {
				sb.WriteString(cell)
				continue
			}
			sb.WriteString(runewidth.FillRight(cell, widths[j]))
		}
		fmt.Fprintln(w, sb.String())
		if i == 0 {
			total := 2 * (len(widths) - 1)
			for _, n := range widths {
				total += n
			}
			fmt.Fprintln(w, strings.Repeat("-", total))
		}
	}
}

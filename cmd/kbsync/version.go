// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the kbsync release, commit, and Go toolchain",
	Run: func(cmd *cobra.Command, args []string) {
		info, _ := debug.ReadBuildInfo()
		writeVersion(cmd.OutOrStdout(), version, info)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// writeVersion prints the release and, when the binary was built from a
// git checkout, the commit it came from.
func writeVersion(w io.Writer, release string, info *debug.BuildInfo) {
	fmt.Fprintf(w, "kbsync %s\n", release)
	fmt.Fprintf(w, "  go:     %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	if info == nil {
		return
	}
	var rev, dirty string
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			if s.Value == "true" {
				dirty = " (modified)"
			}
		}
	}
	if rev != "" {
		fmt.Fprintf(w, "  commit: %s%s\n", rev, dirty)
	}
}

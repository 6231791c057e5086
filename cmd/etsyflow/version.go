package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		commit := commitHash
		if commit == "" {
			commit = "unknown"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "etsyflow %s (commit %s, %s)\n", version, commit, runtime.Version())
	},
}

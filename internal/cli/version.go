package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print oraclone version",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		if outputFormat(cmd) == "json" {
			_ = json.NewEncoder(out).Encode(map[string]any{
				"version": buildVersion,
				"commit":  buildCommit,
				"date":    buildDate,
			})
			return
		}
		fmt.Fprintf(out, "oraclone %s (commit: %s, built: %s)\n", buildVersion, buildCommit, buildDate)
	},
}

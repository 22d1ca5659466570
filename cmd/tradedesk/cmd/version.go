package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  `Display the current version of the tradedesk CLI.`,
	Run: func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "tradedesk version %s\n", version)
		fmt.Fprintln(w, "A risk-managed simulated trading desk")
		fmt.Fprintln(w, "https://github.com/rustyeddy/tradedesk")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

package cmd

import (
	"github.com/rykov/lure/config"
	"github.com/spf13/cobra"

	"fmt"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of Lure",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "Lure Campaign Sender "+config.Build.String())
		},
	}
}

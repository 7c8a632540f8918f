package cmd

import (
	"github.com/rykov/lure/config"
	"github.com/spf13/cobra"

	"fmt"
)

// New builds the root command with every subcommand attached
func New(build config.BuildInfo) *cobra.Command {
	config.Build = build

	root := &cobra.Command{
		Use:   "lure",
		Short: "Run the send lifecycle of an email awareness campaign",
		Long: `Lure checks a campaign's settings, connects to the mail server
(optionally through an SSH tunnel) and sends the campaign's messages,
reporting progress on the console or through a GraphQL control API.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&config.ViperConfigFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(
		newCmd(),
		sendCmd(),
		checkCmd(),
		spfCmd(),
		exportCmd(),
		importCmd(),
		pushCmd(),
		serverCmd(),
		urlsCmd(),
		versionCmd(),
	)
	return root
}

// userError is an operator mistake, printed without a stack of causes
type userError struct {
	s string
}

func (e *userError) Error() string {
	return e.s
}

func newUserError(format string, a ...any) error {
	return &userError{fmt.Sprintf(format, a...)}
}

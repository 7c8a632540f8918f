package cmd

import (
	"github.com/rykov/lure/client"
	"github.com/rykov/lure/config"
	"github.com/rykov/lure/lifecycle"
	"github.com/rykov/lure/mail"
	"github.com/spf13/cobra"

	"context"
	"fmt"
	"io"
)

func checkCmd() *cobra.Command {
	var assumeYes bool

	cmd := &cobra.Command{
		Use:     "check",
		Short:   "Run the campaign prechecks without sending",
		Example: "lure check --yes",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd.Context())
			if err != nil {
				return err
			}

			var decider lifecycle.Decider = lifecycle.Answer(true)
			if !assumeYes {
				decider = newConsole(cmd.InOrStdin(), cmd.OutOrStdout())
			}
			return runPrechecks(cmd.Context(), cfg, decider, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "continue past every warning")
	return cmd
}

func runPrechecks(ctx context.Context, cfg *config.AConfig, decider lifecycle.Decider, out io.Writer) error {
	var backend lifecycle.CampaignBackend
	if cfg.Server.URL != "" {
		backend = client.NewBackend(cfg)
	}

	sink := newConsoleSink(out)
	checks := &lifecycle.Checks{Sink: sink, Decider: decider, Fs: cfg.AppFs}
	steps := mail.Prechecks(cfg, checks, mail.NewSender(cfg, nil, nil), backend)
	if err := lifecycle.NewRegistry(sink, steps...).RunAll(ctx); err != nil {
		return err
	}

	fmt.Fprintln(out, "All prechecks passed.")
	return nil
}

package cmd

import (
	"github.com/rykov/lure/client"
	"github.com/rykov/lure/config"
	"github.com/spf13/cobra"

	"context"
	"fmt"
	"io"
)

func urlsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "urls [key]",
		Short:   "List landing page URLs served by the campaign server",
		Example: "lure urls login",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd.Context())
			if err != nil {
				return err
			}
			if cfg.Server.URL == "" {
				return newUserError("No campaign server configured (server.url)")
			}

			var key string
			if len(args) == 1 {
				key = args[0]
			}
			urls := client.NewURLCompleter(cfg, client.NewBackend(cfg))
			return listURLs(cmd.Context(), urls, key, cmd.OutOrStdout())
		},
	}
}

func listURLs(ctx context.Context, urls *client.URLCompleter, key string, out io.Writer) error {
	if err := urls.Reload(ctx); err != nil {
		return err
	}
	for _, u := range urls.Complete(ctx, key) {
		fmt.Fprintln(out, u)
	}
	return nil
}

package cmd

import (
	"github.com/rykov/lure/config"
	"github.com/rykov/lure/lifecycle"
	"github.com/rykov/lure/mail"
	"github.com/rykov/lure/policy"
	"github.com/spf13/cobra"

	"context"
	"fmt"
	"io"
	"net"
)

func spfCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "spf [server-ip]",
		Short:   "Check the sender's SPF policy for the mail server",
		Example: "lure spf 203.0.113.9",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd.Context())
			if err != nil {
				return err
			}

			opts := mail.SPFOptions(cfg)
			if len(args) == 1 {
				ip := net.ParseIP(args[0])
				if ip == nil {
					return newUserError("Invalid server address %q", args[0])
				}
				opts.ServerAddress = func(context.Context) (net.IP, error) { return ip, nil }
			}
			return checkSPF(cmd.Context(), policy.NewResolver(), opts, cmd.OutOrStdout())
		},
	}
}

// checkSPF reports the policy result regardless of the check level
func checkSPF(ctx context.Context, resolver lifecycle.PolicyResolver, opts lifecycle.SPFOptions, out io.Writer) error {
	sender, domain, ok := lifecycle.SplitEmailAddress(opts.SenderEmail)
	if !ok || !lifecycle.ValidEmailAddress(opts.SenderEmail) {
		return newUserError("Invalid source email address %q", opts.SenderEmail)
	}

	ip, err := opts.ServerAddress(ctx)
	if err != nil {
		return fmt.Errorf("detecting the mail server address: %w", err)
	} else if ip == nil {
		return newUserError("The mail server address could not be detected, pass it as an argument")
	}

	fmt.Fprintf(out, "Checking the SPF policy of %s for %s...\n", domain, ip)
	res, err := resolver.Check(ctx, ip, domain, sender, opts.Timeout)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, policy.Summary(res))
	return nil
}

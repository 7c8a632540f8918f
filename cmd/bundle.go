package cmd

import (
	"github.com/rykov/lure/client"
	"github.com/rykov/lure/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"fmt"
	"io"
	"path/filepath"
	"strings"
)

const bundleExtension = ".kpm"

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "export [file]",
		Short:   "Export the message settings and files as a bundle",
		Example: "lure export review" + bundleExtension,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd.Context())
			if err != nil {
				return err
			}
			return exportBundle(cfg, args[0], cmd.OutOrStdout())
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "import [file] [dir]",
		Short:   "Import a message bundle and print its settings",
		Example: "lure import review" + bundleExtension + " message",
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd.Context())
			if err != nil {
				return err
			}

			destDir := bundleDir(args[0])
			if len(args) == 2 {
				destDir = args[1]
			}
			return importBundle(cfg, args[0], destDir, cmd.OutOrStdout())
		},
	}
}

func pushCmd() *cobra.Command {
	var serverURL, auth string

	cmd := &cobra.Command{
		Use:     "push [dir]",
		Short:   "Upload the message bundle to a running control server",
		Example: "lure push message --server http://10.0.0.5:8080/graphql --auth admin:s3cret",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd.Context())
			if err != nil {
				return err
			}

			if serverURL == "" {
				serverURL = fmt.Sprintf("http://localhost:%d%s", cfg.Control.Port, serverGraphQLPath)
			}
			if auth == "" {
				auth = cfg.Control.Auth
			}

			ctrl := client.NewControl(cmd.Context(), serverURL, auth)
			if err := ctrl.PushMessage(args[0], cfg.WriteMessageBundle); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pushed message to %s\n", serverURL)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "control API URL (default: local server)")
	cmd.Flags().StringVar(&auth, "auth", "", "basic auth as user:pass (default: control.auth)")
	return cmd
}

func exportBundle(cfg *config.AConfig, target string, out io.Writer) error {
	if filepath.Ext(target) == "" {
		target += bundleExtension
	}
	if err := cfg.ExportMessageBundle(target); err != nil {
		return err
	}
	fmt.Fprintf(out, "Exported message to %s\n", target)
	return nil
}

// importBundle extracts the bundle and prints the resulting message
// settings for the operator to merge into config.yaml
func importBundle(cfg *config.AConfig, source, destDir string, out io.Writer) error {
	if !cfg.AppFs.IsFile(source) {
		return newUserError("Message bundle %q was not found", source)
	}
	if err := cfg.ImportMessageBundle(source, destDir); err != nil {
		return err
	}

	raw, err := yaml.Marshal(map[string]any{"mailer": nestKeys(cfg.MessageConfig())})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Imported message files into %s\n", destDir)
	fmt.Fprintf(out, "Message settings for config.yaml:\n\n%s", raw)
	return nil
}

// nestKeys expands dotted keys ("message_uid.length") into nested maps
func nestKeys(flat config.MessageConfig) map[string]any {
	out := map[string]any{}
	for k, v := range flat {
		parts := strings.Split(k, ".")
		m := out
		for _, p := range parts[:len(parts)-1] {
			next, ok := m[p].(map[string]any)
			if !ok {
				next = map[string]any{}
				m[p] = next
			}
			m = next
		}
		m[parts[len(parts)-1]] = v
	}
	return out
}

// Default extraction directory is named after the bundle
func bundleDir(source string) string {
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

package cmd

import (
	"github.com/bep/inflect"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

const (
	configTemplate = `# Campaign settings, see "lure send --help"
campaignID: ""
dryRun: true
sendRate: 1
workers: 1

server:
  url: ""
  apiToken: ""
  secretID: ""

smtp:
  url: "smtp://localhost:25"
  user: ""
  ssh:
    enable: false
    server: ""
    user: ""
    knownHostsFile: ""
    insecureIgnoreHostKey: false

spf:
  checkLevel: 1

mailer:
  webserver_url: ""
  subject: "A message for {{"{{"}} .FirstName {{"}}"}}"
  html_file: message.html
  company_name: "{{ .Company }}"
  message_type: email
  target_type: file
  target_field: to
  target_file: targets.csv
  source_email: ""
  source_email_alias: "{{ .Company }}"
  importance: Normal
  sensitivity: Normal
`

	messageTemplate = `<html>
<body>
  <p>Hello {{"{{"}} .FirstName {{"}}"}},</p>
  <p><a href="{{"{{"}} .URL {{"}}"}}">Please review the attached notice</a>.</p>
  <p>{{ .Company }}</p>
  {{"{{"}} .TrackingDot {{"}}"}}
</body>
</html>
`

	targetsTemplate = `first_name,last_name,email_address,department
`
)

// Files of a new campaign directory
var newCampaignFiles = []struct {
	name     string
	template string
}{
	{"config.yaml", configTemplate},
	{"message.html", messageTemplate},
	{"targets.csv", targetsTemplate},
}

func newCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "new [path]",
		Short:   "Create a new campaign directory",
		Example: "lure new acme-spring-review",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			fs := afero.NewBasePathFs(afero.NewOsFs(), wd)
			return newCampaign(fs, args[0], cmd.OutOrStdout())
		},
	}
}

func newCampaign(fs afero.Fs, dir string, out io.Writer) error {
	if ex, err := afero.DirExists(fs, dir); ex {
		return newUserError("%s already exists", dir)
	} else if err != nil {
		return err
	}
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data := map[string]string{"Company": pathToName(dir)}
	for _, f := range newCampaignFiles {
		path := filepath.Join(dir, f.name)
		if err := writeTemplate(fs, path, f.template, data, false); err != nil {
			return err
		}
		fmt.Fprintln(out, path, "created")
	}
	return nil
}

// "acme-corp" -> "Acme corp"
func pathToName(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return inflect.Humanize(strings.ReplaceAll(name, "-", "_"))
}

func writeTemplate(fs afero.Fs, path, content string, data any, print bool) error {
	if ex, err := afero.Exists(fs, path); ex {
		return newUserError("%s already exists", path)
	} else if err != nil {
		return err
	}

	out, err := renderTemplate(content, data)
	if err != nil {
		return err
	}

	err = afero.WriteFile(fs, path, out.Bytes(), 0644)
	if err == nil && print {
		fmt.Println(path, "created")
	}
	return err
}

func renderTemplate(content string, data any) (*bytes.Buffer, error) {
	var out bytes.Buffer
	t, err := template.New("template").Parse(content)
	if err != nil {
		return nil, err
	}
	if err := t.Execute(&out, data); err != nil {
		return nil, err
	}
	return &out, nil
}

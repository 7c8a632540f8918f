package mail

import (
	"github.com/rykov/lure/config"
	"github.com/rykov/lure/lifecycle"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cast"

	"fmt"
	"path/filepath"
	"strings"
)

// Target is one person receiving a message
type Target struct {
	FirstName  string
	LastName   string
	Email      string
	Department string

	// Unique per message, tracked by the web server
	UID string
}

func (t *Target) FullName() string {
	return strings.TrimSpace(t.FirstName + " " + t.LastName)
}

// loadTargets reads the targets for the configured target type.
// Rows with an invalid email address are skipped with a warning.
func loadTargets(fs afero.Fs, m config.MailerConfig) ([]*Target, error) {
	switch m.TargetType {
	case "single":
		first, last := splitName(m.TargetName)
		return []*Target{{FirstName: first, LastName: last, Email: m.TargetEmailAddress}}, nil
	case "file":
	default:
		return nil, fmt.Errorf("unsupported target type: %q", m.TargetType)
	}

	raw, err := afero.ReadFile(fs, m.TargetFile)
	if err != nil {
		return nil, fmt.Errorf("read targets: %w", err)
	}

	var rows []map[string]any
	switch strings.ToLower(filepath.Ext(m.TargetFile)) {
	case ".yaml", ".yml", ".json":
		rows, err = unmarshalYamlTargets(raw)
	default:
		rows, err = unmarshalCsvTargets(raw)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", m.TargetFile, err)
	}

	targets := make([]*Target, 0, len(rows))
	for i, row := range rows {
		t := newTarget(row)
		if !lifecycle.ValidEmailAddress(t.Email) {
			log.WithFields(log.Fields{
				"file": m.TargetFile,
				"row":  i + 1,
			}).Warnf("skipping target with invalid email address %q", t.Email)
			continue
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func newTarget(data map[string]any) *Target {
	row := keysToLower(data)
	t := &Target{
		FirstName:  strings.TrimSpace(cast.ToString(row["first_name"])),
		LastName:   strings.TrimSpace(cast.ToString(row["last_name"])),
		Department: strings.TrimSpace(cast.ToString(row["department"])),
	}
	for _, k := range []string{"email_address", "email"} {
		if v := strings.TrimSpace(cast.ToString(row[k])); v != "" {
			t.Email = v
			break
		}
	}
	if t.FirstName == "" && t.LastName == "" {
		t.FirstName, t.LastName = splitName(cast.ToString(row["name"]))
	}
	return t
}

// "Alice van Dyke" -> "Alice", "van Dyke"
func splitName(name string) (first, last string) {
	first, last, _ = strings.Cut(strings.TrimSpace(name), " ")
	return first, strings.TrimSpace(last)
}

func keysToLower(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

package mail

import (
	"github.com/ghodss/yaml"
)

// YAML (or JSON) target lists are a sequence of mappings
func unmarshalYamlTargets(raw []byte) ([]map[string]any, error) {
	var data []map[string]any
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}

package recommend

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// LoadRules reads a rule table from a YAML file. The file holds a list of
// rule entries; priorities order evaluation. Rules load once at process
// start and are read-only afterwards.
func LoadRules(path string) ([]RuleEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule table %s: %w", path, err)
	}

	var doc struct {
		Rules []RuleEntry `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing rule table %s: %w", path, err)
	}
	if len(doc.Rules) == 0 {
		return nil, fmt.Errorf("rule table %s contains no rules", path)
	}
	return doc.Rules, nil
}

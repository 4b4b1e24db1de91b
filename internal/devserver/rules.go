// Package devserver is a local stub of the evaluation service: it speaks the
// SDK's wire contract but serves canned flag values from a yaml rules file.
// It defines no evaluation semantics; it exists for development and e2e
// tests against a real HTTP boundary.
package devserver

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rules is the parsed rules file: flag values per environment key.
type Rules struct {
	Environments map[string]EnvRules `yaml:"environments"`
}

// EnvRules holds the canned flags for one environment.
type EnvRules struct {
	Flags map[string]any `yaml:"flags"`
}

// LoadRules reads and validates a rules file. Flag values are restricted to
// the scalar set the wire contract allows.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}
	if len(rules.Environments) == 0 {
		return nil, fmt.Errorf("rules file %s defines no environments", path)
	}

	for envKey, env := range rules.Environments {
		for flagKey, value := range env.Flags {
			switch value.(type) {
			case bool, string, int, int64, float64:
			default:
				return nil, fmt.Errorf("environment %q flag %q: value must be bool, string or number, got %T",
					envKey, flagKey, value)
			}
		}
	}
	return &rules, nil
}

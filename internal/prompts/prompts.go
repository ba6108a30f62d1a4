// Package prompts loads the role templates steering each enrichment stage.
package prompts

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Roles holds the three stage-steering system prompts.
type Roles struct {
	Context    string `yaml:"context"`
	Viewpoints string `yaml:"viewpoints"`
	Profile    string `yaml:"profile"`
}

// Load reads the role file and validates that every role resolves to a
// non-empty string. A missing or incomplete file is a configuration error.
func Load(path string) (Roles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Roles{}, fmt.Errorf("failed to read roles file %s: %w", path, err)
	}

	var roles Roles
	if err := yaml.Unmarshal(data, &roles); err != nil {
		return Roles{}, fmt.Errorf("failed to parse roles file %s: %w", path, err)
	}

	if err := roles.Validate(); err != nil {
		return Roles{}, fmt.Errorf("roles file %s: %w", path, err)
	}
	return roles, nil
}

// Validate reports the first missing role, if any.
func (r Roles) Validate() error {
	for _, check := range []struct {
		name string
		text string
	}{
		{"context", r.Context},
		{"viewpoints", r.Viewpoints},
		{"profile", r.Profile},
	} {
		if strings.TrimSpace(check.text) == "" {
			return fmt.Errorf("role %q is empty", check.name)
		}
	}
	return nil
}

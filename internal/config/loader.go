package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// envPattern matches ${VAR} and ${VAR:-default} expressions.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// Load reads a YAML configuration file, expands environment variables,
// parses it, and fills unset fields with their defaults. Call Validate on
// the result before using it.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	expanded, err := expandEnv(raw)
	if err != nil {
		return nil, fmt.Errorf("config: expanding variables in %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	cfg.applyDefaults()

	return &cfg, nil
}

// expandEnv substitutes ${VAR} and ${VAR:-default} expressions in the raw
// YAML. A variable with neither an environment value nor a default stays in
// place; all such names are reported in one error.
func expandEnv(raw []byte) ([]byte, error) {
	var missing []string

	expanded := envPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		groups := envPattern.FindSubmatch(match)
		name := string(groups[1])

		if value, ok := os.LookupEnv(name); ok {
			return []byte(value)
		}
		if def := groups[2]; def != nil {
			return def
		}

		missing = append(missing, name)
		return match
	})

	if len(missing) > 0 {
		return expanded, fmt.Errorf("unresolved variables: %s", strings.Join(missing, ", "))
	}
	return expanded, nil
}

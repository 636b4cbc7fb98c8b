package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/caarlos0/env/v11"
)

// ${NAME} or ${NAME:-fallback}
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// expandEnv replaces ${NAME} references in raw YAML. A reference to an unset
// variable without a fallback is left as written.
func expandEnv(raw []byte) []byte {
	return envRef.ReplaceAllFunc(raw, func(ref []byte) []byte {
		parts := envRef.FindSubmatchIndex(ref)
		name := string(ref[parts[2]:parts[3]])
		if value, ok := os.LookupEnv(name); ok {
			return []byte(value)
		}
		if parts[4] >= 0 {
			return ref[parts[4]:parts[5]]
		}
		return ref
	})
}

// ApplyEnv overrides fields tagged with `env` from QUORUM_* variables.
// Unset variables leave the loaded value in place.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hamed0406/pgdiag/internal/domain"
)

// LoadProfile reads a saved connection profile. Passwords are never stored
// in profiles; the yaml tag on ConnectionTarget.Password is "-".
func LoadProfile(path string) (domain.ConnectionTarget, error) {
	var t domain.ConnectionTarget
	b, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read profile %q: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &t); err != nil {
		return t, fmt.Errorf("parse profile %q: %w", path, err)
	}
	return t, nil
}

func SaveProfile(path string, t domain.ConnectionTarget) error {
	t.Password = ""
	b, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write profile %q: %w", path, err)
	}
	return nil
}

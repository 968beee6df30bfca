// Package profile manages the pool of credential profiles workers run
// under. A profile is a named credential/configuration identity; the
// failover controller swaps the active one when a run is rate-limited. The
// pool is the only state shared across concurrent tasks, so every selection
// and activation goes through the registry's single lock.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile is one credential/configuration identity.
type Profile struct {
	// ID is the unique name used in swaps and events.
	ID string `yaml:"id"`
	// Label is an optional human-readable name.
	Label string `yaml:"label,omitempty"`
	// CredentialsFile points at a credentials file exported to workers.
	CredentialsFile string `yaml:"credentials_file,omitempty"`
	// Env is merged into the worker environment when this profile is
	// active.
	Env map[string]string `yaml:"env,omitempty"`
}

// Policy is the failover policy section of the profiles file.
type Policy struct {
	// Enabled turns profile failover on.
	Enabled bool `yaml:"enabled"`
	// OnRateLimit allows automatic swapping when a run is rate-limited.
	OnRateLimit bool `yaml:"on_rate_limit"`
	// CooldownSeconds is how long a rate-limited profile is skipped during
	// selection. Zero selects the default.
	CooldownSeconds int `yaml:"cooldown_seconds,omitempty"`
}

// DefaultCooldown is how long a limited profile stays out of selection when
// the policy does not say.
const DefaultCooldown = 5 * time.Minute

// Cooldown returns the configured cooldown, or the default.
func (p Policy) Cooldown() time.Duration {
	if p.CooldownSeconds <= 0 {
		return DefaultCooldown
	}
	return time.Duration(p.CooldownSeconds) * time.Second
}

// fileFormat is the on-disk YAML shape of the profiles file.
type fileFormat struct {
	Active   string    `yaml:"active,omitempty"`
	Failover Policy    `yaml:"failover"`
	Profiles []Profile `yaml:"profiles"`
}

// readFile loads and validates a profiles file.
func readFile(path string) (fileFormat, error) {
	var f fileFormat

	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("read profiles file: %w", err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parse profiles file: %w", err)
	}
	if len(f.Profiles) == 0 {
		return f, fmt.Errorf("profiles file %s declares no profiles", path)
	}

	seen := make(map[string]bool, len(f.Profiles))
	for _, p := range f.Profiles {
		if p.ID == "" {
			return f, fmt.Errorf("profiles file %s contains a profile without an id", path)
		}
		if seen[p.ID] {
			return f, fmt.Errorf("profiles file %s declares profile %q twice", path, p.ID)
		}
		seen[p.ID] = true
	}
	if f.Active != "" && !seen[f.Active] {
		return f, fmt.Errorf("profiles file %s activates unknown profile %q", path, f.Active)
	}
	return f, nil
}

// writeFile persists a profiles file, creating parent directories.
func writeFile(path string, f fileFormat) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create profiles directory: %w", err)
	}
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal profiles file: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write profiles file: %w", err)
	}
	return nil
}

// EnsureFile seeds a profiles file if none exists yet: a single default
// profile carrying the given failover policy. An existing file is left
// untouched.
func EnsureFile(path string, policy Policy) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat profiles file: %w", err)
	}

	f := fileFormat{
		Active:   "default",
		Failover: policy,
		Profiles: []Profile{
			{ID: "default", Label: "Default"},
		},
	}
	return writeFile(path, f)
}

package config

import (
	"errors"
	"fmt"
	"os"
)

// ErrNoCredentials is returned when no credentials file is configured.
var ErrNoCredentials = errors.New("no credentials file configured")

// ResolveCredentialsFile returns the credentials file workers should use,
// ignoring profile-level files, which the supervisor merges at spawn time.
// It checks in order: environment variable, config file.
func ResolveCredentialsFile(cfg *Config) (string, error) {
	// First check environment variable directly
	if path := os.Getenv("AGENTEXEC_CREDENTIALS_FILE"); path != "" {
		return path, nil
	}

	// Then check config
	if cfg != nil && cfg.Worker.CredentialsFile != "" {
		path := os.ExpandEnv(cfg.Worker.CredentialsFile)
		if path != "" {
			return path, nil
		}
	}

	return "", ErrNoCredentials
}

// ValidateCredentialsFile performs basic checks on a credentials file.
// It checks presence and permissions but does not read the contents.
func ValidateCredentialsFile(path string) error {
	if path == "" {
		return ErrNoCredentials
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("credentials file %s does not exist", path)
		}
		return fmt.Errorf("stat credentials file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("credentials file %s is a directory", path)
	}

	// Group or world readable credentials defeat profile isolation
	if info.Mode().Perm()&0o044 != 0 {
		return fmt.Errorf("credentials file %s is readable by other users; run chmod 600 %s", path, path)
	}

	return nil
}

// CredentialsSource represents where the credentials file was resolved from.
type CredentialsSource string

const (
	CredentialsSourceEnv    CredentialsSource = "environment"
	CredentialsSourceConfig CredentialsSource = "config_file"
	CredentialsSourceNone   CredentialsSource = "none"
)

// GetCredentialsSource returns where the credentials file was sourced from.
func GetCredentialsSource(cfg *Config) CredentialsSource {
	if os.Getenv("AGENTEXEC_CREDENTIALS_FILE") != "" {
		return CredentialsSourceEnv
	}

	if cfg != nil && cfg.Worker.CredentialsFile != "" {
		if os.ExpandEnv(cfg.Worker.CredentialsFile) != "" {
			return CredentialsSourceConfig
		}
	}

	return CredentialsSourceNone
}

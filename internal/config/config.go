// Package config handles configuration loading and management for agentexec.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/taskdeck/agentexec/internal/phase"
)

// Config holds all configuration for agentexec.
type Config struct {
	Worker        WorkerConfig        `mapstructure:"worker"`
	Progress      ProgressConfig      `mapstructure:"progress"`
	Profiles      ProfilesConfig      `mapstructure:"profiles"`
	Journal       JournalConfig       `mapstructure:"journal"`
	Log           LogConfig           `mapstructure:"log"`
	SourceControl SourceControlConfig `mapstructure:"source_control"`
	Failover      FailoverConfig      `mapstructure:"failover"`
	Monitor       MonitorConfig       `mapstructure:"monitor"`
}

// WorkerConfig holds worker process settings.
type WorkerConfig struct {
	// Source is the worker program spawned for each task.
	Source string `mapstructure:"source"`
	// GracePeriod is how long a killed worker gets before forced
	// termination.
	GracePeriod time.Duration `mapstructure:"grace_period"`
	// CredentialsFile is exported to workers, overriding the active
	// profile's file when set.
	CredentialsFile string `mapstructure:"credentials_file"`
}

// ProgressConfig tunes the phase progress heuristic.
type ProgressConfig struct {
	Floor int `mapstructure:"floor"`
	Step  int `mapstructure:"step"`
	Cap   int `mapstructure:"cap"`
}

// Heuristic converts the section into the parser's tuning values.
func (p ProgressConfig) Heuristic() phase.Heuristic {
	return phase.Heuristic{Floor: p.Floor, Step: p.Step, Cap: p.Cap}
}

// ProfilesConfig locates the credential profiles file.
type ProfilesConfig struct {
	Path string `mapstructure:"path"`
}

// JournalConfig locates the run journal database.
type JournalConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig holds debug log settings. An empty path disables debug logging.
type LogConfig struct {
	Path string `mapstructure:"path"`
}

// SourceControlConfig holds the repository gating mode: disabled,
// unconfirmed, or required.
type SourceControlConfig struct {
	Mode string `mapstructure:"mode"`
}

// FailoverConfig seeds the failover policy written to a fresh profiles file
// and bounds the automatic restart loop.
type FailoverConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	OnRateLimit     bool          `mapstructure:"on_rate_limit"`
	CooldownSeconds int           `mapstructure:"cooldown_seconds"`
	MaxRestarts     int           `mapstructure:"max_restarts"`
	RestartDelay    time.Duration `mapstructure:"restart_delay"`
}

// MonitorConfig holds monitor display settings.
type MonitorConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (AGENTEXEC_*)
// 2. Project config (.agentexec.yaml in current directory or parent)
// 3. User config (~/.config/agentexec/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Load user config from XDG path
	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Merge project config (takes precedence)
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	// Environment variable overrides: AGENTEXEC_WORKER_SOURCE overrides
	// worker.source and so on.
	v.SetEnvPrefix("AGENTEXEC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The same variable workers receive also configures the orchestrator.
	v.BindEnv("worker.credentials_file", "AGENTEXEC_CREDENTIALS_FILE")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references in paths
	cfg.Worker.Source = expandEnv(cfg.Worker.Source)
	cfg.Worker.CredentialsFile = expandEnv(cfg.Worker.CredentialsFile)
	cfg.Profiles.Path = expandEnv(cfg.Profiles.Path)
	cfg.Journal.Path = expandEnv(cfg.Journal.Path)
	cfg.Log.Path = expandEnv(cfg.Log.Path)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Worker.Source = expandEnv(cfg.Worker.Source)
	cfg.Worker.CredentialsFile = expandEnv(cfg.Worker.CredentialsFile)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("worker.source", cfg.Worker.Source)
	v.Set("worker.grace_period", cfg.Worker.GracePeriod.String())
	v.Set("worker.credentials_file", cfg.Worker.CredentialsFile)
	v.Set("progress.floor", cfg.Progress.Floor)
	v.Set("progress.step", cfg.Progress.Step)
	v.Set("progress.cap", cfg.Progress.Cap)
	v.Set("profiles.path", cfg.Profiles.Path)
	v.Set("journal.path", cfg.Journal.Path)
	v.Set("log.path", cfg.Log.Path)
	v.Set("source_control.mode", cfg.SourceControl.Mode)
	v.Set("failover.enabled", cfg.Failover.Enabled)
	v.Set("failover.on_rate_limit", cfg.Failover.OnRateLimit)
	v.Set("failover.cooldown_seconds", cfg.Failover.CooldownSeconds)
	v.Set("failover.max_restarts", cfg.Failover.MaxRestarts)
	v.Set("failover.restart_delay", cfg.Failover.RestartDelay.String())
	v.Set("monitor.refresh_rate", cfg.Monitor.RefreshRate.String())

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	// Worker defaults
	v.SetDefault("worker.source", "claude")
	v.SetDefault("worker.grace_period", "5s")
	v.SetDefault("worker.credentials_file", "")

	// Progress heuristic defaults
	v.SetDefault("progress.floor", 10)
	v.SetDefault("progress.step", 5)
	v.SetDefault("progress.cap", 90)

	// Path defaults
	v.SetDefault("profiles.path", filepath.Join(getUserConfigDir(), "profiles.yaml"))
	v.SetDefault("journal.path", filepath.Join(getUserDataDir(), "journal.db"))
	v.SetDefault("log.path", "")

	// Gating defaults
	v.SetDefault("source_control.mode", "required")

	// Failover defaults
	v.SetDefault("failover.enabled", false)
	v.SetDefault("failover.on_rate_limit", false)
	v.SetDefault("failover.cooldown_seconds", 300)
	v.SetDefault("failover.max_restarts", 3)
	v.SetDefault("failover.restart_delay", "2s")

	// Monitor defaults
	v.SetDefault("monitor.refresh_rate", "100ms")
}

// getUserConfigDir returns the XDG config directory for agentexec.
func getUserConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "agentexec")
	}

	// Fall back to ~/.config/agentexec
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "agentexec")
	}
	return filepath.Join(home, ".config", "agentexec")
}

// getUserDataDir returns the XDG data directory for agentexec.
func getUserDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "agentexec")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".local", "share", "agentexec")
	}
	return filepath.Join(home, ".local", "share", "agentexec")
}

// findProjectConfig searches for .agentexec.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".agentexec.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Worker: WorkerConfig{
			Source:      "claude",
			GracePeriod: 5 * time.Second,
		},
		Progress: ProgressConfig{
			Floor: 10,
			Step:  5,
			Cap:   90,
		},
		Profiles: ProfilesConfig{
			Path: filepath.Join(getUserConfigDir(), "profiles.yaml"),
		},
		Journal: JournalConfig{
			Path: filepath.Join(getUserDataDir(), "journal.db"),
		},
		SourceControl: SourceControlConfig{
			Mode: "required",
		},
		Failover: FailoverConfig{
			Enabled:         false,
			OnRateLimit:     false,
			CooldownSeconds: 300,
			MaxRestarts:     3,
			RestartDelay:    2 * time.Second,
		},
		Monitor: MonitorConfig{
			RefreshRate: 100 * time.Millisecond,
		},
	}
}

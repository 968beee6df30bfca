package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskdeck/agentexec/internal/config"
	"github.com/taskdeck/agentexec/internal/gate"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify agentexec configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/agentexec/config.yaml
Project-specific overrides can be placed in .agentexec.yaml`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
			return nil
		case 1:
			return displayConfigKey(cfg, args[0])
		default:
			return setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("worker.source: %s\n", cfg.Worker.Source)
	fmt.Printf("worker.grace_period: %s\n", cfg.Worker.GracePeriod)
	fmt.Printf("worker.credentials_file: %s\n", cfg.Worker.CredentialsFile)
	fmt.Printf("progress.floor: %d\n", cfg.Progress.Floor)
	fmt.Printf("progress.step: %d\n", cfg.Progress.Step)
	fmt.Printf("progress.cap: %d\n", cfg.Progress.Cap)
	fmt.Printf("profiles.path: %s\n", cfg.Profiles.Path)
	fmt.Printf("journal.path: %s\n", cfg.Journal.Path)
	fmt.Printf("log.path: %s\n", cfg.Log.Path)
	fmt.Printf("source_control.mode: %s\n", cfg.SourceControl.Mode)
	fmt.Printf("failover.enabled: %t\n", cfg.Failover.Enabled)
	fmt.Printf("failover.on_rate_limit: %t\n", cfg.Failover.OnRateLimit)
	fmt.Printf("failover.cooldown_seconds: %d\n", cfg.Failover.CooldownSeconds)
	fmt.Printf("failover.max_restarts: %d\n", cfg.Failover.MaxRestarts)
	fmt.Printf("failover.restart_delay: %s\n", cfg.Failover.RestartDelay)
	fmt.Printf("monitor.refresh_rate: %s\n", cfg.Monitor.RefreshRate)
}

// displayConfigKey prints the value for a single key.
func displayConfigKey(cfg *config.Config, key string) error {
	switch key {
	case "worker.source":
		fmt.Println(cfg.Worker.Source)
	case "worker.grace_period":
		fmt.Println(cfg.Worker.GracePeriod)
	case "worker.credentials_file":
		fmt.Println(cfg.Worker.CredentialsFile)
	case "progress.floor":
		fmt.Println(cfg.Progress.Floor)
	case "progress.step":
		fmt.Println(cfg.Progress.Step)
	case "progress.cap":
		fmt.Println(cfg.Progress.Cap)
	case "profiles.path":
		fmt.Println(cfg.Profiles.Path)
	case "journal.path":
		fmt.Println(cfg.Journal.Path)
	case "log.path":
		fmt.Println(cfg.Log.Path)
	case "source_control.mode":
		fmt.Println(cfg.SourceControl.Mode)
	case "failover.enabled":
		fmt.Println(cfg.Failover.Enabled)
	case "failover.on_rate_limit":
		fmt.Println(cfg.Failover.OnRateLimit)
	case "failover.cooldown_seconds":
		fmt.Println(cfg.Failover.CooldownSeconds)
	case "failover.max_restarts":
		fmt.Println(cfg.Failover.MaxRestarts)
	case "failover.restart_delay":
		fmt.Println(cfg.Failover.RestartDelay)
	case "monitor.refresh_rate":
		fmt.Println(cfg.Monitor.RefreshRate)
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

// setConfigKey parses and sets a single configuration value, then saves.
func setConfigKey(cfg *config.Config, key, value string) error {
	switch key {
	case "worker.source":
		cfg.Worker.Source = value
	case "worker.grace_period":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		cfg.Worker.GracePeriod = d
	case "worker.credentials_file":
		cfg.Worker.CredentialsFile = value
	case "progress.floor":
		n, err := parseConfigInt(value)
		if err != nil {
			return err
		}
		cfg.Progress.Floor = n
	case "progress.step":
		n, err := parseConfigInt(value)
		if err != nil {
			return err
		}
		cfg.Progress.Step = n
	case "progress.cap":
		n, err := parseConfigInt(value)
		if err != nil {
			return err
		}
		cfg.Progress.Cap = n
	case "profiles.path":
		cfg.Profiles.Path = value
	case "journal.path":
		cfg.Journal.Path = value
	case "log.path":
		cfg.Log.Path = value
	case "source_control.mode":
		if !gate.Mode(value).Valid() {
			return fmt.Errorf("invalid mode %q (want disabled, unconfirmed, or required)", value)
		}
		cfg.SourceControl.Mode = value
	case "failover.enabled":
		b, err := parseConfigBool(value)
		if err != nil {
			return err
		}
		cfg.Failover.Enabled = b
	case "failover.on_rate_limit":
		b, err := parseConfigBool(value)
		if err != nil {
			return err
		}
		cfg.Failover.OnRateLimit = b
	case "failover.cooldown_seconds":
		n, err := parseConfigInt(value)
		if err != nil {
			return err
		}
		cfg.Failover.CooldownSeconds = n
	case "failover.max_restarts":
		n, err := parseConfigInt(value)
		if err != nil {
			return err
		}
		cfg.Failover.MaxRestarts = n
	case "failover.restart_delay":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		cfg.Failover.RestartDelay = d
	case "monitor.refresh_rate":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		cfg.Monitor.RefreshRate = d
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("Set %s = %s\n", key, value)
	return nil
}

func parseConfigInt(value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", value, err)
	}
	return n, nil
}

func parseConfigBool(value string) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid boolean %q (use true or false): %w", value, err)
	}
	return b, nil
}

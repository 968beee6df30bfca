package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/taskdeck/agentexec/internal/config"
	"github.com/taskdeck/agentexec/internal/profile"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage credential profiles",
	Long: `View and switch the credential profiles workers run under.

Profiles live in a YAML file (profiles.path in the config). Each profile
names an optional credentials file and environment overlay; the active
profile applies to every spawned worker. When failover is enabled, a
rate-limited run swaps the active profile automatically; this command is
the manual override.`,
	RunE: runProfilesList,
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles and the failover policy",
	RunE:  runProfilesList,
}

var profilesActiveCmd = &cobra.Command{
	Use:   "active",
	Short: "Print the active profile id",
	RunE:  runProfilesActive,
}

var profilesSwapCmd = &cobra.Command{
	Use:   "swap <id>",
	Short: "Switch the active profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfilesSwap,
}

func init() {
	profilesCmd.AddCommand(profilesListCmd)
	profilesCmd.AddCommand(profilesActiveCmd)
	profilesCmd.AddCommand(profilesSwapCmd)
}

// openRegistry loads the profiles file, seeding it on first use. No watcher:
// these commands read or write once and exit.
func openRegistry() (*profile.Registry, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	policy := profile.Policy{
		Enabled:         cfg.Failover.Enabled,
		OnRateLimit:     cfg.Failover.OnRateLimit,
		CooldownSeconds: cfg.Failover.CooldownSeconds,
	}
	if err := profile.EnsureFile(cfg.Profiles.Path, policy); err != nil {
		return nil, fmt.Errorf("seed profiles file: %w", err)
	}
	r, err := profile.Load(cfg.Profiles.Path)
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	return r, nil
}

func runProfilesList(cmd *cobra.Command, args []string) error {
	r, err := openRegistry()
	if err != nil {
		return err
	}
	defer r.Close()

	policy := r.Policy()
	fmt.Printf("Failover: enabled=%t on_rate_limit=%t cooldown=%s\n\n",
		policy.Enabled, policy.OnRateLimit, policy.Cooldown())

	for _, p := range r.List() {
		marker := " "
		if p.ID == r.ActiveID() {
			marker = color.GreenString("*")
		}
		line := fmt.Sprintf("%s %s", marker, p.ID)
		if p.Label != "" {
			line += fmt.Sprintf(" (%s)", p.Label)
		}
		if p.CredentialsFile != "" {
			line += "  credentials: " + p.CredentialsFile
		}
		if len(p.Env) > 0 {
			line += fmt.Sprintf("  env: %d vars", len(p.Env))
		}
		if until, ok := r.LimitedUntil(p.ID); ok {
			line += color.YellowString("  rate limited until %s", until.Format(time.Kitchen))
		}
		fmt.Println(line)
	}
	return nil
}

func runProfilesActive(cmd *cobra.Command, args []string) error {
	r, err := openRegistry()
	if err != nil {
		return err
	}
	defer r.Close()

	fmt.Println(r.ActiveID())
	return nil
}

func runProfilesSwap(cmd *cobra.Command, args []string) error {
	r, err := openRegistry()
	if err != nil {
		return err
	}
	defer r.Close()

	id := args[0]
	if err := r.SetActive(id); err != nil {
		return err
	}
	if err := r.Save(); err != nil {
		return fmt.Errorf("save profiles: %w", err)
	}
	printStatus("✓", fmt.Sprintf("active profile is now %s", id), color.FgGreen)
	fmt.Println("Running workers keep their current profile; new spawns use the new one.")
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/taskdeck/agentexec/internal/config"
	iexec "github.com/taskdeck/agentexec/internal/exec"
	"github.com/taskdeck/agentexec/internal/gate"
	"github.com/taskdeck/agentexec/internal/journal"
	"github.com/taskdeck/agentexec/internal/profile"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the installation and configuration",
	Long: `Run the preflight checks a healthy installation passes: the worker
runtime and git are on PATH, the source control mode is valid, the profiles
file loads, the credentials file (when configured) exists with safe
permissions, and the run journal opens.

Exits non-zero when any check fails.`,
	RunE: runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		printStatus("✗", fmt.Sprintf("config: %v", err), color.FgRed)
		return errors.New("1 check failed")
	}

	ctx := cmd.Context()
	runner := iexec.NewRunner()

	checks := []struct {
		name string
		run  func() (string, error)
	}{
		{"config", func() (string, error) { return checkConfigFiles() }},
		{"worker runtime", func() (string, error) { return checkWorkerRuntime(cfg, runner) }},
		{"git", func() (string, error) { return checkGit(ctx, cfg, runner) }},
		{"source control mode", func() (string, error) { return checkGateMode(cfg) }},
		{"profiles", func() (string, error) { return checkProfiles(cfg) }},
		{"credentials", func() (string, error) { return checkCredentials(cfg) }},
		{"journal", func() (string, error) { return checkJournal(cfg) }},
	}

	failed := 0
	for _, c := range checks {
		detail, err := c.run()
		if err != nil {
			printStatus("✗", fmt.Sprintf("%s: %v", c.name, err), color.FgRed)
			failed++
			continue
		}
		printStatus("✓", fmt.Sprintf("%s: %s", c.name, detail), color.FgGreen)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(checks))
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

func checkConfigFiles() (string, error) {
	userPath := config.GetUserConfigPath()
	detail := "defaults only"
	if _, err := os.Stat(userPath); err == nil {
		detail = userPath
	}
	if projectPath := config.GetProjectConfigPath(); projectPath != "" {
		detail += " + " + projectPath
	}
	return detail, nil
}

func checkWorkerRuntime(cfg *config.Config, runner iexec.CommandRunner) (string, error) {
	if cfg.Worker.Source == "" {
		return "not configured (each run names its own program)", nil
	}
	path, err := runner.LookPath(cfg.Worker.Source)
	if err != nil {
		return "", fmt.Errorf("%q not found in PATH", cfg.Worker.Source)
	}
	return path, nil
}

func checkGit(ctx context.Context, cfg *config.Config, runner iexec.CommandRunner) (string, error) {
	path, err := runner.LookPath("git")
	if err != nil {
		if cfg.SourceControl.Mode == string(gate.ModeDisabled) {
			return "not found (source control gating is disabled)", nil
		}
		return "", errors.New("git not found in PATH; gating needs it, or set source_control.mode to disabled")
	}
	out, err := runner.Run(ctx, "", "git", "--version")
	if err != nil {
		return path, nil
	}
	return fmt.Sprintf("%s (%s)", path, strings.TrimSpace(string(out))), nil
}

func checkGateMode(cfg *config.Config) (string, error) {
	mode := gate.Mode(cfg.SourceControl.Mode)
	if !mode.Valid() {
		return "", fmt.Errorf("invalid mode %q (want disabled, unconfirmed, or required)", cfg.SourceControl.Mode)
	}
	return string(mode), nil
}

func checkProfiles(cfg *config.Config) (string, error) {
	if _, err := os.Stat(cfg.Profiles.Path); os.IsNotExist(err) {
		return fmt.Sprintf("not created yet; seeded on first run at %s", cfg.Profiles.Path), nil
	}
	r, err := profile.Load(cfg.Profiles.Path)
	if err != nil {
		return "", err
	}
	defer r.Close()
	return fmt.Sprintf("%d profiles, active %s", len(r.List()), r.ActiveID()), nil
}

func checkCredentials(cfg *config.Config) (string, error) {
	source := config.GetCredentialsSource(cfg)
	if source == config.CredentialsSourceNone {
		return "none configured (workers inherit ambient credentials)", nil
	}
	path, err := config.ResolveCredentialsFile(cfg)
	if err != nil {
		return "", err
	}
	if err := config.ValidateCredentialsFile(path); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s (via %s)", path, source), nil
}

func checkJournal(cfg *config.Config) (string, error) {
	store, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return "", err
	}
	store.Close()
	return cfg.Journal.Path, nil
}

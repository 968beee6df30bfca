package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/taskdeck/agentexec/internal/config"
	"github.com/taskdeck/agentexec/internal/journal"
)

var (
	runsLimit int
	runsPurge time.Duration
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent runs from the journal",
	Long: `List recent worker runs recorded in the run journal, newest first.

Each line shows when the run started, its short id, task, status, the last
reported phase and progress, and how it ended. Use --purge to delete
finished runs older than a duration first; running rows are never purged.

Examples:
  agentexec runs
  agentexec runs --limit 50
  agentexec runs --purge 168h`,
	RunE: runRuns,
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "How many runs to show")
	runsCmd.Flags().DurationVar(&runsPurge, "purge", 0, "Delete finished runs older than this (e.g. 168h) before listing")
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	store, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer store.Close()

	if runsPurge > 0 {
		n, err := store.PurgeOldRuns(runsPurge)
		if err != nil {
			return fmt.Errorf("purge runs: %w", err)
		}
		fmt.Printf("Purged %d finished runs older than %s.\n\n", n, runsPurge)
	}

	runs, err := store.ListRecent(runsLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	for _, r := range runs {
		fmt.Println(formatRunLine(r))
	}
	return nil
}

// formatRunLine renders one journal row for the listing.
func formatRunLine(r journal.Run) string {
	line := fmt.Sprintf("%s  %s  %-14s %s %-12s %3d%%",
		r.StartedAt.Local().Format("2006-01-02 15:04"),
		shortID(r.ID),
		r.TaskID,
		colorStatus(r.Status),
		r.Phase,
		r.Progress)

	if r.ExitCode != nil {
		line += fmt.Sprintf("  exit %d", *r.ExitCode)
	}
	if r.FailureKind != "" {
		line += fmt.Sprintf(" (%s)", r.FailureKind)
	}
	if r.SwappedTo != "" {
		line += "  swapped to " + r.SwappedTo
	}
	if r.EndedAt != nil {
		line += "  " + r.EndedAt.Sub(r.StartedAt).Round(time.Second).String()
	}
	return line
}

func colorStatus(s journal.RunStatus) string {
	switch s {
	case journal.RunCompleted:
		return color.GreenString("%-12s", s)
	case journal.RunFailed:
		return color.RedString("%-12s", s)
	case journal.RunRunning:
		return color.CyanString("%-12s", s)
	default:
		return color.YellowString("%-12s", s)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

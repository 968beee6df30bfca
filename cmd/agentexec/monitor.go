package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/taskdeck/agentexec/internal/config"
	"github.com/taskdeck/agentexec/internal/orchestrator"
	"github.com/taskdeck/agentexec/internal/tui"
)

var monitorRestart bool

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Restart interrupted runs and watch them live",
	Long: `Reconcile the run journal with reality, restart runs a previous
process left interrupted, and watch them in a live view.

Runs whose worker is still alive are reported and left alone. Runs whose
directory no longer passes source control gating are reported blocked and
never restarted. With --restart=false nothing is respawned; the command
prints what it found and exits.

Press q to quit the live view; restarted workers are terminated on exit.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().BoolVar(&monitorRestart, "restart", true, "Restart runs the journal shows as interrupted")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := CheckWorkerCLI(cfg.Worker.Source); err != nil {
		return err
	}

	orch, err := orchestrator.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Worker.GracePeriod+5*time.Second)
		defer cancel()
		if err := orch.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	// Scan only. Restarts happen below so every restarted run gets the
	// same swap-restart supervision the run command provides.
	report, err := orch.Recover(ctx, false)
	if err != nil {
		return fmt.Errorf("recovery scan: %w", err)
	}
	if report.Empty() {
		fmt.Println("Nothing to monitor: the journal has no interrupted or live runs.")
		return nil
	}

	for _, r := range report.StillAlive {
		printStatus("⚠", fmt.Sprintf("task %s still has a live worker (pid %d) owned by another process", r.TaskID, r.PID), color.FgYellow)
	}
	for _, b := range report.Blocked {
		printStatus("✗", fmt.Sprintf("task %s cannot restart: %s", b.Run.TaskID, b.Reason), color.FgRed)
	}

	if !monitorRestart {
		for _, r := range report.Restartable {
			printStatus("⚠", fmt.Sprintf("task %s is interrupted; run 'agentexec monitor' to restart it", r.TaskID), color.FgYellow)
		}
		return nil
	}
	if len(report.Restartable) == 0 {
		fmt.Println("No restartable runs.")
		return nil
	}

	sub, unsub := orch.Subscribe(0)
	defer unsub()
	program := tea.NewProgram(tui.New(sub), tea.WithAltScreen())

	go func() {
		<-ctx.Done()
		program.Quit()
	}()

	var g errgroup.Group
	for _, r := range report.Restartable {
		spec := taskSpec{
			TaskID: r.TaskID,
			Dir:    r.WorkDir,
			Args:   r.Args,
			Type:   r.ProcessType,
		}
		g.Go(func() error {
			err := superviseTask(ctx, orch, cfg, spec, nil)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	// Suppress log output while the TUI is active (it corrupts the display)
	originalOutput := log.Writer()
	log.SetOutput(io.Discard)
	_, tuiErr := program.Run()
	log.SetOutput(originalOutput)

	cancel()
	if err := g.Wait(); err != nil {
		return err
	}
	return tuiErr
}

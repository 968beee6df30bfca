package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/taskdeck/agentexec/internal/config"
	"github.com/taskdeck/agentexec/internal/events"
	"github.com/taskdeck/agentexec/internal/orchestrator"
	"github.com/taskdeck/agentexec/internal/supervisor"
	"github.com/taskdeck/agentexec/pkg/models"
)

var (
	runTaskID   string
	runDir      string
	runResume   bool
	runHeadless bool
	runRecover  bool
	runEnv      []string
)

var runCmd = &cobra.Command{
	Use:   "run [flags] [-- worker args...]",
	Short: "Run a task under supervision",
	Long: `Run one task by spawning the configured worker program and supervising
it to completion.

Everything after -- is passed to the worker as its command line. The worker
reports progress by embedding phase markers in its output; agentexec turns
them into live progress, journals the run, and classifies any failure.

When the worker exits rate-limited and profile failover is enabled, the
active credential profile is swapped and the task restarts automatically,
up to failover.max_restarts times with exponential delay.

Examples:
  agentexec run -- --print "fix the flaky login test"
  agentexec run --task login-fix --dir ~/src/app -- --print "fix login"
  agentexec run --resume --task login-fix -- --continue
  agentexec run --headless --env DEBUG=1 -- --print "add retries"

Set AGENTEXEC_DEBUG=1 to echo every worker output line.`,
	Args: cobra.ArbitraryArgs,
	RunE: runTask,
}

func init() {
	runCmd.Flags().StringVar(&runTaskID, "task", "", "Task identifier (default: generated)")
	runCmd.Flags().StringVar(&runDir, "dir", "", "Working directory for the worker (default: current directory)")
	runCmd.Flags().BoolVar(&runResume, "resume", false, "Continue a previously interrupted execution")
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "Run without TUI (plain event output)")
	runCmd.Flags().BoolVar(&runRecover, "recover", false, "Restart runs left interrupted by a previous crash")
	runCmd.Flags().StringArrayVar(&runEnv, "env", nil, "Extra KEY=VALUE for the worker environment (repeatable)")
}

// taskSpec is everything needed to start, and later restart, one task.
type taskSpec struct {
	TaskID   string
	Dir      string
	Args     []string
	ExtraEnv map[string]string
	Type     models.ProcessType
}

func runTask(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := CheckWorkerCLI(cfg.Worker.Source); err != nil {
		return err
	}

	dir := runDir
	if dir == "" {
		dir, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
	}

	taskID := runTaskID
	if taskID == "" {
		taskID = "task-" + uuid.New().String()[:8]
	}

	extraEnv, err := parseEnvFlags(runEnv)
	if err != nil {
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
		fmt.Println("\nReceived interrupt, shutting down...")
		cancel()
	}()

	if err := reportRecovery(ctx, orch, runRecover); err != nil {
		return err
	}

	processType := models.ProcessTypeRun
	if runResume {
		processType = models.ProcessTypeResume
	}
	spec := taskSpec{
		TaskID:   taskID,
		Dir:      dir,
		Args:     args,
		ExtraEnv: extraEnv,
		Type:     processType,
	}

	if runHeadless {
		return superviseTask(ctx, orch, cfg, spec, printEvent)
	}
	return runWithTUI(ctx, orch, cfg, spec)
}

// reportRecovery reconciles journal rows from a previous process and prints
// what it found. With restart enabled the restartable runs are respawned
// before this returns.
func reportRecovery(ctx context.Context, orch *orchestrator.Orchestrator, restart bool) error {
	report, err := orch.Recover(ctx, restart)
	if err != nil {
		return fmt.Errorf("recovery scan: %w", err)
	}
	if report.Empty() {
		return nil
	}

	for _, r := range report.StillAlive {
		printStatus("⚠", fmt.Sprintf("task %s still has a live worker (pid %d) from a previous process", r.TaskID, r.PID), color.FgYellow)
	}
	for _, r := range report.Restartable {
		if restart {
			printStatus("↻", fmt.Sprintf("task %s was interrupted; restarting", r.TaskID), color.FgYellow)
		} else {
			printStatus("⚠", fmt.Sprintf("task %s was interrupted; rerun with --recover to restart it", r.TaskID), color.FgYellow)
		}
	}
	for _, b := range report.Blocked {
		printStatus("✗", fmt.Sprintf("task %s was interrupted and cannot restart: %s", b.Run.TaskID, b.Reason), color.FgRed)
	}
	return nil
}

// superviseTask starts the task and drives it to a terminal outcome,
// restarting it after an automatic profile swap. onEvent, when non-nil,
// receives every bus event for display.
func superviseTask(ctx context.Context, orch *orchestrator.Orchestrator, cfg *config.Config, spec taskSpec, onEvent func(events.Event)) error {
	// Subscribe before spawning so a fast exit cannot slip past us.
	sub, unsub := orch.Subscribe(0)
	defer unsub()

	info, err := startSpec(ctx, orch, spec)
	if err != nil {
		return err
	}
	if onEvent != nil {
		printStatus("▸", fmt.Sprintf("started task %s (run %s, pid %d)", spec.TaskID, info.Token, info.PID), color.FgGreen)
	}

	bo := backoff.NewExponentialBackOff()
	if cfg.Failover.RestartDelay > 0 {
		bo.InitialInterval = cfg.Failover.RestartDelay
	}
	bo.MaxElapsedTime = 0

	token := info.Token
	restarts := 0
	swapPending := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub:
			if !ok {
				return errors.New("orchestrator shut down")
			}
			if onEvent != nil {
				onEvent(ev)
			}

			switch e := ev.(type) {
			case events.SwapRestartEvent:
				if e.ID == spec.TaskID {
					swapPending = true
				}

			case events.ExitEvent:
				if e.ID != spec.TaskID || e.RunID != token {
					continue
				}
				if swapPending && restarts < cfg.Failover.MaxRestarts {
					swapPending = false
					restarts++
					delay := bo.NextBackOff()
					if onEvent != nil {
						printStatus("↻", fmt.Sprintf("restarting task %s in %s (attempt %d of %d)", spec.TaskID, delay.Round(time.Millisecond), restarts, cfg.Failover.MaxRestarts), color.FgYellow)
					}
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(delay):
					}
					info, err = startSpec(ctx, orch, spec)
					if err != nil {
						return fmt.Errorf("restart after profile swap: %w", err)
					}
					token = info.Token
					continue
				}
				if e.ExitCode == 0 {
					return nil
				}
				return fmt.Errorf("task %s failed with exit code %d", spec.TaskID, e.ExitCode)
			}
		}
	}
}

func startSpec(ctx context.Context, orch *orchestrator.Orchestrator, spec taskSpec) (supervisor.RunInfo, error) {
	switch spec.Type {
	case models.ProcessTypeResume:
		return orch.ResumeTask(ctx, spec.TaskID, spec.Dir, spec.Args, spec.ExtraEnv)
	case models.ProcessTypeUtility:
		return orch.RunUtility(ctx, spec.TaskID, spec.Dir, spec.Args, spec.ExtraEnv)
	default:
		return orch.StartTask(ctx, spec.TaskID, spec.Dir, spec.Args, spec.ExtraEnv)
	}
}

// printEvent renders one bus event as a plain output line.
func printEvent(ev events.Event) {
	switch e := ev.(type) {
	case events.LogEvent:
		if debugEnabled() {
			fmt.Printf("    [%s] %s\n", e.ID, e.Line)
		}

	case events.ProgressEvent:
		line := fmt.Sprintf("[%3d%%] %s: %s", e.Progress.OverallProgress, e.ID, e.Progress.Phase)
		if e.Progress.CurrentSubtask != "" {
			line += " / " + e.Progress.CurrentSubtask
		}
		if e.Progress.Message != "" {
			line += " (" + e.Progress.Message + ")"
		}
		fmt.Println(line)

	case events.ErrorEvent:
		printStatus("✗", fmt.Sprintf("task %s: %s", e.ID, e.Message), color.FgRed)

	case events.RateLimitEvent:
		printStatus("⚠", fmt.Sprintf("task %s rate limited on profile %s", e.ID, e.Info.LimitedProfile), color.FgYellow)
		if e.Info.ResetHint != "" {
			fmt.Printf("    resets: %s\n", e.Info.ResetHint)
		}
		if e.Swap != nil && e.Swap.WasAutoSwapped {
			printStatus("✓", fmt.Sprintf("profile swapped: %s → %s", e.Swap.FromProfile, e.Swap.ToProfile), color.FgGreen)
		} else {
			fmt.Println("    no automatic alternative; switch manually with 'agentexec profiles swap <id>'")
		}

	case events.AuthFailureEvent:
		printStatus("✗", fmt.Sprintf("task %s auth failure (%s): %s", e.ID, e.Info.FailureType, e.Info.Message), color.FgRed)
		if hint := authHint(e.Info.FailureType); hint != "" {
			fmt.Printf("    %s\n", hint)
		}

	case events.SwapRestartEvent:
		printStatus("↻", fmt.Sprintf("task %s will restart under profile %s", e.ID, e.NewProfileID), color.FgYellow)

	case events.ExitEvent:
		if e.ExitCode == 0 {
			printStatus("✓", fmt.Sprintf("task %s completed (run %s)", e.ID, e.RunID), color.FgGreen)
		} else {
			printStatus("✗", fmt.Sprintf("task %s exited with code %d (run %s)", e.ID, e.ExitCode, e.RunID), color.FgRed)
		}
	}
}

// authHint maps an auth failure type to a remediation suggestion.
func authHint(t models.AuthFailureType) string {
	switch t {
	case models.AuthInvalidCredentials:
		return "check the credentials file for the active profile"
	case models.AuthExpiredCredentials:
		return "refresh or reissue the credentials for the active profile"
	case models.AuthPermissionDenied:
		return "the credentials lack access; check the account's permissions"
	default:
		return ""
	}
}

// parseEnvFlags converts repeated KEY=VALUE flags into a map.
func parseEnvFlags(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --env value %q (want KEY=VALUE)", pair)
		}
		env[key] = value
	}
	return env, nil
}

func debugEnabled() bool {
	return os.Getenv("AGENTEXEC_DEBUG") != ""
}

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}

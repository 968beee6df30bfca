// Package orchestrator wires the execution core (supervisor, profile
// registry, event bus) to its collaborators (repository gate, run journal,
// debug logger) behind one facade the CLI drives. The facade adds no
// execution semantics of its own: it gates task starts, forwards commands
// to the supervisor, and pumps the supervisor's events into the journal.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/taskdeck/agentexec/internal/config"
	"github.com/taskdeck/agentexec/internal/events"
	"github.com/taskdeck/agentexec/internal/gate"
	"github.com/taskdeck/agentexec/internal/git"
	"github.com/taskdeck/agentexec/internal/journal"
	"github.com/taskdeck/agentexec/internal/profile"
	"github.com/taskdeck/agentexec/internal/recovery"
	"github.com/taskdeck/agentexec/internal/supervisor"
	"github.com/taskdeck/agentexec/pkg/models"
)

// Orchestrator owns the wired components for one process lifetime. Create
// with New, tear down with Shutdown.
type Orchestrator struct {
	logger   *DebugLogger
	bus      *events.Bus
	registry *profile.Registry
	store    *journal.Store
	gate     *gate.Gate
	gateMode gate.Mode
	super    *supervisor.Supervisor

	pumpDone     chan struct{}
	shutdownOnce sync.Once
}

// New wires an orchestrator from configuration. Options replace individual
// collaborators; everything else is built from cfg. On first run the
// profiles file is seeded with a single default profile carrying the
// configured failover policy.
func New(cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	var options orchestratorOptions
	for _, opt := range opts {
		opt(&options)
	}

	mode := gate.Mode(cfg.SourceControl.Mode)
	if !mode.Valid() {
		return nil, fmt.Errorf("invalid source_control.mode %q (want disabled, unconfirmed, or required)", cfg.SourceControl.Mode)
	}

	logger := options.logger
	if logger == nil {
		var err error
		logger, err = NewDebugLogger(cfg.Log.Path)
		if err != nil {
			return nil, fmt.Errorf("open debug log: %w", err)
		}
	}

	registry := options.registry
	if registry == nil {
		policy := profile.Policy{
			Enabled:         cfg.Failover.Enabled,
			OnRateLimit:     cfg.Failover.OnRateLimit,
			CooldownSeconds: cfg.Failover.CooldownSeconds,
		}
		if err := profile.EnsureFile(cfg.Profiles.Path, policy); err != nil {
			logger.Close()
			return nil, fmt.Errorf("seed profiles file: %w", err)
		}
		var err error
		registry, err = profile.Load(cfg.Profiles.Path)
		if err != nil {
			logger.Close()
			return nil, fmt.Errorf("load profiles: %w", err)
		}
		registry.Watch()
	}

	store := options.store
	if store == nil {
		var err error
		store, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			registry.Close()
			logger.Close()
			return nil, fmt.Errorf("open journal: %w", err)
		}
	}

	repoGate := options.gate
	if repoGate == nil {
		repoGate = gate.New()
	}

	credPath, err := config.ResolveCredentialsFile(cfg)
	if err != nil && !errors.Is(err, config.ErrNoCredentials) {
		store.Close()
		registry.Close()
		logger.Close()
		return nil, err
	}

	bus := events.NewBus()
	super := supervisor.New(supervisor.Options{
		Events:         bus,
		Registry:       registry,
		Heuristic:      cfg.Progress.Heuristic(),
		GracePeriod:    cfg.Worker.GracePeriod,
		WorkerSource:   cfg.Worker.Source,
		CredentialPath: credPath,
		Logger:         logger,
	})

	o := &Orchestrator{
		logger:   logger,
		bus:      bus,
		registry: registry,
		store:    store,
		gate:     repoGate,
		gateMode: mode,
		super:    super,
		pumpDone: make(chan struct{}),
	}

	ch, _ := o.bus.Subscribe(0)
	go o.pump(ch)

	logger.Log("[facade] orchestrator up: profile %s, gate mode %s", registry.ActiveID(), mode)
	return o, nil
}

// StartTask spawns a full task execution in dir after the repository gate
// passes.
func (o *Orchestrator) StartTask(ctx context.Context, taskID, dir string, args []string, extraEnv map[string]string) (supervisor.RunInfo, error) {
	return o.launch(ctx, taskID, dir, args, extraEnv, models.ProcessTypeRun)
}

// ResumeTask spawns a continuation of an interrupted execution in dir after
// the repository gate passes.
func (o *Orchestrator) ResumeTask(ctx context.Context, taskID, dir string, args []string, extraEnv map[string]string) (supervisor.RunInfo, error) {
	return o.launch(ctx, taskID, dir, args, extraEnv, models.ProcessTypeResume)
}

// RunUtility spawns a short-lived auxiliary invocation. Utility runs skip
// the repository gate.
func (o *Orchestrator) RunUtility(ctx context.Context, taskID, dir string, args []string, extraEnv map[string]string) (supervisor.RunInfo, error) {
	return o.launch(ctx, taskID, dir, args, extraEnv, models.ProcessTypeUtility)
}

// launch gates, spawns, and journals one worker invocation.
func (o *Orchestrator) launch(ctx context.Context, taskID, dir string, args []string, extraEnv map[string]string, pt models.ProcessType) (supervisor.RunInfo, error) {
	if pt != models.ProcessTypeUtility {
		if err := o.gate.Check(ctx, dir, o.gateMode); err != nil {
			return supervisor.RunInfo{}, err
		}
		o.logRepoPosition(ctx, taskID, dir)
	}

	// Spawn kills a live predecessor for the same task; its journal row
	// is closed here because the killed generation emits no exit event.
	if prev, ok := o.super.Snapshot(taskID); ok {
		o.finishKilled(prev.Token)
	}

	info, err := o.super.Spawn(taskID, dir, args, extraEnv, pt)
	if err != nil {
		return supervisor.RunInfo{}, err
	}

	run := &journal.Run{
		ID:          info.Token,
		TaskID:      taskID,
		ProcessType: pt,
		ProfileID:   o.registry.ActiveID(),
		PID:         info.PID,
		WorkDir:     dir,
		Args:        args,
		StartedAt:   info.StartedAt,
	}
	if err := o.store.CreateRun(run); err != nil {
		// Journal trouble does not stop a live run.
		o.logger.Log("[facade] journal create for task %s run %s: %v", taskID, info.Token, err)
	}
	return info, nil
}

// logRepoPosition records the branch, head commit, and tree state a gated
// worker starts from. Best effort; any probe failure only skips the line.
func (o *Orchestrator) logRepoPosition(ctx context.Context, taskID, dir string) {
	if o.gateMode == gate.ModeDisabled {
		return
	}
	ins := git.NewRunner(dir)
	branch, err := ins.CurrentBranch(ctx)
	if err != nil {
		return
	}
	head, err := ins.HeadCommit(ctx)
	if err != nil {
		return
	}
	state := "clean"
	if dirty, err := ins.HasChanges(ctx); err == nil && dirty {
		state = "uncommitted changes"
	}
	o.logger.Log("[facade] task %s starts from %s@%s (%s) in %s", taskID, branch, head, state, dir)
}

// KillTask terminates the task's worker, if one is running, and closes its
// journal row. Returns false when nothing was running.
func (o *Orchestrator) KillTask(taskID string) bool {
	info, ok := o.super.Snapshot(taskID)
	killed := o.super.Kill(taskID)
	if killed && ok {
		o.finishKilled(info.Token)
	}
	return killed
}

// KillAll terminates every running worker, bounded by ctx, and closes their
// journal rows.
func (o *Orchestrator) KillAll(ctx context.Context) error {
	tokens := o.liveTokens()
	err := o.super.KillAll(ctx)
	for _, token := range tokens {
		o.finishKilled(token)
	}
	return err
}

// Configure updates the supervisor's spawn-time parameters. Nil fields keep
// their current value.
func (o *Orchestrator) Configure(credentialPath, workerSource *string) {
	o.super.Configure(credentialPath, workerSource)
}

// Subscribe registers an event consumer. A non-positive buffer selects the
// bus default.
func (o *Orchestrator) Subscribe(buffer int) (<-chan events.Event, func()) {
	return o.bus.Subscribe(buffer)
}

// Running reports whether the task has a live worker.
func (o *Orchestrator) Running(taskID string) bool {
	return o.super.Running(taskID)
}

// RunningTasks lists the ids of tasks with live workers.
func (o *Orchestrator) RunningTasks() []string {
	return o.super.RunningTasks()
}

// Snapshot returns a point-in-time view of the task's live run.
func (o *Orchestrator) Snapshot(taskID string) (supervisor.RunInfo, bool) {
	return o.super.Snapshot(taskID)
}

// Registry exposes the profile registry for operator commands.
func (o *Orchestrator) Registry() *profile.Registry {
	return o.registry
}

// Journal exposes the run journal for operator commands.
func (o *Orchestrator) Journal() *journal.Store {
	return o.store
}

// Recover reconciles journal rows left running by a previous process: dead
// runs are marked interrupted and, with restart enabled, spawned again with
// their journaled command line. Runs failing the repository gate are
// reported blocked, never silently restarted or dropped.
func (o *Orchestrator) Recover(ctx context.Context, restart bool) (*recovery.Report, error) {
	mgr := recovery.NewManager(o.store, o.gate, o.gateMode)
	report, err := mgr.Scan(ctx)
	if err != nil || !restart {
		return report, err
	}

	for _, r := range report.Restartable {
		pt := r.ProcessType
		if !pt.Valid() {
			pt = models.ProcessTypeRun
		}
		if _, err := o.launch(ctx, r.TaskID, r.WorkDir, r.Args, nil, pt); err != nil {
			o.logger.Log("[facade] recovery restart of task %s: %v", r.TaskID, err)
		}
	}
	return report, nil
}

// Shutdown kills all workers, drains the event pump, and releases every
// collaborator. Safe to call more than once; only the first call does the
// work.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	var err error
	o.shutdownOnce.Do(func() {
		killErr := o.KillAll(ctx)

		// Closing the bus ends the pump after it drains buffered events.
		o.bus.Close()
		<-o.pumpDone

		o.registry.Close()
		closeErr := o.store.Close()
		o.logger.Log("[facade] orchestrator down")
		o.logger.Close()

		err = killErr
		if err == nil {
			err = closeErr
		}
	})
	return err
}

// liveTokens snapshots the generation tokens of all live runs.
func (o *Orchestrator) liveTokens() []string {
	tasks := o.super.RunningTasks()
	tokens := make([]string, 0, len(tasks))
	for _, id := range tasks {
		if info, ok := o.super.Snapshot(id); ok {
			tokens = append(tokens, info.Token)
		}
	}
	return tokens
}

// finishKilled closes a run's journal row after a deliberate kill. The
// status guard in FinishRun makes this a no-op when the run already ended
// some other way.
func (o *Orchestrator) finishKilled(token string) {
	err := o.store.FinishRun(token, journal.Finish{
		Status:  journal.RunKilled,
		EndedAt: time.Now(),
	})
	if err != nil {
		o.logger.Log("[facade] journal finish for killed run %s: %v", token, err)
	}
}

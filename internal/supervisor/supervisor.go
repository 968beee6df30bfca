// Package supervisor owns the spawn/kill/exit lifecycle of worker processes,
// one per task. It wires worker output through line assembly and phase
// parsing, classifies failed runs, drives reactive profile failover, and
// guarantees exactly one terminal exit event per spawn generation.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/taskdeck/agentexec/internal/envbuild"
	"github.com/taskdeck/agentexec/internal/events"
	"github.com/taskdeck/agentexec/internal/phase"
	"github.com/taskdeck/agentexec/internal/profile"
	"github.com/taskdeck/agentexec/pkg/models"
)

// DefaultGracePeriod is how long a killed process gets to terminate
// gracefully before the whole process group is force-killed.
const DefaultGracePeriod = 5 * time.Second

// CredentialsEnvVar is the variable workers read to locate their
// credentials file.
const CredentialsEnvVar = "AGENTEXEC_CREDENTIALS_FILE"

// Logger receives debug logging. The orchestrator's debug logger satisfies
// it; a nil logger disables logging.
type Logger interface {
	Log(format string, args ...interface{})
}

// Options configures a Supervisor.
type Options struct {
	// Events receives everything the supervisor emits. Required.
	Events events.Sink
	// Registry supplies credential profiles and the failover policy.
	// Optional; without it rate limits are always surfaced unhandled.
	Registry *profile.Registry
	// Heuristic tunes phase progress stepping. Zero value selects the
	// defaults.
	Heuristic phase.Heuristic
	// GracePeriod overrides DefaultGracePeriod.
	GracePeriod time.Duration
	// TailLimit overrides the classifier tail size.
	TailLimit int
	// WorkerSource is the worker program invoked on spawn. When empty,
	// the first spawn arg is the program.
	WorkerSource string
	// CredentialPath is exported to workers via CredentialsEnvVar.
	CredentialPath string
	// Logger receives debug logging. Optional.
	Logger Logger
}

// ProcessRecord tracks one live worker process. At most one exists per task
// id. Records are created on spawn and deleted eagerly on kill, or by the
// exit callback for natural exits.
type ProcessRecord struct {
	TaskID      string
	ProcessType models.ProcessType
	StartedAt   time.Time

	cmd *exec.Cmd
	gen *generation
}

// RunInfo is a point-in-time view of a live run, used by the journal and
// the CLI.
type RunInfo struct {
	TaskID      string
	Token       string
	PID         int
	ProcessType models.ProcessType
	StartedAt   time.Time
}

// Supervisor owns every worker process. All record-map mutations serialize
// through one mutex; per-run work happens on that run's watcher goroutine.
type Supervisor struct {
	events    events.Sink
	registry  *profile.Registry
	heuristic phase.Heuristic
	grace     time.Duration
	tailLimit int
	logger    Logger

	mu             sync.Mutex
	records        map[string]*ProcessRecord
	workerSource   string
	credentialPath string

	// hostEnv is replaced in tests to isolate worker environments.
	hostEnv func() []string
}

// New creates a Supervisor.
func New(opts Options) *Supervisor {
	grace := opts.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Supervisor{
		events:         opts.Events,
		registry:       opts.Registry,
		heuristic:      opts.Heuristic,
		grace:          grace,
		tailLimit:      opts.TailLimit,
		logger:         opts.Logger,
		records:        make(map[string]*ProcessRecord),
		workerSource:   opts.WorkerSource,
		credentialPath: opts.CredentialPath,
		hostEnv:        os.Environ,
	}
}

// Configure updates spawn-time parameters. Nil fields keep their current
// value; pointing at an empty string clears one.
func (s *Supervisor) Configure(credentialPath, workerSource *string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if credentialPath != nil {
		s.credentialPath = *credentialPath
	}
	if workerSource != nil {
		s.workerSource = *workerSource
	}
}

// Spawn starts a worker process for the task and returns its run info
// without waiting for it. A live process for the same task is killed
// synchronously first. Spawn failures emit a failed progress report and an
// error event, and are also returned.
func (s *Supervisor) Spawn(taskID, cwd string, args []string, extraEnv map[string]string, processType models.ProcessType) (RunInfo, error) {
	if taskID == "" {
		return RunInfo{}, fmt.Errorf("spawn: empty task id")
	}

	// One active worker per task: a previous generation is killed before
	// the new one starts.
	s.Kill(taskID)

	s.mu.Lock()
	workerSource := s.workerSource
	credentialPath := s.credentialPath
	s.mu.Unlock()

	program, programArgs, err := resolveCommand(workerSource, args)
	if err != nil {
		s.reportSpawnFailure(taskID, err)
		return RunInfo{}, err
	}

	gen := newGeneration(s.heuristic, s.tailLimit)

	cmd := exec.Command(program, programArgs...)
	cmd.Dir = cwd
	cmd.Env = envbuild.Build(s.hostEnv(), s.spawnEnv(extraEnv, credentialPath))
	// A worker may spawn its own children; signalling the whole group is
	// the only way to tear the tree down.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		err = fmt.Errorf("create stdout pipe: %w", err)
		s.reportSpawnFailure(taskID, err)
		return RunInfo{}, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		err = fmt.Errorf("create stderr pipe: %w", err)
		s.reportSpawnFailure(taskID, err)
		return RunInfo{}, err
	}

	if err := cmd.Start(); err != nil {
		err = fmt.Errorf("start worker: %w", err)
		s.reportSpawnFailure(taskID, err)
		return RunInfo{}, err
	}

	rec := &ProcessRecord{
		TaskID:      taskID,
		ProcessType: processType,
		StartedAt:   time.Now(),
		cmd:         cmd,
		gen:         gen,
	}

	s.mu.Lock()
	s.records[taskID] = rec
	s.mu.Unlock()

	s.logf("spawned task %s pid %d generation %s", taskID, cmd.Process.Pid, gen.token)

	// Initial report: sequence numbering restarts with the generation.
	s.events.Emit(events.ProgressEvent{
		ID:        taskID,
		RunID:     gen.token,
		Progress:  gen.parser.Starting(),
		Timestamp: time.Now(),
	})

	info := RunInfo{
		TaskID:      taskID,
		Token:       gen.token,
		PID:         cmd.Process.Pid,
		ProcessType: processType,
		StartedAt:   rec.StartedAt,
	}

	go s.watch(rec, stdout, stderr)
	return info, nil
}

// Kill terminates the task's worker, if one is running. Returns false when
// no process record exists; killing twice, or killing an unknown task, is a
// safe no-op. The record is deleted eagerly so callers immediately observe
// "not running" while OS teardown completes in the background.
func (s *Supervisor) Kill(taskID string) bool {
	s.mu.Lock()
	rec, ok := s.records[taskID]
	if ok {
		delete(s.records, taskID)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	gen := rec.gen
	gen.killed.Store(true)
	gen.consume()

	s.logf("killing task %s generation %s", taskID, gen.token)

	pid := rec.cmd.Process.Pid
	terminateProcessGroup(rec.cmd, syscall.SIGTERM)

	// Forced termination unless the process confirms exit within the
	// grace window. Tied to this generation: exit handling cancels it.
	gen.setKillTimer(time.AfterFunc(s.grace, func() {
		s.logf("grace period expired for task %s pid %d, force killing", taskID, pid)
		terminateProcessGroup(rec.cmd, syscall.SIGKILL)
	}))

	return true
}

// KillAll kills every running worker and waits until each killed
// generation's teardown finishes or the context expires.
func (s *Supervisor) KillAll(ctx context.Context) error {
	s.mu.Lock()
	recs := make([]*ProcessRecord, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec)
	}
	s.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, rec := range recs {
		s.Kill(rec.TaskID)
		done := rec.gen.done
		g.Go(func() error {
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	return g.Wait()
}

// Running reports whether the task has a live process record.
func (s *Supervisor) Running(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[taskID]
	return ok
}

// RunningTasks returns the task ids with live process records.
func (s *Supervisor) RunningTasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	return ids
}

// Snapshot returns a view of the task's live run.
func (s *Supervisor) Snapshot(taskID string) (RunInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[taskID]
	if !ok {
		return RunInfo{}, false
	}
	return RunInfo{
		TaskID:      rec.TaskID,
		Token:       rec.gen.token,
		PID:         rec.cmd.Process.Pid,
		ProcessType: rec.ProcessType,
		StartedAt:   rec.StartedAt,
	}, true
}

// spawnEnv merges the active profile's overlay, the configured credentials
// path, and the caller's extra variables, in increasing precedence.
func (s *Supervisor) spawnEnv(extra map[string]string, credentialPath string) map[string]string {
	merged := make(map[string]string)

	if s.registry != nil {
		if active, ok := s.registry.Active(); ok {
			for k, v := range active.Env {
				merged[k] = v
			}
			if active.CredentialsFile != "" {
				merged[CredentialsEnvVar] = active.CredentialsFile
			}
			merged["AGENTEXEC_PROFILE"] = active.ID
		}
	}
	if credentialPath != "" {
		merged[CredentialsEnvVar] = credentialPath
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

// reportSpawnFailure emits the failed progress report and error event for a
// process that could not be created. No process record exists at this
// point, so there is nothing to clean up and no exit event will follow.
func (s *Supervisor) reportSpawnFailure(taskID string, err error) {
	s.logf("spawn failed for task %s: %v", taskID, err)

	parser := phase.NewParser(s.heuristic)
	s.events.Emit(events.ProgressEvent{
		ID:        taskID,
		Progress:  parser.Failed(err.Error()),
		Timestamp: time.Now(),
	})
	s.events.Emit(events.ErrorEvent{
		ID:        taskID,
		Message:   fmt.Sprintf("failed to start worker: %v", err),
		Timestamp: time.Now(),
	})
}

// resolveCommand picks the program and argument list for a spawn.
func resolveCommand(workerSource string, args []string) (string, []string, error) {
	if workerSource != "" {
		return workerSource, args, nil
	}
	if len(args) == 0 {
		return "", nil, fmt.Errorf("spawn: no worker program configured and no args given")
	}
	return args[0], args[1:], nil
}

// terminateProcessGroup signals the process group, falling back to the
// process itself when the group signal fails.
func terminateProcessGroup(cmd *exec.Cmd, sig syscall.Signal) {
	if cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if err := syscall.Kill(-pid, sig); err != nil {
		_ = cmd.Process.Signal(sig)
	}
}

func (s *Supervisor) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Log(format, args...)
	}
}

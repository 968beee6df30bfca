package supervisor

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/taskdeck/agentexec/internal/events"
	"github.com/taskdeck/agentexec/internal/profile"
	"github.com/taskdeck/agentexec/pkg/models"
)

// recordingSink collects every emitted event for later inspection.
type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *recordingSink) Emit(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) snapshot() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.Event, len(s.events))
	copy(out, s.events)
	return out
}

// waitFor polls the sink until the predicate holds or the timeout expires.
func (s *recordingSink) waitFor(t *testing.T, timeout time.Duration, ok func([]events.Event) bool) []events.Event {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		evs := s.snapshot()
		if ok(evs) {
			return evs
		}
		if time.Now().After(deadline) {
			types := make([]string, len(evs))
			for i, e := range evs {
				types[i] = e.EventType()
			}
			t.Fatalf("timed out waiting for events, have %d: %v", len(evs), types)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func exitEvents(evs []events.Event, taskID string) []events.ExitEvent {
	var out []events.ExitEvent
	for _, e := range evs {
		if exit, ok := e.(events.ExitEvent); ok && exit.ID == taskID {
			out = append(out, exit)
		}
	}
	return out
}

func progressEvents(evs []events.Event, taskID string) []events.ProgressEvent {
	var out []events.ProgressEvent
	for _, e := range evs {
		if p, ok := e.(events.ProgressEvent); ok && p.ID == taskID {
			out = append(out, p)
		}
	}
	return out
}

func countEventType(evs []events.Event, eventType string) int {
	n := 0
	for _, e := range evs {
		if e.EventType() == eventType {
			n++
		}
	}
	return n
}

func hasExit(taskID string) func([]events.Event) bool {
	return func(evs []events.Event) bool {
		return len(exitEvents(evs, taskID)) > 0
	}
}

// newTestSupervisor builds a supervisor with a short grace period and a
// minimal host environment so host variables cannot leak into assertions.
func newTestSupervisor(sink events.Sink, registry *profile.Registry) *Supervisor {
	s := New(Options{
		Events:      sink,
		Registry:    registry,
		GracePeriod: 200 * time.Millisecond,
	})
	s.hostEnv = func() []string {
		return []string{"PATH=" + os.Getenv("PATH"), "HOME=" + os.Getenv("HOME")}
	}
	return s
}

func failoverRegistry(policy profile.Policy) *profile.Registry {
	return profile.NewRegistry([]profile.Profile{
		{ID: "primary", CredentialsFile: "/tmp/primary-creds.json"},
		{ID: "backup", CredentialsFile: "/tmp/backup-creds.json"},
	}, "primary", policy)
}

func TestSupervisor_KillWithoutProcess(t *testing.T) {
	sink := &recordingSink{}
	s := newTestSupervisor(sink, nil)

	if s.Kill("no-such-task") {
		t.Error("Kill of unknown task should return false")
	}
	// Killing twice in a row is a safe no-op.
	if s.Kill("no-such-task") {
		t.Error("second Kill should also return false")
	}
	if len(sink.snapshot()) != 0 {
		t.Errorf("Kill of unknown task should emit nothing, got %d events", len(sink.snapshot()))
	}
}

func TestSupervisor_SpawnError(t *testing.T) {
	sink := &recordingSink{}
	s := newTestSupervisor(sink, nil)

	_, err := s.Spawn("task-1", t.TempDir(), []string{"/nonexistent/agentexec-worker"}, nil, models.ProcessTypeRun)
	if err == nil {
		t.Fatal("Spawn with missing executable should return an error")
	}
	if s.Running("task-1") {
		t.Error("failed spawn should not leave a process record")
	}

	evs := sink.snapshot()
	progress := progressEvents(evs, "task-1")
	if len(progress) != 1 {
		t.Fatalf("progress events = %d, want 1", len(progress))
	}
	if progress[0].Progress.Phase != models.PhaseFailed {
		t.Errorf("Phase = %q, want %q", progress[0].Progress.Phase, models.PhaseFailed)
	}
	if countEventType(evs, events.EventTypeError) != 1 {
		t.Errorf("error events = %d, want 1", countEventType(evs, events.EventTypeError))
	}
	// A process that never ran produces no exit event.
	if len(exitEvents(evs, "task-1")) != 0 {
		t.Error("failed spawn should not emit an exit event")
	}
}

func TestSupervisor_EmptyTaskID(t *testing.T) {
	sink := &recordingSink{}
	s := newTestSupervisor(sink, nil)

	if _, err := s.Spawn("", t.TempDir(), []string{"sh", "-c", "exit 0"}, nil, models.ProcessTypeRun); err == nil {
		t.Error("Spawn with empty task id should return an error")
	}
}

func TestSupervisor_RunToCompletion(t *testing.T) {
	sink := &recordingSink{}
	s := newTestSupervisor(sink, nil)

	_, err := s.Spawn("task-1", t.TempDir(), []string{"sh", "-c", `echo "A__EXEC_PHASE__planning"; exit 0`}, nil, models.ProcessTypeRun)
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	evs := sink.waitFor(t, 5*time.Second, hasExit("task-1"))

	exits := exitEvents(evs, "task-1")
	if len(exits) != 1 {
		t.Fatalf("exit events = %d, want 1", len(exits))
	}
	exit := exits[0]
	if exit.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", exit.ExitCode)
	}
	if exit.ProcessType != models.ProcessTypeRun {
		t.Errorf("ProcessType = %q, want %q", exit.ProcessType, models.ProcessTypeRun)
	}
	if exit.Outcome.Classification != nil {
		t.Error("clean exit should not be classified")
	}
	if exit.Outcome.FinalPhase != models.PhasePlanning {
		t.Errorf("FinalPhase = %q, want %q", exit.Outcome.FinalPhase, models.PhasePlanning)
	}

	progress := progressEvents(evs, "task-1")
	if len(progress) != 2 {
		t.Fatalf("progress events = %d, want 2 (starting, planning)", len(progress))
	}
	if progress[0].Progress.Phase != models.PhaseStarting || progress[0].Progress.SequenceNumber != 0 {
		t.Errorf("first progress = %q seq %d, want starting seq 0",
			progress[0].Progress.Phase, progress[0].Progress.SequenceNumber)
	}
	if progress[1].Progress.Phase != models.PhasePlanning {
		t.Errorf("second progress = %q, want %q", progress[1].Progress.Phase, models.PhasePlanning)
	}
	if progress[1].Progress.PhaseProgress != 10 {
		t.Errorf("planning PhaseProgress = %d, want 10", progress[1].Progress.PhaseProgress)
	}

	if s.Running("task-1") {
		t.Error("task should not be running after exit")
	}
}

func TestSupervisor_AuthFailureSurfaced(t *testing.T) {
	sink := &recordingSink{}
	s := newTestSupervisor(sink, nil)

	_, err := s.Spawn("task-1", t.TempDir(), []string{"sh", "-c", `echo "Error: invalid API key provided" >&2; exit 1`}, nil, models.ProcessTypeRun)
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	evs := sink.waitFor(t, 5*time.Second, hasExit("task-1"))

	if countEventType(evs, events.EventTypeAuthFailure) != 1 {
		t.Fatalf("auth-failure events = %d, want 1", countEventType(evs, events.EventTypeAuthFailure))
	}
	if countEventType(evs, events.EventTypeRateLimit) != 0 {
		t.Error("auth failure must not also emit a rate-limit event")
	}

	var auth events.AuthFailureEvent
	for _, e := range evs {
		if a, ok := e.(events.AuthFailureEvent); ok {
			auth = a
		}
	}
	if auth.Info.FailureType != models.AuthInvalidCredentials {
		t.Errorf("FailureType = %q, want %q", auth.Info.FailureType, models.AuthInvalidCredentials)
	}

	exits := exitEvents(evs, "task-1")
	if len(exits) != 1 {
		t.Fatalf("exit events = %d, want 1", len(exits))
	}
	if exits[0].ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", exits[0].ExitCode)
	}
	cls := exits[0].Outcome.Classification
	if cls == nil || cls.Kind != models.FailureAuth {
		t.Fatalf("Classification = %+v, want auth_failure", cls)
	}
	if exits[0].Outcome.FinalPhase != models.PhaseFailed {
		t.Errorf("FinalPhase = %q, want %q", exits[0].Outcome.FinalPhase, models.PhaseFailed)
	}
}

func TestSupervisor_RateLimitFailover(t *testing.T) {
	sink := &recordingSink{}
	registry := failoverRegistry(profile.Policy{Enabled: true, OnRateLimit: true})
	s := newTestSupervisor(sink, registry)

	_, err := s.Spawn("task-1", t.TempDir(), []string{"sh", "-c", `echo "Error: rate limit exceeded" >&2; exit 1`}, nil, models.ProcessTypeRun)
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	evs := sink.waitFor(t, 5*time.Second, hasExit("task-1"))

	var rl events.RateLimitEvent
	found := false
	for _, e := range evs {
		if r, ok := e.(events.RateLimitEvent); ok {
			rl = r
			found = true
		}
	}
	if !found {
		t.Fatal("no rate-limit event emitted")
	}
	if rl.Swap == nil || !rl.Swap.WasAutoSwapped {
		t.Fatalf("Swap = %+v, want auto-swapped decision", rl.Swap)
	}
	if rl.Swap.FromProfile != "primary" || rl.Swap.ToProfile != "backup" {
		t.Errorf("swap %s -> %s, want primary -> backup", rl.Swap.FromProfile, rl.Swap.ToProfile)
	}
	if rl.Swap.Reason != models.SwapReasonReactive {
		t.Errorf("Reason = %q, want %q", rl.Swap.Reason, models.SwapReasonReactive)
	}
	if registry.ActiveID() != "backup" {
		t.Errorf("active profile = %q, want %q", registry.ActiveID(), "backup")
	}

	if countEventType(evs, events.EventTypeSwapRestart) != 1 {
		t.Fatalf("swap-restart events = %d, want 1", countEventType(evs, events.EventTypeSwapRestart))
	}

	// Handled failure: no synthetic failed transition, the restart takes
	// over from here.
	exits := exitEvents(evs, "task-1")
	if len(exits) != 1 {
		t.Fatalf("exit events = %d, want 1", len(exits))
	}
	if exits[0].Outcome.FinalPhase == models.PhaseFailed {
		t.Error("handled rate limit should not mark the run failed")
	}
	if exits[0].Outcome.Swap == nil || exits[0].Outcome.Swap.ToProfile != "backup" {
		t.Errorf("exit outcome swap = %+v, want swap to backup", exits[0].Outcome.Swap)
	}
}

func TestSupervisor_RateLimitFailoverDisabled(t *testing.T) {
	sink := &recordingSink{}
	registry := failoverRegistry(profile.Policy{Enabled: false})
	s := newTestSupervisor(sink, registry)

	_, err := s.Spawn("task-1", t.TempDir(), []string{"sh", "-c", `echo "rate limit reached, try again at 10pm" >&2; exit 1`}, nil, models.ProcessTypeRun)
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	evs := sink.waitFor(t, 5*time.Second, hasExit("task-1"))

	var rl events.RateLimitEvent
	found := false
	for _, e := range evs {
		if r, ok := e.(events.RateLimitEvent); ok {
			rl = r
			found = true
		}
	}
	if !found {
		t.Fatal("no rate-limit event emitted")
	}
	if rl.Swap != nil {
		t.Errorf("Swap = %+v, want nil with failover disabled", rl.Swap)
	}
	if rl.Info.ResetHint == "" {
		t.Error("ResetHint should be extracted from the output")
	}
	if registry.ActiveID() != "primary" {
		t.Errorf("active profile = %q, disabled failover must not mutate it", registry.ActiveID())
	}
	if countEventType(evs, events.EventTypeSwapRestart) != 0 {
		t.Error("disabled failover must not request a restart")
	}

	exits := exitEvents(evs, "task-1")
	if len(exits) != 1 {
		t.Fatalf("exit events = %d, want 1", len(exits))
	}
	if exits[0].Outcome.FinalPhase != models.PhaseFailed {
		t.Errorf("FinalPhase = %q, want %q for unhandled rate limit", exits[0].Outcome.FinalPhase, models.PhaseFailed)
	}
}

func TestSupervisor_ConcurrentRateLimitsOneAlternative(t *testing.T) {
	sink := &recordingSink{}
	registry := failoverRegistry(profile.Policy{Enabled: true, OnRateLimit: true})
	s := newTestSupervisor(sink, registry)

	worker := []string{"sh", "-c", `echo "Error: 429 too many requests" >&2; exit 1`}
	for _, id := range []string{"task-a", "task-b"} {
		if _, err := s.Spawn(id, t.TempDir(), worker, nil, models.ProcessTypeRun); err != nil {
			t.Fatalf("Spawn %s failed: %v", id, err)
		}
	}

	evs := sink.waitFor(t, 5*time.Second, func(evs []events.Event) bool {
		return len(exitEvents(evs, "task-a")) > 0 && len(exitEvents(evs, "task-b")) > 0
	})

	swapped, manual := 0, 0
	for _, e := range evs {
		rl, ok := e.(events.RateLimitEvent)
		if !ok {
			continue
		}
		if rl.Swap != nil && rl.Swap.WasAutoSwapped {
			swapped++
		} else {
			manual++
		}
	}
	// One alternative profile exists, so exactly one task wins the swap
	// and the other is surfaced for the operator.
	if swapped != 1 {
		t.Errorf("auto-swapped rate-limit events = %d, want exactly 1", swapped)
	}
	if manual != 1 {
		t.Errorf("manual rate-limit events = %d, want exactly 1", manual)
	}
	if countEventType(evs, events.EventTypeSwapRestart) != 1 {
		t.Errorf("swap-restart events = %d, want exactly 1", countEventType(evs, events.EventTypeSwapRestart))
	}
	if registry.ActiveID() != "backup" {
		t.Errorf("active profile = %q, want %q", registry.ActiveID(), "backup")
	}
}

func TestSupervisor_KillSuppressesExit(t *testing.T) {
	sink := &recordingSink{}
	s := newTestSupervisor(sink, nil)

	_, err := s.Spawn("task-1", t.TempDir(), []string{"sh", "-c", "sleep 30"}, nil, models.ProcessTypeRun)
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	if !s.Kill("task-1") {
		t.Fatal("Kill of running task should return true")
	}
	// Record is deleted eagerly even though teardown is still completing.
	if s.Running("task-1") {
		t.Error("task should report not running immediately after Kill")
	}
	if s.Kill("task-1") {
		t.Error("second Kill should return false")
	}

	// Give the watcher time to observe the death; the exit must stay
	// suppressed.
	time.Sleep(500 * time.Millisecond)
	if n := len(exitEvents(sink.snapshot(), "task-1")); n != 0 {
		t.Errorf("exit events after kill = %d, want 0", n)
	}
}

func TestSupervisor_SpawnReplacesRunningProcess(t *testing.T) {
	sink := &recordingSink{}
	s := newTestSupervisor(sink, nil)

	if _, err := s.Spawn("task-1", t.TempDir(), []string{"sh", "-c", "sleep 30"}, nil, models.ProcessTypeRun); err != nil {
		t.Fatalf("first Spawn failed: %v", err)
	}
	if _, err := s.Spawn("task-1", t.TempDir(), []string{"sh", "-c", "exit 0"}, nil, models.ProcessTypeRun); err != nil {
		t.Fatalf("second Spawn failed: %v", err)
	}

	evs := sink.waitFor(t, 5*time.Second, hasExit("task-1"))
	// Settle time for any stray exit from the killed generation.
	time.Sleep(300 * time.Millisecond)
	evs = sink.snapshot()

	exits := exitEvents(evs, "task-1")
	if len(exits) != 1 {
		t.Fatalf("exit events = %d, want 1 (first generation suppressed)", len(exits))
	}
	if exits[0].ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0 from the replacement process", exits[0].ExitCode)
	}

	starts := 0
	for _, p := range progressEvents(evs, "task-1") {
		if p.Progress.Phase == models.PhaseStarting {
			starts++
			if p.Progress.SequenceNumber != 0 {
				t.Errorf("starting SequenceNumber = %d, want 0", p.Progress.SequenceNumber)
			}
		}
	}
	if starts != 2 {
		t.Errorf("starting events = %d, want 2", starts)
	}
}

func TestSupervisor_RespawnResetsSequence(t *testing.T) {
	sink := &recordingSink{}
	s := newTestSupervisor(sink, nil)

	worker := []string{"sh", "-c", `echo "A__EXEC_PHASE__planning"; echo "A__EXEC_PHASE__planning"; exit 0`}

	if _, err := s.Spawn("task-1", t.TempDir(), worker, nil, models.ProcessTypeRun); err != nil {
		t.Fatalf("first Spawn failed: %v", err)
	}
	sink.waitFor(t, 5*time.Second, hasExit("task-1"))

	if _, err := s.Spawn("task-1", t.TempDir(), worker, nil, models.ProcessTypeRun); err != nil {
		t.Fatalf("second Spawn failed: %v", err)
	}
	evs := sink.waitFor(t, 5*time.Second, func(evs []events.Event) bool {
		return len(exitEvents(evs, "task-1")) == 2
	})

	var seqs []int
	for _, p := range progressEvents(evs, "task-1") {
		seqs = append(seqs, p.Progress.SequenceNumber)
	}
	want := []int{0, 1, 2, 0, 1, 2}
	if len(seqs) != len(want) {
		t.Fatalf("progress events = %d, want %d", len(seqs), len(want))
	}
	for i := range want {
		if seqs[i] != want[i] {
			t.Errorf("sequence[%d] = %d, want %d (sequence must reset on respawn)", i, seqs[i], want[i])
		}
	}
}

func TestSupervisor_PartialFinalLineFlushed(t *testing.T) {
	sink := &recordingSink{}
	s := newTestSupervisor(sink, nil)

	_, err := s.Spawn("task-1", t.TempDir(), []string{"sh", "-c", `printf "unterminated tail line"; exit 1`}, nil, models.ProcessTypeRun)
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	evs := sink.waitFor(t, 5*time.Second, hasExit("task-1"))

	foundLine := false
	for _, e := range evs {
		if log, ok := e.(events.LogEvent); ok && log.Line == "unterminated tail line" {
			foundLine = true
		}
	}
	if !foundLine {
		t.Error("partial final line should be flushed as a log event")
	}

	exits := exitEvents(evs, "task-1")
	if len(exits) != 1 {
		t.Fatalf("exit events = %d, want 1", len(exits))
	}
	cls := exits[0].Outcome.Classification
	if cls == nil || cls.Kind != models.FailureGeneric {
		t.Fatalf("Classification = %+v, want generic", cls)
	}
	if !strings.Contains(cls.Detail, "unterminated tail line") {
		t.Errorf("Detail = %q, should include the flushed line", cls.Detail)
	}
}

func TestSupervisor_WorkerEnvironment(t *testing.T) {
	sink := &recordingSink{}
	registry := profile.NewRegistry([]profile.Profile{
		{ID: "default", CredentialsFile: "/tmp/creds.json", Env: map[string]string{"ANTHROPIC_MODEL": "claude-test"}},
	}, "default", profile.Policy{})
	s := newTestSupervisor(sink, registry)

	worker := []string{"sh", "-c", `echo "cred=$AGENTEXEC_CREDENTIALS_FILE model=$ANTHROPIC_MODEL extra=$AGENTEXEC_EXTRA secret=$SECRET_TOKEN"`}
	extra := map[string]string{"AGENTEXEC_EXTRA": "custom"}
	s.hostEnv = func() []string {
		return []string{"PATH=" + os.Getenv("PATH"), "SECRET_TOKEN=leak-me"}
	}

	if _, err := s.Spawn("task-1", t.TempDir(), worker, extra, models.ProcessTypeRun); err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	evs := sink.waitFor(t, 5*time.Second, hasExit("task-1"))

	want := "cred=/tmp/creds.json model=claude-test extra=custom secret="
	found := false
	for _, e := range evs {
		if log, ok := e.(events.LogEvent); ok && log.Line == want {
			found = true
		}
	}
	if !found {
		var lines []string
		for _, e := range evs {
			if log, ok := e.(events.LogEvent); ok {
				lines = append(lines, log.Line)
			}
		}
		t.Errorf("worker environment line not found, want %q, log lines: %q", want, lines)
	}
}

func TestSupervisor_ConfigureWorkerSource(t *testing.T) {
	sink := &recordingSink{}
	s := newTestSupervisor(sink, nil)

	source := "sh"
	s.Configure(nil, &source)

	if _, err := s.Spawn("task-1", t.TempDir(), []string{"-c", "exit 0"}, nil, models.ProcessTypeUtility); err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	evs := sink.waitFor(t, 5*time.Second, hasExit("task-1"))

	exits := exitEvents(evs, "task-1")
	if exits[0].ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", exits[0].ExitCode)
	}
	if exits[0].ProcessType != models.ProcessTypeUtility {
		t.Errorf("ProcessType = %q, want %q", exits[0].ProcessType, models.ProcessTypeUtility)
	}
}

func TestSupervisor_SnapshotAndRunningTasks(t *testing.T) {
	sink := &recordingSink{}
	s := newTestSupervisor(sink, nil)

	spawned, err := s.Spawn("task-1", t.TempDir(), []string{"sh", "-c", "sleep 30"}, nil, models.ProcessTypeResume)
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	defer s.Kill("task-1")

	info, ok := s.Snapshot("task-1")
	if !ok {
		t.Fatal("Snapshot should find the running task")
	}
	if info.PID <= 0 {
		t.Errorf("PID = %d, want > 0", info.PID)
	}
	if info.Token == "" {
		t.Error("Token should not be empty")
	}
	if info.ProcessType != models.ProcessTypeResume {
		t.Errorf("ProcessType = %q, want %q", info.ProcessType, models.ProcessTypeResume)
	}
	if info.Token != spawned.Token || info.PID != spawned.PID {
		t.Errorf("Snapshot = %+v, want the info Spawn returned %+v", info, spawned)
	}

	tasks := s.RunningTasks()
	if len(tasks) != 1 || tasks[0] != "task-1" {
		t.Errorf("RunningTasks = %v, want [task-1]", tasks)
	}

	if _, ok := s.Snapshot("absent"); ok {
		t.Error("Snapshot of unknown task should report not found")
	}
}

func TestSupervisor_KillAll(t *testing.T) {
	sink := &recordingSink{}
	s := newTestSupervisor(sink, nil)

	for _, id := range []string{"task-a", "task-b"} {
		if _, err := s.Spawn(id, t.TempDir(), []string{"sh", "-c", "sleep 30"}, nil, models.ProcessTypeRun); err != nil {
			t.Fatalf("Spawn %s failed: %v", id, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.KillAll(ctx); err != nil {
		t.Fatalf("KillAll failed: %v", err)
	}

	if s.Running("task-a") || s.Running("task-b") {
		t.Error("no task should be running after KillAll")
	}
	// KillAll waits for teardown, so suppressed exits are settled here.
	for _, e := range sink.snapshot() {
		if e.EventType() == events.EventTypeExit {
			t.Error("KillAll must suppress exit events")
		}
	}
}

func TestResolveCommand(t *testing.T) {
	tests := []struct {
		name         string
		workerSource string
		args         []string
		wantProgram  string
		wantArgs     int
		wantErr      bool
	}{
		{"configured source", "/usr/bin/worker", []string{"--task", "x"}, "/usr/bin/worker", 2, false},
		{"args carry program", "", []string{"sh", "-c", "true"}, "sh", 2, false},
		{"nothing to run", "", nil, "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			program, args, err := resolveCommand(tt.workerSource, tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveCommand failed: %v", err)
			}
			if program != tt.wantProgram {
				t.Errorf("program = %q, want %q", program, tt.wantProgram)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("args = %d, want %d", len(args), tt.wantArgs)
			}
		})
	}
}

func TestExitCodeFromWait(t *testing.T) {
	if got := exitCodeFromWait(nil); got != 0 {
		t.Errorf("exitCodeFromWait(nil) = %d, want 0", got)
	}

	cmd := exec.Command("sh", "-c", "exit 7")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected exit 7 to produce an error")
	}
	if got := exitCodeFromWait(err); got != 7 {
		t.Errorf("exitCodeFromWait = %d, want 7", got)
	}
}

// Package recovery reconciles the run journal with reality at startup.
// Rows left in the running state by a crashed or killed orchestrator are
// probed for liveness; dead ones are marked interrupted and re-checked
// against source control gating before they are offered for restart.
package recovery

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/taskdeck/agentexec/internal/gate"
	"github.com/taskdeck/agentexec/internal/journal"
)

// Gater checks whether a directory passes source control gating. gate.Gate
// satisfies it.
type Gater interface {
	Check(ctx context.Context, dir string, mode gate.Mode) error
}

// BlockedRun is an interrupted run whose directory failed re-gating. It is
// recovered in the journal but must not be restarted automatically.
type BlockedRun struct {
	Run    journal.Run
	Reason string
}

// Report summarizes one reconciliation pass.
type Report struct {
	// StillAlive are runs whose process is actually running. Their rows
	// are left untouched.
	StillAlive []journal.Run
	// Restartable are interrupted runs whose directory still passes
	// gating.
	Restartable []journal.Run
	// Blocked are interrupted runs that failed re-gating.
	Blocked []BlockedRun
}

// Empty reports whether the pass found nothing to reconcile.
func (r *Report) Empty() bool {
	return len(r.StillAlive) == 0 && len(r.Restartable) == 0 && len(r.Blocked) == 0
}

// Manager runs reconciliation passes against one journal.
type Manager struct {
	store *journal.Store
	gate  Gater
	mode  gate.Mode

	// alive is replaced in tests.
	alive func(pid int) bool
	now   func() time.Time
}

// NewManager creates a Manager that re-gates interrupted runs with the given
// mode.
func NewManager(store *journal.Store, g Gater, mode gate.Mode) *Manager {
	return &Manager{
		store: store,
		gate:  g,
		mode:  mode,
		alive: isProcessAlive,
		now:   time.Now,
	}
}

// Scan finds journal rows still marked running, probes their processes, and
// marks dead ones interrupted. Interrupted runs are re-gated: those that
// pass are restartable, the rest are reported blocked with the gate's
// message.
func (m *Manager) Scan(ctx context.Context) (*Report, error) {
	running := journal.RunRunning
	runs, err := m.store.ListRuns(&running)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, r := range runs {
		if r.PID > 0 && m.alive(r.PID) {
			report.StillAlive = append(report.StillAlive, r)
			continue
		}

		if err := m.store.MarkInterrupted(r.ID, m.now()); err != nil {
			return nil, err
		}
		r.Status = journal.RunInterrupted

		if r.WorkDir == "" {
			report.Blocked = append(report.Blocked, BlockedRun{
				Run:    r,
				Reason: "no recorded working directory",
			})
			continue
		}
		if m.gate != nil {
			if err := m.gate.Check(ctx, r.WorkDir, m.mode); err != nil {
				report.Blocked = append(report.Blocked, BlockedRun{
					Run:    r,
					Reason: err.Error(),
				})
				continue
			}
		}

		report.Restartable = append(report.Restartable, r)
	}

	return report, nil
}

// isProcessAlive checks if a process with the given PID is still running.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 probes existence without delivering anything
	err = process.Signal(syscall.Signal(0))
	return err == nil
}

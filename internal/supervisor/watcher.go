package supervisor

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/taskdeck/agentexec/internal/classify"
	"github.com/taskdeck/agentexec/internal/events"
	"github.com/taskdeck/agentexec/internal/stream"
	"github.com/taskdeck/agentexec/pkg/models"
)

const drainBufferSize = 32 * 1024

// watch drains both output streams until EOF, waits for the process, and
// runs exit handling. One watcher goroutine exists per spawn generation.
func (s *Supervisor) watch(rec *ProcessRecord, stdout, stderr io.Reader) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.drain(rec, stream.Stdout, stdout)
	}()
	go func() {
		defer wg.Done()
		s.drain(rec, stream.Stderr, stderr)
	}()

	// Both pipes must reach EOF before Wait closes them.
	wg.Wait()
	err := rec.cmd.Wait()

	s.handleExit(rec, err)
}

// drain reads raw chunks from one stream and feeds them through the line
// assembler. Chunks are read as-is; the assembler owns line splitting, so
// a terminator landing on a read boundary is handled correctly.
func (s *Supervisor) drain(rec *ProcessRecord, src stream.Source, r io.Reader) {
	buf := make([]byte, drainBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, line := range rec.gen.assembler.Feed(src, buf[:n]) {
				s.deliverLine(rec, src, line)
			}
		}
		if err != nil {
			return
		}
	}
}

// deliverLine records one completed line and emits its events. The whole
// step holds parseMu: both stream goroutines feed the same parser, and
// progress events must reach the sink in sequence-number order.
func (s *Supervisor) deliverLine(rec *ProcessRecord, src stream.Source, line string) {
	gen := rec.gen
	gen.parseMu.Lock()
	defer gen.parseMu.Unlock()

	gen.tail.WriteLine(line)

	s.events.Emit(events.LogEvent{
		ID:        rec.TaskID,
		Source:    src,
		Line:      line,
		Timestamp: time.Now(),
	})
	if progress, ok := gen.parser.Parse(line); ok {
		s.events.Emit(events.ProgressEvent{
			ID:        rec.TaskID,
			RunID:     gen.token,
			Progress:  progress,
			Timestamp: time.Now(),
		})
	}
}

// handleExit runs once per generation after the process has been reaped.
func (s *Supervisor) handleExit(rec *ProcessRecord, waitErr error) {
	gen := rec.gen
	defer close(gen.done)

	// Residual partial lines first, so nothing the worker wrote is lost
	// and the classifier sees the complete tail.
	s.flushResidual(rec)

	// The process is gone; a pending forced kill has nothing left to do.
	gen.stopKillTimer()

	if gen.killed.Load() {
		// Deliberately terminated. The kill already consumed the
		// generation and deleted the record; this exit must not
		// double-fire downstream events.
		s.logf("discarding exit for killed generation %s task %s", gen.token, rec.TaskID)
		return
	}
	if !gen.consume() {
		s.logf("discarding duplicate exit for generation %s task %s", gen.token, rec.TaskID)
		return
	}

	s.mu.Lock()
	if cur, ok := s.records[rec.TaskID]; ok && cur == rec {
		delete(s.records, rec.TaskID)
	}
	s.mu.Unlock()

	exitCode := exitCodeFromWait(waitErr)
	s.logf("task %s generation %s exited with code %d", rec.TaskID, gen.token, exitCode)

	outcome := models.RunOutcome{ExitCode: &exitCode}

	handled := false
	if exitCode != 0 {
		cls := classify.Classify(gen.tail.String(), exitCode)
		outcome.Classification = &cls

		switch cls.Kind {
		case models.FailureRateLimited:
			handled = s.handleRateLimit(rec, cls, &outcome)
		case models.FailureAuth:
			s.events.Emit(events.AuthFailureEvent{
				ID:        rec.TaskID,
				Info:      *cls.Auth,
				Timestamp: time.Now(),
			})
		default:
			s.events.Emit(events.ErrorEvent{
				ID:        rec.TaskID,
				Message:   cls.Detail,
				Timestamp: time.Now(),
			})
		}
	}

	if exitCode != 0 && !handled {
		gen.parseMu.Lock()
		terminal := gen.parser.Current().Terminal()
		var progress models.ExecutionProgress
		if !terminal {
			progress = gen.parser.Failed(fmt.Sprintf("worker exited with code %d", exitCode))
		}
		gen.parseMu.Unlock()

		if !terminal {
			s.events.Emit(events.ProgressEvent{
				ID:        rec.TaskID,
				RunID:     gen.token,
				Progress:  progress,
				Timestamp: time.Now(),
			})
		}
	}

	gen.parseMu.Lock()
	outcome.FinalPhase = gen.parser.Current()
	gen.parseMu.Unlock()

	// Exactly one terminal signal per run, whatever the classification
	// decided.
	s.events.Emit(events.ExitEvent{
		ID:          rec.TaskID,
		RunID:       gen.token,
		ExitCode:    exitCode,
		ProcessType: rec.ProcessType,
		Outcome:     outcome,
		Timestamp:   time.Now(),
	})
}

// handleRateLimit marks the limited profile, attempts the reactive swap,
// and emits the rate-limit event. Returns true when the swap succeeded and
// a restart was requested, meaning the failure is handled and no synthetic
// failed transition should follow.
func (s *Supervisor) handleRateLimit(rec *ProcessRecord, cls models.FailureClassification, outcome *models.RunOutcome) bool {
	info := *cls.RateLimit

	if s.registry == nil {
		s.events.Emit(events.RateLimitEvent{
			ID:        rec.TaskID,
			Info:      info,
			Timestamp: time.Now(),
		})
		return false
	}

	if info.LimitedProfile == "" {
		info.LimitedProfile = s.registry.ActiveID()
	}
	s.registry.MarkLimited(info.LimitedProfile, time.Now().Add(s.registry.Policy().Cooldown()))

	decision, swapped := s.registry.SwapForRateLimit(info.LimitedProfile)
	if !swapped {
		s.logf("rate limit on profile %s for task %s: no failover, surfacing for operator", info.LimitedProfile, rec.TaskID)
		s.events.Emit(events.RateLimitEvent{
			ID:        rec.TaskID,
			Info:      info,
			Timestamp: time.Now(),
		})
		return false
	}

	s.logf("rate limit on profile %s for task %s: swapped to %s, requesting restart", info.LimitedProfile, rec.TaskID, decision.ToProfile)
	outcome.Swap = &decision
	s.events.Emit(events.RateLimitEvent{
		ID:        rec.TaskID,
		Info:      info,
		Swap:      &decision,
		Timestamp: time.Now(),
	})
	s.events.Emit(events.SwapRestartEvent{
		ID:           rec.TaskID,
		NewProfileID: decision.ToProfile,
		Timestamp:    time.Now(),
	})
	return true
}

// flushResidual pushes any partial final line out of the assembler.
func (s *Supervisor) flushResidual(rec *ProcessRecord) {
	for _, src := range []stream.Source{stream.Stdout, stream.Stderr} {
		if line, ok := rec.gen.assembler.Flush(src); ok {
			s.deliverLine(rec, src, line)
		}
	}
}

// exitCodeFromWait maps a Wait error to a numeric exit code. Signal deaths
// report 128+signal, matching shell convention.
func exitCodeFromWait(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
	}
	return 1
}

package orchestrator

import (
	"github.com/taskdeck/agentexec/internal/events"
	"github.com/taskdeck/agentexec/internal/journal"
)

// pump applies supervisor events to the journal until the bus closes. It is
// the journal's only writer for progress and natural exits; run IDs on the
// events keep late reports from a superseded generation off the current
// row.
func (o *Orchestrator) pump(ch <-chan events.Event) {
	defer close(o.pumpDone)

	for ev := range ch {
		switch e := ev.(type) {
		case events.ProgressEvent:
			// An empty run id means the process never started, so
			// there is no row to update.
			if e.RunID == "" {
				continue
			}
			err := o.store.UpdateProgress(e.RunID, e.Progress.Phase, e.Progress.OverallProgress)
			if err != nil {
				o.logger.Log("[pump] progress for run %s: %v", e.RunID, err)
			}
		case events.ExitEvent:
			if e.RunID == "" {
				continue
			}
			if err := o.store.FinishRun(e.RunID, finishForExit(e)); err != nil {
				o.logger.Log("[pump] finish for run %s: %v", e.RunID, err)
			}
		}
	}
}

// finishForExit translates a terminal exit event into journal fields.
func finishForExit(e events.ExitEvent) journal.Finish {
	code := e.ExitCode
	fin := journal.Finish{
		Status:     journal.RunCompleted,
		ExitCode:   &code,
		FinalPhase: e.Outcome.FinalPhase,
		EndedAt:    e.Timestamp,
	}
	if e.ExitCode != 0 {
		fin.Status = journal.RunFailed
	}

	if cls := e.Outcome.Classification; cls != nil {
		fin.FailureKind = cls.Kind
		switch {
		case cls.RateLimit != nil:
			fin.FailureDetail = cls.RateLimit.Message
		case cls.Auth != nil:
			fin.FailureDetail = cls.Auth.Message
		default:
			fin.FailureDetail = cls.Detail
		}
	}
	if swap := e.Outcome.Swap; swap != nil && swap.WasAutoSwapped {
		fin.SwappedTo = swap.ToProfile
	}
	return fin
}

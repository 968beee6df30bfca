package models

// ExecutionPhase represents a named stage of a single worker run.
type ExecutionPhase string

const (
	// PhaseStarting indicates the worker process has been spawned but has
	// not yet reported a phase of its own.
	PhaseStarting ExecutionPhase = "starting"
	// PhasePlanning indicates the worker is analyzing the task.
	PhasePlanning ExecutionPhase = "planning"
	// PhaseImplementing indicates the worker is making changes.
	PhaseImplementing ExecutionPhase = "implementing"
	// PhaseVerifying indicates the worker is checking its changes.
	PhaseVerifying ExecutionPhase = "verifying"
	// PhaseComplete indicates the run finished successfully.
	PhaseComplete ExecutionPhase = "complete"
	// PhaseFailed indicates the run failed.
	PhaseFailed ExecutionPhase = "failed"
)

// Valid returns true if the phase is a known value.
func (p ExecutionPhase) Valid() bool {
	switch p {
	case PhaseStarting, PhasePlanning, PhaseImplementing, PhaseVerifying, PhaseComplete, PhaseFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if the phase ends a run. A failed phase is only
// superseded by a fresh spawn.
func (p ExecutionPhase) Terminal() bool {
	return p == PhaseComplete || p == PhaseFailed
}

// ExecutionProgress is a single progress report for a running task. Instances
// are ephemeral: they are emitted and not retained by the orchestrator.
type ExecutionProgress struct {
	// Phase is the stage the worker reported most recently.
	Phase ExecutionPhase `json:"phase"`
	// PhaseProgress is a heuristic 0-100 position within the phase.
	PhaseProgress int `json:"phase_progress"`
	// OverallProgress maps the phase and phase progress onto 0-100.
	OverallProgress int `json:"overall_progress"`
	// CurrentSubtask names what the worker is doing, if it said.
	CurrentSubtask string `json:"current_subtask,omitempty"`
	// Message is free-form text attached to the last phase marker.
	Message string `json:"message,omitempty"`
	// SequenceNumber orders reports within one spawn. Consumers discard
	// reports that arrive with a lower number than one already seen.
	SequenceNumber int `json:"sequence_number"`
}

// ProcessType distinguishes the kinds of worker process the supervisor
// spawns on behalf of a task.
type ProcessType string

const (
	// ProcessTypeRun is a full task execution.
	ProcessTypeRun ProcessType = "run"
	// ProcessTypeResume continues a previously interrupted execution.
	ProcessTypeResume ProcessType = "resume"
	// ProcessTypeUtility is a short-lived auxiliary invocation.
	ProcessTypeUtility ProcessType = "utility"
)

// Valid returns true if the process type is a known value.
func (t ProcessType) Valid() bool {
	switch t {
	case ProcessTypeRun, ProcessTypeResume, ProcessTypeUtility:
		return true
	default:
		return false
	}
}

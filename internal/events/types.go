// Package events defines the typed event surface between the orchestrator
// core and its collaborators (CLI, monitor, journal). Every event kind is a
// concrete struct implementing Event, so consumers switch over a closed set
// instead of inspecting string payloads.
package events

import (
	"time"

	"github.com/taskdeck/agentexec/internal/stream"
	"github.com/taskdeck/agentexec/pkg/models"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
}

// Event type constants
const (
	EventTypeLog         = "log"
	EventTypeProgress    = "execution-progress"
	EventTypeExit        = "exit"
	EventTypeError       = "error"
	EventTypeRateLimit   = "rate-limit"
	EventTypeAuthFailure = "auth-failure"
	EventTypeSwapRestart = "auto-swap-restart-task"
)

// Sink accepts events for delivery to collaborators. The supervisor depends
// on this narrow interface; Bus implements it.
type Sink interface {
	Emit(Event)
}

// LogEvent carries one assembled output line from a worker.
type LogEvent struct {
	ID        string
	Source    stream.Source
	Line      string
	Timestamp time.Time
}

func (e LogEvent) EventType() string { return EventTypeLog }
func (e LogEvent) TaskID() string    { return e.ID }

// ProgressEvent carries a structured progress report parsed from worker
// output.
type ProgressEvent struct {
	ID string
	// RunID is the spawn generation the report belongs to. Empty for
	// reports about a process that never started.
	RunID     string
	Progress  models.ExecutionProgress
	Timestamp time.Time
}

func (e ProgressEvent) EventType() string { return EventTypeProgress }
func (e ProgressEvent) TaskID() string    { return e.ID }

// ExitEvent is the single terminal event for one spawn generation. Exactly
// one is emitted per generation unless the generation was deliberately
// killed, in which case none is.
type ExitEvent struct {
	ID          string
	RunID       string
	ExitCode    int
	ProcessType models.ProcessType
	Outcome     models.RunOutcome
	Timestamp   time.Time
}

func (e ExitEvent) EventType() string { return EventTypeExit }
func (e ExitEvent) TaskID() string    { return e.ID }

// ErrorEvent reports a supervisor-level problem with a run, such as a spawn
// failure.
type ErrorEvent struct {
	ID        string
	Message   string
	Timestamp time.Time
}

func (e ErrorEvent) EventType() string { return EventTypeError }
func (e ErrorEvent) TaskID() string    { return e.ID }

// RateLimitEvent reports a rate-limited run. Swap is non-nil when reactive
// failover handled the condition; a nil Swap means the operator has to act.
type RateLimitEvent struct {
	ID        string
	Info      models.RateLimitInfo
	Swap      *models.ProfileSwapDecision
	Timestamp time.Time
}

func (e RateLimitEvent) EventType() string { return EventTypeRateLimit }
func (e RateLimitEvent) TaskID() string    { return e.ID }

// AuthFailureEvent reports a run that failed on credentials.
type AuthFailureEvent struct {
	ID        string
	Info      models.AuthFailureInfo
	Timestamp time.Time
}

func (e AuthFailureEvent) EventType() string { return EventTypeAuthFailure }
func (e AuthFailureEvent) TaskID() string    { return e.ID }

// SwapRestartEvent asks the caller to restart a task under the newly
// activated profile after a reactive swap.
type SwapRestartEvent struct {
	ID           string
	NewProfileID string
	Timestamp    time.Time
}

func (e SwapRestartEvent) EventType() string { return EventTypeSwapRestart }
func (e SwapRestartEvent) TaskID() string    { return e.ID }

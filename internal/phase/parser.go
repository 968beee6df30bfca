// Package phase parses structured progress markers out of worker output
// lines and derives per-phase and overall progress values.
//
// The worker protocol embeds a fixed marker token in an otherwise free-form
// log line. Everything before the token is human-readable text; the payload
// runs from the token to the end of the line:
//
//	A__EXEC_PHASE__planning
//	A__EXEC_PHASE__implementing__auth module__wiring handlers
//
// The payload is phase name, optional subtask, optional message, separated
// by "__". Lines without the token do not change parser state. Malformed
// payloads are ignored, never an error.
package phase

import (
	"strings"

	"github.com/taskdeck/agentexec/pkg/models"
)

// Marker is the token workers embed in a log line to report progress.
const Marker = "A__EXEC_PHASE__"

// payloadSep separates phase, subtask, and message inside the payload.
const payloadSep = "__"

// Heuristic tunes the phase-progress stepping. The hard contract is only
// that phase progress is monotonic within a phase and resets on a phase
// change; the specific values are product tuning and come from config.
type Heuristic struct {
	// Floor is the phase progress assigned when a phase is first seen.
	Floor int
	// Step is added on each repeated report of the current phase.
	Step int
	// Cap bounds heuristic stepping. Only an explicit complete marker
	// reports full completion, so Cap stays below 100.
	Cap int
}

// DefaultHeuristic returns the stock tuning: floor 10, step 5, cap 90.
func DefaultHeuristic() Heuristic {
	return Heuristic{Floor: 10, Step: 5, Cap: 90}
}

// normalize fills non-positive fields from the defaults and keeps Cap below
// the explicit-completion value.
func (h Heuristic) normalize() Heuristic {
	def := DefaultHeuristic()
	if h.Floor <= 0 {
		h.Floor = def.Floor
	}
	if h.Step <= 0 {
		h.Step = def.Step
	}
	if h.Cap <= 0 || h.Cap > 99 {
		h.Cap = def.Cap
	}
	if h.Floor > h.Cap {
		h.Floor = h.Cap
	}
	return h
}

// phaseRanges maps each non-terminal phase onto its slice of the 0-100
// overall scale. Phase progress scales into the slice.
var phaseRanges = map[models.ExecutionPhase][2]int{
	models.PhaseStarting:     {0, 5},
	models.PhasePlanning:     {5, 25},
	models.PhaseImplementing: {25, 70},
	models.PhaseVerifying:    {70, 95},
}

// Parser is the per-spawn progress state machine. A fresh Parser is created
// for every spawn so sequence numbers reset with the generation. Not safe
// for concurrent use; the supervisor feeds it from one goroutine per run.
type Parser struct {
	heuristic Heuristic

	current       models.ExecutionPhase
	phaseProgress int
	subtask       string
	message       string
	seq           int
	lastOverall   int
}

// NewParser creates a parser with the given heuristic tuning. A zero
// Heuristic selects the defaults.
func NewParser(h Heuristic) *Parser {
	return &Parser{heuristic: h.normalize()}
}

// Starting returns the initial progress report for a fresh spawn: phase
// starting, zero progress, sequence number 0.
func (p *Parser) Starting() models.ExecutionProgress {
	p.current = models.PhaseStarting
	p.phaseProgress = 0
	return p.emit()
}

// Parse scans a line for the marker token. When the line carries a
// well-formed marker it advances the state machine and returns the next
// progress report with ok true. Lines without a marker, malformed payloads,
// and markers arriving after a terminal phase return ok false and leave the
// state untouched.
func (p *Parser) Parse(line string) (models.ExecutionProgress, bool) {
	idx := strings.Index(line, Marker)
	if idx < 0 {
		return models.ExecutionProgress{}, false
	}
	payload := line[idx+len(Marker):]
	if payload == "" {
		return models.ExecutionProgress{}, false
	}

	parts := strings.SplitN(payload, payloadSep, 3)
	next := models.ExecutionPhase(strings.TrimSpace(parts[0]))
	if !next.Valid() {
		return models.ExecutionProgress{}, false
	}
	if p.current.Terminal() {
		// A terminal phase is only superseded by a fresh spawn.
		return models.ExecutionProgress{}, false
	}

	var subtask, message string
	if len(parts) > 1 {
		subtask = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		message = strings.TrimSpace(parts[2])
	}
	return p.apply(next, subtask, message), true
}

// Failed records a synthetic failed transition. The supervisor uses it when
// a run ends badly without the worker having reported a terminal phase.
func (p *Parser) Failed(message string) models.ExecutionProgress {
	return p.apply(models.PhaseFailed, "", message)
}

// Current returns the phase most recently recorded.
func (p *Parser) Current() models.ExecutionPhase {
	return p.current
}

// Sequence returns the next sequence number that would be emitted.
func (p *Parser) Sequence() int {
	return p.seq
}

// apply advances phase state and produces the next report.
func (p *Parser) apply(next models.ExecutionPhase, subtask, message string) models.ExecutionProgress {
	if next != p.current {
		// Entering a new phase starts from the floor; completion is the
		// one phase that reports 100.
		p.current = next
		p.phaseProgress = p.heuristic.Floor
		p.subtask = ""
		p.message = ""
		if next == models.PhaseComplete {
			p.phaseProgress = 100
		}
	} else if p.phaseProgress < p.heuristic.Cap {
		p.phaseProgress += p.heuristic.Step
		if p.phaseProgress > p.heuristic.Cap {
			p.phaseProgress = p.heuristic.Cap
		}
	}

	if subtask != "" {
		p.subtask = subtask
	}
	if message != "" {
		p.message = message
	}
	return p.emit()
}

// emit builds the report for the current state and advances the sequence
// number.
func (p *Parser) emit() models.ExecutionProgress {
	progress := models.ExecutionProgress{
		Phase:           p.current,
		PhaseProgress:   p.phaseProgress,
		OverallProgress: p.overall(),
		CurrentSubtask:  p.subtask,
		Message:         p.message,
		SequenceNumber:  p.seq,
	}
	p.lastOverall = progress.OverallProgress
	p.seq++
	return progress
}

// overall maps the current phase and phase progress onto the 0-100 overall
// scale. Complete is always 100; failed freezes the last overall value.
func (p *Parser) overall() int {
	switch p.current {
	case models.PhaseComplete:
		return 100
	case models.PhaseFailed:
		return p.lastOverall
	}
	r, ok := phaseRanges[p.current]
	if !ok {
		return p.lastOverall
	}
	return r[0] + p.phaseProgress*(r[1]-r[0])/100
}

package supervisor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/taskdeck/agentexec/internal/phase"
	"github.com/taskdeck/agentexec/internal/stream"
)

// generation identifies one specific spawn of a task's worker. The token is
// single-use: either the kill path or the exit callback consumes it, never
// both, which is how a deliberately killed process is told apart from one
// that exited on its own. A delayed exit notification for a superseded
// generation is discarded instead of double-processed.
type generation struct {
	token string

	// killed is set by Kill before the token is consumed; the exit
	// callback checks it to suppress the terminal event.
	killed   atomic.Bool
	consumed atomic.Bool

	// done closes when the watcher goroutine has finished exit handling.
	done chan struct{}

	// Per-spawn parsing state. The parser is not safe for concurrent use,
	// so both stream drains serialize through parseMu.
	parseMu   sync.Mutex
	parser    *phase.Parser
	assembler *stream.LineAssembler
	tail      *stream.TailBuffer

	timerMu   sync.Mutex
	killTimer *time.Timer
}

// newGeneration mints a fresh generation for a spawn.
func newGeneration(heuristic phase.Heuristic, tailLimit int) *generation {
	return &generation{
		token:     uuid.New().String(),
		done:      make(chan struct{}),
		parser:    phase.NewParser(heuristic),
		assembler: stream.NewLineAssembler(),
		tail:      stream.NewTailBuffer(tailLimit),
	}
}

// consume claims the token. Only the first caller gets true.
func (g *generation) consume() bool {
	return !g.consumed.Swap(true)
}

// setKillTimer attaches the forced-kill timer scheduled by Kill.
func (g *generation) setKillTimer(t *time.Timer) {
	g.timerMu.Lock()
	defer g.timerMu.Unlock()
	g.killTimer = t
}

// stopKillTimer cancels the forced-kill timer once the process has
// confirmed termination, so a stale timer can never fire against a process
// slot a later spawn reuses.
func (g *generation) stopKillTimer() {
	g.timerMu.Lock()
	defer g.timerMu.Unlock()
	if g.killTimer != nil {
		g.killTimer.Stop()
		g.killTimer = nil
	}
}

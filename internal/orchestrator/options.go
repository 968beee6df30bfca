package orchestrator

import (
	"github.com/taskdeck/agentexec/internal/gate"
	"github.com/taskdeck/agentexec/internal/journal"
	"github.com/taskdeck/agentexec/internal/profile"
)

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

// orchestratorOptions holds collaborators that override the ones New would
// build from configuration.
type orchestratorOptions struct {
	logger   *DebugLogger
	registry *profile.Registry
	store    *journal.Store
	gate     *gate.Gate
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *orchestratorOptions) { o.logger = l }
}

// WithRegistry sets a pre-loaded profile registry (mainly for testing).
func WithRegistry(r *profile.Registry) Option {
	return func(o *orchestratorOptions) { o.registry = r }
}

// WithJournal sets a pre-opened run journal (mainly for testing).
func WithJournal(s *journal.Store) Option {
	return func(o *orchestratorOptions) { o.store = s }
}

// WithGate sets a custom repository gate (mainly for testing).
func WithGate(g *gate.Gate) Option {
	return func(o *orchestratorOptions) { o.gate = g }
}

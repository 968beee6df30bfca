// Package gate enforces repository preconditions before a task's worker may
// start or resume. A task that declares a source-control dependency only
// runs inside a git repository with at least one commit; the gate turns
// missing preconditions into precise, user-actionable errors instead of
// letting the worker fail obscurely mid-run.
package gate

import (
	"context"
	"errors"
	"fmt"

	"github.com/taskdeck/agentexec/internal/git"
)

// Mode controls how strictly source-control preconditions are enforced.
type Mode string

const (
	// ModeDisabled skips all repository checks.
	ModeDisabled Mode = "disabled"
	// ModeUnconfirmed applies to tasks that declared a source-control
	// dependency the operator has not confirmed yet. Checked like
	// ModeRequired.
	ModeUnconfirmed Mode = "unconfirmed"
	// ModeRequired applies to tasks that explicitly require source
	// control.
	ModeRequired Mode = "required"
)

// Valid returns true if the mode is a known value.
func (m Mode) Valid() bool {
	switch m {
	case ModeDisabled, ModeUnconfirmed, ModeRequired:
		return true
	default:
		return false
	}
}

// Sentinel errors callers branch on with errors.Is. The two messages are
// deliberately distinct so the operator knows which remedy applies.
var (
	// ErrNoRepository means the task directory is not inside a git
	// repository.
	ErrNoRepository = errors.New("no git repository found; initialize one with 'git init' or disable source control for this project")
	// ErrNoCommits means a repository exists but has no commits yet.
	ErrNoCommits = errors.New("repository has no commits; create an initial commit before starting tasks")
)

// Inspector is the slice of git state the gate consults.
type Inspector interface {
	RepoExists(ctx context.Context) bool
	HasCommits(ctx context.Context) (bool, error)
}

// Gate verifies repository preconditions for task directories.
type Gate struct {
	inspect func(dir string) Inspector
}

// New creates a gate backed by real git commands.
func New() *Gate {
	return &Gate{
		inspect: func(dir string) Inspector { return git.NewRunner(dir) },
	}
}

// Check verifies the directory satisfies the mode's preconditions.
// ModeDisabled always passes. Every other mode, including unknown ones,
// requires a repository with at least one commit and returns
// ErrNoRepository or ErrNoCommits wrapped with the directory.
func (g *Gate) Check(ctx context.Context, dir string, mode Mode) error {
	if mode == ModeDisabled {
		return nil
	}

	ins := g.inspect(dir)
	if !ins.RepoExists(ctx) {
		return fmt.Errorf("%s: %w", dir, ErrNoRepository)
	}
	has, err := ins.HasCommits(ctx)
	if err != nil {
		return fmt.Errorf("check commits in %s: %w", dir, err)
	}
	if !has {
		return fmt.Errorf("%s: %w", dir, ErrNoCommits)
	}
	return nil
}

// Package git provides the narrow set of git operations the orchestrator
// consults before and around task execution. Workers do their own git work;
// the orchestrator only inspects repository state, so the surface here is
// read-only plus an escape hatch for arbitrary commands.
package git

import (
	"context"
)

// Inspector defines read-only repository state checks.
type Inspector interface {
	// RepoExists returns true when the runner's directory is inside a git
	// repository.
	RepoExists(ctx context.Context) bool
	// HasCommits returns true when the repository has at least one commit.
	HasCommits(ctx context.Context) (bool, error)
	// CurrentBranch returns the name of the current branch.
	CurrentBranch(ctx context.Context) (string, error)
	// HeadCommit returns the short hash of HEAD.
	HeadCommit(ctx context.Context) (string, error)
	// Status returns the output of git status --porcelain.
	Status(ctx context.Context) (string, error)
	// HasChanges returns true if there are uncommitted changes.
	HasChanges(ctx context.Context) (bool, error)
}

// Runner defines the complete interface for git operations. Consumers
// should prefer Inspector when read-only access is enough.
type Runner interface {
	Inspector
	// Run executes an arbitrary git command with the given arguments.
	// Returns the command output and an error if the command fails.
	Run(ctx context.Context, args ...string) (string, error)
}

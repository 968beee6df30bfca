package git

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ExecRunner implements Runner using exec.Command.
type ExecRunner struct {
	repoPath string
}

// NewRunner creates a new git runner for the repository at the given path.
func NewRunner(repoPath string) *ExecRunner {
	return &ExecRunner{repoPath: repoPath}
}

// run executes a git command and returns its output.
func (r *ExecRunner) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.repoPath
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, string(out))
	}
	return strings.TrimSpace(string(out)), nil
}

// Run executes an arbitrary git command with the given arguments.
// This is the public version of run() for generic git operations.
func (r *ExecRunner) Run(ctx context.Context, args ...string) (string, error) {
	return r.run(ctx, args...)
}

// RepoExists returns true when the runner's directory is inside a git
// repository. A missing directory counts as no repository.
func (r *ExecRunner) RepoExists(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--git-dir")
	cmd.Dir = r.repoPath
	return cmd.Run() == nil
}

// HasCommits returns true when the repository has at least one commit.
func (r *ExecRunner) HasCommits(ctx context.Context) (bool, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--verify", "--quiet", "HEAD")
	cmd.Dir = r.repoPath
	if err := cmd.Run(); err != nil {
		// Exit code 1 means HEAD does not resolve, an empty repository
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return false, nil
		}
		return false, fmt.Errorf("check commits: %w", err)
	}
	return true, nil
}

// CurrentBranch returns the name of the current branch.
func (r *ExecRunner) CurrentBranch(ctx context.Context) (string, error) {
	return r.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

// HeadCommit returns the short hash of HEAD.
func (r *ExecRunner) HeadCommit(ctx context.Context) (string, error) {
	return r.run(ctx, "rev-parse", "--short", "HEAD")
}

// Status returns the output of git status --porcelain.
func (r *ExecRunner) Status(ctx context.Context) (string, error) {
	return r.run(ctx, "status", "--porcelain")
}

// HasChanges returns true if there are uncommitted changes.
func (r *ExecRunner) HasChanges(ctx context.Context) (bool, error) {
	status, err := r.Status(ctx)
	if err != nil {
		return false, err
	}
	return len(status) > 0, nil
}

// Verify ExecRunner implements Runner at compile time.
var _ Runner = (*ExecRunner)(nil)

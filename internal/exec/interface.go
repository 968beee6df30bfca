// Package exec provides an interface for running external commands.
package exec

import (
	"context"
)

// CommandRunner defines the interface for invoking external programs such
// as git and the worker runtime. This abstraction allows mocking command
// execution in tests.
type CommandRunner interface {
	// Run executes a command and returns combined stdout/stderr output.
	// The working directory is set to workDir if non-empty.
	Run(ctx context.Context, workDir string, name string, args ...string) (output []byte, err error)

	// LookPath searches PATH for an executable and returns its absolute
	// path, or an error when it is not installed.
	LookPath(name string) (string, error)
}

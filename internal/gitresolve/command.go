package gitresolve

import (
	"context"
	"os/exec"
)

// GitRunner executes git commands in a working directory. The interface
// enables testing without a git binary or network access.
type GitRunner interface {
	Run(ctx context.Context, dir string, args ...string) ([]byte, error)
}

// RealGitRunner executes the actual git binary.
type RealGitRunner struct{}

// NewRealGitRunner creates a runner backed by the system git binary.
func NewRealGitRunner() *RealGitRunner {
	return &RealGitRunner{}
}

// Run executes git with the given arguments and returns stdout.
func (r *RealGitRunner) Run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	return cmd.Output()
}

// MockGitRunner is a test double for GitRunner. Responses are matched by the
// first git subcommand argument.
type MockGitRunner struct {
	Outputs map[string][]byte
	Errs    map[string]error
	Calls   [][]string
}

// Run returns the configured output for the invoked subcommand.
func (m *MockGitRunner) Run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	m.Calls = append(m.Calls, args)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := ""
	if len(args) > 0 {
		sub = args[0]
	}
	if err, ok := m.Errs[sub]; ok {
		return nil, err
	}
	return m.Outputs[sub], nil
}

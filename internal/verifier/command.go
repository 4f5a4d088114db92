// Package verifier invokes the external verification tool on wheel archives
// and normalizes its JSON output into package verification records.
package verifier

import (
	"bytes"
	"context"
	"os/exec"
)

// CommandRunner executes external commands, capturing stdout and stderr
// separately. This interface enables testing without actual command
// execution.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// RealCommandRunner executes actual system commands.
type RealCommandRunner struct{}

// NewRealCommandRunner creates a command runner that executes real commands.
func NewRealCommandRunner() *RealCommandRunner {
	return &RealCommandRunner{}
}

// Run executes a command and returns stdout and stderr.
func (r *RealCommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// MockCommandRunner is a test double for CommandRunner.
type MockCommandRunner struct {
	Stdout []byte
	Stderr []byte
	Err    error
	Calls  [][]string // Track calls for debugging
}

// Run returns the configured output and error.
func (m *MockCommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	call := append([]string{name}, args...)
	m.Calls = append(m.Calls, call)
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return m.Stdout, m.Stderr, m.Err
}

// extractExitCode attempts to extract an exit code from an error.
// Returns -1 if the error is not an exit error.
func extractExitCode(err error) int {
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}

	type exitCoder interface {
		ExitCode() int
	}
	if exitErr, ok := err.(exitCoder); ok {
		return exitErr.ExitCode()
	}

	return -1
}

package verifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"
)

// Sentinel errors
var (
	ErrNoWheels        = errors.New("no wheel files found")
	ErrMalformedOutput = errors.New("verifier produced malformed JSON output")
	ErrTimeout         = errors.New("verifier run exceeded its time budget")
	ErrRunFailed       = errors.New("verifier exited with an error")
)

// Runner invokes the external verification tool on a directory of wheels.
type Runner struct {
	runner    CommandRunner
	binary    string
	parentOrg string
	logger    *slog.Logger
}

// RunOutput carries the raw combined log of a run alongside the parsed
// summary (nil for verbose runs, which are log-only).
type RunOutput struct {
	CombinedLog string
	Summary     *Summary
	Duration    time.Duration
	ExitCode    int
}

// NewRunner creates a verifier runner.
func NewRunner(runner CommandRunner, binary, parentOrg string, logger *slog.Logger) *Runner {
	return &Runner{
		runner:    runner,
		binary:    binary,
		parentOrg: parentOrg,
		logger:    logger,
	}
}

// Binary returns the configured tool name, for audit records.
func (r *Runner) Binary() string {
	return r.binary
}

// listWheels returns the sorted wheel files in dir.
func listWheels(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.whl"))
	if err != nil {
		return nil, fmt.Errorf("bad wheel glob in %s: %w", dir, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoWheels, dir)
	}
	sort.Strings(matches)
	return matches, nil
}

// Run executes a full JSON verification run over every wheel in wheelsDir,
// bounded by timeout. The returned output always carries the combined
// stdout/stderr log, even when parsing fails.
func (r *Runner) Run(ctx context.Context, wheelsDir string, timeout time.Duration) (RunOutput, error) {
	wheels, err := listWheels(wheelsDir)
	if err != nil {
		return RunOutput{}, err
	}

	args := []string{"-o", "json", "--detailed"}
	if r.parentOrg != "" {
		args = append(args, "--parent", r.parentOrg)
	}
	args = append(args, wheels...)

	return r.invoke(ctx, args, timeout, true)
}

// RunVerbose executes an on-demand verbose run. Output is human-readable
// text, recorded but not parsed.
func (r *Runner) RunVerbose(ctx context.Context, wheelsDir string, timeout time.Duration) (RunOutput, error) {
	wheels, err := listWheels(wheelsDir)
	if err != nil {
		return RunOutput{}, err
	}

	args := []string{"-v", "--detailed"}
	if r.parentOrg != "" {
		args = append(args, "--parent", r.parentOrg)
	}
	args = append(args, wheels...)

	return r.invoke(ctx, args, timeout, false)
}

func (r *Runner) invoke(ctx context.Context, args []string, timeout time.Duration, parse bool) (RunOutput, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	stdout, stderr, err := r.runner.Run(runCtx, r.binary, args...)
	out := RunOutput{
		CombinedLog: string(stdout) + "\n\n" + string(stderr),
		Duration:    time.Since(start),
	}

	if runCtx.Err() == context.DeadlineExceeded {
		if r.logger != nil {
			r.logger.Warn("verifier run timed out", "binary", r.binary, "timeout", timeout)
		}
		return out, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}

	if err != nil {
		out.ExitCode = extractExitCode(err)
		if out.ExitCode < 0 {
			return out, fmt.Errorf("failed to run %s: %w", r.binary, err)
		}
		return out, fmt.Errorf("%w: exit code %d: %s", ErrRunFailed, out.ExitCode, string(stderr))
	}

	if parse {
		summary, err := Parse(stdout)
		if err != nil {
			return out, err
		}
		out.Summary = summary
	}

	return out, nil
}

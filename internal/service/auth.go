package service

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"regexp"
	"sync"
	"time"

	"github.com/wheelvet-project/wheelvet/internal/verifier"
)

// Sentinel errors
var (
	ErrUnauthorized  = errors.New("operation requires authentication")
	ErrLoginActive   = errors.New("a login is already in progress")
	ErrLoginFailed   = errors.New("login process failed")
	ErrNoLoginURL    = errors.New("login process produced no URL")
	ErrLoginTerminal = errors.New("login already failed for this process lifetime")
)

// AuthState is a step of the login state machine.
type AuthState string

const (
	StateUnstarted     AuthState = "unstarted"
	StateChecking      AuthState = "checking"
	StateAuthenticated AuthState = "authenticated"
	StateAwaitingUser  AuthState = "awaiting_user_action"
	StateFailed        AuthState = "failed"
)

// loginURLWait bounds how long the headless login may run without printing
// its URL before it is killed.
const loginURLWait = 30 * time.Second

var loginURLRe = regexp.MustCompile(`https://\S+`)

// AuthStatus is a snapshot of the authentication record.
type AuthStatus struct {
	State         AuthState `json:"state"`
	Authenticated bool      `json:"authenticated"`
	LoginURL      string    `json:"login_url,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// LoginProcess is a started headless login whose output can be scanned.
type LoginProcess interface {
	Stdout() io.Reader
	Wait() error
	Kill() error
}

// ProcessStarter launches long-running child processes. It exists so tests
// can substitute a scripted process for the real authentication CLI.
type ProcessStarter interface {
	Start(ctx context.Context, name string, args ...string) (LoginProcess, error)
}

// RealProcessStarter launches processes with os/exec.
type RealProcessStarter struct{}

type realLoginProcess struct {
	cmd    *exec.Cmd
	stdout io.Reader
}

func (p *realLoginProcess) Stdout() io.Reader { return p.stdout }
func (p *realLoginProcess) Wait() error       { return p.cmd.Wait() }
func (p *realLoginProcess) Kill() error       { return p.cmd.Process.Kill() }

// Start launches the command with stdout piped. Stderr is merged into the
// same pipe so banner text printed there is scanned too.
func (r *RealProcessStarter) Start(ctx context.Context, name string, args ...string) (LoginProcess, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to pipe stdout of %s: %w", name, err)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}
	return &realLoginProcess{cmd: cmd, stdout: stdout}, nil
}

// AuthManager owns the authentication record. All transitions happen under
// its mutex; no other component mutates authentication state.
type AuthManager struct {
	mu     sync.Mutex
	state  AuthState
	url    string
	errMsg string

	runner        verifier.CommandRunner
	starter       ProcessStarter
	binary        string
	statusTimeout time.Duration
	logger        *slog.Logger
}

// NewAuthManager creates an authentication manager in the Unstarted state.
func NewAuthManager(runner verifier.CommandRunner, starter ProcessStarter, binary string, statusTimeout time.Duration, logger *slog.Logger) *AuthManager {
	return &AuthManager{
		state:         StateUnstarted,
		runner:        runner,
		starter:       starter,
		binary:        binary,
		statusTimeout: statusTimeout,
		logger:        logger,
	}
}

// Status returns a snapshot of the authentication record.
func (a *AuthManager) Status() AuthStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AuthStatus{
		State:         a.state,
		Authenticated: a.state == StateAuthenticated,
		LoginURL:      a.url,
		Error:         a.errMsg,
	}
}

// Authenticated reports whether gated operations may run.
func (a *AuthManager) Authenticated() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state == StateAuthenticated
}

// statusOutput is the JSON shape of `auth status -o json`.
type statusOutput struct {
	Identity string `json:"identity"`
	Valid    bool   `json:"valid"`
}

// CheckStatus probes the authentication CLI for an existing session. A valid
// session moves the record straight to Authenticated; anything else leaves it
// where a login can be started. A probe never interrupts a login in flight:
// while a login is checking or awaiting the user, the current snapshot is
// returned untouched.
func (a *AuthManager) CheckStatus(ctx context.Context) AuthStatus {
	a.mu.Lock()
	switch a.state {
	case StateFailed, StateChecking, StateAwaitingUser:
		defer a.mu.Unlock()
		return a.snapshotLocked()
	}
	a.state = StateChecking
	a.mu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, a.statusTimeout)
	defer cancel()

	stdout, _, err := a.runner.Run(probeCtx, a.binary, "auth", "status", "-o", "json")

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.logger.Debug("auth status probe failed", "error", err)
		a.state = StateUnstarted
		return a.snapshotLocked()
	}

	var status statusOutput
	if err := json.Unmarshal(stdout, &status); err != nil || !status.Valid {
		a.state = StateUnstarted
		return a.snapshotLocked()
	}

	a.logger.Info("existing session found", "identity", status.Identity)
	a.state = StateAuthenticated
	a.errMsg = ""
	return a.snapshotLocked()
}

// StartLogin launches the headless login flow in the background. It returns
// once a login URL has been observed and published, or with an error if the
// process died or never printed one. Completion of the browser flow is
// awaited by a background goroutine with no upper bound.
func (a *AuthManager) StartLogin(ctx context.Context) (string, error) {
	a.mu.Lock()
	switch a.state {
	case StateAuthenticated:
		a.mu.Unlock()
		return "", nil
	case StateFailed:
		a.mu.Unlock()
		return "", ErrLoginTerminal
	case StateAwaitingUser:
		url := a.url
		a.mu.Unlock()
		return url, ErrLoginActive
	case StateChecking:
		// Another login is still waiting for its URL.
		a.mu.Unlock()
		return "", ErrLoginActive
	}
	a.state = StateChecking
	a.mu.Unlock()

	// The login must outlive the caller once its URL is published, so the
	// process does not inherit the caller's cancellation. The no-URL paths
	// below kill it explicitly.
	proc, err := a.starter.Start(context.WithoutCancel(ctx), a.binary, "auth", "login", "--headless")
	if err != nil {
		a.fail(fmt.Sprintf("failed to start login: %v", err))
		return "", fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}

	urlCh := make(chan string, 1)
	go scanForURL(proc.Stdout(), urlCh)

	select {
	case url, ok := <-urlCh:
		if !ok {
			proc.Kill()
			a.fail("login process exited before printing a URL")
			return "", ErrNoLoginURL
		}
		a.mu.Lock()
		a.state = StateAwaitingUser
		a.url = url
		a.mu.Unlock()
		a.logger.Info("login URL published", "url", url)

		go a.awaitLogin(proc)
		return url, nil

	case <-time.After(loginURLWait):
		proc.Kill()
		a.fail("login process produced no URL in time")
		return "", ErrNoLoginURL

	case <-ctx.Done():
		proc.Kill()
		a.fail("login canceled")
		return "", ctx.Err()
	}
}

// awaitLogin blocks on the login process until the human completes the
// browser flow, then records the outcome.
func (a *AuthManager) awaitLogin(proc LoginProcess) {
	err := proc.Wait()

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.state = StateFailed
		a.errMsg = fmt.Sprintf("login process failed: %v", err)
		a.logger.Warn("login failed", "error", err)
		return
	}
	a.state = StateAuthenticated
	a.url = ""
	a.errMsg = ""
	a.logger.Info("login completed")
}

func (a *AuthManager) fail(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = StateFailed
	a.errMsg = msg
}

func (a *AuthManager) snapshotLocked() AuthStatus {
	return AuthStatus{
		State:         a.state,
		Authenticated: a.state == StateAuthenticated,
		LoginURL:      a.url,
		Error:         a.errMsg,
	}
}

// scanForURL reads process output line by line and sends the first https URL
// it sees, closing the channel when output ends. It keeps draining after the
// URL so the child never blocks on a full pipe.
func scanForURL(r io.Reader, ch chan<- string) {
	defer close(ch)
	sent := false
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if sent {
			continue
		}
		if m := loginURLRe.FindString(scanner.Text()); m != "" {
			ch <- m
			sent = true
		}
	}
}

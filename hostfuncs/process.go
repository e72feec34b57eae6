package hostfuncs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/hayride-dev/hayride-go/domain/entities"
)

// ProcessResult contains the outcome of a finished process.
type ProcessResult struct {
	// Stdout is the captured standard output, bounded by the output limit.
	Stdout string `json:"stdout"`

	// Stderr is the captured standard error, bounded by the output limit.
	Stderr string `json:"stderr"`

	// DurationMs is the execution duration in milliseconds.
	DurationMs int64 `json:"duration_ms,omitempty"`

	// ExitCode is the exit code, or -1 if the process was killed.
	ExitCode int `json:"exit_code"`

	// Truncated reports that output exceeded the limit.
	Truncated bool `json:"truncated,omitempty"`
}

// ProcessOption is a functional option for configuring process execution.
type ProcessOption func(*processConfig)

type processConfig struct {
	permit        EnvPermit
	siloID        string
	maxOutputSize int
	allowShell    bool
	stopTimeout   time.Duration
}

// DefaultStopGrace is how long a stopped process has to exit after SIGTERM
// before it is killed.
const DefaultStopGrace = 5 * time.Second

func defaultProcessConfig() processConfig {
	return processConfig{
		maxOutputSize: DefaultMaxOutputSize,
		stopTimeout:   DefaultStopGrace,
	}
}

// WithStopTimeout sets the grace period between SIGTERM and SIGKILL when
// the process is stopped.
func WithStopTimeout(d time.Duration) ProcessOption {
	return func(c *processConfig) {
		if d > 0 {
			c.stopTimeout = d
		}
	}
}

// WithMaxOutputSize bounds the captured stdout and stderr separately.
func WithMaxOutputSize(n int) ProcessOption {
	return func(c *processConfig) {
		if n > 0 {
			c.maxOutputSize = n
		}
	}
}

// WithEnvPermit sets the check for capability-gated environment variables.
func WithEnvPermit(siloID string, permit EnvPermit) ProcessOption {
	return func(c *processConfig) {
		c.siloID = siloID
		c.permit = permit
	}
}

// WithShellAllowed permits shell and interpreter code execution.
func WithShellAllowed(allow bool) ProcessOption {
	return func(c *processConfig) {
		c.allowShell = allow
	}
}

// Process is a running host command.
type Process struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdout *BoundedBuffer
	stderr *BoundedBuffer
	start  time.Time
	done   chan struct{}

	mu     sync.Mutex
	result ProcessResult
	err    error
}

// StartProcess launches spec without waiting for it. When ctx is cancelled
// or Stop is called the process gets SIGTERM, then SIGKILL once the stop
// timeout passes. Kill skips the grace period.
//
// The child never inherits the host environment: it sees only the entries
// of spec.Env that pass SanitizeEnv.
func StartProcess(ctx context.Context, spec entities.ProcessSpec, opts ...ProcessOption) (*Process, error) {
	cfg := defaultProcessConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if spec.Command == "" {
		return nil, errors.New("command is required")
	}
	if err := checkCommand(spec.Command, spec.Args, cfg.allowShell); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)

	//nolint:gosec // G204: Command execution is the purpose of this function
	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	if spec.Dir != "" {
		cmd.Dir = spec.Dir
	}
	cmd.Env = SanitizeEnv(ctx, spec.Env, cfg.siloID, cfg.permit)
	if cmd.Env == nil {
		cmd.Env = []string{}
	}
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = cfg.stopTimeout

	p := &Process{
		cmd:    cmd,
		cancel: cancel,
		stdout: NewBoundedBuffer(cfg.maxOutputSize),
		stderr: NewBoundedBuffer(cfg.maxOutputSize),
		done:   make(chan struct{}),
	}
	cmd.Stdout = p.stdout
	cmd.Stderr = p.stderr

	p.start = time.Now()
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start %s: %w", spec.Command, err)
	}

	go p.wait()
	return p, nil
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	duration := time.Since(p.start)

	p.mu.Lock()
	p.result = ProcessResult{
		Stdout:     p.stdout.String(),
		Stderr:     p.stderr.String(),
		DurationMs: duration.Milliseconds(),
		Truncated:  p.stdout.Truncated() || p.stderr.Truncated(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			p.result.ExitCode = exitErr.ExitCode()
		} else {
			p.result.ExitCode = -1
			p.err = err
		}
	}
	p.mu.Unlock()

	p.cancel()
	close(p.done)
}

// Pid returns the operating system process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the process exits. If ctx ends first the process is
// stopped and Wait still returns what it wrote, along with ctx's error. A
// non-zero exit code is reported in the result, not as an error.
func (p *Process) Wait(ctx context.Context) (ProcessResult, error) {
	select {
	case <-p.done:
	case <-ctx.Done():
		p.Stop()
		<-p.done
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.result, ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result, p.err
}

// Stop asks the process to exit. It is safe to call after exit.
func (p *Process) Stop() {
	p.cancel()
}

// Kill ends the process with SIGKILL. It is safe to call after exit.
func (p *Process) Kill() {
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.cancel()
	}
}

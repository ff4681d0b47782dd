// Package process runs external tools (the build tool, the demangler, the
// execution harness). Every invocation names its working directory
// explicitly and is bounded by a context and an optional timeout; the
// process-wide current directory is never touched.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/vk/ceautotest/internal/ctxlog"
)

// DefaultGracePeriod is how long a cancelled child gets between the
// interrupt signal and a hard kill.
const DefaultGracePeriod = 5 * time.Second

// Command describes a single external process invocation.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory of the child. It is required.
	Dir string
	// Env is appended to the parent environment.
	Env []string
	// Timeout bounds the run. Zero means only the context bounds it.
	Timeout time.Duration
	// GracePeriod overrides DefaultGracePeriod when positive.
	GracePeriod time.Duration
	// Stream, when set, receives combined output as it is produced.
	Stream io.Writer
}

// String renders the command line for logs and diagnostics.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is what a finished process left behind.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	Combined []byte
	ExitCode int
	Duration time.Duration
}

// Error reports a process that could not start, exited non-zero, or was
// stopped by cancellation or timeout.
type Error struct {
	Command  string
	Dir      string
	ExitCode int
	Output   string
	Err      error
}

// Error implements the error interface for Error.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "command '%s' in '%s' failed", e.Command, e.Dir)
	if e.ExitCode > 0 {
		fmt.Fprintf(&b, " with exit status %d", e.ExitCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes the underlying cause (exec.ExitError, context errors).
func (e *Error) Unwrap() error { return e.Err }

// TimedOut reports whether the process was stopped by its deadline.
func (e *Error) TimedOut() bool { return errors.Is(e.Err, context.DeadlineExceeded) }

// Runner runs external commands. Tests substitute fakes for it.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner is the os/exec backed Runner.
type ExecRunner struct{}

// NewRunner returns the default os/exec backed runner.
func NewRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run starts the command and waits for it. A non-zero exit status is
// returned as *Error together with the captured Result.
func (r *ExecRunner) Run(ctx context.Context, c Command) (*Result, error) {
	logger := ctxlog.FromContext(ctx)
	if c.Dir == "" {
		return nil, fmt.Errorf("command '%s': working directory must be explicit", c)
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	combined := &lockedBuffer{}
	outW := io.MultiWriter(&stdout, combined)
	errW := io.MultiWriter(&stderr, combined)
	if c.Stream != nil {
		outW = io.MultiWriter(outW, c.Stream)
		errW = io.MultiWriter(errW, c.Stream)
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Stdout = outW
	cmd.Stderr = errW
	// Interrupt first so a tool in the middle of writing an artifact can
	// finish the write; WaitDelay escalates to a kill.
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = DefaultGracePeriod
	if c.GracePeriod > 0 {
		cmd.WaitDelay = c.GracePeriod
	}

	logger.Debug("Starting process.", "command", c.String(), "dir", c.Dir, "timeout", c.Timeout)
	start := time.Now()
	runErr := cmd.Run()
	res := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Combined: combined.Bytes(),
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if runErr == nil {
		logger.Debug("Process finished.", "command", c.String(), "duration", res.Duration)
		return res, nil
	}

	cause := runErr
	if ctxErr := ctx.Err(); ctxErr != nil {
		cause = fmt.Errorf("%w (%v)", ctxErr, runErr)
	}
	logger.Debug("Process failed.", "command", c.String(), "exit_code", res.ExitCode, "error", cause)
	return res, &Error{
		Command:  c.String(),
		Dir:      c.Dir,
		ExitCode: res.ExitCode,
		Output:   string(res.Combined),
		Err:      cause,
	}
}

// lockedBuffer is written from the stdout and stderr copy goroutines at once.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.buf.Bytes())
}

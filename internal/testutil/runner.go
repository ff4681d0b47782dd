package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/ceautotest/internal/process"
)

// RunFunc handles one command of a FakeRunner.
type RunFunc func(ctx context.Context, c process.Command) (*process.Result, error)

// FakeRunner is a process.Runner that records every command instead of
// starting it. Handle decides the result; a nil Handle succeeds silently.
type FakeRunner struct {
	Handle RunFunc

	mu    sync.Mutex
	calls []process.Command
}

// Run implements process.Runner.
func (f *FakeRunner) Run(ctx context.Context, c process.Command) (*process.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()

	if f.Handle == nil {
		return &process.Result{}, nil
	}
	return f.Handle(ctx, c)
}

// Commands returns the recorded commands in call order.
func (f *FakeRunner) Commands() []process.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]process.Command(nil), f.calls...)
}

// CommandLines returns "dir: command line" for every recorded command.
func (f *FakeRunner) CommandLines() []string {
	cmds := f.Commands()
	lines := make([]string, 0, len(cmds))
	for _, c := range cmds {
		lines = append(lines, fmt.Sprintf("%s: %s", c.Dir, c))
	}
	return lines
}

// Exit builds the result and error a runner returns for a process that
// exited with code and printed output.
func Exit(c process.Command, code int, output string) (*process.Result, error) {
	res := &process.Result{
		Stdout:   []byte(output),
		Combined: []byte(output),
		ExitCode: code,
	}
	if code == 0 {
		return res, nil
	}
	return res, &process.Error{
		Command:  c.String(),
		Dir:      c.Dir,
		ExitCode: code,
		Output:   output,
		Err:      fmt.Errorf("exit status %d", code),
	}
}

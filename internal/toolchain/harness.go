package toolchain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/vk/ceautotest/internal/ctxlog"
	"github.com/vk/ceautotest/internal/process"
	"github.com/vk/ceautotest/internal/registry"
)

// DefaultHarnessCommand is the emulator harness; the descriptor path is
// appended as last argument.
var DefaultHarnessCommand = []string{"cemu-autotester"}

// Descriptor is a harness descriptor (autotest.json). Values are kept raw so
// fields this tool does not know survive the round trip unchanged.
type Descriptor map[string]json.RawMessage

// LoadDescriptor reads the descriptor at path.
func LoadDescriptor(path string) (Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading descriptor: %w", err)
	}
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decoding descriptor %s: %w", path, err)
	}
	return d, nil
}

// With returns a copy of d with the given fields set. d is not modified.
func (d Descriptor) With(overrides map[string]any) (Descriptor, error) {
	out := make(Descriptor, len(d)+len(overrides))
	for k, v := range d {
		out[k] = v
	}
	for k, v := range overrides {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding descriptor field %q: %w", k, err)
		}
		out[k] = raw
	}
	return out, nil
}

// Outcome is the result of running one test in the harness.
type Outcome struct {
	Passed   bool
	ExitCode int
	Output   string
	Duration time.Duration
	// Err explains a failed run: a non-zero exit or a timeout.
	Err error
}

// HarnessOptions configures a Harness.
type HarnessOptions struct {
	Command []string
	// ROM is the platform ROM image. Relative paths are made absolute.
	ROM     string
	Timeout time.Duration
	// RunID names the per-run descriptor files. A random one is used when
	// empty.
	RunID string
}

// Harness runs built tests in the emulator.
type Harness struct {
	runner process.Runner
	opts   HarnessOptions
}

// NewHarness creates a Harness.
func NewHarness(runner process.Runner, opts HarnessOptions) (*Harness, error) {
	if len(opts.Command) == 0 {
		opts.Command = DefaultHarnessCommand
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.ROM == "" {
		return nil, errors.New("harness needs a ROM image")
	}
	rom, err := filepath.Abs(opts.ROM)
	if err != nil {
		return nil, fmt.Errorf("resolving ROM path: %w", err)
	}
	opts.ROM = rom
	return &Harness{runner: runner, opts: opts}, nil
}

// DescriptorName returns the file name of the per-run descriptor written
// next to each test's base descriptor.
func (h *Harness) DescriptorName() string {
	return ".autotest-" + h.opts.RunID + ".json"
}

// Run executes one test. The base descriptor is read, merged with the ROM
// path and written to a per-run file that is removed afterwards; the base
// file is never modified. A test that exits non-zero or times out is a
// failed Outcome, not an error. Errors are reserved for problems that stop
// the harness from judging the test at all.
func (h *Harness) Run(ctx context.Context, t registry.Test) (*Outcome, error) {
	logger := ctxlog.FromContext(ctx).With("test", t.ID)

	base, err := LoadDescriptor(t.DescriptorPath())
	if err != nil {
		return nil, err
	}
	desc, err := base.With(map[string]any{"rom": h.opts.ROM})
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding descriptor: %w", err)
	}

	name := h.DescriptorName()
	path := filepath.Join(t.Dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("writing run descriptor: %w", err)
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("Could not remove run descriptor.", "path", path, "error", err)
		}
	}()

	args := append(append([]string(nil), h.opts.Command[1:]...), "./"+name)
	res, runErr := h.runner.Run(ctx, process.Command{
		Name:    h.opts.Command[0],
		Args:    args,
		Dir:     t.Dir,
		Timeout: h.opts.Timeout,
	})

	out := &Outcome{}
	if res != nil {
		out.ExitCode = res.ExitCode
		out.Output = string(res.Combined)
		out.Duration = res.Duration
	}
	if runErr == nil {
		out.Passed = true
		return out, nil
	}

	var execErr *exec.Error
	if errors.As(runErr, &execErr) {
		return nil, fmt.Errorf("starting harness: %w", runErr)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	out.Err = runErr
	logger.Debug("Harness reported failure.", "exit_code", out.ExitCode, "error", runErr)
	return out, nil
}

package toolchain

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/ceautotest/internal/ctxlog"
	"github.com/vk/ceautotest/internal/process"
	"github.com/vk/ceautotest/internal/registry"
)

// Build steps, named after their make targets.
const (
	StepClean = "clean"
	StepDebug = "debug"
)

// DefaultBuildCommand is the build tool; the step is appended as last argument.
var DefaultBuildCommand = []string{"make"}

// BuildError reports a failed build step. Output is the tool's raw
// combined output.
type BuildError struct {
	ID     string
	Step   string
	Output string
	Err    error
}

// Error implements the error interface for BuildError.
func (e *BuildError) Error() string {
	return fmt.Sprintf("building '%s' (%s): %v", e.ID, e.Step, e.Err)
}

// Unwrap returns the underlying process error.
func (e *BuildError) Unwrap() error { return e.Err }

// BuilderOptions configures a Builder.
type BuilderOptions struct {
	Command []string
	// Clean runs the clean step before every build.
	Clean   bool
	Timeout time.Duration
}

// Builder compiles tests with the external build tool.
type Builder struct {
	runner process.Runner
	opts   BuilderOptions
}

// NewBuilder creates a Builder. An empty command uses DefaultBuildCommand.
func NewBuilder(runner process.Runner, opts BuilderOptions) *Builder {
	if len(opts.Command) == 0 {
		opts.Command = DefaultBuildCommand
	}
	return &Builder{runner: runner, opts: opts}
}

// Build runs the build steps for one test inside its directory.
func (b *Builder) Build(ctx context.Context, t registry.Test) error {
	logger := ctxlog.FromContext(ctx).With("test", t.ID)

	steps := []string{StepDebug}
	if b.opts.Clean {
		steps = []string{StepClean, StepDebug}
	}
	for _, step := range steps {
		args := append(append([]string(nil), b.opts.Command[1:]...), step)
		res, err := b.runner.Run(ctx, process.Command{
			Name:    b.opts.Command[0],
			Args:    args,
			Dir:     t.Dir,
			Timeout: b.opts.Timeout,
		})
		if err != nil {
			var output string
			if res != nil {
				output = string(res.Combined)
			}
			return &BuildError{ID: t.ID, Step: step, Output: output, Err: err}
		}
		logger.Debug("Build step finished.", "step", step, "duration", res.Duration)
	}
	return nil
}

// Package executor runs a batch plan. Batches run strictly in order with a
// barrier between them; the tests of one batch run on a bounded worker pool.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vk/ceautotest/internal/ctxlog"
	"github.com/vk/ceautotest/internal/registry"
	"github.com/vk/ceautotest/internal/toolchain"
)

// Runner runs one test and judges it.
type Runner interface {
	Run(ctx context.Context, t registry.Test) (*toolchain.Outcome, error)
}

// Batch is one stage of execution.
type Batch struct {
	Tests []registry.Test
	// Sequential batches run one test at a time in order.
	Sequential bool
}

// Options configures an Executor.
type Options struct {
	Workers int
	// AbortOnFailure stops launching tests after the first failed test.
	AbortOnFailure bool
	// OnResult is called once per finished test. Calls are serialized.
	OnResult func(Result)
}

// Result is the outcome of one executed test.
type Result struct {
	Test    registry.Test
	Batch   int
	Outcome *toolchain.Outcome
}

// Passed reports whether the harness judged the test a pass.
func (r Result) Passed() bool { return r.Outcome != nil && r.Outcome.Passed }

// Summary collects the results of a run in completion order.
type Summary struct {
	Results []Result
	// Skipped counts the tests that produced no result.
	Skipped int
}

// Executed returns the number of tests that ran.
func (s *Summary) Executed() int { return len(s.Results) }

// Failed returns the IDs of the failed tests.
func (s *Summary) Failed() []string {
	var ids []string
	for _, r := range s.Results {
		if !r.Passed() {
			ids = append(ids, r.Test.ID)
		}
	}
	return ids
}

// FailureError reports the failed test that aborted the run.
type FailureError struct {
	ID      string
	Outcome *toolchain.Outcome
}

// Error implements the error interface for FailureError.
func (e *FailureError) Error() string {
	if e.Outcome != nil && e.Outcome.Err != nil {
		return fmt.Sprintf("test '%s' failed: %v", e.ID, e.Outcome.Err)
	}
	return fmt.Sprintf("test '%s' failed", e.ID)
}

// Executor runs batches of tests.
type Executor struct {
	runner Runner
	opts   Options
}

// New creates an Executor.
func New(runner Runner, opts Options) *Executor {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Executor{runner: runner, opts: opts}
}

// Run executes the batches in order. A failed test is recorded and the run
// continues unless AbortOnFailure is set, in which case the current batch
// launches nothing new, its in-flight tests finish, and Run returns a
// *FailureError. Runner errors always stop the run the same way.
func (e *Executor) Run(ctx context.Context, batches []Batch) (*Summary, error) {
	summary := &Summary{}
	var mu sync.Mutex

	total := 0
	for _, b := range batches {
		total += len(b.Tests)
	}

	for i, batch := range batches {
		workers := e.opts.Workers
		if batch.Sequential {
			workers = 1
		}
		batchCtx := ctxlog.With(ctx, "batch", i+1)
		batchLogger := ctxlog.FromContext(batchCtx)
		batchLogger.Debug("Starting batch.", "tests", len(batch.Tests), "workers", workers)

		err := Pool(batchCtx, workers, batch.Tests, func(ctx context.Context, t registry.Test) error {
			testLogger := ctxlog.FromContext(ctx).With("test", t.ID)
			testLogger.Debug("Executing test.")

			out, err := e.runner.Run(ctx, t)
			if err != nil {
				return fmt.Errorf("executing '%s': %w", t.ID, err)
			}

			res := Result{Test: t, Batch: i, Outcome: out}
			mu.Lock()
			summary.Results = append(summary.Results, res)
			if e.opts.OnResult != nil {
				e.opts.OnResult(res)
			}
			mu.Unlock()

			if out.Passed {
				testLogger.Debug("Test passed.", "duration", out.Duration)
				return nil
			}
			testLogger.Warn("Test failed.", "exit_code", out.ExitCode, "error", out.Err)
			if e.opts.AbortOnFailure {
				return &FailureError{ID: t.ID, Outcome: out}
			}
			return nil
		})
		if err != nil {
			summary.Skipped = total - summary.Executed()
			var failure *FailureError
			if errors.As(err, &failure) {
				batchLogger.Info("Aborting after failed test.", "test", failure.ID, "skipped", summary.Skipped)
			}
			return summary, err
		}
	}
	return summary, nil
}

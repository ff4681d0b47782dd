package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/vk/ceautotest/internal/analyzer"
	"github.com/vk/ceautotest/internal/ctxlog"
	"github.com/vk/ceautotest/internal/executor"
	"github.com/vk/ceautotest/internal/registry"
	"github.com/vk/ceautotest/internal/scheduler"
	"github.com/vk/ceautotest/internal/toolchain"
)

// ROMError reports a ROM image that cannot be used.
type ROMError struct {
	Path string
	Err  error
}

// Error implements the error interface for ROMError.
func (e *ROMError) Error() string {
	return fmt.Sprintf("testing ROM %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *ROMError) Unwrap() error { return e.Err }

// Run executes the whole session. A fatal error is diagnosed on the console
// before it is returned; failed tests are reported but are not an error
// unless AbortOnFailure is set.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.", "tests", a.cfg.TestsDir, "suite_file", a.cfg.SuiteFile)

	if err := a.startHealthcheckServer(ctx); err != nil {
		return err
	}
	defer a.closeHealthcheckServer(ctx)

	a.console.Banner()
	if err := a.run(ctx); err != nil {
		a.logger.Debug("Run aborted.", "error", err)
		a.diagnose(err)
		return err
	}
	a.console.Complete()
	a.logger.Debug("App.Run method finished.")
	return nil
}

func (a *App) run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	tests, err := registry.Discover(ctx, a.cfg.TestsDir)
	if err != nil {
		return err
	}
	a.metrics.testsDiscovered.Set(float64(len(tests)))
	logger.Info("Tests discovered.", "count", len(tests))

	var records []*registry.Record
	if a.cfg.SkipBuild {
		a.console.Section("Loading Tests")
		if records, err = a.loadRecords(tests); err != nil {
			return err
		}
		a.console.Centered(fmt.Sprintf("%d tests loaded.", len(records)))
	} else {
		ignore, err := registry.LoadIgnoreList(a.cfg.IgnoreList)
		if err != nil {
			return err
		}
		logger.Debug("Ignore list loaded.", "path", a.cfg.IgnoreList, "entries", ignore.Len())

		a.console.Section("Building Tests")
		if records, err = a.buildAll(ctx, tests, ignore); err != nil {
			return err
		}
		a.console.Centered(fmt.Sprintf("%d tests built.", len(records)))
	}

	plan, err := a.schedule(ctx, tests, records)
	if err != nil {
		return err
	}

	a.console.Section("Executing Tests")
	summary, err := a.execute(ctx, tests, plan)
	if summary != nil {
		a.console.Centered(fmt.Sprintf("%d tests executed.", summary.Executed()))
		if failed := summary.Failed(); len(failed) > 0 {
			logger.Warn("Some tests failed.", "failed", failed)
		}
	}
	return err
}

func (a *App) loadRecords(tests []registry.Test) ([]*registry.Record, error) {
	records := make([]*registry.Record, 0, len(tests))
	for _, t := range tests {
		rec, err := registry.LoadRecord(t.Dir)
		if err != nil {
			return nil, fmt.Errorf("loading record of '%s': %w", t.ID, err)
		}
		if missing := rec.MissingTargets(); len(missing) > 0 {
			return nil, &analyzer.ContractError{ID: t.ID, Missing: missing}
		}
		records = append(records, rec)
	}
	return records, nil
}

func (a *App) execute(ctx context.Context, tests []registry.Test, plan *scheduler.Plan) (*executor.Summary, error) {
	if _, err := os.Stat(a.cfg.ROM); err != nil {
		return nil, &ROMError{Path: a.cfg.ROM, Err: err}
	}
	harness, err := toolchain.NewHarness(a.runner, toolchain.HarnessOptions{
		Command: a.cfg.HarnessCommand,
		ROM:     a.cfg.ROM,
		Timeout: a.cfg.ExecTimeout,
		RunID:   a.runID,
	})
	if err != nil {
		return nil, &ROMError{Path: a.cfg.ROM, Err: err}
	}

	byID := make(map[string]registry.Test, len(tests))
	for _, t := range tests {
		byID[t.ID] = t
	}
	batches := make([]executor.Batch, 0, len(plan.Batches))
	for _, b := range plan.Batches {
		eb := executor.Batch{Sequential: b.Reconciled}
		for _, id := range b.IDs() {
			eb.Tests = append(eb.Tests, byID[id])
		}
		batches = append(batches, eb)
	}

	ex := executor.New(harness, executor.Options{
		Workers:        a.cfg.Workers,
		AbortOnFailure: a.cfg.AbortOnFailure,
		OnResult: func(r executor.Result) {
			a.console.Result(r)
			a.metrics.observeExecution(r.Passed(), r.Outcome.Duration)
		},
	})
	summary, err := ex.Run(ctx, batches)
	var failure *executor.FailureError
	if err != nil && !errors.As(err, &failure) {
		return summary, fmt.Errorf("executing tests: %w", err)
	}
	return summary, err
}

package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vk/ceautotest/internal/analyzer"
	"github.com/vk/ceautotest/internal/ctxlog"
	"github.com/vk/ceautotest/internal/executor"
	"github.com/vk/ceautotest/internal/registry"
	"github.com/vk/ceautotest/internal/toolchain"
)

type buildJob struct {
	index int
	test  registry.Test
}

// buildAll builds and analyzes every test on the worker pool and returns
// the fresh records in discovery order. The first failure stops new builds;
// builds already running finish before it is returned.
func (a *App) buildAll(ctx context.Context, tests []registry.Test, ignore *registry.IgnoreList) ([]*registry.Record, error) {
	builder := toolchain.NewBuilder(a.runner, toolchain.BuilderOptions{
		Command: a.cfg.BuildCommand,
		Clean:   a.cfg.Clean,
		Timeout: a.cfg.BuildTimeout,
	})

	opts := analyzer.DefaultOptions()
	opts.EntryListing = a.cfg.EntryListing
	opts.EntryPoint = a.cfg.EntryPoint
	opts.Trace = a.cfg.Trace
	an := analyzer.New(opts, ignore, a.demangler)

	jobs := make([]buildJob, len(tests))
	for i, t := range tests {
		jobs[i] = buildJob{index: i, test: t}
	}
	records := make([]*registry.Record, len(tests))

	// Keeps the build block and trace report of one test together.
	var outMu sync.Mutex

	err := executor.Pool(ctx, a.cfg.Workers, jobs, func(ctx context.Context, j buildJob) error {
		logger := ctxlog.FromContext(ctx).With("test", j.test.ID)
		start := time.Now()

		logger.Debug("Building test.")
		if err := builder.Build(ctx, j.test); err != nil {
			return err
		}
		res, err := an.Analyze(ctx, j.test)
		var contract *analyzer.ContractError
		if err != nil && !errors.As(err, &contract) {
			return err
		}

		outMu.Lock()
		a.console.Built(j.test.ID, a.cfg.Clean)
		a.console.Trace(res.Report)
		outMu.Unlock()
		if contract != nil {
			return contract
		}

		records[j.index] = res.Record
		a.metrics.observeBuild(time.Since(start))
		logger.Debug("Test built.", "dependencies", len(res.Record.Dependencies))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

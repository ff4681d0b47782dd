package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vk/ceautotest/internal/ctxlog"
	"github.com/vk/ceautotest/internal/registry"
	"github.com/vk/ceautotest/internal/scheduler"
)

// planDocument is the exported form of a batch plan.
type planDocument struct {
	RunID       string            `yaml:"run_id"`
	Batches     []planBatch       `yaml:"batches"`
	Unsatisfied []planUnsatisfied `yaml:"unsatisfied,omitempty"`
}

type planBatch struct {
	Number     int        `yaml:"number"`
	Reconciled bool       `yaml:"reconciled,omitempty"`
	Tests      []planTest `yaml:"tests"`
}

type planTest struct {
	ID           string   `yaml:"id"`
	Targets      []string `yaml:"targets,omitempty"`
	Dependencies []string `yaml:"dependencies,omitempty"`
}

type planUnsatisfied struct {
	ID      string   `yaml:"id"`
	Missing []string `yaml:"missing"`
}

func newPlanDocument(runID string, plan *scheduler.Plan) planDocument {
	doc := planDocument{RunID: runID, Batches: []planBatch{}}
	for i, b := range plan.Batches {
		pb := planBatch{Number: i + 1, Reconciled: b.Reconciled}
		for _, t := range b.Tests {
			pb.Tests = append(pb.Tests, planTest{ID: t.ID, Targets: t.Targets, Dependencies: t.Dependencies})
		}
		doc.Batches = append(doc.Batches, pb)
	}
	for _, u := range plan.Unsatisfied {
		doc.Unsatisfied = append(doc.Unsatisfied, planUnsatisfied{ID: u.ID, Missing: u.Missing})
	}
	return doc
}

func writePlanFile(path, runID string, plan *scheduler.Plan) error {
	data, err := yaml.Marshal(newPlanDocument(runID, plan))
	if err != nil {
		return fmt.Errorf("encoding plan: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing plan file: %w", err)
	}
	return nil
}

// schedule turns the records into a verified batch plan. The plan is
// printed and exported even when scheduling fails, so the unfulfilled tests
// are visible.
func (a *App) schedule(ctx context.Context, tests []registry.Test, records []*registry.Record) (*scheduler.Plan, error) {
	logger := ctxlog.FromContext(ctx)

	input := make([]scheduler.Test, len(tests))
	for i, t := range tests {
		input[i] = scheduler.Test{
			ID:           t.ID,
			Targets:      records[i].Targets,
			Dependencies: records[i].Dependencies,
		}
	}

	plan, err := scheduler.Schedule(ctx, input, scheduler.Options{ExhaustivePromotion: a.cfg.ExhaustivePromotion})
	var unsatisfied *scheduler.UnsatisfiedError
	switch {
	case errors.As(err, &unsatisfied):
		a.console.Untested(unsatisfied.Tests)
	case err != nil:
		return nil, fmt.Errorf("scheduling tests: %w", err)
	}

	a.metrics.batches.Set(float64(len(plan.Batches)))
	if a.cfg.PrintBatches {
		a.console.Batches(plan)
	}
	if a.cfg.PlanFile != "" {
		if werr := writePlanFile(a.cfg.PlanFile, a.runID, plan); werr != nil {
			return nil, werr
		}
		logger.Info("Plan written.", "path", a.cfg.PlanFile)
	}
	if err != nil {
		return nil, err
	}

	if err := plan.Verify(); err != nil {
		return nil, err
	}
	logger.Info("Tests scheduled.", "batches", len(plan.Batches))
	return plan, nil
}

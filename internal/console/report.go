package console

import (
	"fmt"
	"strings"

	"github.com/vk/ceautotest/internal/analyzer"
	"github.com/vk/ceautotest/internal/executor"
	"github.com/vk/ceautotest/internal/scheduler"
)

func symbol(s analyzer.Symbol) string {
	return fmt.Sprintf("%s (%s)", s.Demangled, s.Mangled)
}

// Trace prints the dependency trace of one analyzed test.
func (c *Console) Trace(r *analyzer.Report) {
	if r == nil {
		return
	}
	b := c.block()
	for _, l := range r.Listings {
		b.blank().line(fmt.Sprintf("All Functions Found In '%s':", l.File)).blank()
		for _, f := range l.Functions {
			b.line(symbol(f.Symbol) + ":")
			for _, call := range f.Calls {
				b.line("  " + symbol(call))
			}
		}
	}

	b.blank().line("Linked Functions Test Uses:").blank()
	for _, s := range r.Linked {
		b.line("  " + symbol(s))
	}

	b.blank().line("Tracing Dependencies:").blank()
	for _, step := range r.Trace {
		b.line(strings.Repeat("  ", step.Depth) + step.Symbol)
	}

	b.blank().line("Functions Test Uses (ignored dependencies removed):").blank()
	for _, s := range r.Used {
		b.line("  " + symbol(s))
	}

	b.blank().line("Dependencies (ignored dependencies and targets removed):").blank()
	for _, s := range r.Dependencies {
		b.line("  " + symbol(s))
	}
	b.flush()
}

// Built prints the build block of one test.
func (c *Console) Built(id string, cleaned bool) {
	title := fmt.Sprintf("Compiling '%s'", id)
	if cleaned {
		title = fmt.Sprintf("Cleaning and compiling '%s'", id)
	}
	c.block().
		blank().
		line(title).
		subdivider().
		line("Compilation successful.").
		line("Updated test information JSON file.").
		flush()
}

// Missing prints the functions a test claims to evaluate but does not use.
func (c *Console) Missing(id string, names []string) {
	b := c.block().blank().line(fmt.Sprintf("Missing Functions For '%s':", id))
	for i, name := range names {
		b.line(fmt.Sprintf("  %d. %s", i+1, name))
	}
	b.flush()
}

// Untested prints the unmet dependencies of every test that failed
// scheduling.
func (c *Console) Untested(tests []scheduler.Unsatisfied) {
	b := c.block()
	for _, u := range tests {
		b.blank().line(fmt.Sprintf("Untested Dependencies For '%s':", u.ID))
		for i, dep := range u.Missing {
			b.line(fmt.Sprintf("  %d. %s", i+1, dep))
		}
	}
	b.flush()
}

// Batches prints the plan, one numbered batch at a time, followed by the
// tests that could not be scheduled.
func (c *Console) Batches(plan *scheduler.Plan) {
	b := c.block().blank()
	for i, batch := range plan.Batches {
		title := fmt.Sprintf("Batch %d:", i+1)
		if batch.Reconciled {
			title = fmt.Sprintf("Batch %d (reconciled):", i+1)
		}
		b.line(title)
		for _, id := range batch.IDs() {
			b.line("  " + id)
		}
		b.blank()
	}
	b.line("Unfulfilled Batch:")
	for _, u := range plan.Unsatisfied {
		b.line("  " + u.ID)
	}
	for _, group := range plan.Cycles() {
		b.blank().line(c.theme.Muted.Render("Mutually dependent: " + strings.Join(group, ", ")))
	}
	b.flush()
}

// Result prints the outcome of one executed test with the harness output.
func (c *Console) Result(r executor.Result) {
	b := c.block().
		blank().
		line(fmt.Sprintf("Executing '%s':", r.Test.ID)).
		subdivider()
	if r.Outcome != nil {
		if out := strings.TrimRight(r.Outcome.Output, "\n"); out != "" {
			b.line(out)
		}
	}
	if r.Passed() {
		b.line(c.theme.Success.Render("PASSED"))
	} else {
		status := "FAILED"
		if r.Outcome != nil && r.Outcome.Err != nil {
			status = fmt.Sprintf("FAILED: %v", r.Outcome.Err)
		}
		b.line(c.theme.Error.Render(status))
	}
	b.flush()
}

package scheduler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vk/ceautotest/internal/dag"
)

// Test is the scheduling view of one test.
type Test struct {
	ID           string
	Targets      []string
	Dependencies []string
}

// State is the scheduling state of one test.
type State int

const (
	// Unassigned tests have not been looked at yet.
	Unassigned State = iota
	// Pending tests could not be placed when they were first seen.
	Pending
	// Resolved tests belong to exactly one batch.
	Resolved
	// Failed tests have dependencies no scheduled test provides.
	Failed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Unassigned:
		return "unassigned"
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// canTransition reports whether a test may move from s to next.
func (s State) canTransition(next State) bool {
	switch s {
	case Unassigned:
		return next == Pending || next == Resolved
	case Pending:
		return next == Resolved || next == Failed
	default:
		return false
	}
}

// Placement tells how a resolved test reached its batch.
type Placement int

const (
	// NotPlaced is the placement of unresolved tests.
	NotPlaced Placement = iota
	// Greedy placement happened when the test was first seen.
	Greedy
	// Promoted tests left the pending pool after a later placement.
	Promoted
	// Reconciled tests were placed in the final batch of a dependency cycle.
	Reconciled
)

// String implements fmt.Stringer.
func (p Placement) String() string {
	switch p {
	case NotPlaced:
		return "none"
	case Greedy:
		return "greedy"
	case Promoted:
		return "promoted"
	case Reconciled:
		return "reconciled"
	default:
		return fmt.Sprintf("Placement(%d)", int(p))
	}
}

// Assignment is the outcome of scheduling one test.
type Assignment struct {
	State     State
	Placement Placement
	// Batch is the 0-based batch index, or -1 for unresolved tests.
	Batch int
}

// Batch is one stage of the plan. Tests of a batch only depend on tests of
// earlier batches, except in a reconciled batch whose tests may also depend
// on each other.
type Batch struct {
	Tests      []Test
	Reconciled bool
}

// IDs returns the IDs of the batch's tests in order.
func (b Batch) IDs() []string {
	ids := make([]string, 0, len(b.Tests))
	for _, t := range b.Tests {
		ids = append(ids, t.ID)
	}
	return ids
}

// Plan is the result of scheduling a suite.
type Plan struct {
	Batches     []Batch
	Assignments map[string]Assignment
	// Unsatisfied lists the tests that failed scheduling, in input order.
	Unsatisfied []Unsatisfied
}

// Len returns the number of scheduled tests.
func (p *Plan) Len() int {
	n := 0
	for _, b := range p.Batches {
		n += len(b.Tests)
	}
	return n
}

// Verify re-checks the layering of the plan: every test appears once and
// each test's dependencies are covered by the targets of earlier batches
// (plus its own batch when that batch is reconciled). Only tests with no
// dependencies may sit in an unreconciled batch 0.
func (p *Plan) Verify() error {
	provided := make(map[string]struct{})
	seen := make(map[string]int)
	var problems []string

	for i, batch := range p.Batches {
		available := provided
		if batch.Reconciled {
			available = union(provided, batch.Tests)
		}
		for _, t := range batch.Tests {
			if prev, dup := seen[t.ID]; dup {
				problems = append(problems, fmt.Sprintf("'%s' appears in batches %d and %d", t.ID, prev+1, i+1))
				continue
			}
			seen[t.ID] = i
			if missing := uncovered(t.Dependencies, available); len(missing) > 0 {
				problems = append(problems, fmt.Sprintf("'%s' in batch %d depends on untested %s",
					t.ID, i+1, strings.Join(missing, ", ")))
			}
		}
		provided = union(provided, batch.Tests)
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid batch plan: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Cycles returns the groups of tests in reconciled batches that depend on
// each other, as found in their provider graph.
func (p *Plan) Cycles() [][]string {
	var groups [][]string
	for _, b := range p.Batches {
		if !b.Reconciled {
			continue
		}
		groups = append(groups, ProviderGraph(b.Tests).Components()...)
	}
	return groups
}

// ProviderGraph builds the graph with an edge from every test to each test
// that depends on one of its targets.
func ProviderGraph(tests []Test) *dag.Graph {
	g := dag.New()
	providers := make(map[string][]string)
	for _, t := range tests {
		g.AddNode(t.ID)
		for _, target := range t.Targets {
			providers[target] = append(providers[target], t.ID)
		}
	}
	for _, t := range tests {
		for _, dep := range t.Dependencies {
			for _, provider := range providers[dep] {
				if provider == t.ID {
					continue
				}
				// Both nodes exist, so AddEdge cannot fail.
				_ = g.AddEdge(provider, t.ID)
			}
		}
	}
	return g
}

func union(base map[string]struct{}, tests []Test) map[string]struct{} {
	out := make(map[string]struct{}, len(base))
	for k := range base {
		out[k] = struct{}{}
	}
	for _, t := range tests {
		for _, target := range t.Targets {
			out[target] = struct{}{}
		}
	}
	return out
}

// uncovered returns the sorted names of deps missing from available.
func uncovered(deps []string, available map[string]struct{}) []string {
	var missing []string
	for _, d := range deps {
		if _, ok := available[d]; !ok {
			missing = append(missing, d)
		}
	}
	sort.Strings(missing)
	return dedupeSorted(missing)
}

func dedupeSorted(s []string) []string {
	if len(s) < 2 {
		return s
	}
	out := s[:1]
	for _, v := range s[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

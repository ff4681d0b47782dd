package scheduler

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/ceautotest/internal/ctxlog"
)

// Options tunes the scheduling algorithm.
type Options struct {
	// ExhaustivePromotion lets every placement promote all pending tests
	// that become satisfied, repeatedly, instead of only the first one.
	ExhaustivePromotion bool
}

// Unsatisfied names a test that failed scheduling and the dependencies no
// scheduled test provides.
type Unsatisfied struct {
	ID      string
	Missing []string
}

// UnsatisfiedError reports every test whose dependencies cannot be met.
type UnsatisfiedError struct {
	Tests []Unsatisfied
}

// Error implements the error interface for UnsatisfiedError.
func (e *UnsatisfiedError) Error() string {
	parts := make([]string, 0, len(e.Tests))
	for _, u := range e.Tests {
		parts = append(parts, fmt.Sprintf("'%s' (%s)", u.ID, strings.Join(u.Missing, ", ")))
	}
	return fmt.Sprintf("some tests have untested dependencies: %s", strings.Join(parts, "; "))
}

// pendingTest is a test waiting in the pending pool.
type pendingTest struct {
	test Test
	deps map[string]struct{}
}

type scheduler struct {
	opts        Options
	batches     []Batch
	assignments map[string]Assignment
	pending     []*pendingTest
}

// Schedule assigns every test to a batch. When some tests cannot be
// scheduled the plan still holds every other test and the error is an
// *UnsatisfiedError. Duplicate test IDs are rejected with a nil plan.
func Schedule(ctx context.Context, tests []Test, opts Options) (*Plan, error) {
	logger := ctxlog.FromContext(ctx)

	s := &scheduler{
		opts:        opts,
		assignments: make(map[string]Assignment, len(tests)),
	}
	for _, t := range tests {
		if _, dup := s.assignments[t.ID]; dup {
			return nil, fmt.Errorf("duplicate test '%s'", t.ID)
		}
		s.assignments[t.ID] = Assignment{State: Unassigned, Batch: -1}
	}

	for _, t := range tests {
		s.assign(normalize(t))
	}
	logger.Debug("Greedy assignment finished.", "batches", len(s.batches), "pending", len(s.pending))

	unsatisfied := s.reconcile()

	plan := &Plan{
		Batches:     s.batches,
		Assignments: s.assignments,
		Unsatisfied: unsatisfied,
	}
	if len(unsatisfied) > 0 {
		logger.Debug("Scheduling failed.", "unsatisfied", len(unsatisfied))
		return plan, &UnsatisfiedError{Tests: unsatisfied}
	}
	return plan, nil
}

// normalize copies t and drops dependencies on its own targets.
func normalize(t Test) Test {
	own := make(map[string]struct{}, len(t.Targets))
	for _, target := range t.Targets {
		own[target] = struct{}{}
	}
	out := Test{ID: t.ID, Targets: append([]string(nil), t.Targets...)}
	for _, d := range t.Dependencies {
		if _, ok := own[d]; !ok {
			out.Dependencies = append(out.Dependencies, d)
		}
	}
	return out
}

func (s *scheduler) assign(t Test) {
	if len(t.Dependencies) == 0 {
		s.place(t, 0, Greedy)
		s.promote()
		return
	}

	if idx, ok := s.satisfyingBatch(t.Dependencies); ok {
		s.place(t, idx, Greedy)
		s.promote()
		return
	}

	s.transition(t.ID, Pending, NotPlaced, -1)
	s.pending = append(s.pending, &pendingTest{test: t})
}

// satisfyingBatch scans the batches in order, removing each batch's targets
// from deps, and returns the index right after the batch that empties it.
func (s *scheduler) satisfyingBatch(deps []string) (int, bool) {
	remaining := toSet(deps)
	if len(remaining) == 0 {
		return 0, true
	}
	for i, b := range s.batches {
		for _, t := range b.Tests {
			for _, target := range t.Targets {
				delete(remaining, target)
			}
		}
		if len(remaining) == 0 {
			return i + 1, true
		}
	}
	return 0, false
}

// promote gives the pending pool a chance after a placement. By default
// only the first satisfied pending test is promoted and the promotion does
// not trigger another pass.
func (s *scheduler) promote() {
	for {
		promoted := false
		for i, p := range s.pending {
			idx, ok := s.satisfyingBatch(p.test.Dependencies)
			if !ok {
				continue
			}
			s.pending = append(s.pending[:i:i], s.pending[i+1:]...)
			s.place(p.test, idx, Promoted)
			promoted = true
			break
		}
		if !promoted || !s.opts.ExhaustivePromotion {
			return
		}
	}
}

func (s *scheduler) place(t Test, idx int, how Placement) {
	if idx > len(s.batches) {
		panic(fmt.Sprintf("scheduler: batch %d skips past %d batches", idx, len(s.batches)))
	}
	if idx == len(s.batches) {
		s.batches = append(s.batches, Batch{})
	}
	s.batches[idx].Tests = append(s.batches[idx].Tests, t)
	s.transition(t.ID, Resolved, how, idx)
}

func (s *scheduler) transition(id string, next State, how Placement, batch int) {
	cur := s.assignments[id]
	if !cur.State.canTransition(next) {
		panic(fmt.Sprintf("scheduler: test '%s' cannot move from %s to %s", id, cur.State, next))
	}
	s.assignments[id] = Assignment{State: next, Placement: how, Batch: batch}
}

// reconcile places the pending tests that only depend on each other into a
// final batch and returns the rest as unsatisfied.
func (s *scheduler) reconcile() []Unsatisfied {
	if len(s.pending) == 0 {
		return nil
	}

	placedTargets := make(map[string]struct{})
	for _, b := range s.batches {
		for _, t := range b.Tests {
			for _, target := range t.Targets {
				placedTargets[target] = struct{}{}
			}
		}
	}
	for _, p := range s.pending {
		p.deps = make(map[string]struct{})
		for _, d := range p.test.Dependencies {
			if _, ok := placedTargets[d]; !ok {
				p.deps[d] = struct{}{}
			}
		}
	}

	survivors := append([]*pendingTest(nil), s.pending...)
	for {
		poolTargets := make(map[string]struct{})
		for _, p := range survivors {
			for _, target := range p.test.Targets {
				poolTargets[target] = struct{}{}
			}
		}
		kept := survivors[:0:0]
		for _, p := range survivors {
			if covered(p.deps, poolTargets) {
				kept = append(kept, p)
			}
		}
		if len(kept) == len(survivors) {
			break
		}
		survivors = kept
	}

	alive := make(map[string]struct{}, len(survivors))
	provided := placedTargets
	if len(survivors) > 0 {
		final := Batch{Reconciled: true}
		idx := len(s.batches)
		for _, p := range survivors {
			alive[p.test.ID] = struct{}{}
			final.Tests = append(final.Tests, p.test)
			s.transition(p.test.ID, Resolved, Reconciled, idx)
			for _, target := range p.test.Targets {
				provided[target] = struct{}{}
			}
		}
		s.batches = append(s.batches, final)
	}

	var unsatisfied []Unsatisfied
	for _, p := range s.pending {
		if _, ok := alive[p.test.ID]; ok {
			continue
		}
		s.transition(p.test.ID, Failed, NotPlaced, -1)
		unsatisfied = append(unsatisfied, Unsatisfied{
			ID:      p.test.ID,
			Missing: uncovered(p.test.Dependencies, provided),
		})
	}
	s.pending = nil
	return unsatisfied
}

func covered(deps, available map[string]struct{}) bool {
	for d := range deps {
		if _, ok := available[d]; !ok {
			return false
		}
	}
	return true
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tst(id string, targets []string, deps ...string) Test {
	return Test{ID: id, Targets: targets, Dependencies: deps}
}

func ids(p *Plan) [][]string {
	out := make([][]string, 0, len(p.Batches))
	for _, b := range p.Batches {
		out = append(out, b.IDs())
	}
	return out
}

func TestSchedule(t *testing.T) {
	testCases := []struct {
		name           string
		tests          []Test
		opts           Options
		want           [][]string
		wantReconciled []bool
	}{
		{
			name: "dependency chain in declaration order",
			tests: []Test{
				tst("A", []string{"f"}),
				tst("B", []string{"g"}, "f"),
				tst("C", []string{"h"}, "g"),
			},
			want:           [][]string{{"A"}, {"B"}, {"C"}},
			wantReconciled: []bool{false, false, false},
		},
		{
			name: "independent tests share batch 0",
			tests: []Test{
				tst("A", []string{"f"}),
				tst("B", []string{"g"}),
				tst("C", []string{"h"}, "f", "g"),
			},
			want:           [][]string{{"A", "B"}, {"C"}},
			wantReconciled: []bool{false, false},
		},
		{
			name: "pending test is promoted once its provider is placed",
			tests: []Test{
				tst("B", []string{"g"}, "f"),
				tst("A", []string{"f"}),
			},
			want:           [][]string{{"A"}, {"B"}},
			wantReconciled: []bool{false, false},
		},
		{
			name: "promotion is single shot",
			tests: []Test{
				tst("C", []string{"h"}, "g"),
				tst("B", []string{"g"}, "f"),
				tst("A", []string{"f"}),
			},
			want:           [][]string{{"A"}, {"B"}, {"C"}},
			wantReconciled: []bool{false, false, true},
		},
		{
			name: "exhaustive promotion cascades",
			tests: []Test{
				tst("C", []string{"h"}, "g"),
				tst("B", []string{"g"}, "f"),
				tst("A", []string{"f"}),
			},
			opts:           Options{ExhaustivePromotion: true},
			want:           [][]string{{"A"}, {"B"}, {"C"}},
			wantReconciled: []bool{false, false, false},
		},
		{
			name: "promotion lands after the latest provider",
			tests: []Test{
				tst("A", []string{"a"}),
				tst("B", []string{"b"}, "a"),
				tst("P", []string{"p"}, "b", "c"),
				tst("Q", []string{"c"}),
			},
			want:           [][]string{{"A", "Q"}, {"B"}, {"P"}},
			wantReconciled: []bool{false, false, false},
		},
		{
			name: "mutual dependency is reconciled into one final batch",
			tests: []Test{
				tst("X", []string{"p"}, "q"),
				tst("Y", []string{"q"}, "p"),
			},
			want:           [][]string{{"X", "Y"}},
			wantReconciled: []bool{true},
		},
		{
			name: "reconciled batch follows the greedy batches",
			tests: []Test{
				tst("W", []string{"w"}),
				tst("X", []string{"p"}, "q", "w"),
				tst("Y", []string{"q"}, "p"),
			},
			want:           [][]string{{"W"}, {"X", "Y"}},
			wantReconciled: []bool{false, true},
		},
		{
			name:           "dependency on own target is ignored",
			tests:          []Test{tst("S", []string{"s"}, "s")},
			want:           [][]string{{"S"}},
			wantReconciled: []bool{false},
		},
		{
			name:  "empty suite",
			tests: nil,
			want:  [][]string{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := Schedule(context.Background(), tc.tests, tc.opts)
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, ids(plan)); diff != "" {
				t.Errorf("batches mismatch (-want +got):\n%s", diff)
			}
			for i, b := range plan.Batches {
				assert.Equal(t, tc.wantReconciled[i], b.Reconciled, "batch %d", i)
			}
			assert.NoError(t, plan.Verify())
			assert.Equal(t, len(tc.tests), plan.Len())
		})
	}
}

func TestSchedule_Unsatisfied(t *testing.T) {
	tests := []Test{
		tst("A", []string{"f"}),
		tst("Z", []string{"r"}, "s", "f"),
		tst("Z2", []string{"r2"}, "r", "u", "t"),
	}

	plan, err := Schedule(context.Background(), tests, Options{})

	var unsatisfied *UnsatisfiedError
	require.ErrorAs(t, err, &unsatisfied)
	assert.Equal(t, []Unsatisfied{
		{ID: "Z", Missing: []string{"s"}},
		{ID: "Z2", Missing: []string{"r", "t", "u"}},
	}, unsatisfied.Tests)
	assert.ErrorContains(t, err, "'Z' (s)")

	require.NotNil(t, plan)
	assert.Equal(t, [][]string{{"A"}}, ids(plan))
	assert.Equal(t, unsatisfied.Tests, plan.Unsatisfied)
	assert.Equal(t, Assignment{State: Failed, Placement: NotPlaced, Batch: -1}, plan.Assignments["Z"])
}

func TestSchedule_PartialReconciliation(t *testing.T) {
	tests := []Test{
		tst("X", []string{"p"}, "q"),
		tst("Y", []string{"q"}, "p"),
		tst("Z", []string{"z"}, "p", "missing"),
	}

	plan, err := Schedule(context.Background(), tests, Options{})

	var unsatisfied *UnsatisfiedError
	require.ErrorAs(t, err, &unsatisfied)
	assert.Equal(t, []Unsatisfied{{ID: "Z", Missing: []string{"missing"}}}, unsatisfied.Tests)
	assert.Equal(t, [][]string{{"X", "Y"}}, ids(plan))
	assert.NoError(t, plan.Verify())
}

func TestSchedule_DependencyOnFailedTestFailsToo(t *testing.T) {
	tests := []Test{
		tst("Z", []string{"r"}, "s"),
		tst("R", []string{"x"}, "r"),
	}

	_, err := Schedule(context.Background(), tests, Options{})

	var unsatisfied *UnsatisfiedError
	require.ErrorAs(t, err, &unsatisfied)
	assert.Equal(t, []Unsatisfied{
		{ID: "Z", Missing: []string{"s"}},
		{ID: "R", Missing: []string{"r"}},
	}, unsatisfied.Tests)
}

func TestSchedule_Assignments(t *testing.T) {
	tests := []Test{
		tst("C", []string{"h"}, "g"),
		tst("B", []string{"g"}, "f"),
		tst("A", []string{"f"}),
		tst("D", []string{"i"}, "f"),
	}

	plan, err := Schedule(context.Background(), tests, Options{})

	require.NoError(t, err)
	assert.Equal(t, map[string]Assignment{
		"A": {State: Resolved, Placement: Greedy, Batch: 0},
		"B": {State: Resolved, Placement: Promoted, Batch: 1},
		"C": {State: Resolved, Placement: Promoted, Batch: 2},
		"D": {State: Resolved, Placement: Greedy, Batch: 1},
	}, plan.Assignments)
}

func TestSchedule_DuplicateID(t *testing.T) {
	plan, err := Schedule(context.Background(), []Test{tst("A", nil), tst("A", nil)}, Options{})

	assert.ErrorContains(t, err, "duplicate test 'A'")
	assert.Nil(t, plan)
}

func TestSchedule_DoesNotMutateInput(t *testing.T) {
	tests := []Test{tst("S", []string{"s"}, "s", "f"), tst("F", []string{"f"})}

	_, err := Schedule(context.Background(), tests, Options{})

	require.NoError(t, err)
	assert.Equal(t, []string{"s", "f"}, tests[0].Dependencies)
}

func TestSchedule_RandomSuitesProduceValidLayering(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		n := 1 + rng.Intn(12)
		tests := make([]Test, n)
		for i := range tests {
			tests[i] = Test{ID: fmt.Sprintf("t%d", i), Targets: []string{fmt.Sprintf("f%d", i)}}
			for j := 0; j < n; j++ {
				if j != i && rng.Intn(4) == 0 {
					tests[i].Dependencies = append(tests[i].Dependencies, fmt.Sprintf("f%d", j))
				}
			}
			if rng.Intn(10) == 0 {
				tests[i].Dependencies = append(tests[i].Dependencies, "nobody")
			}
		}

		for _, opts := range []Options{{}, {ExhaustivePromotion: true}} {
			plan, err := Schedule(context.Background(), tests, opts)
			require.NotNil(t, plan)
			require.NoError(t, plan.Verify(), "round %d", round)

			failed := 0
			if err != nil {
				var unsatisfied *UnsatisfiedError
				require.ErrorAs(t, err, &unsatisfied)
				failed = len(unsatisfied.Tests)
			}
			assert.Equal(t, n, plan.Len()+failed, "every test is scheduled once or fails")

			for i, b := range plan.Batches {
				if i == 0 && !b.Reconciled {
					for _, tt := range b.Tests {
						assert.Empty(t, tt.Dependencies)
					}
				}
				if b.Reconciled {
					assert.Equal(t, len(plan.Batches)-1, i, "only the last batch may be reconciled")
				}
			}
		}
	}
}

func TestPlan_Verify(t *testing.T) {
	testCases := []struct {
		name    string
		plan    *Plan
		wantErr string
	}{
		{
			name: "dependency provided in the same batch",
			plan: &Plan{Batches: []Batch{
				{Tests: []Test{tst("A", []string{"f"}), tst("B", []string{"g"}, "f")}},
			}},
			wantErr: "'B' in batch 1 depends on untested f",
		},
		{
			name: "test scheduled twice",
			plan: &Plan{Batches: []Batch{
				{Tests: []Test{tst("A", []string{"f"})}},
				{Tests: []Test{tst("A", []string{"f"})}},
			}},
			wantErr: "'A' appears in batches 1 and 2",
		},
		{
			name: "reconciled batch may rely on itself",
			plan: &Plan{Batches: []Batch{
				{Tests: []Test{tst("X", []string{"p"}, "q"), tst("Y", []string{"q"}, "p")}, Reconciled: true},
			}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.plan.Verify()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestPlan_Cycles(t *testing.T) {
	plan, err := Schedule(context.Background(), []Test{
		tst("W", []string{"w"}),
		tst("X", []string{"p"}, "q"),
		tst("Y", []string{"q"}, "p"),
		tst("V", []string{"v"}, "p", "q"),
	}, Options{})

	require.NoError(t, err)
	assert.Equal(t, [][]string{{"W"}, {"X", "Y", "V"}}, ids(plan))
	assert.Equal(t, [][]string{{"X", "Y"}}, plan.Cycles())
}

func TestProviderGraph(t *testing.T) {
	testCases := []struct {
		name  string
		tests []Test
		want  [][]string
	}{
		{
			name: "chain has no groups",
			tests: []Test{
				tst("A", []string{"f", "g"}),
				tst("B", []string{"h"}, "f", "g"),
				tst("C", []string{"i"}, "h", "f", "unknown"),
			},
		},
		{
			name: "own targets add no edge",
			tests: []Test{
				tst("A", []string{"f"}, "f"),
			},
		},
		{
			name: "shared provider closes a group",
			tests: []Test{
				tst("A", []string{"f"}),
				tst("B", []string{"g"}, "f"),
				tst("C", []string{"f"}, "g"),
			},
			want: [][]string{{"B", "C"}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			groups := ProviderGraph(tc.tests).Components()

			if tc.want == nil {
				assert.Empty(t, groups)
				return
			}
			assert.Equal(t, tc.want, groups)
		})
	}
}

func TestStateTransitions(t *testing.T) {
	assert.True(t, Unassigned.canTransition(Pending))
	assert.True(t, Unassigned.canTransition(Resolved))
	assert.True(t, Pending.canTransition(Failed))
	assert.False(t, Resolved.canTransition(Pending))
	assert.False(t, Failed.canTransition(Resolved))
	assert.False(t, Pending.canTransition(Unassigned))
	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "reconciled", Reconciled.String())
}

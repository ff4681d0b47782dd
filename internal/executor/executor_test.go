package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/ceautotest/internal/registry"
	"github.com/vk/ceautotest/internal/toolchain"
)

type runnerFunc func(ctx context.Context, t registry.Test) (*toolchain.Outcome, error)

func (f runnerFunc) Run(ctx context.Context, t registry.Test) (*toolchain.Outcome, error) {
	return f(ctx, t)
}

func batch(ids ...string) Batch {
	b := Batch{}
	for _, id := range ids {
		b.Tests = append(b.Tests, registry.Test{ID: id, Dir: "/suite/" + id})
	}
	return b
}

func resultIDs(s *Summary) []string {
	var ids []string
	for _, r := range s.Results {
		ids = append(ids, r.Test.ID)
	}
	return ids
}

func TestExecutor_BatchesRunInOrderWithBarrier(t *testing.T) {
	// Arrange
	var mu sync.Mutex
	finished := map[string]bool{}
	var violations []string
	order := map[string][]string{"b1": {"a1", "a2", "a3"}, "b2": {"b1"}}

	runner := runnerFunc(func(_ context.Context, tt registry.Test) (*toolchain.Outcome, error) {
		mu.Lock()
		for _, dep := range order[tt.ID] {
			if !finished[dep] {
				violations = append(violations, fmt.Sprintf("%s started before %s finished", tt.ID, dep))
			}
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		finished[tt.ID] = true
		mu.Unlock()
		return &toolchain.Outcome{Passed: true}, nil
	})
	e := New(runner, Options{Workers: 3})

	// Act
	summary, err := e.Run(context.Background(), []Batch{batch("a1", "a2", "a3"), batch("b1"), batch("b2")})

	// Assert
	require.NoError(t, err)
	assert.Empty(t, violations)
	assert.Equal(t, 5, summary.Executed())
	assert.Zero(t, summary.Skipped)
	assert.Empty(t, summary.Failed())
	assert.Equal(t, []string{"b1", "b2"}, resultIDs(summary)[3:])
}

func TestExecutor_RespectsWorkerLimit(t *testing.T) {
	testCases := []struct {
		name       string
		workers    int
		sequential bool
		wantMax    int32
	}{
		{name: "bounded pool", workers: 2, wantMax: 2},
		{name: "sequential batch", workers: 4, sequential: true, wantMax: 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var running, peak atomic.Int32
			runner := runnerFunc(func(context.Context, registry.Test) (*toolchain.Outcome, error) {
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				running.Add(-1)
				return &toolchain.Outcome{Passed: true}, nil
			})
			b := batch("t1", "t2", "t3", "t4", "t5", "t6")
			b.Sequential = tc.sequential

			_, err := New(runner, Options{Workers: tc.workers}).Run(context.Background(), []Batch{b})

			require.NoError(t, err)
			assert.LessOrEqual(t, peak.Load(), tc.wantMax)
			if tc.sequential {
				assert.Equal(t, int32(1), peak.Load())
			}
		})
	}
}

func TestExecutor_SequentialBatchKeepsOrder(t *testing.T) {
	var got []string
	runner := runnerFunc(func(_ context.Context, tt registry.Test) (*toolchain.Outcome, error) {
		got = append(got, tt.ID)
		return &toolchain.Outcome{Passed: true}, nil
	})
	b := batch("x", "y", "z")
	b.Sequential = true

	_, err := New(runner, Options{Workers: 8}).Run(context.Background(), []Batch{b})

	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, got)
}

func TestExecutor_FailureContinuesByDefault(t *testing.T) {
	runner := runnerFunc(func(_ context.Context, tt registry.Test) (*toolchain.Outcome, error) {
		if tt.ID == "bad" {
			return &toolchain.Outcome{ExitCode: 1, Err: errors.New("exit status 1")}, nil
		}
		return &toolchain.Outcome{Passed: true}, nil
	})
	var reported []string
	e := New(runner, Options{Workers: 1, OnResult: func(r Result) { reported = append(reported, r.Test.ID) }})

	summary, err := e.Run(context.Background(), []Batch{batch("ok1", "bad"), batch("ok2")})

	require.NoError(t, err)
	assert.Equal(t, 3, summary.Executed())
	assert.Equal(t, []string{"bad"}, summary.Failed())
	assert.Equal(t, []string{"ok1", "bad", "ok2"}, reported)
}

func TestExecutor_AbortOnFailure(t *testing.T) {
	runner := runnerFunc(func(_ context.Context, tt registry.Test) (*toolchain.Outcome, error) {
		if tt.ID == "bad" {
			return &toolchain.Outcome{ExitCode: 1, Err: errors.New("exit status 1")}, nil
		}
		return &toolchain.Outcome{Passed: true}, nil
	})
	e := New(runner, Options{Workers: 1, AbortOnFailure: true})

	summary, err := e.Run(context.Background(), []Batch{batch("ok1", "bad", "never1"), batch("never2")})

	var failure *FailureError
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "bad", failure.ID)
	assert.ErrorContains(t, err, "test 'bad' failed: exit status 1")
	assert.Equal(t, []string{"ok1", "bad"}, resultIDs(summary))
	assert.Equal(t, 2, summary.Skipped)
}

func TestExecutor_AbortLetsInFlightTestsFinish(t *testing.T) {
	slowStarted := make(chan struct{})
	var slowFinished atomic.Bool
	runner := runnerFunc(func(ctx context.Context, tt registry.Test) (*toolchain.Outcome, error) {
		switch tt.ID {
		case "slow":
			close(slowStarted)
			time.Sleep(30 * time.Millisecond)
			slowFinished.Store(true)
			return &toolchain.Outcome{Passed: true}, ctx.Err()
		case "bad":
			<-slowStarted
			return &toolchain.Outcome{ExitCode: 1}, nil
		}
		return &toolchain.Outcome{Passed: true}, nil
	})
	e := New(runner, Options{Workers: 2, AbortOnFailure: true})

	summary, err := e.Run(context.Background(), []Batch{batch("slow", "bad", "later")})

	var failure *FailureError
	require.ErrorAs(t, err, &failure)
	assert.True(t, slowFinished.Load(), "in-flight test must finish")
	assert.ElementsMatch(t, []string{"slow", "bad"}, resultIDs(summary))
	assert.Equal(t, 1, summary.Skipped)
}

func TestExecutor_RunnerErrorStopsRun(t *testing.T) {
	boom := errors.New("cemu-autotester: not found")
	runner := runnerFunc(func(context.Context, registry.Test) (*toolchain.Outcome, error) {
		return nil, boom
	})

	summary, err := New(runner, Options{Workers: 1}).Run(context.Background(), []Batch{batch("a", "b")})

	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "executing 'a'")
	assert.Equal(t, 2, summary.Skipped)
}

func TestPool_CanceledContextLaunchesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls atomic.Int32

	err := Pool(ctx, 4, []int{1, 2, 3}, func(context.Context, int) error {
		calls.Add(1)
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls.Load())
}

func TestPool_ReturnsFirstError(t *testing.T) {
	err := Pool(context.Background(), 1, []int{1, 2, 3}, func(_ context.Context, n int) error {
		return fmt.Errorf("item %d", n)
	})

	assert.EqualError(t, err, "item 1")
}

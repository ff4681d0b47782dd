package toolchain

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/ceautotest/internal/process"
	"github.com/vk/ceautotest/internal/registry"
	"github.com/vk/ceautotest/internal/testutil"
)

func newTest(t *testing.T) registry.Test {
	t.Helper()
	root := t.TempDir()
	dir := testutil.WriteTestDir(t, root, testutil.TestDir{ID: "group/test_1", Targets: []string{"f()"}})
	return registry.Test{ID: "group/test_1", Dir: dir}
}

func TestBuilder_Build(t *testing.T) {
	testCases := []struct {
		name  string
		clean bool
		want  []string
	}{
		{name: "debug only", want: []string{"make debug"}},
		{name: "clean then debug", clean: true, want: []string{"make clean", "make debug"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tt := newTest(t)
			runner := &testutil.FakeRunner{}
			b := NewBuilder(runner, BuilderOptions{Clean: tc.clean, Timeout: time.Minute})

			require.NoError(t, b.Build(context.Background(), tt))

			var got []string
			for _, c := range runner.Commands() {
				got = append(got, c.String())
				assert.Equal(t, tt.Dir, c.Dir)
				assert.Equal(t, time.Minute, c.Timeout)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBuilder_BuildFailure(t *testing.T) {
	tt := newTest(t)
	runner := &testutil.FakeRunner{Handle: func(_ context.Context, c process.Command) (*process.Result, error) {
		if c.Args[len(c.Args)-1] == StepClean {
			return testutil.Exit(c, 0, "")
		}
		return testutil.Exit(c, 2, "src/main.cpp:3:1: error: unknown type name 'itn'")
	}}
	b := NewBuilder(runner, BuilderOptions{Clean: true})

	err := b.Build(context.Background(), tt)

	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, "group/test_1", buildErr.ID)
	assert.Equal(t, StepDebug, buildErr.Step)
	assert.Contains(t, buildErr.Output, "unknown type name")
	var procErr *process.Error
	assert.True(t, errors.As(err, &procErr))
}

func TestBuilder_CleanFailureStopsBuild(t *testing.T) {
	tt := newTest(t)
	runner := &testutil.FakeRunner{Handle: func(_ context.Context, c process.Command) (*process.Result, error) {
		return testutil.Exit(c, 1, "make: *** No rule to make target 'clean'.")
	}}
	b := NewBuilder(runner, BuilderOptions{Clean: true, Command: []string{"gmake", "-s"}})

	err := b.Build(context.Background(), tt)

	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, StepClean, buildErr.Step)
	require.Len(t, runner.Commands(), 1)
	assert.Equal(t, "gmake -s clean", runner.Commands()[0].String())
}

func TestDescriptor_WithDoesNotModifyBase(t *testing.T) {
	base := Descriptor{"target": json.RawMessage(`{"name":"DEMO"}`)}

	got, err := base.With(map[string]any{"rom": "/abs/rom.rom"})

	require.NoError(t, err)
	assert.Len(t, base, 1)
	assert.JSONEq(t, `"/abs/rom.rom"`, string(got["rom"]))
	assert.JSONEq(t, `{"name":"DEMO"}`, string(got["target"]))
}

func TestHarness_Run(t *testing.T) {
	// Arrange
	tt := newTest(t)
	baseBefore, err := os.ReadFile(tt.DescriptorPath())
	require.NoError(t, err)

	var seen map[string]any
	runner := &testutil.FakeRunner{Handle: func(_ context.Context, c process.Command) (*process.Result, error) {
		data, err := os.ReadFile(filepath.Join(c.Dir, c.Args[0]))
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &seen); err != nil {
			return nil, err
		}
		return testutil.Exit(c, 0, "All tests passed")
	}}
	h, err := NewHarness(runner, HarnessOptions{ROM: "testing_rom.rom", RunID: "run-1"})
	require.NoError(t, err)

	// Act
	out, err := h.Run(context.Background(), tt)

	// Assert
	require.NoError(t, err)
	assert.True(t, out.Passed)
	assert.Equal(t, "All tests passed", out.Output)

	cmds := runner.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, "cemu-autotester ./.autotest-run-1.json", cmds[0].String())
	assert.Equal(t, tt.Dir, cmds[0].Dir)

	wantROM, err := filepath.Abs("testing_rom.rom")
	require.NoError(t, err)
	assert.Equal(t, wantROM, seen["rom"])
	assert.Equal(t, map[string]any{"name": "DEMO", "isASM": true}, seen["target"])

	baseAfter, err := os.ReadFile(tt.DescriptorPath())
	require.NoError(t, err)
	assert.Equal(t, baseBefore, baseAfter, "base descriptor must not change")
	_, err = os.Stat(filepath.Join(tt.Dir, h.DescriptorName()))
	assert.True(t, errors.Is(err, os.ErrNotExist), "run descriptor must be removed")
}

func TestHarness_RunFailure(t *testing.T) {
	tt := newTest(t)
	runner := &testutil.FakeRunner{Handle: func(_ context.Context, c process.Command) (*process.Result, error) {
		return testutil.Exit(c, 1, "Test 1 failed: CRC mismatch")
	}}
	h, err := NewHarness(runner, HarnessOptions{ROM: "/roms/ce.rom"})
	require.NoError(t, err)

	out, err := h.Run(context.Background(), tt)

	require.NoError(t, err)
	assert.False(t, out.Passed)
	assert.Equal(t, 1, out.ExitCode)
	assert.Error(t, out.Err)
	assert.Contains(t, out.Output, "CRC mismatch")
}

func TestHarness_RunMissingTool(t *testing.T) {
	tt := newTest(t)
	runner := &testutil.FakeRunner{Handle: func(_ context.Context, c process.Command) (*process.Result, error) {
		return nil, &process.Error{Command: c.String(), Dir: c.Dir, Err: &exec.Error{Name: c.Name, Err: exec.ErrNotFound}}
	}}
	h, err := NewHarness(runner, HarnessOptions{ROM: "/roms/ce.rom"})
	require.NoError(t, err)

	_, err = h.Run(context.Background(), tt)

	assert.ErrorIs(t, err, exec.ErrNotFound)
}

func TestHarness_RandomRunID(t *testing.T) {
	a, err := NewHarness(&testutil.FakeRunner{}, HarnessOptions{ROM: "/r.rom"})
	require.NoError(t, err)
	b, err := NewHarness(&testutil.FakeRunner{}, HarnessOptions{ROM: "/r.rom"})
	require.NoError(t, err)

	assert.NotEqual(t, a.DescriptorName(), b.DescriptorName())
}

func TestNewHarness_RequiresROM(t *testing.T) {
	_, err := NewHarness(&testutil.FakeRunner{}, HarnessOptions{})
	assert.ErrorContains(t, err, "ROM")
}

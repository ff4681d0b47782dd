package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/ceautotest/internal/cli"
	"github.com/vk/ceautotest/internal/testutil"
)

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	// Arrange
	// The "-h" (help) flag should cause cli.Parse to return `shouldExit=true`.
	out := &bytes.Buffer{}

	// Act
	err := run(context.Background(), out, &bytes.Buffer{}, []string{"-h"})

	// Assert
	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	err := run(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, []string{"--this-is-not-a-valid-flag"})

	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, cli.ExitUsage, exitErr.Code)
	assert.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
}

func TestRun_FatalErrorExitsWithOne(t *testing.T) {
	t.Parallel()

	// Arrange
	// A directory with only a source folder is an incomplete test.
	root := t.TempDir()
	testutil.WriteFiles(t, root, map[string]string{"broken/src/main.cpp": ""})
	out := &bytes.Buffer{}

	// Act
	err := run(context.Background(), out, &bytes.Buffer{}, []string{
		"--tests", root,
		"--rom", filepath.Join(root, "testing_rom.rom"),
	})

	// Assert
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, cli.ExitFatal, exitErr.Code)
	assert.Contains(t, out.String(), "FATAL ERROR: Invalid test directory structure initiated program abort.")
	assert.Contains(t, out.String(), "TESTING ABORTED")
}

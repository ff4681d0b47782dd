package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/ceautotest/internal/ctxlog"
)

// File and directory names that make up a test directory.
const (
	SourceDirName      = "src"
	ObjectDirName      = "obj"
	RecordFileName     = "test_info.json"
	DescriptorFileName = "autotest.json"
	IgnoreListFileName = "ignored_dependencies.json"
)

// Test is one discovered test directory.
type Test struct {
	// ID is the directory path relative to the suite root, slash separated.
	ID string
	// Dir is the absolute test directory.
	Dir string
}

// RecordPath returns the path of the test's persisted record.
func (t Test) RecordPath() string { return filepath.Join(t.Dir, RecordFileName) }

// DescriptorPath returns the path of the test's execution descriptor.
func (t Test) DescriptorPath() string { return filepath.Join(t.Dir, DescriptorFileName) }

// ObjectDir returns the directory the build tool writes listings into.
func (t Test) ObjectDir() string { return filepath.Join(t.Dir, ObjectDirName) }

// Piece is one element a test directory must contain.
type Piece struct {
	Name    string
	Problem string
	Advice  string
}

var requiredPieces = []Piece{
	{
		Name:    SourceDirName,
		Problem: "does not have a source directory.",
		Advice:  "Create a source directory and add source code to test.",
	},
	{
		Name:    RecordFileName,
		Problem: "does not have a JSON file for test information.",
		Advice:  "Create the JSON file for test information in the test directory.",
	},
	{
		Name:    DescriptorFileName,
		Problem: "does not have an autotest JSON file.",
		Advice:  "Add an autotest JSON file to the test directory.",
	},
}

// StructureError reports a directory that looks like a test but is missing
// some of the required pieces.
type StructureError struct {
	ID      string
	Missing []Piece
}

// Error implements the error interface for StructureError.
func (e *StructureError) Error() string {
	names := make([]string, 0, len(e.Missing))
	for _, p := range e.Missing {
		names = append(names, p.Name)
	}
	return fmt.Sprintf("invalid test directory structure in '%s': missing %s", e.ID, strings.Join(names, ", "))
}

// Discover walks the suite root depth first in lexical order and returns
// every test directory. A directory is a test when it holds any of the
// required pieces; it must then hold all of them. Test directories are not
// descended into, and hidden directories are skipped.
func Discover(ctx context.Context, root string) ([]Test, error) {
	logger := ctxlog.FromContext(ctx)
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving tests root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("accessing tests root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("tests root '%s' is not a directory", absRoot)
	}

	var tests []Test
	if err := discoverIn(absRoot, absRoot, &tests); err != nil {
		return nil, err
	}
	logger.Debug("Test discovery finished.", "root", absRoot, "tests", len(tests))
	return tests, nil
}

func discoverIn(root, dir string, tests *[]Test) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		sub := filepath.Join(dir, entry.Name())

		isTest, err := holdsTest(root, sub)
		if err != nil {
			return err
		}
		if isTest {
			*tests = append(*tests, Test{ID: identifier(root, sub), Dir: sub})
			continue
		}
		if err := discoverIn(root, sub, tests); err != nil {
			return err
		}
	}
	return nil
}

func holdsTest(root, dir string) (bool, error) {
	var found, missing []Piece
	for _, piece := range requiredPieces {
		if _, err := os.Stat(filepath.Join(dir, piece.Name)); err == nil {
			found = append(found, piece)
		} else {
			missing = append(missing, piece)
		}
	}
	if len(found) == 0 {
		return false, nil
	}
	if len(missing) > 0 {
		return false, &StructureError{ID: identifier(root, dir), Missing: missing}
	}
	return true, nil
}

func identifier(root, dir string) string {
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return dir
	}
	return filepath.ToSlash(rel)
}

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/ceautotest/internal/ctxlog"
)

// FileName is the suite file looked up at the root of the test suite.
const FileName = "autotest.hcl"

// Suite is the decoded suite file. Nil fields were not set.
type Suite struct {
	ROM                 *string  `hcl:"rom,optional"`
	IgnoreList          *string  `hcl:"ignore_list,optional"`
	Clean               *bool    `hcl:"clean,optional"`
	AbortOnFailure      *bool    `hcl:"abort_on_failure,optional"`
	Trace               *bool    `hcl:"trace,optional"`
	PrintBatches        *bool    `hcl:"print_batches,optional"`
	PlanFile            *string  `hcl:"plan_file,optional"`
	Workers             *int     `hcl:"workers,optional"`
	BuildTimeoutRaw     *string  `hcl:"build_timeout,optional"`
	ExecTimeoutRaw      *string  `hcl:"exec_timeout,optional"`
	ExhaustivePromotion *bool    `hcl:"exhaustive_promotion,optional"`
	EntryListing        *string  `hcl:"entry_listing,optional"`
	EntryPoint          *string  `hcl:"entry_point,optional"`
	BuildCommand        []string `hcl:"build_command,optional"`
	HarnessCommand      []string `hcl:"harness_command,optional"`
	DemanglerCommand    []string `hcl:"demangler_command,optional"`

	// Parsed from the raw duration strings.
	BuildTimeout *time.Duration
	ExecTimeout  *time.Duration

	// Path is the absolute path of the file the suite was read from.
	Path string
}

// Load reads and evaluates the suite file at path.
func Load(ctx context.Context, path string) (*Suite, error) {
	logger := ctxlog.FromContext(ctx).With("file", path)
	logger.Debug("Loading suite file.")

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving suite file path: %w", err)
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(abs)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}

	suite := &Suite{Path: abs}
	evalCtx := NewEvalContext(filepath.Dir(abs))
	if diags := gohcl.DecodeBody(file.Body, evalCtx, suite); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}

	if suite.BuildTimeout, err = parseDuration("build_timeout", suite.BuildTimeoutRaw); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if suite.ExecTimeout, err = parseDuration("exec_timeout", suite.ExecTimeoutRaw); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if suite.Workers != nil && *suite.Workers < 1 {
		return nil, fmt.Errorf("%s: workers must be at least 1, got %d", path, *suite.Workers)
	}

	logger.Debug("Suite file loaded.")
	return suite, nil
}

// LoadOptional loads the suite file at path, or returns nil when the file
// does not exist.
func LoadOptional(ctx context.Context, path string) (*Suite, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		ctxlog.FromContext(ctx).Debug("No suite file found.", "file", path)
		return nil, nil
	}
	return Load(ctx, path)
}

func parseDuration(name string, raw *string) (*time.Duration, error) {
	if raw == nil {
		return nil, nil
	}
	d, err := time.ParseDuration(*raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", name, *raw, err)
	}
	if d < 0 {
		return nil, fmt.Errorf("invalid %s %q: must not be negative", name, *raw)
	}
	return &d, nil
}

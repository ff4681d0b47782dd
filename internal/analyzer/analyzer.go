// Package analyzer turns one built test into its record: it reads the test's
// listings, computes which functions the test uses and what those depend on,
// persists the result and checks the test still exercises its targets.
package analyzer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/vk/ceautotest/internal/callgraph"
	"github.com/vk/ceautotest/internal/ctxlog"
	"github.com/vk/ceautotest/internal/demangle"
	"github.com/vk/ceautotest/internal/fsutil"
	"github.com/vk/ceautotest/internal/listing"
	"github.com/vk/ceautotest/internal/registry"
)

// Options controls where the analyzer looks and how listings are read.
type Options struct {
	// EntryListing is the entry point's listing, relative to the object dir.
	EntryListing string
	// ListingSuffix selects the listings that make up the call graph.
	ListingSuffix string
	EntryPoint    string
	Syntax        listing.Syntax
	// Trace enables building a Report for every analyzed test.
	Trace bool
}

// DefaultOptions returns the layout produced by the CE toolchain.
func DefaultOptions() Options {
	return Options{
		EntryListing:  filepath.Join("src", "main.cpp.src"),
		ListingSuffix: ".cpp.src",
		EntryPoint:    callgraph.DefaultEntryPoint,
		Syntax:        listing.DefaultSyntax(),
	}
}

// ContractError reports a test that no longer uses every function it
// claims to evaluate.
type ContractError struct {
	ID      string
	Missing []string
}

// Error implements the error interface for ContractError.
func (e *ContractError) Error() string {
	return fmt.Sprintf("test '%s' does not have all of the functions it claims to evaluate: missing %s",
		e.ID, strings.Join(e.Missing, ", "))
}

// Result is the outcome of analyzing one test.
type Result struct {
	Test   registry.Test
	Record *registry.Record
	// Report is nil unless Options.Trace is set.
	Report *Report
}

// Analyzer computes test records. It holds no per-test state and is safe
// for concurrent use when its Ignorer and Demangler are.
type Analyzer struct {
	opts      Options
	ignore    callgraph.Ignorer
	demangler demangle.Demangler
}

// New creates an Analyzer. Zero-valued options fall back to DefaultOptions.
func New(opts Options, ignore callgraph.Ignorer, d demangle.Demangler) *Analyzer {
	def := DefaultOptions()
	if opts.EntryListing == "" {
		opts.EntryListing = def.EntryListing
	}
	if opts.ListingSuffix == "" {
		opts.ListingSuffix = def.ListingSuffix
	}
	if opts.EntryPoint == "" {
		opts.EntryPoint = def.EntryPoint
	}
	if len(opts.Syntax.LabelPrefixes) == 0 {
		opts.Syntax = def.Syntax
	}
	return &Analyzer{opts: opts, ignore: ignore, demangler: d}
}

// Analyze recomputes the used functions and dependencies of a built test
// and saves them into its record. The record is written before the targets
// are checked, so a ContractError still leaves an up-to-date record behind.
func (a *Analyzer) Analyze(ctx context.Context, t registry.Test) (*Result, error) {
	logger := ctxlog.FromContext(ctx).With("test", t.ID)

	rec, err := registry.LoadRecord(t.Dir)
	if err != nil {
		return nil, err
	}

	entry, err := listing.ParseFile(filepath.Join(t.ObjectDir(), a.opts.EntryListing), a.opts.Syntax)
	if err != nil {
		return nil, err
	}
	linked, err := callgraph.Collapse(entry, a.opts.EntryPoint)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.ID, err)
	}
	used, err := callgraph.Filter(ctx, linked, a.ignore, a.demangler)
	if err != nil {
		return nil, err
	}

	paths, err := fsutil.Find(t.ObjectDir(), fsutil.Suffix(a.opts.ListingSuffix))
	if err != nil {
		return nil, err
	}
	listings := make([][]listing.Function, 0, len(paths))
	for _, p := range paths {
		functions, err := listing.ParseFile(p, a.opts.Syntax)
		if err != nil {
			return nil, err
		}
		listings = append(listings, functions)
	}
	logger.Debug("Listings parsed.", "listings", len(paths))

	var steps []TraceStep
	var visit callgraph.VisitFunc
	if a.opts.Trace {
		visit = func(name string, depth int) {
			steps = append(steps, TraceStep{Symbol: name, Depth: depth})
		}
	}
	traced := callgraph.NewGraph(listings...).Trace(used, visit)
	traced, err = callgraph.Filter(ctx, traced, a.ignore, a.demangler)
	if err != nil {
		return nil, err
	}

	usedNames, err := demangle.All(ctx, a.demangler, used)
	if err != nil {
		return nil, err
	}
	tracedNames, err := demangle.All(ctx, a.demangler, traced)
	if err != nil {
		return nil, err
	}

	targets := make(map[string]struct{}, len(rec.Targets))
	for _, name := range rec.Targets {
		targets[name] = struct{}{}
	}
	var depSymbols []string
	dependencies := []string{}
	seen := make(map[string]struct{}, len(tracedNames))
	for i, name := range tracedNames {
		if _, isTarget := targets[name]; isTarget {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		dependencies = append(dependencies, name)
		depSymbols = append(depSymbols, traced[i])
	}

	rec.Used = dedupe(usedNames)
	rec.Dependencies = dependencies
	if err := registry.SaveRecord(t.Dir, rec); err != nil {
		return nil, err
	}
	logger.Debug("Test record updated.", "used", len(rec.Used), "dependencies", len(rec.Dependencies))

	res := &Result{Test: t, Record: rec}
	if a.opts.Trace {
		res.Report, err = a.report(ctx, paths, listings, linked, steps, used, depSymbols)
		if err != nil {
			return nil, err
		}
	}

	if missing := rec.MissingTargets(); len(missing) > 0 {
		return res, &ContractError{ID: t.ID, Missing: missing}
	}
	return res, nil
}

func dedupe(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

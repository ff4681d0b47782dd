package analyzer

import (
	"context"
	"path/filepath"

	"github.com/vk/ceautotest/internal/listing"
)

// Symbol pairs a linker symbol with its human-readable signature.
type Symbol struct {
	Mangled   string
	Demangled string
}

// FunctionReport is one function found in a listing.
type FunctionReport struct {
	Symbol
	Calls []Symbol
}

// ListingReport lists the functions found in one listing file.
type ListingReport struct {
	File      string
	Functions []FunctionReport
}

// TraceStep is one visit of the dependency walk. Repeated visits of an
// already traced name are included; Depth starts at 1 for the roots.
type TraceStep struct {
	Symbol string
	Depth  int
}

// Report is the diagnostic view of one analysis, in the order the steps
// happened.
type Report struct {
	// Listings holds every listing the call graph was built from.
	Listings []ListingReport
	// Linked is the entry point's call set after helpers were folded in.
	Linked []Symbol
	Trace  []TraceStep
	// Used is Linked with ignored functions removed.
	Used []Symbol
	// Dependencies is the traced closure with ignored functions and
	// targets removed.
	Dependencies []Symbol
}

func (a *Analyzer) report(ctx context.Context, paths []string, listings [][]listing.Function,
	linked []string, steps []TraceStep, used, deps []string) (*Report, error) {
	sym := func(name string) (Symbol, error) {
		d, err := a.demangler.Demangle(ctx, name)
		return Symbol{Mangled: name, Demangled: d}, err
	}
	syms := func(names []string) ([]Symbol, error) {
		out := make([]Symbol, 0, len(names))
		for _, n := range names {
			s, err := sym(n)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	}

	r := &Report{Trace: steps}
	for i, functions := range listings {
		lr := ListingReport{File: filepath.Base(paths[i])}
		for _, f := range functions {
			s, err := sym(f.Name)
			if err != nil {
				return nil, err
			}
			calls, err := syms(f.Calls)
			if err != nil {
				return nil, err
			}
			lr.Functions = append(lr.Functions, FunctionReport{Symbol: s, Calls: calls})
		}
		r.Listings = append(r.Listings, lr)
	}

	var err error
	if r.Linked, err = syms(linked); err != nil {
		return nil, err
	}
	if r.Used, err = syms(used); err != nil {
		return nil, err
	}
	if r.Dependencies, err = syms(deps); err != nil {
		return nil, err
	}
	return r, nil
}

package callgraph

import (
	"github.com/vk/ceautotest/internal/listing"
)

// Graph is the call graph of every artifact that belongs to one test.
type Graph struct {
	calls map[string][]string
}

// NewGraph merges the functions of several listings. A symbol defined in
// more than one listing is treated as the same function and its calls are
// unioned.
func NewGraph(listings ...[]listing.Function) *Graph {
	g := &Graph{calls: make(map[string][]string)}
	for _, functions := range listings {
		for _, f := range functions {
			g.add(f)
		}
	}
	return g
}

func (g *Graph) add(f listing.Function) {
	existing, ok := g.calls[f.Name]
	if !ok {
		g.calls[f.Name] = append([]string(nil), f.Calls...)
		return
	}
	seen := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		seen[c] = struct{}{}
	}
	for _, c := range f.Calls {
		if _, dup := seen[c]; !dup {
			existing = append(existing, c)
			seen[c] = struct{}{}
		}
	}
	g.calls[f.Name] = existing
}

// Calls returns the callees of name and whether name is defined in the graph.
func (g *Graph) Calls(name string) ([]string, bool) {
	calls, ok := g.calls[name]
	return calls, ok
}

// Len returns the number of defined functions.
func (g *Graph) Len() int { return len(g.calls) }

// VisitFunc observes every name the trace encounters, including repeats,
// with its depth below the root set (roots are depth 1).
type VisitFunc func(name string, depth int)

// Trace returns the transitive closure of roots, in first-visit order. A
// name is expanded only the first time it is seen, which terminates cycles.
// Names without a definition stay in the result but are not expanded.
func (g *Graph) Trace(roots []string, visit VisitFunc) []string {
	seen := make(map[string]struct{})
	var trace []string

	var walk func(names []string, depth int)
	walk = func(names []string, depth int) {
		for _, name := range names {
			if visit != nil {
				visit(name, depth)
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			trace = append(trace, name)
			if calls, ok := g.calls[name]; ok {
				walk(calls, depth+1)
			}
		}
	}
	walk(roots, 1)

	return trace
}

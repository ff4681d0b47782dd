// Package callgraph turns the functions extracted from a test's listings
// into the two sets a test record needs:
//
//   - the used set: the entry point's calls after every helper defined in the
//     entry listing has been folded into it (Collapse), minus ignored names
//     (Filter);
//   - the dependency closure: everything transitively reachable from the
//     used set across all of the test's listings (Graph.Trace).
//
// All symbols here are raw linker names; callers demangle at the edges.
package callgraph

package callgraph

import (
	"errors"
	"fmt"

	"github.com/vk/ceautotest/internal/listing"
)

// DefaultEntryPoint is the label of a test program's entry point.
const DefaultEntryPoint = "_main"

// ErrNoEntryPoint is returned when the entry listing does not define the
// entry point.
var ErrNoEntryPoint = errors.New("entry point not defined in listing")

// Collapse folds every function defined in the entry listing into its
// callers and returns the entry point's resulting call set: the symbols the
// test actually reaches outside its own translation unit.
//
// Each function first loses its self-call, so recursion never blocks the
// fold; then every other function that calls it has that call replaced by
// the callee's own calls. The input is not modified.
func Collapse(functions []listing.Function, entry string) ([]string, error) {
	nodes := make([]*symbolSet, 0, len(functions))
	var entryNode *symbolSet
	for _, f := range functions {
		n := newSymbolSet(f.Name, f.Calls)
		nodes = append(nodes, n)
		if f.Name == entry && entryNode == nil {
			entryNode = n
		}
	}
	if entryNode == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoEntryPoint, entry)
	}

	for _, fn := range nodes {
		fn.remove(fn.name)
		for _, caller := range nodes {
			if caller == fn || !caller.has(fn.name) {
				continue
			}
			caller.remove(fn.name)
			caller.union(fn.items)
		}
	}

	entryNode.remove(entry)
	return entryNode.slice(), nil
}

// symbolSet is an insertion-ordered set of symbols owned by one function.
type symbolSet struct {
	name  string
	items []string
	index map[string]struct{}
}

func newSymbolSet(name string, calls []string) *symbolSet {
	s := &symbolSet{name: name, index: make(map[string]struct{}, len(calls))}
	s.union(calls)
	return s
}

func (s *symbolSet) has(sym string) bool {
	_, ok := s.index[sym]
	return ok
}

func (s *symbolSet) remove(sym string) {
	if !s.has(sym) {
		return
	}
	delete(s.index, sym)
	for i, item := range s.items {
		if item == sym {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return
		}
	}
}

func (s *symbolSet) union(syms []string) {
	for _, sym := range syms {
		if s.has(sym) {
			continue
		}
		s.index[sym] = struct{}{}
		s.items = append(s.items, sym)
	}
}

func (s *symbolSet) slice() []string {
	return append([]string(nil), s.items...)
}

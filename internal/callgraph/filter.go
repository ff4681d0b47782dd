package callgraph

import (
	"context"

	"github.com/vk/ceautotest/internal/demangle"
)

// Ignorer reports whether a human-readable signature is excluded from
// dependency consideration.
type Ignorer interface {
	Includes(signature string) bool
}

// Filter drops every symbol whose demangled signature is ignored. Order is
// preserved. Any demangler failure is returned as is.
func Filter(ctx context.Context, symbols []string, ignore Ignorer, d demangle.Demangler) ([]string, error) {
	kept := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		name, err := d.Demangle(ctx, sym)
		if err != nil {
			return nil, err
		}
		if ignore != nil && ignore.Includes(name) {
			continue
		}
		kept = append(kept, sym)
	}
	return kept, nil
}

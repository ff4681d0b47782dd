// Package demangle turns raw linker symbols into the human-readable
// signatures that test records, the ignore list and all reports use.
package demangle

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/vk/ceautotest/internal/process"
)

// Demangler converts one raw symbol into its human-readable signature.
type Demangler interface {
	Demangle(ctx context.Context, symbol string) (string, error)
}

// DefaultCommand is the demangler invocation used by the CE toolchain.
var DefaultCommand = []string{"c++filt", "--types", "--strip-underscore"}

// Error reports a failed demangler invocation. It is always fatal for the run.
type Error struct {
	Symbol string
	Err    error
}

// Error implements the error interface for Error.
func (e *Error) Error() string {
	return fmt.Sprintf("demangling '%s': %v", e.Symbol, e.Err)
}

// Unwrap returns the underlying process error.
func (e *Error) Unwrap() error { return e.Err }

// External runs an external demangler once per distinct symbol and memoizes
// the answer. It is safe for concurrent use by the build workers; concurrent
// requests for the same symbol share one process.
type External struct {
	command []string
	dir     string
	runner  process.Runner

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]string
}

// NewExternal creates a demangler that runs command (program plus leading
// arguments; the symbol is appended) with dir as its working directory.
func NewExternal(runner process.Runner, dir string, command []string) *External {
	if len(command) == 0 {
		command = DefaultCommand
	}
	return &External{
		command: append([]string(nil), command...),
		dir:     dir,
		runner:  runner,
		cache:   make(map[string]string),
	}
}

// Demangle implements Demangler.
func (d *External) Demangle(ctx context.Context, symbol string) (string, error) {
	d.mu.RLock()
	name, ok := d.cache[symbol]
	d.mu.RUnlock()
	if ok {
		return name, nil
	}

	v, err, _ := d.group.Do(symbol, func() (any, error) {
		args := append(append([]string(nil), d.command[1:]...), symbol)
		res, err := d.runner.Run(ctx, process.Command{
			Name: d.command[0],
			Args: args,
			Dir:  d.dir,
		})
		if err != nil {
			return "", &Error{Symbol: symbol, Err: err}
		}
		name := strings.TrimSpace(string(res.Stdout))
		if name == "" {
			return "", &Error{Symbol: symbol, Err: fmt.Errorf("empty output from %s", d.command[0])}
		}

		d.mu.Lock()
		d.cache[symbol] = name
		d.mu.Unlock()
		return name, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// All demangles every symbol, preserving order.
func All(ctx context.Context, d Demangler, symbols []string) ([]string, error) {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		name, err := d.Demangle(ctx, s)
		if err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, nil
}

// Table is a fixed symbol→signature mapping. Symbols missing from the table
// are returned with the leading underscore stripped, which matches what
// c++filt --strip-underscore does for plain C symbols.
type Table map[string]string

// Demangle implements Demangler.
func (t Table) Demangle(_ context.Context, symbol string) (string, error) {
	if name, ok := t[symbol]; ok {
		return name, nil
	}
	return strings.TrimPrefix(symbol, "_"), nil
}

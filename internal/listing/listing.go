package listing

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// maxLineLength bounds a single listing line. Data directives for large
// tables can be long, so the scanner default of 64KiB is not enough.
const maxLineLength = 1024 * 1024

// Function is a callable unit defined in an artifact.
type Function struct {
	// Name is the raw (mangled) symbol taken from the label.
	Name string
	// Calls holds the operands of every call instruction in the function's
	// body, in first-seen order, without duplicates.
	Calls []string
}

// CallsSymbol reports whether f calls name.
func (f Function) CallsSymbol(name string) bool {
	for _, c := range f.Calls {
		if c == name {
			return true
		}
	}
	return false
}

// Syntax describes the assembler conventions the extractor recognizes.
type Syntax struct {
	// LabelPrefixes are the prefixes of global function labels. A label line
	// starts in column zero with one of these and ends with ':'.
	LabelPrefixes []string
	// CallMnemonic is the first field of a call instruction line.
	CallMnemonic string
	// CommentMarker starts a trailing comment that is stripped before parsing.
	CommentMarker string
	// EndSentinel closes the open function when found anywhere on a line.
	EndSentinel string
}

// DefaultSyntax matches the eZ80 listings written by the CE toolchain's
// debug build: mangled C++ symbols carry a leading "__", the entry point is
// "_main", and every procedure is closed by a .cfi_endproc directive.
func DefaultSyntax() Syntax {
	return Syntax{
		LabelPrefixes: []string{"__", "_main"},
		CallMnemonic:  "call",
		CommentMarker: ";",
		EndSentinel:   "cfi_endproc",
	}
}

// ParseError reports a call instruction whose target could not be isolated.
type ParseError struct {
	File string
	Line int
	Text string
}

// Error implements the error interface for ParseError.
func (e *ParseError) Error() string {
	file := e.File
	if file == "" {
		file = "<listing>"
	}
	return fmt.Sprintf("%s:%d: cannot isolate call target in %q", file, e.Line, strings.TrimSpace(e.Text))
}

// Parse scans one listing and returns the functions it defines, in the order
// their labels appear. A listing without labels yields an empty slice.
func Parse(r io.Reader, syn Syntax) ([]Function, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)

	var (
		functions []Function
		open      bool
		seen      map[string]struct{}
		lineNo    int
	)

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		if !open {
			name, ok := syn.label(line)
			if !ok {
				continue
			}
			functions = append(functions, Function{Name: name})
			seen = make(map[string]struct{})
			open = true
			continue
		}

		if syn.isCall(line) {
			target, ok := syn.callTarget(line)
			if !ok {
				return nil, &ParseError{Line: lineNo, Text: line}
			}
			if _, dup := seen[target]; !dup {
				seen[target] = struct{}{}
				current := &functions[len(functions)-1]
				current.Calls = append(current.Calls, target)
			}
		}

		if syn.EndSentinel != "" && strings.Contains(line, syn.EndSentinel) {
			open = false
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading listing: %w", err)
	}

	return functions, nil
}

// ParseFile parses the listing at path. Parse errors carry the file name.
func ParseFile(path string, syn Syntax) ([]Function, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening listing: %w", err)
	}
	defer f.Close()

	functions, err := Parse(f, syn)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.File = path
			return nil, pe
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return functions, nil
}

// label returns the symbol defined by a global label line.
func (s Syntax) label(line string) (string, bool) {
	trimmed := strings.TrimRight(s.stripComment(line), " \t\r")
	if !strings.HasSuffix(trimmed, ":") {
		return "", false
	}
	for _, prefix := range s.LabelPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return strings.TrimSuffix(trimmed, ":"), true
		}
	}
	return "", false
}

// isCall reports whether line is an indented call instruction.
func (s Syntax) isCall(line string) bool {
	if line == "" || (line[0] != '\t' && line[0] != ' ') {
		return false
	}
	fields := strings.Fields(s.stripComment(line))
	return len(fields) > 0 && fields[0] == s.CallMnemonic
}

// callTarget isolates the last operand of a call line. Conditional calls
// written without a space ("nz,__Z3foov") keep the part after the comma.
func (s Syntax) callTarget(line string) (string, bool) {
	fields := strings.Fields(s.stripComment(line))
	if len(fields) < 2 {
		return "", false
	}
	target := fields[len(fields)-1]
	if i := strings.LastIndex(target, ","); i >= 0 {
		target = target[i+1:]
	}
	return target, target != ""
}

func (s Syntax) stripComment(line string) string {
	if s.CommentMarker == "" {
		return line
	}
	if i := strings.Index(line, s.CommentMarker); i >= 0 {
		return line[:i]
	}
	return line
}

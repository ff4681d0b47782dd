package registry

import (
	"encoding/json"
	"fmt"
	"os"
)

// IgnoreList is the set of human-readable signatures that never count as a
// dependency. It is immutable once loaded and safe for concurrent reads.
type IgnoreList struct {
	names map[string]struct{}
}

// NewIgnoreList builds an ignore list from the given signatures.
func NewIgnoreList(names ...string) *IgnoreList {
	l := &IgnoreList{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		l.names[n] = struct{}{}
	}
	return l
}

// Includes reports whether signature is ignored. A nil list ignores nothing.
func (l *IgnoreList) Includes(signature string) bool {
	if l == nil {
		return false
	}
	_, ok := l.names[signature]
	return ok
}

// Len returns the number of ignored signatures.
func (l *IgnoreList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.names)
}

// IgnoreListError reports an ignore list that could not be loaded.
type IgnoreListError struct {
	Path string
	Err  error
}

// Error implements the error interface for IgnoreListError.
func (e *IgnoreListError) Error() string {
	return fmt.Sprintf("loading ignore list %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *IgnoreListError) Unwrap() error { return e.Err }

// LoadIgnoreList reads a JSON array of signatures from path.
func LoadIgnoreList(path string) (*IgnoreList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IgnoreListError{Path: path, Err: err}
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, &IgnoreListError{Path: path, Err: err}
	}
	return NewIgnoreList(names...), nil
}

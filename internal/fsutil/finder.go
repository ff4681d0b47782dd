// Package fsutil finds files in a test's build tree.
package fsutil

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
)

// Match decides whether a regular file is part of a search result. rel is
// the slash-separated path below the search root.
type Match func(rel string) bool

// Suffix matches files whose name ends with suffix, such as ".cpp.src". A
// file named just suffix has no stem and does not match.
func Suffix(suffix string) Match {
	return func(rel string) bool {
		name := path.Base(rel)
		return len(name) > len(suffix) && strings.HasSuffix(name, suffix)
	}
}

// Find walks root and returns the paths of the regular files accepted by
// match, in lexical order. Symlinks are not followed. A missing root yields
// an error wrapping fs.ErrNotExist.
func Find(root string, match Match) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if match(filepath.ToSlash(rel)) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", root, err)
	}
	return files, nil
}

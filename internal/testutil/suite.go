package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteFiles writes every file under root. Keys are slash-separated paths
// relative to root; intermediate directories are created as needed.
func WriteFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// TestDir describes one test directory of a fake suite.
type TestDir struct {
	// ID is the slash-separated path below the suite root.
	ID      string
	Targets []string
	// Listings maps a path below the test's obj directory to its content.
	Listings map[string]string
}

// WriteTestDir creates a complete test directory below root and returns its
// absolute path.
func WriteTestDir(t *testing.T, root string, td TestDir) string {
	t.Helper()
	dir := filepath.Join(root, filepath.FromSlash(td.ID))

	targets := td.Targets
	if targets == nil {
		targets = []string{}
	}
	record, err := json.MarshalIndent(map[string]any{"targets": targets}, "", "  ")
	require.NoError(t, err)

	files := map[string]string{
		"src/main.cpp":   "int main(void) { return 0; }\n",
		"test_info.json": string(record),
		"autotest.json":  `{"transfer_files": ["bin/DEMO.8xp"], "target": {"name": "DEMO", "isASM": true}}`,
	}
	for name, content := range td.Listings {
		files["obj/"+name] = content
	}
	WriteFiles(t, dir, files)
	return dir
}

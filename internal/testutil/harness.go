package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/vk/ceautotest/internal/process"
)

// SafeBuffer is a thread-safe buffer for capturing console and log output
// in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// LogOnCleanup prints the captured output at the end of the test when
// CEAUTOTEST_TEST_LOGS is "true".
func LogOnCleanup(t *testing.T, name string, b *SafeBuffer) {
	t.Helper()
	t.Cleanup(func() {
		if os.Getenv("CEAUTOTEST_TEST_LOGS") == "true" {
			t.Logf("--- %s for %s ---\n%s", name, t.Name(), b.String())
		}
	})
}

// HarnessOutput is what the fake emulator prints for a passing test.
const HarnessOutput = "All tests passed.\n"

// FakeToolchain returns a runner that plays the build tool and the
// emulator harness. Every build succeeds. A harness run fails with the
// given exit code when the test directory ends in one of the keys of
// failing (slash-separated test IDs).
func FakeToolchain(failing map[string]int) *FakeRunner {
	return &FakeRunner{Handle: func(_ context.Context, c process.Command) (*process.Result, error) {
		if c.Name != "cemu-autotester" {
			return Exit(c, 0, "")
		}
		dir := filepath.ToSlash(c.Dir)
		for id, code := range failing {
			if strings.HasSuffix(dir, "/"+id) {
				return Exit(c, code, "CRC mismatch.\n")
			}
		}
		return Exit(c, 0, HarnessOutput)
	}}
}

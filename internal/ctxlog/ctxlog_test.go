package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContext_FallsBackToDefault(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

func TestWith_AddsAttributes(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(buf, nil))

	ctx := WithLogger(context.Background(), logger)
	ctx = With(ctx, "test", "recursion_tests/triple_recursion")

	FromContext(ctx).Info("building")
	require.Contains(t, buf.String(), "test=recursion_tests/triple_recursion")
	assert.Contains(t, buf.String(), "msg=building")
}

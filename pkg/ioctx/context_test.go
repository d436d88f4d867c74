package ioctx

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritersDefaultToDiscard(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, io.Discard, StdoutFromContext(ctx))
	assert.Equal(t, io.Discard, StderrFromContext(ctx))

	var out, errOut bytes.Buffer
	ctx = StdoutToContext(ctx, &out)
	ctx = StderrToContext(ctx, &errOut)
	_, err := io.WriteString(StdoutFromContext(ctx), "out")
	require.NoError(t, err)
	_, err = io.WriteString(StderrFromContext(ctx), "err")
	require.NoError(t, err)
	assert.Equal(t, "out", out.String())
	assert.Equal(t, "err", errOut.String())
}

func TestStdin(t *testing.T) {
	ctx := context.Background()
	data, err := io.ReadAll(StdinFromContext(ctx))
	require.NoError(t, err)
	assert.Empty(t, data)

	ctx = StdinToContext(ctx, bytes.NewBufferString("in"))
	data, err = io.ReadAll(StdinFromContext(ctx))
	require.NoError(t, err)
	assert.Equal(t, "in", string(data))
}

func TestLogger(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, slog.Default(), LoggerFromContext(ctx))

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx = LoggerToContext(ctx, logger)
	LoggerFromContext(ctx).Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), "msg=hello k=v")
}

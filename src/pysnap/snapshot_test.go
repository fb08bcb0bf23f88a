package pysnap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxed-py/interp/src/pyctx"
)

func buildContext() *pyctx.Context {
	ctx := pyctx.New(pyctx.Capabilities{}, map[string]string{"FOO": "bar"}, time.Hour)
	ctx = ctx.WithOutput("hello")
	ctx = ctx.WithOutput("world")
	ctx = ctx.WithEvent(pyctx.Event{Kind: "io", Message: "read config"})
	ctx = ctx.WithRoute(pyctx.Route{Method: "GET", Path: "/widgets"})
	return ctx
}

func TestTakeVerifyRoundTrip(t *testing.T) {
	ctx := buildContext()
	snap, err := Take(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Verify())
}

func TestVerifyDetectsCorruption(t *testing.T) {
	ctx := buildContext()
	snap, err := Take(ctx)
	require.NoError(t, err)
	snap.Payload[0] ^= 0xFF
	assert.False(t, snap.Verify())
}

func TestRestoreReplaysOutputEventsAndRoutes(t *testing.T) {
	ctx := buildContext()
	snap, err := Take(ctx)
	require.NoError(t, err)

	base := pyctx.New(pyctx.Capabilities{}, nil, time.Hour)
	restored, err := Restore(snap, base)
	require.NoError(t, err)

	assert.Equal(t, ctx.Output, restored.Output)
	require.Len(t, restored.Events, 1)
	assert.Equal(t, "io", restored.Events[0].Kind)
	require.Len(t, restored.Routes, 1)
	assert.Equal(t, "GET", restored.Routes[0].Method)
	assert.Equal(t, "/widgets", restored.Routes[0].Path)
}

func TestRestoreRejectsCorruptSnapshot(t *testing.T) {
	ctx := buildContext()
	snap, err := Take(ctx)
	require.NoError(t, err)
	snap.Digest[0] ^= 0xFF

	base := pyctx.New(pyctx.Capabilities{}, nil, time.Hour)
	_, err = Restore(snap, base)
	assert.Error(t, err)
}

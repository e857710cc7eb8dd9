package wasm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"

	"github.com/teranos/qntx-libinjection/wasm/wasmtest"
)

func newTestEngine(t testing.TB, g wasmtest.Guest, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(context.Background(), g.Build(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		e.Close(context.Background())
	})
	return e
}

func newTestContext(t testing.TB, g wasmtest.Guest, opts ...Option) *Context {
	t.Helper()
	c, err := newTestEngine(t, g, opts...).NewContext(context.Background())
	require.NoError(t, err)
	return c
}

// guestValue calls a no-argument guest export such as live or heap_top.
func guestValue(t testing.TB, c *Context, export string) uint32 {
	t.Helper()
	fn := c.module.ExportedFunction(export)
	require.NotNil(t, fn, export)
	results, err := fn.Call(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	return api.DecodeU32(results[0])
}

// requireBaseline asserts that every allocation on c has been released.
func requireBaseline(t testing.TB, c *Context) {
	t.Helper()
	require.Equal(t, uint32(0), guestValue(t, c, "live"), "live allocations")
	require.Equal(t, uint32(wasmtest.HeapBase), guestValue(t, c, "heap_top"), "heap top")
}

package libinjection

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/qntx-libinjection/errors"
	"github.com/teranos/qntx-libinjection/wasm"
	"github.com/teranos/qntx-libinjection/wasm/wasmtest"
)

// testHost runs the host machinery over the toy guest, which matches on any
// single quote (sqli) or angle bracket (xss).
func testHost(t *testing.T) *host {
	t.Helper()
	return newHost(wasmtest.Guest{Fingerprint: "s&sos"}.Build(), wasm.DefaultExports())
}

func TestHostQueries(t *testing.T) {
	h := testHost(t)
	assert.Equal(t, wasm.PoolStats{}, h.stats(), "no engine before first use")

	matched, fp, err := h.isSQLi("this\nis a ' or ''='\nsql injection")
	require.NoError(t, err)
	assert.True(t, matched)
	assert.Equal(t, "s&sos", fp)

	matched, _, err = h.isSQLi("this is not isqli")
	require.NoError(t, err)
	assert.False(t, matched)

	xss, err := h.isXSS("<script>alert(1);</script>")
	require.NoError(t, err)
	assert.True(t, xss)

	assert.Equal(t, wasm.PoolStats{Created: 1, Idle: 1}, h.stats())
}

func TestHostGetEngineOnce(t *testing.T) {
	h := testHost(t)
	first, err := h.getEngine()
	require.NoError(t, err)
	second, err := h.getEngine()
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestHostBuildFailureIsSticky(t *testing.T) {
	h := newHost([]byte("not a module"), wasm.DefaultExports())

	_, _, err := h.isSQLi("x")
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))

	_, again := h.isXSS("x")
	assert.Equal(t, err, again)

	_, err = h.newWorker()
	assert.True(t, errors.Is(err, errors.ErrCompile))
	assert.Equal(t, wasm.PoolStats{}, h.stats())
}

func TestHostWrongExportNames(t *testing.T) {
	h := newHost(wasmtest.Guest{}.Build(), Exports)
	_, err := h.getEngine()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrIncompatibleImage))
	assert.Contains(t, err.Error(), `"malloc"`)
}

func TestHostInit(t *testing.T) {
	t.Run("applies options", func(t *testing.T) {
		h := testHost(t)
		require.NoError(t, h.init(Config{
			Engine: []wasm.Option{wasm.WithMode(wasm.ModeInterpreter)},
			Pool:   []wasm.PoolOption{wasm.WithMaxIdle(1)},
		}))

		e, err := h.getEngine()
		require.NoError(t, err)
		assert.Equal(t, wasm.ModeInterpreter, e.Mode())

		a, err := h.newWorker()
		require.NoError(t, err)
		b, err := h.newWorker()
		require.NoError(t, err)
		a.Close()
		b.Close()
		assert.Equal(t, wasm.PoolStats{Created: 2, Discarded: 1, Idle: 1}, h.stats())
	})

	t.Run("after first use", func(t *testing.T) {
		h := testHost(t)
		_, _, err := h.isSQLi("x")
		require.NoError(t, err)

		err = h.init(Config{})
		assert.True(t, errors.Is(err, errors.ErrAlreadyInitialized))
	})

	t.Run("twice", func(t *testing.T) {
		h := testHost(t)
		require.NoError(t, h.init(Config{}))
		assert.True(t, errors.Is(h.init(Config{}), errors.ErrAlreadyInitialized))
	})
}

func TestWorker(t *testing.T) {
	h := testHost(t)
	w, err := h.newWorker()
	require.NoError(t, err)

	matched, fp, err := w.IsSQLi("1' or '1'='1")
	require.NoError(t, err)
	assert.True(t, matched)
	assert.Equal(t, "s&sos", fp)

	// the toy guest traps on a leading 0xFF byte
	_, _, err = w.IsSQLi("\xff")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCall))

	xss, err := w.IsXSS("x onerror=alert(1);>")
	require.NoError(t, err)
	assert.True(t, xss, "broken context replaced")
	assert.Equal(t, wasm.PoolStats{Created: 2, Discarded: 1}, h.stats())

	w.Close()
	assert.Equal(t, wasm.PoolStats{Created: 2, Discarded: 1, Idle: 1}, h.stats())

	_, err = w.IsXSS("<")
	assert.ErrorIs(t, err, errWorkerClosed)
	w.Close()
}

func TestHostConcurrentQueries(t *testing.T) {
	h := testHost(t)

	var g errgroup.Group
	for i := 0; i < 12; i++ {
		g.Go(func() error {
			for j := 0; j < 1000; j++ {
				benign, _, err := h.isSQLi("this is not isqli")
				if err != nil {
					return err
				}
				injected, fp, err := h.isSQLi("this\nis a ' or ''='\nsql injection")
				if err != nil {
					return err
				}
				if benign || !injected || fp != "s&sos" {
					return fmt.Errorf("iteration %d: benign=%v injected=%v fp=%q", j, benign, injected, fp)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	// Surplus contexts beyond MaxIdle may be closed on return; every context
	// still alive must be idle once all queries are done.
	st := h.stats()
	assert.Positive(t, st.Created)
	assert.LessOrEqual(t, st.Created, int64(12))
	assert.Equal(t, st.Created-st.Discarded, int64(st.Idle))
}

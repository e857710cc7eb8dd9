package libinjection

import (
	"context"

	"github.com/teranos/qntx-libinjection/errors"
	"github.com/teranos/qntx-libinjection/wasm"
)

// Worker holds one execution context for its lifetime, so a goroutine that
// classifies many inputs does not go through the pool on every call. A Worker
// must not be used by more than one goroutine at a time.
type Worker struct {
	pool   *wasm.Pool
	c      *wasm.Context
	closed bool
}

var errWorkerClosed = errors.New("libinjection: worker closed")

// NewWorker checks an execution context out of the process-wide pool.
func NewWorker() (*Worker, error) {
	return defaultHost.newWorker()
}

func (h *host) newWorker() (*Worker, error) {
	pool, err := h.load()
	if err != nil {
		return nil, err
	}
	c, err := pool.Get(context.Background())
	if err != nil {
		return nil, err
	}
	return &Worker{pool: pool, c: c}, nil
}

// acquire returns the held context, replacing it if a failed call broke it.
func (w *Worker) acquire(ctx context.Context) (*wasm.Context, error) {
	if w.closed {
		return nil, errWorkerClosed
	}
	if w.c != nil && !w.c.Broken() {
		return w.c, nil
	}
	if w.c != nil {
		w.pool.Put(ctx, w.c)
		w.c = nil
	}
	c, err := w.pool.Get(ctx)
	if err != nil {
		return nil, err
	}
	w.c = c
	return c, nil
}

// IsSQLi is IsSQLi on the worker's context.
func (w *Worker) IsSQLi(text string) (bool, string, error) {
	ctx := context.Background()
	c, err := w.acquire(ctx)
	if err != nil {
		return false, "", err
	}
	return c.DetectSQLi(ctx, text)
}

// IsXSS is IsXSS on the worker's context.
func (w *Worker) IsXSS(text string) (bool, error) {
	ctx := context.Background()
	c, err := w.acquire(ctx)
	if err != nil {
		return false, err
	}
	return c.DetectXSS(ctx, text)
}

// Close returns the context to the pool. Later calls on the Worker fail.
func (w *Worker) Close() {
	w.closed = true
	if w.c != nil {
		w.pool.Put(context.Background(), w.c)
		w.c = nil
	}
}

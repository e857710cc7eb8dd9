package wasm

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/teranos/qntx-libinjection/errors"
	"github.com/teranos/qntx-libinjection/logger"
)

// Pool hands out Contexts so that each is held by exactly one goroutine at a
// time. The lock covers only the idle list; instantiation and guest calls run
// without it.
type Pool struct {
	engine  *Engine
	maxIdle int
	logger  *zap.SugaredLogger

	mu     sync.Mutex
	idle   []*Context
	closed bool

	created   atomic.Int64
	discarded atomic.Int64
}

// PoolStats is a snapshot of pool bookkeeping.
type PoolStats struct {
	Created   int64 `json:"created"`
	Discarded int64 `json:"discarded"`
	Idle      int   `json:"idle"`
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithMaxIdle bounds how many returned contexts are kept for reuse. Extra
// contexts are closed on Put. Values below 1 keep the default, GOMAXPROCS.
func WithMaxIdle(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.maxIdle = n
		}
	}
}

// NewPool creates an empty pool over engine. Contexts are created on demand.
func NewPool(engine *Engine, opts ...PoolOption) *Pool {
	p := &Pool{
		engine:  engine,
		maxIdle: runtime.GOMAXPROCS(0),
		logger:  logger.ComponentLogger("wasm.pool"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Get checks out an idle context or instantiates a new one. The caller has
// exclusive use of it until Put.
func (p *Pool) Get(ctx context.Context) (*Context, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errors.New("wasm: pool closed")
	}
	if n := len(p.idle); n > 0 {
		c := p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	c, err := p.engine.NewContext(ctx)
	if err != nil {
		return nil, err
	}
	created := p.created.Add(1)
	p.logger.Debugw("execution context created",
		logger.FieldContexts, created,
		logger.FieldMemoryPages, c.MemoryPages())
	return c, nil
}

// Put returns a context to the pool. Broken contexts, and contexts beyond the
// idle bound, are closed instead.
func (p *Pool) Put(ctx context.Context, c *Context) {
	if c == nil {
		return
	}
	if !c.Broken() {
		p.mu.Lock()
		if !p.closed && len(p.idle) < p.maxIdle {
			p.idle = append(p.idle, c)
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()
	}

	p.discarded.Add(1)
	if err := c.Close(ctx); err != nil {
		p.logger.Warnw("failed to close execution context", logger.FieldError, err)
	}
	p.logger.Debugw("execution context discarded", "broken", c.Broken())
}

// Close closes every idle context. Contexts still checked out are closed when
// they are Put back.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.closed = true
	p.mu.Unlock()

	var err error
	for _, c := range idle {
		err = errors.CombineErrors(err, c.Close(ctx))
	}
	return err
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	idle := len(p.idle)
	p.mu.Unlock()
	return PoolStats{
		Created:   p.created.Load(),
		Discarded: p.discarded.Load(),
		Idle:      idle,
	}
}

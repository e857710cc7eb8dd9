package libinjection

import (
	"context"
	"sync"

	"github.com/teranos/qntx-libinjection/errors"
	"github.com/teranos/qntx-libinjection/wasm"
)

// Config configures the process-wide engine and its context pool.
type Config struct {
	Engine []wasm.Option
	Pool   []wasm.PoolOption
}

// host owns one image's engine and pool. The package-level functions use a
// single host over the embedded image.
type host struct {
	image   []byte
	exports wasm.Exports

	mu         sync.Mutex
	cfg        Config
	configured bool
	started    bool

	once   sync.Once
	engine *wasm.Engine
	pool   *wasm.Pool
	err    error
}

func newHost(image []byte, exports wasm.Exports) *host {
	return &host{image: image, exports: exports}
}

func (h *host) init(cfg Config) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started || h.configured {
		return errors.WithHint(errors.ErrAlreadyInitialized,
			"call Init once, before the first query")
	}
	h.cfg = cfg
	h.configured = true
	return nil
}

// load builds the engine on first use. A build failure is kept and returned
// from every later call.
func (h *host) load() (*wasm.Pool, error) {
	h.once.Do(func() {
		h.mu.Lock()
		h.started = true
		cfg := h.cfg
		h.mu.Unlock()

		opts := append([]wasm.Option{wasm.WithExports(h.exports)}, cfg.Engine...)
		h.engine, h.err = wasm.NewEngine(context.Background(), h.image, opts...)
		if h.err != nil {
			h.err = errors.Wrap(h.err, "libinjection engine")
			return
		}
		h.pool = wasm.NewPool(h.engine, cfg.Pool...)
	})
	return h.pool, h.err
}

func (h *host) getEngine() (*wasm.Engine, error) {
	if _, err := h.load(); err != nil {
		return nil, err
	}
	return h.engine, nil
}

func (h *host) isSQLi(text string) (bool, string, error) {
	pool, err := h.load()
	if err != nil {
		return false, "", err
	}
	ctx := context.Background()
	c, err := pool.Get(ctx)
	if err != nil {
		return false, "", err
	}
	defer pool.Put(ctx, c)
	return c.DetectSQLi(ctx, text)
}

func (h *host) isXSS(text string) (bool, error) {
	pool, err := h.load()
	if err != nil {
		return false, err
	}
	ctx := context.Background()
	c, err := pool.Get(ctx)
	if err != nil {
		return false, err
	}
	defer pool.Put(ctx, c)
	return c.DetectXSS(ctx, text)
}

func (h *host) stats() wasm.PoolStats {
	h.mu.Lock()
	started := h.started
	h.mu.Unlock()
	if !started {
		return wasm.PoolStats{}
	}
	pool, err := h.load()
	if err != nil {
		return wasm.PoolStats{}
	}
	return pool.Stats()
}

var defaultHost = newHost(Image, Exports)

// Init configures the process-wide engine. It is optional and must be called
// at most once, before the first query; afterwards it returns an error
// matching errors.ErrAlreadyInitialized.
func Init(cfg Config) error {
	return defaultHost.init(cfg)
}

// GetEngine returns the process-wide engine, compiling the image on first
// call. If compilation fails, every call returns the same error.
func GetEngine() (*wasm.Engine, error) {
	return defaultHost.getEngine()
}

// IsSQLi reports whether text is a SQL injection, and if so its libinjection
// fingerprint (for example "s&1UE"). The fingerprint is undefined when the
// result is false.
func IsSQLi(text string) (bool, string, error) {
	return defaultHost.isSQLi(text)
}

// IsXSS reports whether text is a cross-site scripting payload.
func IsXSS(text string) (bool, error) {
	return defaultHost.isXSS(text)
}

// Stats reports the pool counters of the process-wide engine. It is zero
// until the first query.
func Stats() wasm.PoolStats {
	return defaultHost.stats()
}

// Package wasm hosts a precompiled detector module under wazero.
//
// An Engine compiles the module image once. Each Context is an isolated
// instance of that module with its own linear memory; a Context must only be
// used by one goroutine at a time, and Pool hands them out on that basis.
//
// Memory protocol: the host asks the guest to allocate a scratch buffer,
// writes the input bytes into it, calls the detector with (ptr, len), reads
// any output from the buffer and always releases it before returning.
package wasm

import (
	"context"
	"io"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/teranos/qntx-libinjection/errors"
	"github.com/teranos/qntx-libinjection/logger"
)

// Engine wraps a wazero runtime with the compiled detector module. It is safe
// for concurrent use; all per-call state lives in Contexts.
type Engine struct {
	runtime      wazero.Runtime
	compiled     wazero.CompiledModule
	cache        wazero.CompilationCache
	moduleConfig wazero.ModuleConfig
	exports      Exports
	mode         Mode
	imageSize    int
	logger       *zap.SugaredLogger
}

// NewEngine compiles image and validates that it exports the detector ABI.
// A failure here means the image is unusable; the error is marked
// errors.ErrCompile or errors.ErrIncompatibleImage.
func NewEngine(ctx context.Context, image []byte, opts ...Option) (*Engine, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	log := logger.ComponentLogger("wasm.engine")
	start := time.Now()

	rc, cache, err := cfg.runtimeConfig()
	if err != nil {
		return nil, err
	}

	r := wazero.NewRuntimeWithConfig(ctx, rc)
	fail := func(err error) (*Engine, error) {
		r.Close(ctx)
		if cache != nil {
			cache.Close(ctx)
		}
		return nil, err
	}

	compiled, err := r.CompileModule(ctx, image)
	if err != nil {
		return fail(errors.Mark(errors.Wrap(err, "wasm compile"), errors.ErrCompile))
	}

	needsWASI, err := checkImports(compiled)
	if err != nil {
		return fail(err)
	}
	if err := cfg.exports.check(compiled); err != nil {
		return fail(err)
	}

	if needsWASI {
		// No filesystem, env or args are configured on the guest module, so
		// WASI only supplies clocks, random and proc_exit.
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
			return fail(errors.Wrap(err, "wasi instantiate"))
		}
	}

	e := &Engine{
		runtime:  r,
		compiled: compiled,
		cache:    cache,
		moduleConfig: wazero.NewModuleConfig().
			WithName("").
			WithStartFunctions("_initialize").
			WithStdout(io.Discard).
			WithStderr(io.Discard),
		exports:   cfg.exports,
		mode:      cfg.mode,
		imageSize: len(image),
		logger:    log,
	}

	log.Infow("wasm engine ready",
		logger.FieldImageSize, len(image),
		logger.FieldMode, string(cfg.mode),
		"wasi", needsWASI,
		logger.FieldDurationMS, time.Since(start).Milliseconds())

	return e, nil
}

// Close releases the runtime and every context created from it.
func (e *Engine) Close(ctx context.Context) error {
	err := e.runtime.Close(ctx)
	if e.cache != nil {
		err = errors.CombineErrors(err, e.cache.Close(ctx))
	}
	return err
}

// ImageSize returns the size of the compiled image in bytes.
func (e *Engine) ImageSize() int {
	return e.imageSize
}

// Mode returns the configured execution engine.
func (e *Engine) Mode() Mode {
	return e.mode
}

// NewContext instantiates a fresh, isolated copy of the module and binds its
// exports. The caller owns the returned Context.
func (e *Engine) NewContext(ctx context.Context) (*Context, error) {
	mod, err := e.runtime.InstantiateModule(ctx, e.compiled, e.moduleConfig)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "wasm instantiate"), errors.ErrIncompatibleImage)
	}

	binding, err := Bind(mod, e.exports)
	if err != nil {
		mod.Close(ctx)
		return nil, err
	}

	return &Context{module: mod, binding: binding}, nil
}

func (c config) runtimeConfig() (wazero.RuntimeConfig, wazero.CompilationCache, error) {
	var rc wazero.RuntimeConfig
	switch c.mode {
	case ModeCompiler:
		rc = wazero.NewRuntimeConfigCompiler()
	case ModeInterpreter:
		rc = wazero.NewRuntimeConfigInterpreter()
	case ModeAuto, "":
		rc = wazero.NewRuntimeConfig()
	default:
		return nil, nil, errors.Newf("unknown engine mode %q", c.mode)
	}

	if c.memoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(c.memoryLimitPages)
	}

	var cache wazero.CompilationCache
	if c.cacheDir != "" {
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(c.cacheDir)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "compilation cache at %s", c.cacheDir)
		}
		rc = rc.WithCompilationCache(cache)
	}

	return rc, cache, nil
}

// checkImports rejects images that need host modules other than WASI.
func checkImports(compiled wazero.CompiledModule) (needsWASI bool, err error) {
	for _, def := range compiled.ImportedFunctions() {
		moduleName, name, _ := def.Import()
		if moduleName != wasi_snapshot_preview1.ModuleName {
			return false, errors.Wrapf(errors.ErrIncompatibleImage,
				"image imports %s.%s; only %s is provided", moduleName, name, wasi_snapshot_preview1.ModuleName)
		}
		needsWASI = true
	}
	for _, def := range compiled.ImportedMemories() {
		moduleName, name, _ := def.Import()
		return false, errors.Wrapf(errors.ErrIncompatibleImage,
			"image imports memory %s.%s; it must define its own", moduleName, name)
	}
	return needsWASI, nil
}

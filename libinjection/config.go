package libinjection

import (
	"github.com/teranos/qntx-libinjection/am"
	"github.com/teranos/qntx-libinjection/errors"
	"github.com/teranos/qntx-libinjection/wasm"
)

// ConfigFromAm translates the [engine] section of the loaded configuration
// into engine and pool options.
func ConfigFromAm(cfg *am.Config) (Config, error) {
	if cfg == nil {
		return Config{}, nil
	}
	e := cfg.Engine

	mode, err := wasm.ParseMode(e.Mode)
	if err != nil {
		return Config{}, errors.Wrap(err, "engine.mode")
	}
	if e.MemoryLimitPages < 0 || e.MemoryLimitPages > am.MaxMemoryPages {
		return Config{}, errors.Newf("engine.memory_limit_pages out of range: %d", e.MemoryLimitPages)
	}

	out := Config{
		Engine: []wasm.Option{wasm.WithMode(mode)},
	}
	if e.MemoryLimitPages > 0 {
		out.Engine = append(out.Engine, wasm.WithMemoryLimitPages(uint32(e.MemoryLimitPages)))
	}
	if e.CompilationCacheDir != "" {
		out.Engine = append(out.Engine, wasm.WithCompilationCacheDir(e.CompilationCacheDir))
	}
	if e.MaxIdleContexts > 0 {
		out.Pool = append(out.Pool, wasm.WithMaxIdle(e.MaxIdleContexts))
	}
	return out, nil
}

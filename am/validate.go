package am

import (
	"github.com/teranos/qntx-libinjection/errors"
	"github.com/teranos/qntx-libinjection/wasm"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if _, err := wasm.ParseMode(c.Engine.Mode); err != nil {
		return errors.Wrap(err, "engine.mode")
	}

	// Memory limit: 0 = runtime default, above the wasm32 ceiling is invalid
	if c.Engine.MemoryLimitPages < 0 || c.Engine.MemoryLimitPages > MaxMemoryPages {
		return errors.Newf("engine.memory_limit_pages must be between 0 and %d, got %d", MaxMemoryPages, c.Engine.MemoryLimitPages)
	}

	if c.Engine.MaxIdleContexts < 0 {
		return errors.Newf("engine.max_idle_contexts must be >= 0, got %d", c.Engine.MaxIdleContexts)
	}

	if c.Scan.Workers < 0 {
		return errors.Newf("scan.workers must be >= 0, got %d", c.Scan.Workers)
	}

	// Rate: 0 = unlimited, negative = invalid
	if c.Scan.RatePerSecond < 0 {
		return errors.Newf("scan.rate_per_second must be >= 0, got %g", c.Scan.RatePerSecond)
	}
	if c.Scan.RatePerSecond > 0 && c.Scan.Burst < 1 {
		return errors.Newf("scan.burst must be >= 1 when scan.rate_per_second is set, got %d", c.Scan.Burst)
	}

	return nil
}

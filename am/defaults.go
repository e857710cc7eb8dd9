package am

import (
	"fmt"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Engine defaults
	v.SetDefault("engine.mode", "auto")
	v.SetDefault("engine.memory_limit_pages", 0)
	v.SetDefault("engine.compilation_cache_dir", "")
	v.SetDefault("engine.max_idle_contexts", 0)

	// Scan defaults
	v.SetDefault("scan.workers", 0)
	v.SetDefault("scan.rate_per_second", 0.0)
	v.SetDefault("scan.burst", 1)
}

// DefaultConfig returns the configuration built from defaults alone
func DefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	if err != nil {
		// defaults always decode
		panic(err)
	}
	return cfg
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Engine: {Mode: %s, MemoryLimitPages: %d, MaxIdleContexts: %d}, Scan: {Workers: %d, RatePerSecond: %g}}",
		c.Engine.Mode, c.Engine.MemoryLimitPages, c.Engine.MaxIdleContexts, c.Scan.Workers, c.Scan.RatePerSecond)
}

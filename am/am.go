// Package am loads the qntx-libinjection configuration ("am" is the
// configuration as-is: what the process is running with).
//
// Sources, lowest to highest precedence: built-in defaults, the system file
// /etc/qntx-libinjection/am.toml, the user file ~/.qntx-libinjection/am.toml,
// a project am.toml found by walking up from the working directory, and
// INJECTION_* environment variables.
package am

// Config represents the qntx-libinjection configuration
type Config struct {
	Engine EngineConfig `mapstructure:"engine" toml:"engine" json:"engine"`
	Scan   ScanConfig   `mapstructure:"scan" toml:"scan" json:"scan"`
}

// EngineConfig configures the wazero host for the detector module
type EngineConfig struct {
	Mode                string `mapstructure:"mode" toml:"mode" json:"mode"`                                                    // auto, compiler or interpreter (default: auto)
	MemoryLimitPages    int    `mapstructure:"memory_limit_pages" toml:"memory_limit_pages" json:"memory_limit_pages"`          // per-context ceiling in 64 KiB pages (0 = wazero default)
	CompilationCacheDir string `mapstructure:"compilation_cache_dir" toml:"compilation_cache_dir" json:"compilation_cache_dir"` // on-disk compiled code cache (empty = in-memory only)
	MaxIdleContexts     int    `mapstructure:"max_idle_contexts" toml:"max_idle_contexts" json:"max_idle_contexts"`             // idle execution contexts kept for reuse (0 = GOMAXPROCS)
}

// ScanConfig configures the scan command
type ScanConfig struct {
	Workers       int     `mapstructure:"workers" toml:"workers" json:"workers"`                         // concurrent workers (0 = GOMAXPROCS)
	RatePerSecond float64 `mapstructure:"rate_per_second" toml:"rate_per_second" json:"rate_per_second"` // lines classified per second (0 = unlimited)
	Burst         int     `mapstructure:"burst" toml:"burst" json:"burst"`                               // rate limiter burst (default: 1)
}

// MaxMemoryPages is the wasm32 linear memory ceiling (4 GiB).
const MaxMemoryPages = 65536

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)

// Directory and file names
const (
	ConfigFileName = "am.toml"
	UserDirName    = ".qntx-libinjection"
	SystemConfig   = "/etc/qntx-libinjection/am.toml"
	EnvPrefix      = "INJECTION"
)

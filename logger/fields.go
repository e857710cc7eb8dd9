package logger

import (
	"go.uber.org/zap"
)

// Standard field names for consistent structured logging.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Components
	FieldComponent = "component"
	FieldRunID     = "run_id"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError = "error"

	// Counts and sizes
	FieldCount = "count"
	FieldSize  = "size"

	// Sandbox
	FieldImageSize   = "image_size"
	FieldMode        = "mode"
	FieldMemoryPages = "memory_pages"
	FieldContexts    = "contexts"
	FieldIdle        = "idle"
	FieldExport      = "export"

	// Scans
	FieldWorkers     = "workers"
	FieldFixture     = "fixture"
	FieldFingerprint = "fingerprint"
)

// ComponentLogger returns a named logger for a specific component.
//
// Example:
//
//	type Pool struct {
//	    logger *zap.SugaredLogger
//	}
//
//	func NewPool() *Pool {
//	    return &Pool{logger: logger.ComponentLogger("wasm.pool")}
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

package wasm

import (
	"strings"

	"github.com/teranos/qntx-libinjection/errors"
)

// Mode selects the wazero execution engine.
type Mode string

const (
	// ModeAuto uses the compiler where wazero supports it, else the interpreter.
	ModeAuto        Mode = "auto"
	ModeCompiler    Mode = "compiler"
	ModeInterpreter Mode = "interpreter"
)

// ParseMode converts a config string into a Mode. The empty string is ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeCompiler:
		return ModeCompiler, nil
	case ModeInterpreter:
		return ModeInterpreter, nil
	}
	return "", errors.WithHint(
		errors.Newf("unknown engine mode %q", s),
		"use one of: auto, compiler, interpreter")
}

type config struct {
	mode             Mode
	memoryLimitPages uint32
	cacheDir         string
	exports          Exports
}

func defaultConfig() config {
	return config{
		mode:    ModeAuto,
		exports: DefaultExports(),
	}
}

// Option configures an Engine.
type Option func(*config)

// WithMode selects the execution engine.
func WithMode(m Mode) Option {
	return func(c *config) {
		c.mode = m
	}
}

// WithMemoryLimitPages caps each context's linear memory, in 64 KiB pages.
// Zero keeps the wazero default (4 GiB).
func WithMemoryLimitPages(pages uint32) Option {
	return func(c *config) {
		c.memoryLimitPages = pages
	}
}

// WithCompilationCacheDir persists compiled machine code under dir so later
// processes skip compilation.
func WithCompilationCacheDir(dir string) Option {
	return func(c *config) {
		c.cacheDir = dir
	}
}

// WithExports sets the export names the image uses for the detector ABI.
func WithExports(e Exports) Option {
	return func(c *config) {
		c.exports = e
	}
}

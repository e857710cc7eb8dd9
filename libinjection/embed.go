// Package libinjection detects SQL injection and cross-site scripting in
// untrusted text by running libinjection, compiled to WebAssembly, inside a
// wazero sandbox.
//
// The module image is embedded at build time and compiled once per process on
// first use. Each query runs in an execution context checked out of a shared
// pool, so the package-level functions are safe for concurrent use. Callers
// that classify many inputs from one goroutine can hold a Worker instead.
//
// Prerequisites: run `make wasm` before `go build`. This compiles libinjection
// with wasi-sdk as a WASI reactor and copies the artifact here.
package libinjection

//go:generate make -C .. wasm

import (
	_ "embed"

	"github.com/teranos/qntx-libinjection/wasm"
)

// ImageFilename is the name of the embedded module image.
const ImageFilename = "libinjection.wasm"

// Image is the libinjection module image.
//
//go:embed libinjection.wasm
var Image []byte

// Exports are the export names of the embedded image, which keeps the C
// symbol names of the library and its allocator.
var Exports = wasm.Exports{
	Allocate:   "malloc",
	Release:    "free",
	DetectSQLi: "libinjection_sqli",
	DetectXSS:  "libinjection_xss",
	Memory:     "memory",
}

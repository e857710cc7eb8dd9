package wasm

import (
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/teranos/qntx-libinjection/errors"
)

// Exports names the guest exports that make up the detector ABI.
type Exports struct {
	Allocate   string // (size i32) -> (ptr i32)
	Release    string // (ptr i32) -> ()
	DetectSQLi string // (ptr i32, len i32, out i32) -> (matched i32)
	DetectXSS  string // (ptr i32, len i32) -> (matched i32)
	Memory     string
}

// DefaultExports returns the canonical ABI export names.
func DefaultExports() Exports {
	return Exports{
		Allocate:   "allocate",
		Release:    "release",
		DetectSQLi: "detect_sqli",
		DetectXSS:  "detect_xss",
		Memory:     "memory",
	}
}

type signature struct {
	params  []api.ValueType
	results []api.ValueType
}

func (s signature) String() string {
	return "(" + typeNames(s.params) + ") -> (" + typeNames(s.results) + ")"
}

func (s signature) matches(def api.FunctionDefinition) bool {
	return equalTypes(def.ParamTypes(), s.params) && equalTypes(def.ResultTypes(), s.results)
}

var (
	i32 = api.ValueTypeI32

	allocateSig   = signature{params: []api.ValueType{i32}, results: []api.ValueType{i32}}
	releaseSig    = signature{params: []api.ValueType{i32}}
	detectSQLiSig = signature{params: []api.ValueType{i32, i32, i32}, results: []api.ValueType{i32}}
	detectXSSSig  = signature{params: []api.ValueType{i32, i32}, results: []api.ValueType{i32}}
)

func (e Exports) functions() []struct {
	name string
	sig  signature
} {
	return []struct {
		name string
		sig  signature
	}{
		{e.Allocate, allocateSig},
		{e.Release, releaseSig},
		{e.DetectSQLi, detectSQLiSig},
		{e.DetectXSS, detectXSSSig},
	}
}

// check validates the exports of a compiled module before any instance exists.
func (e Exports) check(compiled wazero.CompiledModule) error {
	defs := compiled.ExportedFunctions()
	for _, fn := range e.functions() {
		def, ok := defs[fn.name]
		if !ok {
			return missingExport(fn.name)
		}
		if !fn.sig.matches(def) {
			return badSignature(fn.name, fn.sig, def)
		}
	}
	if _, ok := compiled.ExportedMemories()[e.Memory]; !ok {
		return missingExport(e.Memory)
	}
	return nil
}

// Binding is the resolved detector ABI of one module instance. It shares the
// instance's confinement: one goroutine at a time.
type Binding struct {
	memory     api.Memory
	allocate   api.Function
	release    api.Function
	detectSQLi api.Function
	detectXSS  api.Function

	// reused by CallWithStack; sized for the widest signature
	stack [3]uint64
}

// Bind resolves the detector exports of mod and checks their signatures.
// A missing export or a signature mismatch is marked errors.ErrIncompatibleImage.
func Bind(mod api.Module, names Exports) (*Binding, error) {
	b := &Binding{}
	targets := []*api.Function{&b.allocate, &b.release, &b.detectSQLi, &b.detectXSS}

	for i, fn := range names.functions() {
		f := mod.ExportedFunction(fn.name)
		if f == nil {
			return nil, missingExport(fn.name)
		}
		if !fn.sig.matches(f.Definition()) {
			return nil, badSignature(fn.name, fn.sig, f.Definition())
		}
		*targets[i] = f
	}

	b.memory = mod.ExportedMemory(names.Memory)
	if b.memory == nil {
		return nil, missingExport(names.Memory)
	}

	return b, nil
}

func missingExport(name string) error {
	return errors.WithHint(
		errors.Wrapf(errors.ErrIncompatibleImage, "missing export %q", name),
		"rebuild the module image with the detector exports")
}

func badSignature(name string, want signature, def api.FunctionDefinition) error {
	got := signature{params: def.ParamTypes(), results: def.ResultTypes()}
	return errors.Wrapf(errors.ErrIncompatibleImage,
		"export %q has signature %s, want %s", name, got, want)
}

func equalTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func typeNames(types []api.ValueType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = api.ValueTypeName(t)
	}
	return strings.Join(names, ", ")
}

// Package wasmtest assembles small guest modules that implement the detector
// ABI (allocate, release, detect_sqli, detect_xss, memory) for host tests.
//
// The guest detectors are toys: detect_sqli matches any input containing a
// single quote and writes Guest.Fingerprint into the output slot, detect_xss
// matches any input containing '<' or '>'. An input starting with 0xFF makes
// detect_sqli trap. The allocator is a bump allocator that rewinds to its base
// once every allocation has been released, which makes leaks observable through
// the heap_top and live exports.
package wasmtest

import (
	"encoding/binary"
)

// HeapBase is the first address handed out by the guest allocator.
const HeapBase = 1024

// Guest describes a test module. The zero value is a well-formed guest.
type Guest struct {
	// Fingerprint written by detect_sqli on a match; at most 8 bytes.
	// Defaults to "s&sos".
	Fingerprint string
	// MaxPages caps linear memory; 0 leaves it unbounded.
	MaxPages uint32
	// Omit lists export names to leave out.
	Omit []string
	// BadXSSSignature declares detect_xss as (i32)->(i32).
	BadXSSSignature bool
	// ImportEnv adds an import from an "env" host module.
	ImportEnv bool
}

const (
	i32 = 0x7F
	i64 = 0x7E
)

// function types, in type section order
const (
	typeI32ToI32 = iota
	typeI32ToNone
	typeSQLi
	typeXSS
	typeNoneToI32
	typeNoneToNone
)

var types = [][2][]byte{
	typeI32ToI32:   {{i32}, {i32}},
	typeI32ToNone:  {{i32}, nil},
	typeSQLi:       {{i32, i32, i32}, {i32}},
	typeXSS:        {{i32, i32}, {i32}},
	typeNoneToI32:  {nil, {i32}},
	typeNoneToNone: {nil, nil},
}

// globals
const (
	globalHeap = iota
	globalLive
	globalReady
)

type function struct {
	name   string
	typ    uint32
	locals uint32 // extra i32 locals
	body   []byte
}

// Build encodes the guest as a wasm binary.
func (g Guest) Build() []byte {
	fp := g.Fingerprint
	if fp == "" {
		fp = "s&sos"
	}
	if len(fp) > 8 {
		fp = fp[:8]
	}

	funcs := []function{
		{name: "_initialize", typ: typeNoneToNone, body: initializeBody()},
		{name: "allocate", typ: typeI32ToI32, locals: 1, body: allocateBody()},
		{name: "release", typ: typeI32ToNone, body: releaseBody()},
		{name: "detect_sqli", typ: typeSQLi, locals: 1, body: detectSQLiBody(fp)},
		{name: "detect_xss", typ: typeXSS, locals: 2, body: detectXSSBody()},
		{name: "heap_top", typ: typeNoneToI32, body: code(op(0x23, globalHeap))},
		{name: "live", typ: typeNoneToI32, body: code(op(0x23, globalLive))},
	}
	if g.BadXSSSignature {
		funcs[4] = function{name: "detect_xss", typ: typeI32ToI32, body: code(i32Const(0))}
	}

	omitted := make(map[string]bool, len(g.Omit))
	for _, name := range g.Omit {
		omitted[name] = true
	}

	var out []byte
	out = append(out, 0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00)

	// type section
	var sec []byte
	sec = uleb(sec, uint32(len(types)))
	for _, t := range types {
		sec = append(sec, 0x60)
		sec = vec(sec, t[0])
		sec = vec(sec, t[1])
	}
	out = section(out, 1, sec)

	// imports shift function indices; importing for the host check only
	imported := uint32(0)
	if g.ImportEnv {
		sec = sec[:0]
		sec = uleb(sec, 1)
		sec = name(sec, "env")
		sec = name(sec, "abort")
		sec = append(sec, 0x00)
		sec = uleb(sec, typeNoneToNone)
		out = section(out, 2, sec)
		imported = 1
	}

	// function section
	sec = sec[:0]
	sec = uleb(sec, uint32(len(funcs)))
	for _, f := range funcs {
		sec = uleb(sec, f.typ)
	}
	out = section(out, 3, sec)

	// memory section
	sec = sec[:0]
	sec = uleb(sec, 1)
	if g.MaxPages > 0 {
		sec = append(sec, 0x01)
		sec = uleb(sec, 1)
		sec = uleb(sec, g.MaxPages)
	} else {
		sec = append(sec, 0x00)
		sec = uleb(sec, 1)
	}
	out = section(out, 5, sec)

	// global section: heap, live, ready
	sec = sec[:0]
	sec = uleb(sec, 3)
	for _, init := range []int32{HeapBase, 0, 0} {
		sec = append(sec, i32, 0x01)
		sec = append(sec, i32Const(init)...)
		sec = append(sec, 0x0B)
	}
	out = section(out, 6, sec)

	// export section
	sec = sec[:0]
	var exports []byte
	count := uint32(0)
	for i, f := range funcs {
		if omitted[f.name] {
			continue
		}
		exports = name(exports, f.name)
		exports = append(exports, 0x00)
		exports = uleb(exports, imported+uint32(i))
		count++
	}
	if !omitted["memory"] {
		exports = name(exports, "memory")
		exports = append(exports, 0x02, 0x00)
		count++
	}
	sec = uleb(sec, count)
	sec = append(sec, exports...)
	out = section(out, 7, sec)

	// code section
	sec = sec[:0]
	sec = uleb(sec, uint32(len(funcs)))
	for _, f := range funcs {
		var body []byte
		if f.locals > 0 {
			body = uleb(body, 1)
			body = uleb(body, f.locals)
			body = append(body, i32)
		} else {
			body = uleb(body, 0)
		}
		body = append(body, f.body...)
		sec = uleb(sec, uint32(len(body)))
		sec = append(sec, body...)
	}
	out = section(out, 10, sec)

	return out
}

// _initialize: ready = 1
func initializeBody() []byte {
	return code(
		i32Const(1),
		op(0x24, globalReady),
	)
}

// allocate(size) -> ptr; local 1 is the new heap end
func allocateBody() []byte {
	memBytes := cat(
		[]byte{0x3F, 0x00}, // memory.size
		i32Const(16),
		[]byte{0x74}, // i32.shl
	)
	return code(
		// trap unless _initialize ran
		op(0x23, globalReady),
		[]byte{0x45},       // i32.eqz
		[]byte{0x04, 0x40}, // if
		[]byte{0x00},       // unreachable
		[]byte{0x0B},       // end

		op(0x23, globalHeap),
		op(0x20, 0),
		[]byte{0x6A}, // i32.add
		op(0x21, 1),  // end = heap + size

		[]byte{0x02, 0x40}, // block
		op(0x20, 1),
		memBytes,
		[]byte{0x4D},   // i32.le_u
		op(0x0D, 0),    // br_if 0: fits
		op(0x20, 1),
		memBytes,
		[]byte{0x6B}, // i32.sub
		i32Const(65535),
		[]byte{0x6A}, // i32.add
		i32Const(16),
		[]byte{0x76},       // i32.shr_u
		[]byte{0x40, 0x00}, // memory.grow
		i32Const(-1),
		[]byte{0x46},       // i32.eq
		[]byte{0x04, 0x40}, // if grow failed
		i32Const(0),
		[]byte{0x0F}, // return
		[]byte{0x0B}, // end if
		[]byte{0x0B}, // end block

		op(0x23, globalHeap), // result: old heap
		op(0x20, 1),
		op(0x24, globalHeap),
		op(0x23, globalLive),
		i32Const(1),
		[]byte{0x6A},
		op(0x24, globalLive),
	)
}

// release(ptr): live--, rewind the heap when nothing is live
func releaseBody() []byte {
	return code(
		op(0x23, globalLive),
		i32Const(1),
		[]byte{0x6B}, // i32.sub
		op(0x24, globalLive),
		op(0x23, globalLive),
		[]byte{0x45},       // i32.eqz
		[]byte{0x04, 0x40}, // if
		i32Const(HeapBase),
		op(0x24, globalHeap),
		[]byte{0x0B},
	)
}

// detect_sqli(ptr, len, out) -> i32; local 3 is the cursor
func detectSQLiBody(fp string) []byte {
	var padded [8]byte
	copy(padded[:], fp)
	word := int64(binary.LittleEndian.Uint64(padded[:]))

	onMatch := cat(
		op(0x20, 2),
		i64Const(word),
		[]byte{0x37, 0x00, 0x00}, // i64.store align=0 offset=0
		op(0x20, 2),
		i32Const(0),
		[]byte{0x3A, 0x00, 0x08}, // i32.store8 align=0 offset=8
		i32Const(1),
		[]byte{0x0F}, // return
	)
	return code(
		// trap on a leading 0xFF byte
		op(0x20, 1),
		[]byte{0x04, 0x40}, // if len != 0
		op(0x20, 0),
		[]byte{0x2D, 0x00, 0x00}, // i32.load8_u
		i32Const(0xFF),
		[]byte{0x46},       // i32.eq
		[]byte{0x04, 0x40}, // if
		[]byte{0x00},       // unreachable
		[]byte{0x0B},
		[]byte{0x0B},

		scan(3, func(c []byte) []byte {
			return cat(c, i32Const('\''), []byte{0x46})
		}, onMatch),
		i32Const(0),
	)
}

// detect_xss(ptr, len) -> i32; local 2 is the cursor, local 3 the current byte
func detectXSSBody() []byte {
	onMatch := cat(i32Const(1), []byte{0x0F})
	return code(
		scan(2, func(c []byte) []byte {
			return cat(
				c, op(0x22, 3), // local.tee 3
				i32Const('<'), []byte{0x46},
				op(0x20, 3),
				i32Const('>'), []byte{0x46},
				[]byte{0x72}, // i32.or
			)
		}, onMatch),
		i32Const(0),
	)
}

// scan loops cursor over [ptr, ptr+len) (params 0 and 1) and runs onMatch when
// test, given the instructions that push the current byte, leaves non-zero.
func scan(cursor uint32, test func(load []byte) []byte, onMatch []byte) []byte {
	load := cat(
		op(0x20, 0),
		op(0x20, cursor),
		[]byte{0x6A},             // i32.add
		[]byte{0x2D, 0x00, 0x00}, // i32.load8_u
	)
	return cat(
		[]byte{0x02, 0x40}, // block
		[]byte{0x03, 0x40}, // loop
		op(0x20, cursor),
		op(0x20, 1),
		[]byte{0x4F}, // i32.ge_u
		op(0x0D, 1),  // br_if 1: done
		test(load),
		[]byte{0x04, 0x40}, // if
		onMatch,
		[]byte{0x0B},
		op(0x20, cursor),
		i32Const(1),
		[]byte{0x6A},
		op(0x21, cursor),
		op(0x0C, 0),  // br 0: next byte
		[]byte{0x0B}, // end loop
		[]byte{0x0B}, // end block
	)
}

func code(parts ...[]byte) []byte {
	return append(cat(parts...), 0x0B)
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func op(opcode byte, imm uint32) []byte {
	return uleb([]byte{opcode}, imm)
}

func i32Const(v int32) []byte {
	return sleb([]byte{0x41}, int64(v))
}

func i64Const(v int64) []byte {
	return sleb([]byte{0x42}, v)
}

func section(out []byte, id byte, contents []byte) []byte {
	out = append(out, id)
	out = uleb(out, uint32(len(contents)))
	return append(out, contents...)
}

func vec(out []byte, items []byte) []byte {
	out = uleb(out, uint32(len(items)))
	return append(out, items...)
}

func name(out []byte, s string) []byte {
	out = uleb(out, uint32(len(s)))
	return append(out, s...)
}

func uleb(out []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func sleb(out []byte, v int64) []byte {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

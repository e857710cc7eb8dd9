package wasm

import (
	"context"
	"math"

	"github.com/tetratelabs/wazero/api"

	"github.com/teranos/qntx-libinjection/errors"
)

const pageSize = 65536

// Context is one isolated instance of the detector module: its own linear
// memory, allocator state and call stack. It is not safe for concurrent use.
type Context struct {
	module  api.Module
	binding *Binding
	broken  bool
}

// Broken reports whether a guest call has failed on this context. A broken
// context has still released its scratch buffer but should not be reused.
func (c *Context) Broken() bool {
	return c.broken
}

// MemoryPages returns the current size of the context's linear memory.
func (c *Context) MemoryPages() uint32 {
	return c.binding.memory.Size() / pageSize
}

// Close releases the module instance.
func (c *Context) Close(ctx context.Context) error {
	return c.module.Close(ctx)
}

// DetectSQLi reports whether text is a SQL injection and returns its
// fingerprint. The fingerprint is undefined when matched is false: the output
// slot is not cleared before the call, so it may hold bytes from an earlier
// call.
func (c *Context) DetectSQLi(ctx context.Context, text string) (matched bool, fingerprint string, err error) {
	n := uint64(len(text))
	if n > math.MaxUint32-FingerprintSize {
		return false, "", errors.Wrapf(errors.ErrInputTooLarge, "sqli input of %d bytes", n)
	}
	size := uint32(n)

	ptr, err := c.allocate(ctx, size+FingerprintSize)
	if err != nil {
		return false, "", err
	}
	defer func() {
		if err = c.release(ctx, ptr, err); err != nil {
			matched, fingerprint = false, ""
		}
	}()

	if !c.binding.memory.WriteString(ptr, text) {
		return false, "", errors.Wrapf(errors.ErrMemoryAccess, "write %d bytes at %d", size, ptr)
	}

	out := ptr + size
	stack := c.binding.stack[:3]
	stack[0], stack[1], stack[2] = api.EncodeU32(ptr), api.EncodeU32(size), api.EncodeU32(out)
	if err := c.binding.detectSQLi.CallWithStack(ctx, stack); err != nil {
		c.broken = true
		return false, "", errors.Mark(errors.Wrap(err, "detect_sqli"), errors.ErrCall)
	}
	result := api.DecodeU32(stack[0])

	raw, ok := c.binding.memory.Read(out, FingerprintSize)
	if !ok {
		return false, "", errors.Wrapf(errors.ErrMemoryAccess, "read fingerprint at %d", out)
	}
	var fp Fingerprint
	copy(fp[:], raw)

	return result != 0, fp.String(), nil
}

// DetectXSS reports whether text is a cross-site scripting payload.
func (c *Context) DetectXSS(ctx context.Context, text string) (matched bool, err error) {
	n := uint64(len(text))
	if n > math.MaxUint32 {
		return false, errors.Wrapf(errors.ErrInputTooLarge, "xss input of %d bytes", n)
	}
	size := uint32(n)

	ptr, err := c.allocate(ctx, size)
	if err != nil {
		return false, err
	}
	defer func() {
		if err = c.release(ctx, ptr, err); err != nil {
			matched = false
		}
	}()

	if size > 0 && !c.binding.memory.WriteString(ptr, text) {
		return false, errors.Wrapf(errors.ErrMemoryAccess, "write %d bytes at %d", size, ptr)
	}

	stack := c.binding.stack[:2]
	stack[0], stack[1] = api.EncodeU32(ptr), api.EncodeU32(size)
	if err := c.binding.detectXSS.CallWithStack(ctx, stack); err != nil {
		c.broken = true
		return false, errors.Mark(errors.Wrap(err, "detect_xss"), errors.ErrCall)
	}

	return api.DecodeU32(stack[0]) != 0, nil
}

// allocate returns a scratch buffer of size bytes. A null pointer is only an
// error for non-empty requests; allocators may return null for size 0.
func (c *Context) allocate(ctx context.Context, size uint32) (uint32, error) {
	stack := c.binding.stack[:1]
	stack[0] = api.EncodeU32(size)
	if err := c.binding.allocate.CallWithStack(ctx, stack); err != nil {
		c.broken = true
		return 0, errors.Mark(errors.Wrapf(err, "allocate(%d)", size), errors.ErrAllocation)
	}

	ptr := api.DecodeU32(stack[0])
	if ptr == 0 && size > 0 {
		return 0, errors.WithHint(
			errors.Wrapf(errors.ErrAllocation, "allocate(%d) returned null", size),
			"the sandbox memory limit may be too low for this input")
	}
	return ptr, nil
}

// release frees ptr and folds any failure into callErr.
func (c *Context) release(ctx context.Context, ptr uint32, callErr error) error {
	stack := c.binding.stack[:1]
	stack[0] = api.EncodeU32(ptr)
	if err := c.binding.release.CallWithStack(ctx, stack); err != nil {
		c.broken = true
		releaseErr := errors.Mark(errors.Wrapf(err, "release(%d)", ptr), errors.ErrRelease)
		if callErr != nil {
			return errors.WithSecondaryError(callErr, releaseErr)
		}
		return releaseErr
	}
	return callErr
}

// Package errors provides error handling for qntx-libinjection.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Marks, so a wrapped cause can still match a sentinel with Is
//
// Usage:
//
//	// Wrap a wazero failure and keep it matchable as a call failure
//	if err != nil {
//	    return errors.Mark(errors.Wrap(err, "detect_sqli"), errors.ErrCall)
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrAllocation) {
//	    // sandbox out of memory
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
	CombineErrors      = crdb.CombineErrors
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapOnce     = crdb.UnwrapOnce
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Sentinel errors for the sandbox host. Wrap or Mark these so callers can
// classify failures with Is.
var (
	// ErrCompile indicates the embedded module image failed to compile.
	ErrCompile = New("module image failed to compile")

	// ErrIncompatibleImage indicates a required export is missing or has the
	// wrong signature, or the image imports a host module we do not provide.
	ErrIncompatibleImage = New("incompatible module image")

	// ErrAllocation indicates the guest allocator returned null.
	ErrAllocation = New("guest allocation failed")

	// ErrRelease indicates the guest release call failed.
	ErrRelease = New("guest release failed")

	// ErrMemoryAccess indicates a host read or write fell outside linear memory.
	ErrMemoryAccess = New("guest memory access out of range")

	// ErrCall indicates a detector call trapped or otherwise failed.
	ErrCall = New("guest call failed")

	// ErrInputTooLarge indicates the input cannot be addressed by a 32-bit guest.
	ErrInputTooLarge = New("input too large for guest memory")

	// ErrAlreadyInitialized indicates Init was called after the engine was built.
	ErrAlreadyInitialized = New("engine already initialized")
)

// IsFatal reports whether err means the image itself is unusable. Retrying
// will not help.
func IsFatal(err error) bool {
	return err != nil && IsAny(err, ErrCompile, ErrIncompatibleImage)
}

// IsResourceExhausted reports whether err is a sandbox allocation failure
func IsResourceExhausted(err error) bool {
	return err != nil && Is(err, ErrAllocation)
}

package format

import "errors"

var (
	// ErrSignatureMismatch indicates a structure had an unexpected magic.
	ErrSignatureMismatch = errors.New("format: signature mismatch")
	// ErrTruncated indicates the buffer lacked the bytes required for a structure.
	ErrTruncated = errors.New("format: truncated buffer")
	// ErrNotFound indicates a requested table, column, or value was missing.
	ErrNotFound = errors.New("format: not found")
	// ErrUnsupported indicates the structure or feature is not yet supported.
	ErrUnsupported = errors.New("format: unsupported feature")

	// ErrBoundsCheck indicates a buffer access exceeded bounds. No
	// function in this module currently returns it; the Read* decoders
	// do no bounds checking of their own.
	ErrBoundsCheck = errors.New("format: buffer bounds exceeded")

	// ErrSanityLimit indicates a parsed value exceeded sanity limits. No
	// function in this module currently returns it.
	ErrSanityLimit = errors.New("format: value exceeds sanity limit")

	// ErrIntegerOverflow indicates an integer operation would overflow. No
	// function in this module currently returns it.
	ErrIntegerOverflow = errors.New("format: integer overflow")
)

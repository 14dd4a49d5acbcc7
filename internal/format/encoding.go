package format

import (
	"encoding/binary"
	"math"
)

// Binary decoding utilities for little-endian integers.
//
// The engine is read-only, so this package exposes only decoders.
//
// Performance Note: After benchmarking, we determined that Go's standard
// library implementation is already highly optimized by the compiler.
// Unsafe pointer implementations provided no measurable benefit and added
// complexity. Modern Go compilers inline and optimize binary.LittleEndian
// calls extremely well.

// ReadU8 reads a single byte at off.
func ReadU8(b []byte, off int) uint8 {
	return b[off]
}

// ReadU16 reads a uint16 value from the buffer at the specified offset in little-endian format.
func ReadU16(b []byte, off int) uint16 {
	return binary.LittleEndian.Uint16(b[off : off+2])
}

// ReadI16 reads an int16 value from the buffer at the specified offset in little-endian format.
func ReadI16(b []byte, off int) int16 {
	return int16(binary.LittleEndian.Uint16(b[off : off+2]))
}

// ReadU32 reads a uint32 value from the buffer at the specified offset in little-endian format.
func ReadU32(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off : off+4])
}

// ReadI32 reads an int32 value from the buffer at the specified offset in little-endian format.
func ReadI32(b []byte, off int) int32 {
	return int32(binary.LittleEndian.Uint32(b[off : off+4]))
}

// ReadU64 reads a uint64 value from the buffer at the specified offset in little-endian format.
func ReadU64(b []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(b[off : off+8])
}

// ReadI64 reads an int64 value from the buffer at the specified offset in little-endian format.
func ReadI64(b []byte, off int) int64 {
	return int64(binary.LittleEndian.Uint64(b[off : off+8]))
}

// ReadU32BE reads a big-endian uint32. Long-value keys store their
// identifier and segment offset big-endian so that leaves sort in
// lexicographic (and therefore numeric) order.
func ReadU32BE(b []byte, off int) uint32 {
	return binary.BigEndian.Uint32(b[off : off+4])
}

// ReadF32 reads an IEEE-754 single-precision float, little-endian.
func ReadF32(b []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off : off+4]))
}

// ReadF64 reads an IEEE-754 double-precision float, little-endian.
func ReadF64(b []byte, off int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b[off : off+8]))
}

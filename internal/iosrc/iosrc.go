// Package iosrc provides the byte-source abstraction the engine reads a
// database file through. The engine never assumes a particular backing
// store: a plain file, an in-memory buffer, or a memory-mapped region all
// satisfy the same narrow contract.
package iosrc

import (
	"errors"
	"fmt"
	"io"
)

// ErrShortRead indicates the source could not supply the requested number
// of bytes at the requested offset. The engine never retries a short read.
var ErrShortRead = errors.New("iosrc: short read")

// Source is the random-access byte source the engine requires. Callers must
// not mutate the underlying bytes concurrently with any engine call;
// multiple independent Source values (and the Engines built over them) may
// be used from independent goroutines.
type Source interface {
	// ReadExactAt fills dst entirely with bytes starting at offset, or
	// returns an error. A read that reaches EOF before dst is full is
	// ErrShortRead, not a partial success.
	ReadExactAt(offset uint64, dst []byte) error

	// Size returns the total byte length of the source.
	Size() (uint64, error)

	// Close releases any resources (file descriptors, mappings) held by
	// the source.
	Close() error
}

// readerAtSource adapts any io.ReaderAt + Size pair into a Source.
type readerAtSource struct {
	r      io.ReaderAt
	size   uint64
	closer io.Closer
}

// NewReaderAt wraps an io.ReaderAt of known size as a Source. The returned
// Source's Close calls closer.Close if non-nil.
func NewReaderAt(r io.ReaderAt, size uint64, closer io.Closer) Source {
	return &readerAtSource{r: r, size: size, closer: closer}
}

func (s *readerAtSource) ReadExactAt(offset uint64, dst []byte) error {
	if len(dst) == 0 {
		return nil
	}
	if offset > s.size || s.size-offset < uint64(len(dst)) {
		return fmt.Errorf("%w: offset=%d len=%d size=%d", ErrShortRead, offset, len(dst), s.size)
	}
	n, err := s.r.ReadAt(dst, int64(offset))
	if n == len(dst) {
		return nil
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("iosrc: read at %d: %w", offset, err)
	}
	return fmt.Errorf("%w: got %d of %d bytes at offset %d", ErrShortRead, n, len(dst), offset)
}

func (s *readerAtSource) Size() (uint64, error) { return s.size, nil }

func (s *readerAtSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// memorySource is a Source backed by an in-memory buffer (e.g. an mmap'd
// region, or bytes already loaded by the caller).
type memorySource struct {
	data    []byte
	cleanup func() error
}

// NewMemory wraps a byte slice as a Source. cleanup, if non-nil, runs on
// Close (used to unmap memory-mapped buffers).
func NewMemory(data []byte, cleanup func() error) Source {
	return &memorySource{data: data, cleanup: cleanup}
}

func (s *memorySource) ReadExactAt(offset uint64, dst []byte) error {
	if len(dst) == 0 {
		return nil
	}
	total := uint64(len(s.data))
	if offset > total || total-offset < uint64(len(dst)) {
		return fmt.Errorf("%w: offset=%d len=%d size=%d", ErrShortRead, offset, len(dst), total)
	}
	copy(dst, s.data[offset:offset+uint64(len(dst))])
	return nil
}

func (s *memorySource) Size() (uint64, error) { return uint64(len(s.data)), nil }

func (s *memorySource) Close() error {
	if s.cleanup == nil {
		return nil
	}
	return s.cleanup()
}

//go:build !unix

package iosrc

import (
	"fmt"
	"os"
)

// OpenMapped reads path fully into memory. Platforms without a unix-style
// mmap syscall fall back to a plain read; the resulting Source exposes the
// identical interface as the mmap-backed implementation.
func OpenMapped(path string) (Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("iosrc: read %s: %w", path, err)
	}
	return NewMemory(data, nil), nil
}

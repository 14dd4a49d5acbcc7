//go:build unix

package iosrc

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// OpenMapped maps path into memory read-only and returns a Source backed
// by the mapping. Closing the Source unmaps the region.
func OpenMapped(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("iosrc: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("iosrc: stat %s: %w", path, err)
	}
	size := info.Size()
	if size == 0 {
		return NewMemory(nil, nil), nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("iosrc: mmap %s: %w", path, err)
	}
	return NewMemory(data, func() error { return unix.Munmap(data) }), nil
}

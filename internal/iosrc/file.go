package iosrc

import (
	"fmt"
	"os"
)

// OpenFile opens path for random-access reads via os.File.ReadAt, without
// mapping it into memory. This is the default byte source: the engine's
// hot path already reads whole pages at a time, so the extra mmap
// machinery buys little beyond what the OS page cache already provides.
func OpenFile(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("iosrc: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("iosrc: stat %s: %w", path, err)
	}
	return NewReaderAt(f, uint64(info.Size()), f), nil
}

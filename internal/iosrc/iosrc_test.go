package iosrc

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemorySourceReadExactAt(t *testing.T) {
	src := NewMemory([]byte("0123456789"), nil)

	dst := make([]byte, 4)
	require.NoError(t, src.ReadExactAt(3, dst))
	require.Equal(t, []byte("3456"), dst)

	size, err := src.Size()
	require.NoError(t, err)
	require.Equal(t, uint64(10), size)
}

func TestMemorySourceShortRead(t *testing.T) {
	src := NewMemory([]byte("short"), nil)

	err := src.ReadExactAt(3, make([]byte, 10))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrShortRead))
}

func TestMemorySourceCleanupRunsOnClose(t *testing.T) {
	called := false
	src := NewMemory([]byte("x"), func() error { called = true; return nil })

	require.NoError(t, src.Close())
	require.True(t, called)
}

func TestOpenFileReadExactAt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fixture.bin")
	require.NoError(t, os.WriteFile(path, []byte("abcdefghij"), 0o644))

	src, err := OpenFile(path)
	require.NoError(t, err)
	defer src.Close()

	size, err := src.Size()
	require.NoError(t, err)
	require.Equal(t, uint64(10), size)

	dst := make([]byte, 5)
	require.NoError(t, src.ReadExactAt(2, dst))
	require.Equal(t, []byte("cdefg"), dst)

	err = src.ReadExactAt(8, make([]byte, 5))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrShortRead))
}

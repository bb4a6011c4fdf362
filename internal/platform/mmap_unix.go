//go:build unix

// Package platform isolates the OS-specific pieces: the read-only
// whole-file mapping, zero-copy range transfer, and free-space
// queries. Every entry point has a portable fallback.
package platform

import (
	"os"

	"golang.org/x/sys/unix"
)

// Mmap establishes a read-only shared mapping of the whole file.
// The mapping must be treated as immutable; no writer may run
// against the file while it is live. Empty files map to nil.
func Mmap(f *os.File) ([]byte, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 {
		return nil, nil
	}
	return unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
}

// Munmap releases a mapping returned by Mmap.
func Munmap(data []byte) error {
	if data == nil {
		return nil
	}
	return unix.Munmap(data)
}

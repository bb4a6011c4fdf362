//go:build !unix

package platform

import (
	"io"
	"os"
)

// Mmap falls back to reading the whole file into memory on platforms
// without a usable mapping primitive. Callers treat the result the
// same way: immutable for the lifetime of the archive handle.
func Mmap(f *os.File) ([]byte, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(f)
}

// Munmap releases the buffer. Nothing to do for the portable copy.
func Munmap(data []byte) error {
	return nil
}

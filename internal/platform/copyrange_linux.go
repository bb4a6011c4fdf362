//go:build linux

package platform

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// CopyRange copies size bytes from src at srcOff to the current
// position of dst using copy_file_range, avoiding a round trip
// through user space. Returns handled=false when the kernel or the
// filesystem pair cannot service the copy, so the caller can fall
// back to the buffered loop. The choice is an optimization only;
// behavior is identical either way.
func CopyRange(dst, src *os.File, srcOff, size int64) (bool, error) {
	off := srcOff
	remaining := size
	for remaining > 0 {
		n, err := unix.CopyFileRange(int(src.Fd()), &off, int(dst.Fd()), nil, int(remaining), 0)
		if err != nil {
			// Fall back only before any bytes moved; a partial copy
			// would leave dst mid-write for the buffered loop.
			if remaining == size && (err == unix.EXDEV || err == unix.ENOSYS || err == unix.EOPNOTSUPP || err == unix.EINVAL) {
				return false, nil
			}
			return true, err
		}
		if n == 0 {
			if remaining == size {
				return false, nil
			}
			return true, io.ErrUnexpectedEOF
		}
		remaining -= int64(n)
	}
	return true, nil
}

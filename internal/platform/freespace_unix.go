//go:build unix

package platform

import "golang.org/x/sys/unix"

// FreeSpace returns the free bytes available on the filesystem
// holding path, or -1 when the query is unsupported.
func FreeSpace(path string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return -1, err
	}
	return int64(st.Bavail) * int64(st.Bsize), nil
}

//go:build !unix

package platform

// FreeSpace reports -1 on platforms without a statfs equivalent;
// the repack admission check is skipped there.
func FreeSpace(path string) (int64, error) {
	return -1, nil
}

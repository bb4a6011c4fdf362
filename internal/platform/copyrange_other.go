//go:build !linux

package platform

import "os"

// CopyRange reports handled=false so the caller uses the portable
// buffered copy loop.
func CopyRange(dst, src *os.File, srcOff, size int64) (bool, error) {
	return false, nil
}

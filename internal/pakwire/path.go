package pakwire

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf16"

	"github.com/meigma/pak/internal/paktype"
)

// Path strings are stored as an int32-LE length prefix followed by a
// NUL-terminated payload. A negative length denotes UTF-16LE content
// of byte length -2*value. Separators are '/' on the wire and the
// host separator in memory.

// maxPathBytes bounds a single decoded path. Anything larger is a
// corrupt length prefix, not a real filename.
const maxPathBytes = 1 << 20

// DecodePath decodes one path string from b, returning the decoded
// path and the number of bytes consumed.
func DecodePath(b []byte) (string, int, error) {
	if len(b) < 4 {
		return "", 0, fmt.Errorf("%w: short path length prefix", paktype.ErrFormat)
	}
	length := int32(binary.LittleEndian.Uint32(b))
	utf16le := false
	byteLen := int64(length)
	if length < 0 {
		utf16le = true
		byteLen = -2 * int64(length)
	}
	if byteLen > maxPathBytes {
		return "", 0, fmt.Errorf("%w: path length %d out of range", paktype.ErrFormat, byteLen)
	}
	if int64(len(b)-4) < byteLen {
		return "", 0, fmt.Errorf("%w: path payload overruns input", paktype.ErrFormat)
	}
	payload := b[4 : 4+byteLen]

	var s string
	if utf16le {
		units := make([]uint16, len(payload)/2)
		for i := range units {
			units[i] = binary.LittleEndian.Uint16(payload[2*i:])
		}
		s = string(utf16.Decode(units))
	} else {
		s = string(payload)
	}
	s = strings.TrimRight(s, "\x00")
	s = strings.ReplaceAll(s, "/", string(filepath.Separator))
	return s, 4 + int(byteLen), nil
}

// AppendPath appends the wire encoding of path to dst. Paths are
// always written as UTF-8 with a trailing NUL.
func AppendPath(dst []byte, path string) []byte {
	encoded := strings.ReplaceAll(path, string(filepath.Separator), "/") + "\x00"
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(encoded)))
	return append(dst, encoded...)
}

// PathWireSize returns the encoded size of path in bytes.
func PathWireSize(path string) int64 {
	return 4 + int64(len(strings.ReplaceAll(path, string(filepath.Separator), "/"))) + 1
}

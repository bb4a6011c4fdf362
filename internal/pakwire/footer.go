package pakwire

import (
	"encoding/binary"
	"fmt"

	"github.com/meigma/pak/internal/paktype"
)

const (
	// Magic identifies a pak archive footer.
	Magic = 0x5A6F12E1

	// FooterSize is the fixed size of the trailing footer.
	FooterSize = 44
)

// Footer is the fixed 44-byte trailer locating the index.
type Footer struct {
	Magic       uint32
	Version     paktype.Version
	IndexOffset uint64
	IndexSize   uint64
	Checksum    [20]byte
}

// DecodeFooter parses the 44-byte footer. Magic validation is the
// caller's concern so that it can be overridden by configuration.
func DecodeFooter(b []byte) (Footer, error) {
	if len(b) < FooterSize {
		return Footer{}, fmt.Errorf("%w: short footer (%d bytes)", paktype.ErrFormat, len(b))
	}
	f := Footer{
		Magic:       binary.LittleEndian.Uint32(b[0:]),
		Version:     paktype.Version(binary.LittleEndian.Uint32(b[4:])),
		IndexOffset: binary.LittleEndian.Uint64(b[8:]),
		IndexSize:   binary.LittleEndian.Uint64(b[16:]),
	}
	copy(f.Checksum[:], b[24:44])
	return f, nil
}

// AppendFooter appends the 44-byte wire encoding of f to dst.
func AppendFooter(dst []byte, f Footer) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, f.Magic)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(f.Version))
	dst = binary.LittleEndian.AppendUint64(dst, f.IndexOffset)
	dst = binary.LittleEndian.AppendUint64(dst, f.IndexSize)
	return append(dst, f.Checksum[:]...)
}

package pak

import (
	"github.com/meigma/pak/internal/fragment"
	"github.com/meigma/pak/internal/paktype"
)

// Re-export types from internal packages for the public API.
type (
	// Record is one named entry's metadata.
	Record = paktype.Record

	// Compression identifies the compression method of a record.
	Compression = paktype.Compression

	// Version is the archive schema version.
	Version = paktype.Version

	// Block is one compression block's byte range.
	Block = paktype.Block

	// FragMap tracks used byte intervals within an archive.
	FragMap = fragment.Map

	// FragRange is one half-open byte interval of a FragMap.
	FragRange = fragment.Range
)

// Re-export compression constants.
const (
	CompressionNone       = paktype.CompressionNone
	CompressionZlib       = paktype.CompressionZlib
	CompressionBiasMemory = paktype.CompressionBiasMemory
	CompressionBiasSpeed  = paktype.CompressionBiasSpeed
)

// UnassignedOffset marks a record not yet placed in the archive.
const UnassignedOffset = paktype.UnassignedOffset

// NewFragMap creates an empty fragment map covering [0, size).
func NewFragMap(size int64) *FragMap {
	return fragment.New(size)
}

// Package paktype defines the shared record model used across the pak
// package and its internal packages. This avoids circular imports
// between the codec, index, and repack layers.
package paktype

import (
	"path/filepath"
	"strings"
)

// Compression identifies the compression method of a record, using
// the on-disk method codes.
type Compression uint32

const (
	CompressionNone       Compression = 0x00
	CompressionZlib       Compression = 0x01
	CompressionBiasMemory Compression = 0x10 // reserved, never written
	CompressionBiasSpeed  Compression = 0x20 // reserved, never written
)

// Known reports whether c is one of the method codes the format
// defines. Decoders reject unknown codes with a format error.
func (c Compression) Known() bool {
	switch c {
	case CompressionNone, CompressionZlib, CompressionBiasMemory, CompressionBiasSpeed:
		return true
	}
	return false
}

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZlib:
		return "zlib"
	case CompressionBiasMemory:
		return "bias memory"
	case CompressionBiasSpeed:
		return "bias speed"
	default:
		return "unknown"
	}
}

// Version is the archive schema version. Only the versions observed
// in the wild are supported; intermediate versions are rejected
// rather than guessed at.
type Version uint32

// Supported reports whether v can be decoded.
func (v Version) Supported() bool {
	switch v {
	case 1, 2, 3, 4, 7:
		return true
	}
	return false
}

// Writable reports whether v can be authored. Versions 4 and 7 are
// decode-only.
func (v Version) Writable() bool {
	return v == 1 || v == 2 || v == 3
}

// BlockBase returns the base that stored compression-block offsets
// are relative to. Versions up to 4 store file-absolute offsets
// (base 0); version 7 stores offsets relative to the record's own
// offset. The cutover matches archives observed in the wild.
func (v Version) BlockBase(recordOffset int64) int64 {
	if v >= 7 {
		return recordOffset
	}
	return 0
}

// Block is one compression block's byte range, half-open, relative
// to the version's block base.
type Block struct {
	Start uint64
	End   uint64
}

// UnassignedOffset marks a record that has not been placed in the
// archive yet (a repack insertion before planning).
const UnassignedOffset = -1

// Record is one named entry's metadata. Filenames use the host path
// separator in memory and '/' on the wire.
type Record struct {
	Filename         string
	Offset           int64
	CompressedSize   int64
	UncompressedSize int64
	Method           Compression
	Timestamp        uint64 // v1 only, zero otherwise
	Checksum         [20]byte
	Blocks           []Block // nil when the header carries no block table
	Encrypted        bool
	BlockSize        uint32
}

// HeaderSize returns the size in bytes of the record's data-local
// header for the given version, including the block table when the
// record is compressed.
func (r *Record) HeaderSize(v Version) int64 {
	switch v {
	case 1:
		return 56
	case 2:
		return 48
	default:
		// 48-byte fixed prefix, plus block count and table when
		// compressed, plus the encrypted flag and block size.
		size := int64(48 + 1 + 4)
		if r.Method != CompressionNone {
			size += 4 + int64(len(r.Blocks))*16
		}
		return size
	}
}

// DataOffset returns the file offset of the record's content,
// directly after its data-local header.
func (r *Record) DataOffset(v Version) int64 {
	return r.Offset + r.HeaderSize(v)
}

// AllocSize returns the total allocated span of the record: header
// plus content.
func (r *Record) AllocSize(v Version) int64 {
	return r.HeaderSize(v) + r.CompressedSize
}

// IndexSize returns the bytes the record occupies in the serialized
// index: length-prefixed NUL-terminated filename plus the header.
func (r *Record) IndexSize(v Version) int64 {
	name := strings.ReplaceAll(r.Filename, string(filepath.Separator), "/")
	return 4 + int64(len(name)) + 1 + r.HeaderSize(v)
}

// NullChecksum reports whether the stored checksum is all zero
// bytes, which the format treats as intentionally absent.
func (r *Record) NullChecksum() bool {
	return r.Checksum == [20]byte{}
}

// SameMetadata compares every field except Filename and Offset.
// On-disk data-local headers always store offset 0, so the embedded
// offset is excluded from index-vs-disk comparisons.
func (r *Record) SameMetadata(other *Record) bool {
	if r.CompressedSize != other.CompressedSize ||
		r.UncompressedSize != other.UncompressedSize ||
		r.Method != other.Method ||
		r.Timestamp != other.Timestamp ||
		r.Checksum != other.Checksum ||
		r.Encrypted != other.Encrypted ||
		r.BlockSize != other.BlockSize {
		return false
	}
	if len(r.Blocks) != len(other.Blocks) {
		return false
	}
	for i, b := range r.Blocks {
		if b != other.Blocks[i] {
			return false
		}
	}
	return true
}

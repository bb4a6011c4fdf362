// Package pakwire implements the pak wire codecs: the 44-byte
// footer, length-prefixed path strings, and the per-version record
// headers, including the two-phase staged write used while content
// length and checksum are still unknown.
package pakwire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/meigma/pak/internal/paktype"
)

// DecodeRecord decodes one record header from b for the given
// version. The filename is decoded separately by the index layer and
// passed in. Returns the record and the number of bytes consumed.
func DecodeRecord(b []byte, v paktype.Version, filename string) (paktype.Record, int, error) {
	rec := paktype.Record{Filename: filename}

	if len(b) < 48 {
		return rec, 0, fmt.Errorf("%w: %s: short record header", paktype.ErrFormat, filename)
	}
	rec.Offset = int64(binary.LittleEndian.Uint64(b[0:]))
	rec.CompressedSize = int64(binary.LittleEndian.Uint64(b[8:]))
	rec.UncompressedSize = int64(binary.LittleEndian.Uint64(b[16:]))
	rec.Method = paktype.Compression(binary.LittleEndian.Uint32(b[24:]))
	if !rec.Method.Known() {
		return rec, 0, fmt.Errorf("%w: %s: unknown compression method 0x%02x", paktype.ErrFormat, filename, uint32(rec.Method))
	}
	n := 28

	switch v {
	case 1:
		if len(b) < 56 {
			return rec, 0, fmt.Errorf("%w: %s: short record header", paktype.ErrFormat, filename)
		}
		rec.Timestamp = binary.LittleEndian.Uint64(b[n:])
		n += 8
		copy(rec.Checksum[:], b[n:n+20])
		n += 20
		return rec, n, nil

	case 2:
		copy(rec.Checksum[:], b[n:n+20])
		n += 20
		return rec, n, nil

	default: // v3, v4, v7 share the wire layout
		copy(rec.Checksum[:], b[n:n+20])
		n += 20

		if rec.Method != paktype.CompressionNone {
			if len(b) < n+4 {
				return rec, 0, fmt.Errorf("%w: %s: short block count", paktype.ErrFormat, filename)
			}
			count := binary.LittleEndian.Uint32(b[n:])
			n += 4
			need := int64(count) * 16
			if int64(len(b)-n) < need {
				return rec, 0, fmt.Errorf("%w: %s: block table of %d entries overruns input", paktype.ErrFormat, filename, count)
			}
			rec.Blocks = make([]paktype.Block, count)
			for i := range rec.Blocks {
				rec.Blocks[i].Start = binary.LittleEndian.Uint64(b[n:])
				rec.Blocks[i].End = binary.LittleEndian.Uint64(b[n+8:])
				n += 16
			}
		}

		if len(b) < n+5 {
			return rec, 0, fmt.Errorf("%w: %s: short record trailer", paktype.ErrFormat, filename)
		}
		rec.Encrypted = b[n] != 0
		n++
		rec.BlockSize = binary.LittleEndian.Uint32(b[n:])
		n += 4
		return rec, n, nil
	}
}

// AppendRecord appends the index copy of the record header to dst.
// The index copy stores the record's real file offset; the data-local
// copy written by BeginRecord stores 0 instead.
func AppendRecord(dst []byte, rec *paktype.Record, v paktype.Version) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, uint64(rec.Offset))
	dst = binary.LittleEndian.AppendUint64(dst, uint64(rec.CompressedSize))
	dst = binary.LittleEndian.AppendUint64(dst, uint64(rec.UncompressedSize))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(rec.Method))

	switch v {
	case 1:
		dst = binary.LittleEndian.AppendUint64(dst, rec.Timestamp)
		return append(dst, rec.Checksum[:]...)
	case 2:
		return append(dst, rec.Checksum[:]...)
	default:
		dst = append(dst, rec.Checksum[:]...)
		if rec.Method != paktype.CompressionNone {
			dst = binary.LittleEndian.AppendUint32(dst, uint32(len(rec.Blocks)))
			for _, blk := range rec.Blocks {
				dst = binary.LittleEndian.AppendUint64(dst, blk.Start)
				dst = binary.LittleEndian.AppendUint64(dst, blk.End)
			}
		}
		if rec.Encrypted {
			dst = append(dst, 1)
		} else {
			dst = append(dst, 0)
		}
		return binary.LittleEndian.AppendUint32(dst, rec.BlockSize)
	}
}

// Staged is a record header written in phase one of a streaming
// write: sizes and checksum are placeholders until the content has
// been consumed. Finish patches them in place.
type Staged struct {
	version   paktype.Version
	sizePatch int64
	sumPatch  int64
}

// BeginRecord writes the data-local placeholder header for rec at
// the writer's current position and returns the patch locations.
// The embedded offset and compressed size are written as zero; the
// uncompressed size, method, and (for v1) timestamp are already
// known and written directly. For a compressed v3 record the block
// table is staged separately by the block pipeline.
func BeginRecord(w io.WriteSeeker, v paktype.Version, rec *paktype.Record) (Staged, error) {
	if !v.Writable() {
		return Staged{}, fmt.Errorf("%w: cannot write record version %d", paktype.ErrNotSupported, v)
	}
	if rec.Encrypted {
		return Staged{}, fmt.Errorf("%w: encryption", paktype.ErrNotSupported)
	}

	offset, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return Staged{}, err
	}

	var hdr []byte
	hdr = binary.LittleEndian.AppendUint64(hdr, 0) // offset, always 0 on disk
	hdr = binary.LittleEndian.AppendUint64(hdr, 0) // compressed size, patched later
	hdr = binary.LittleEndian.AppendUint64(hdr, uint64(rec.UncompressedSize))
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(rec.Method))

	s := Staged{version: v, sizePatch: offset + 8}
	switch v {
	case 1:
		hdr = binary.LittleEndian.AppendUint64(hdr, rec.Timestamp)
		s.sumPatch = offset + 36
		hdr = append(hdr, make([]byte, 20)...)
	case 2:
		s.sumPatch = offset + 28
		hdr = append(hdr, make([]byte, 20)...)
	default:
		s.sumPatch = offset + 28
		hdr = append(hdr, make([]byte, 20)...)
		if rec.Method == paktype.CompressionNone {
			hdr = append(hdr, 0) // encrypted
			hdr = binary.LittleEndian.AppendUint32(hdr, rec.BlockSize)
		}
	}

	if _, err := w.Write(hdr); err != nil {
		return Staged{}, err
	}
	return s, nil
}

// Finish seeks back to the staged header, overwrites the compressed
// size and checksum, and restores the cursor to end-of-stream.
func (s Staged) Finish(w io.WriteSeeker, compressedSize int64, sum [20]byte) error {
	end, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if _, err := w.Seek(s.sizePatch, io.SeekStart); err != nil {
		return err
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(compressedSize))
	if _, err := w.Write(buf[:]); err != nil {
		return err
	}
	if _, err := w.Seek(s.sumPatch, io.SeekStart); err != nil {
		return err
	}
	if _, err := w.Write(sum[:]); err != nil {
		return err
	}
	_, err = w.Seek(end, io.SeekStart)
	return err
}

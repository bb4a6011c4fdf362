// Package blockio implements the pak content pipelines: plain
// streaming with rolling SHA-1, chunked zlib writes with a staged
// block table, random access over compression blocks, and sequential
// extraction.
package blockio

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/meigma/pak/internal/paktype"
)

// DefaultBlockSize is the compression block size used when the
// caller does not pick one.
const DefaultBlockSize = 65536

// copyBufferSize is the fixed buffer used by the plain pipeline.
const copyBufferSize = 32 * 1024

// WritePlain streams exactly size bytes from src to w while
// accumulating a SHA-1 over the bytes written. A short source fails
// with ErrTruncated.
func WritePlain(w io.Writer, src io.Reader, size int64) ([20]byte, error) {
	var sum [20]byte
	hasher := sha1.New()
	buf := make([]byte, copyBufferSize)

	remaining := size
	for remaining > 0 {
		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}
		if _, err := io.ReadFull(src, buf[:n]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return sum, fmt.Errorf("%w: %d of %d bytes missing", paktype.ErrTruncated, remaining, size)
			}
			return sum, err
		}
		hasher.Write(buf[:n])
		if _, err := w.Write(buf[:n]); err != nil {
			return sum, err
		}
		remaining -= n
	}

	copy(sum[:], hasher.Sum(nil))
	return sum, nil
}

// WriteBlocks streams size bytes from src through per-block zlib
// compression to w. The block count, a zeroed block-offset table,
// and the encryption flag and block size are reserved up front; once
// every block has been compressed the table is patched in place and
// the cursor restored to end-of-stream.
//
// The recorded block ranges are file-absolute (the version ≤ 4
// addressing; the writer only authors those versions). The returned
// checksum covers the compressed bytes as written, which is the
// format's deliberate checksum definition for block entries.
func WriteBlocks(w io.WriteSeeker, src io.Reader, size int64, blockSize uint32) (int64, [20]byte, []paktype.Block, error) {
	var sum [20]byte
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	blockCount := (size + int64(blockSize) - 1) / int64(blockSize)

	base, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, sum, nil, err
	}

	// Reserve: block count, zeroed table, encrypted flag, block size.
	reserved := make([]byte, 4+blockCount*16+5)
	binary.LittleEndian.PutUint32(reserved, uint32(blockCount))
	binary.LittleEndian.PutUint32(reserved[len(reserved)-4:], blockSize)
	if _, err := w.Write(reserved); err != nil {
		return 0, sum, nil, err
	}

	cur := base + int64(len(reserved))
	blocks := make([]paktype.Block, 0, blockCount)
	hasher := sha1.New()
	var compressedSize int64

	var compressed bytes.Buffer
	zw, err := zlib.NewWriterLevel(&compressed, zlib.DefaultCompression)
	if err != nil {
		return 0, sum, nil, err
	}

	buf := make([]byte, blockSize)
	remaining := size
	for remaining > 0 {
		n := int64(blockSize)
		if remaining < n {
			n = remaining
		}
		if _, err := io.ReadFull(src, buf[:n]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return 0, sum, nil, fmt.Errorf("%w: %d of %d bytes missing", paktype.ErrTruncated, remaining, size)
			}
			return 0, sum, nil, err
		}
		remaining -= n

		compressed.Reset()
		zw.Reset(&compressed)
		if _, err := zw.Write(buf[:n]); err != nil {
			return 0, sum, nil, err
		}
		if err := zw.Close(); err != nil {
			return 0, sum, nil, err
		}

		blockLen := int64(compressed.Len())
		blocks = append(blocks, paktype.Block{Start: uint64(cur), End: uint64(cur + blockLen)})
		hasher.Write(compressed.Bytes())
		if _, err := w.Write(compressed.Bytes()); err != nil {
			return 0, sum, nil, err
		}
		cur += blockLen
		compressedSize += blockLen
	}

	end, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, sum, nil, err
	}
	if _, err := w.Seek(base+4, io.SeekStart); err != nil {
		return 0, sum, nil, err
	}
	table := make([]byte, blockCount*16)
	for i, blk := range blocks {
		binary.LittleEndian.PutUint64(table[i*16:], blk.Start)
		binary.LittleEndian.PutUint64(table[i*16+8:], blk.End)
	}
	if _, err := w.Write(table); err != nil {
		return 0, sum, nil, err
	}
	if _, err := w.Seek(end, io.SeekStart); err != nil {
		return 0, sum, nil, err
	}

	copy(sum[:], hasher.Sum(nil))
	return compressedSize, sum, blocks, nil
}

// decompressBlock inflates one compression block.
func decompressBlock(raw []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("pak: decompress block: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("pak: decompress block: %w", err)
	}
	return out, nil
}

// blockSpan returns the raw on-disk bytes of one compression block.
func blockSpan(data []byte, base int64, blk paktype.Block) ([]byte, error) {
	start := base + int64(blk.Start)
	end := base + int64(blk.End)
	if start < 0 || end < start || end > int64(len(data)) {
		return nil, fmt.Errorf("%w: compression block (%d, %d] outside archive", paktype.ErrFormat, start, end)
	}
	return data[start:end], nil
}

// Read serves the logical window [off, off+size) of the record's
// uncompressed content from the mapped archive. Encrypted entries
// and unknown methods fail with ErrNotSupported. Reads past
// end-of-content are clamped.
func Read(data []byte, rec *paktype.Record, v paktype.Version, off, size int64) ([]byte, error) {
	if rec.Encrypted {
		return nil, fmt.Errorf("%w: %s: decryption", paktype.ErrNotSupported, rec.Filename)
	}

	switch rec.Method {
	case paktype.CompressionNone:
		if off >= rec.UncompressedSize {
			return nil, nil
		}
		if limit := rec.UncompressedSize - off; size > limit {
			size = limit
		}
		start := rec.DataOffset(v) + off
		if start < 0 || start+size > int64(len(data)) {
			return nil, fmt.Errorf("%w: %s: content outside archive", paktype.ErrFormat, rec.Filename)
		}
		return data[start : start+size], nil

	case paktype.CompressionZlib:
		if rec.BlockSize == 0 || len(rec.Blocks) == 0 {
			return nil, fmt.Errorf("%w: %s: compressed record without block table", paktype.ErrFormat, rec.Filename)
		}
		if off >= rec.UncompressedSize {
			return nil, nil
		}
		if limit := rec.UncompressedSize - off; size > limit {
			size = limit
		}
		end := off + size
		base := v.BlockBase(rec.Offset)
		blockSize := int64(rec.BlockSize)

		startBlock := off / blockSize
		endBlock := (end - 1) / blockSize
		if endBlock >= int64(len(rec.Blocks)) {
			endBlock = int64(len(rec.Blocks)) - 1
		}

		out := make([]byte, 0, size)
		cur := startBlock * blockSize
		for _, blk := range rec.Blocks[startBlock : endBlock+1] {
			raw, err := blockSpan(data, base, blk)
			if err != nil {
				return nil, err
			}
			plain, err := decompressBlock(raw)
			if err != nil {
				return nil, err
			}
			next := cur + int64(len(plain))

			lo, hi := int64(0), int64(len(plain))
			if cur < off {
				lo = off - cur
			}
			if next > end {
				hi = end - cur
			}
			if lo < hi {
				out = append(out, plain[lo:hi]...)
			}
			cur = next
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: %s: compression method %s", paktype.ErrNotSupported, rec.Filename, rec.Method)
	}
}

// Extract streams the record's full uncompressed content to w,
// decompressing blocks strictly in file order without buffering the
// whole entry.
func Extract(w io.Writer, data []byte, rec *paktype.Record, v paktype.Version) error {
	if rec.Encrypted {
		return fmt.Errorf("%w: %s: decryption", paktype.ErrNotSupported, rec.Filename)
	}

	switch rec.Method {
	case paktype.CompressionNone:
		start := rec.DataOffset(v)
		end := start + rec.UncompressedSize
		if start < 0 || end > int64(len(data)) {
			return fmt.Errorf("%w: %s: content outside archive", paktype.ErrFormat, rec.Filename)
		}
		_, err := w.Write(data[start:end])
		return err

	case paktype.CompressionZlib:
		base := v.BlockBase(rec.Offset)
		for _, blk := range rec.Blocks {
			raw, err := blockSpan(data, base, blk)
			if err != nil {
				return err
			}
			zr, err := zlib.NewReader(bytes.NewReader(raw))
			if err != nil {
				return fmt.Errorf("pak: decompress %s: %w", rec.Filename, err)
			}
			if _, err := io.Copy(w, zr); err != nil {
				zr.Close()
				return fmt.Errorf("pak: decompress %s: %w", rec.Filename, err)
			}
			if err := zr.Close(); err != nil {
				return fmt.Errorf("pak: decompress %s: %w", rec.Filename, err)
			}
		}
		return nil

	default:
		return fmt.Errorf("%w: %s: compression method %s", paktype.ErrNotSupported, rec.Filename, rec.Method)
	}
}

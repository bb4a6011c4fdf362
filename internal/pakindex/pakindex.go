// Package pakindex parses and serializes the trailing pak index: the
// 44-byte footer, the mount point, and the ordered record list. The
// serialized index is checksummed as a unit with SHA-1.
package pakindex

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/meigma/pak/internal/paktype"
	"github.com/meigma/pak/internal/pakwire"
)

// Options configures parsing.
type Options struct {
	// IgnoreMagic skips footer magic validation.
	IgnoreMagic bool

	// ForceVersion overrides the footer's version field when nonzero.
	// Used by operators on archives with mislabeled footers.
	ForceVersion paktype.Version
}

// Parsed is the decoded index of an archive.
type Parsed struct {
	Version      paktype.Version
	IndexOffset  int64
	IndexSize    int64
	FooterOffset int64
	Checksum     [20]byte
	MountPoint   string
	Records      []paktype.Record
}

// Parse reads the footer and index from the archive bytes. The full
// file contents are passed in (the archive is served from a whole-
// file mapping after load).
func Parse(data []byte, opts Options) (*Parsed, error) {
	return ParseFile(bytes.NewReader(data), int64(len(data)), opts)
}

// ParseFile reads the footer and index through r without touching the
// rest of the file. The repack path uses this so no mapping of the
// file exists while it is being rewritten.
func ParseFile(r io.ReaderAt, size int64, opts Options) (*Parsed, error) {
	if size < pakwire.FooterSize {
		return nil, fmt.Errorf("%w: file smaller than footer", paktype.ErrFormat)
	}
	footerOffset := size - pakwire.FooterSize
	fbuf := make([]byte, pakwire.FooterSize)
	if _, err := r.ReadAt(fbuf, footerOffset); err != nil {
		return nil, err
	}
	footer, err := pakwire.DecodeFooter(fbuf)
	if err != nil {
		return nil, err
	}
	if !opts.IgnoreMagic && footer.Magic != pakwire.Magic {
		return nil, fmt.Errorf("%w: illegal file magic 0x%08x", paktype.ErrFormat, footer.Magic)
	}

	version := footer.Version
	if opts.ForceVersion != 0 {
		version = opts.ForceVersion
	}
	if !version.Supported() {
		return nil, fmt.Errorf("%w: unsupported version %d", paktype.ErrFormat, version)
	}

	indexOffset := int64(footer.IndexOffset)
	indexSize := int64(footer.IndexSize)
	if indexOffset < 0 || indexSize < 0 || indexOffset+indexSize > footerOffset {
		return nil, fmt.Errorf("%w: illegal index offset/size", paktype.ErrFormat)
	}

	p := &Parsed{
		Version:      version,
		IndexOffset:  indexOffset,
		IndexSize:    indexSize,
		FooterOffset: footerOffset,
		Checksum:     footer.Checksum,
	}

	// Decode against everything up to the footer so that an index
	// overrunning its declared size is caught by the cursor check,
	// not a slice bound.
	buf := make([]byte, footerOffset-indexOffset)
	if _, err := r.ReadAt(buf, indexOffset); err != nil {
		return nil, err
	}
	cur := 0

	mount, n, err := pakwire.DecodePath(buf)
	if err != nil {
		return nil, err
	}
	p.MountPoint = mount
	cur += n

	if len(buf)-cur < 4 {
		return nil, fmt.Errorf("%w: index bleeds into footer", paktype.ErrFormat)
	}
	count := binary.LittleEndian.Uint32(buf[cur:])
	cur += 4

	p.Records = make([]paktype.Record, 0, count)
	for i := uint32(0); i < count; i++ {
		filename, n, err := pakwire.DecodePath(buf[cur:])
		if err != nil {
			return nil, fmt.Errorf("%w: index bleeds into footer", paktype.ErrFormat)
		}
		cur += n

		rec, n, err := pakwire.DecodeRecord(buf[cur:], version, filename)
		if err != nil {
			return nil, err
		}
		cur += n
		if int64(cur) > footerOffset-indexOffset {
			return nil, fmt.Errorf("%w: index bleeds into footer", paktype.ErrFormat)
		}
		p.Records = append(p.Records, rec)
	}

	return p, nil
}

// Size returns the serialized index size for the given mount point
// and records, used by the repack planner to place the index before
// any byte is written.
func Size(version paktype.Version, mountPoint string, records []paktype.Record) int64 {
	size := pakwire.PathWireSize(mountPoint) + 4
	for i := range records {
		size += records[i].IndexSize(version)
	}
	return size
}

// Write serializes the index and footer at the writer's current
// position, accumulating a SHA-1 over every index byte written and
// embedding it in the footer.
func Write(w io.Writer, version paktype.Version, mountPoint string, records []paktype.Record, indexOffset int64) error {
	hasher := sha1.New()
	out := io.MultiWriter(w, hasher)

	var indexSize int64
	header := pakwire.AppendPath(nil, mountPoint)
	header = binary.LittleEndian.AppendUint32(header, uint32(len(records)))
	if _, err := out.Write(header); err != nil {
		return err
	}
	indexSize += int64(len(header))

	for i := range records {
		entry := pakwire.AppendPath(nil, records[i].Filename)
		entry = pakwire.AppendRecord(entry, &records[i], version)
		if _, err := out.Write(entry); err != nil {
			return err
		}
		indexSize += int64(len(entry))
	}

	var sum [20]byte
	copy(sum[:], hasher.Sum(nil))
	footer := pakwire.AppendFooter(nil, pakwire.Footer{
		Magic:       pakwire.Magic,
		Version:     version,
		IndexOffset: uint64(indexOffset),
		IndexSize:   uint64(indexSize),
		Checksum:    sum,
	})
	_, err := w.Write(footer)
	return err
}

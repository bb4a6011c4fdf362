package repack

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/meigma/pak/internal/blockio"
	"github.com/meigma/pak/internal/pakindex"
	"github.com/meigma/pak/internal/paktype"
	"github.com/meigma/pak/internal/pakwire"
	"github.com/meigma/pak/internal/platform"
)

// copyChunk is the transfer unit for in-file moves and the safety
// margin for the free-space admission check.
const copyChunk = 1 << 16

// allocation is one planned placement: either an existing record
// keeping or shifting its span, or new content streamed in from a
// host file.
type allocation struct {
	target int64
	source int64 // original offset, UnassignedOffset for new content
	size   int64
	rec    *paktype.Record
	host   string
}

// Plan is a complete relayout of an archive. Records is the final
// index in filename order with every offset assigned; nothing is
// written until Commit.
type Plan struct {
	Version     paktype.Version
	MountPoint  string
	Records     []paktype.Record
	IndexOffset int64
	IndexSize   int64
	FileSize    int64

	allocs []allocation
}

// NewPlan computes the relayout for the tree's current file set.
//
// Existing records act as fixed anchors in ascending original-offset
// order. New records, largest first, are placed into the gap before
// each anchor only when they fit entirely below the anchor's original
// offset, so no existing record is ever pushed toward the end of the
// file: every record's new offset is at or below its old one.
// Leftover new records go after the last anchor in filename order.
func NewPlan(version paktype.Version, mountPoint string, tree *Dir) (*Plan, error) {
	if !version.Writable() {
		return nil, fmt.Errorf("%w: cannot rewrite version %d", paktype.ErrNotSupported, version)
	}

	files := tree.Files()
	sort.Slice(files, func(i, j int) bool {
		return files[i].Record.Filename < files[j].Record.Filename
	})

	p := &Plan{
		Version:    version,
		MountPoint: mountPoint,
		Records:    make([]paktype.Record, len(files)),
	}
	hosts := make([]string, len(files))
	for i, f := range files {
		p.Records[i] = f.Record
		hosts[i] = f.HostPath
	}

	var existing, fresh []int
	for i := range p.Records {
		if p.Records[i].Offset == paktype.UnassignedOffset {
			if p.Records[i].Method != paktype.CompressionNone {
				return nil, fmt.Errorf("%w: compressed insertion: %s", paktype.ErrNotSupported, p.Records[i].Filename)
			}
			fresh = append(fresh, i)
		} else {
			existing = append(existing, i)
		}
	}
	sort.Slice(existing, func(i, j int) bool {
		return p.Records[existing[i]].Offset < p.Records[existing[j]].Offset
	})
	sort.Slice(fresh, func(i, j int) bool {
		a, b := &p.Records[fresh[i]], &p.Records[fresh[j]]
		if as, bs := a.AllocSize(version), b.AllocSize(version); as != bs {
			return as > bs
		}
		return a.Filename < b.Filename
	})

	place := func(idx int, target, source int64) {
		rec := &p.Records[idx]
		size := rec.AllocSize(version)
		p.allocs = append(p.allocs, allocation{
			target: target,
			source: source,
			size:   size,
			rec:    rec,
			host:   hosts[idx],
		})
		rec.Offset = target
	}

	var cursor int64
	for _, ei := range existing {
		old := p.Records[ei].Offset
		i := 0
		for i < len(fresh) && cursor < old {
			ni := fresh[i]
			size := p.Records[ni].AllocSize(version)
			if cursor+size <= old {
				place(ni, cursor, paktype.UnassignedOffset)
				cursor += size
				fresh = append(fresh[:i], fresh[i+1:]...)
			} else {
				i++
			}
		}
		place(ei, cursor, old)
		cursor += p.Records[ei].AllocSize(version)
	}

	sort.Slice(fresh, func(i, j int) bool {
		return p.Records[fresh[i]].Filename < p.Records[fresh[j]].Filename
	})
	for _, ni := range fresh {
		size := p.Records[ni].AllocSize(version)
		place(ni, cursor, paktype.UnassignedOffset)
		cursor += size
	}

	p.IndexOffset = cursor
	p.IndexSize = pakindex.Size(version, mountPoint, p.Records)
	p.FileSize = p.IndexOffset + p.IndexSize + pakwire.FooterSize
	return p, nil
}

// CheckSpace fails the plan when growth would come close to
// exhausting the filesystem holding dir. Advisory only: a platform
// without a free-space query skips the check, and passing it is no
// write guarantee.
func (p *Plan) CheckSpace(dir string, currentSize int64) error {
	grow := p.FileSize - currentSize
	if grow <= 0 {
		return nil
	}
	free, err := platform.FreeSpace(dir)
	if err != nil || free < 0 {
		return nil
	}
	if free-grow < copyChunk {
		return fmt.Errorf("%w: need %d more bytes, %d free", paktype.ErrInsufficientSpace, grow, free)
	}
	return nil
}

// Commit rewrites the archive in place according to the plan. An
// error mid-commit leaves the file partially rewritten with no undo;
// callers must treat any Commit error as unrecoverable corruption of
// the archive.
//
// Allocations are processed in ascending target order. Every target
// lies at or below its own source and entirely below the original
// span of every allocation after it, so each write covers only bytes
// that are free or already consumed.
func (p *Plan) Commit(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	currentSize := info.Size()

	for _, a := range p.allocs {
		switch {
		case a.source == paktype.UnassignedOffset:
			if err := p.writeFresh(f, a); err != nil {
				return err
			}
		case a.source != a.target:
			if err := fshift(f, a.source, a.target, a.size); err != nil {
				return err
			}
		}
	}

	if _, err := f.Seek(p.IndexOffset, io.SeekStart); err != nil {
		return err
	}
	if err := pakindex.Write(f, p.Version, p.MountPoint, p.Records, p.IndexOffset); err != nil {
		return err
	}
	if p.FileSize < currentSize {
		return f.Truncate(p.FileSize)
	}
	return nil
}

// writeFresh streams one new record from its host file to its
// planned offset, patching size and checksum into the staged header
// once the content has been consumed.
func (p *Plan) writeFresh(f *os.File, a allocation) error {
	src, err := os.Open(a.host)
	if err != nil {
		return err
	}
	defer src.Close()

	if _, err := f.Seek(a.target, io.SeekStart); err != nil {
		return err
	}
	staged, err := pakwire.BeginRecord(f, p.Version, a.rec)
	if err != nil {
		return err
	}
	sum, err := blockio.WritePlain(f, src, a.rec.UncompressedSize)
	if err != nil {
		return err
	}
	if err := staged.Finish(f, a.rec.UncompressedSize, sum); err != nil {
		return err
	}
	a.rec.CompressedSize = a.rec.UncompressedSize
	a.rec.Checksum = sum
	return nil
}

// fshift moves a record's span from src down to dst. The destination
// is always below the source, so copying low addresses first means
// every write lands on bytes the copy has already read, even when
// the two ranges overlap.
func fshift(f *os.File, src, dst, size int64) error {
	buf := make([]byte, copyChunk)
	for done := int64(0); done < size; {
		n := size - done
		if n > copyChunk {
			n = copyChunk
		}
		if _, err := f.ReadAt(buf[:n], src+done); err != nil {
			return err
		}
		if _, err := f.WriteAt(buf[:n], dst+done); err != nil {
			return err
		}
		done += n
	}
	return nil
}

package pak

import (
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/meigma/pak/internal/blockio"
	"github.com/meigma/pak/internal/fragment"
	"github.com/meigma/pak/internal/pakindex"
	"github.com/meigma/pak/internal/paktype"
	"github.com/meigma/pak/internal/pakwire"
	"github.com/meigma/pak/internal/platform"
)

// Interface compliance.
var (
	_ fs.FS         = (*Archive)(nil)
	_ fs.StatFS     = (*Archive)(nil)
	_ fs.ReadFileFS = (*Archive)(nil)
	_ fs.ReadDirFS  = (*Archive)(nil)
)

// Archive is a loaded pak file.
//
// The whole file is memory mapped at Open and every read is served
// from that mapping, so an Archive is safe for concurrent reads. The
// parsed metadata and the mapping are immutable until Close; no
// writer may touch the file while the Archive is open.
type Archive struct {
	f      *os.File
	data   []byte
	parsed *pakindex.Parsed

	// names holds every entry as a sorted slash path for the fs.FS
	// surface; byName maps those paths back to their records.
	names  []string
	byName map[string]*paktype.Record

	logger *slog.Logger
}

type openConfig struct {
	ignoreMagic  bool
	forceVersion Version
	logger       *slog.Logger
}

// OpenOption configures Open.
type OpenOption func(*openConfig)

// WithIgnoreMagic skips footer magic validation, for archives with a
// deliberately scrambled magic.
func WithIgnoreMagic() OpenOption {
	return func(c *openConfig) {
		c.ignoreMagic = true
	}
}

// WithForceVersion overrides the schema version stored in the footer,
// for archives with a mislabeled footer.
func WithForceVersion(v Version) OpenOption {
	return func(c *openConfig) {
		c.forceVersion = v
	}
}

// WithLogger sets the logger for archive operations. Logging is
// disabled when nil.
func WithLogger(logger *slog.Logger) OpenOption {
	return func(c *openConfig) {
		c.logger = logger
	}
}

// Open loads the archive at path: maps the file, parses the footer
// and index, and builds the path lookup tables.
func Open(name string, opts ...OpenOption) (*Archive, error) {
	var cfg openConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	data, err := platform.Mmap(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	parsed, err := pakindex.Parse(data, pakindex.Options{
		IgnoreMagic:  cfg.ignoreMagic,
		ForceVersion: cfg.forceVersion,
	})
	if err != nil {
		platform.Munmap(data)
		f.Close()
		return nil, err
	}

	a := &Archive{
		f:      f,
		data:   data,
		parsed: parsed,
		names:  make([]string, 0, len(parsed.Records)),
		byName: make(map[string]*paktype.Record, len(parsed.Records)),
		logger: cfg.logger,
	}
	for i := range parsed.Records {
		rec := &parsed.Records[i]
		slash := filepath.ToSlash(rec.Filename)
		a.names = append(a.names, slash)
		a.byName[slash] = rec
	}
	sort.Strings(a.names)

	a.log().Debug("archive opened",
		"path", name,
		"version", uint32(parsed.Version),
		"files", len(parsed.Records),
		"mount_point", parsed.MountPoint)
	return a, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (a *Archive) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return a.logger
}

// Close unmaps the file and releases the handle.
func (a *Archive) Close() error {
	err := platform.Munmap(a.data)
	a.data = nil
	if cerr := a.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// Version returns the archive schema version.
func (a *Archive) Version() Version { return a.parsed.Version }

// MountPoint returns the stored mount point prefix.
func (a *Archive) MountPoint() string { return a.parsed.MountPoint }

// Len returns the number of entries.
func (a *Archive) Len() int { return len(a.parsed.Records) }

// Size returns the archive file size in bytes.
func (a *Archive) Size() int64 { return int64(len(a.data)) }

// Records returns the parsed records in index order. The returned
// slice is shared with the Archive and must be treated as read-only.
func (a *Archive) Records() []Record { return a.parsed.Records }

// Record returns the record for the given slash-separated path.
//
// The returned record is only valid while the Archive remains alive.
func (a *Archive) Record(name string) (*Record, bool) {
	rec, ok := a.byName[name]
	return rec, ok
}

// ReadRecord returns up to size bytes of the record's content
// starting at off, decompressing only the blocks the window touches.
// Reads past the end are clamped.
func (a *Archive) ReadRecord(rec *Record, off, size int64) ([]byte, error) {
	return blockio.Read(a.data, rec, a.parsed.Version, off, size)
}

// ExtractRecord streams the record's full content to w, block by
// block in file order, without buffering the whole entry.
func (a *Archive) ExtractRecord(w io.Writer, rec *Record) error {
	return blockio.Extract(w, a.data, rec, a.parsed.Version)
}

// Fragments returns the map of used byte ranges: every record's
// allocated span plus the index and footer, each as its own span so
// slack between index end and footer counts as free. Invert it for
// the gaps; a gap-free archive has Free() == 0.
func (a *Archive) Fragments() (*FragMap, error) {
	m := fragment.New(int64(len(a.data)))
	for i := range a.parsed.Records {
		rec := &a.parsed.Records[i]
		end := rec.Offset + rec.AllocSize(a.parsed.Version)
		if err := m.Add(rec.Offset, end); err != nil {
			return nil, err
		}
	}
	if err := m.Add(a.parsed.IndexOffset, a.parsed.IndexOffset+a.parsed.IndexSize); err != nil {
		return nil, err
	}
	if err := m.Add(a.parsed.FooterOffset, a.parsed.FooterOffset+pakwire.FooterSize); err != nil {
		return nil, err
	}
	return m, nil
}

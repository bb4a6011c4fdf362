package pak

import (
	"io"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/meigma/pak/internal/paktype"
)

// Open implements fs.FS.
//
// Open returns an fs.File reading the named entry's decompressed
// content. Directories are synthesized from entry paths; the format
// does not store them explicitly.
func (a *Archive) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	if rec, ok := a.byName[name]; ok {
		return &pakFile{a: a, rec: rec, name: name}, nil
	}
	if a.isDir(name) {
		return &openDir{a: a, name: name}, nil
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// Stat implements fs.StatFS.
func (a *Archive) Stat(name string) (fs.FileInfo, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrInvalid}
	}
	if rec, ok := a.byName[name]; ok {
		return &fileInfo{name: base(name), rec: rec}, nil
	}
	if a.isDir(name) {
		return &dirInfo{name: base(name)}, nil
	}
	return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
}

// ReadFile implements fs.ReadFileFS.
//
// ReadFile returns the entry's entire decompressed content.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: fs.ErrInvalid}
	}
	rec, ok := a.byName[name]
	if !ok {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: fs.ErrNotExist}
	}
	return a.ReadRecord(rec, 0, rec.UncompressedSize)
}

// ReadDir implements fs.ReadDirFS.
//
// ReadDir returns the named directory's entries sorted by name,
// synthesizing subdirectory entries from nested paths.
func (a *Archive) ReadDir(name string) ([]fs.DirEntry, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	entries := a.children(name)
	if len(entries) == 0 && name != "." {
		if !a.isDir(name) {
			return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
		}
	}
	return entries, nil
}

// isDir reports whether name has entries under it.
func (a *Archive) isDir(name string) bool {
	if name == "." {
		return true
	}
	prefix := name + "/"
	i := sort.SearchStrings(a.names, prefix)
	return i < len(a.names) && strings.HasPrefix(a.names[i], prefix)
}

// children lists the immediate entries under name, one per distinct
// first path segment. The names slice is sorted, so duplicates of a
// subdirectory segment are adjacent and collapse in one pass.
func (a *Archive) children(name string) []fs.DirEntry {
	prefix := ""
	if name != "." {
		prefix = name + "/"
	}

	var entries []fs.DirEntry
	last := ""
	i := sort.SearchStrings(a.names, prefix)
	for ; i < len(a.names); i++ {
		full := a.names[i]
		if !strings.HasPrefix(full, prefix) {
			break
		}
		rest := full[len(prefix):]
		child, nested := rest, false
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			child, nested = rest[:j], true
		}
		if child == last {
			continue
		}
		last = child

		if nested {
			entries = append(entries, dirEntry{&dirInfo{name: child}})
		} else {
			entries = append(entries, dirEntry{&fileInfo{name: child, rec: a.byName[full]}})
		}
	}
	return entries
}

func base(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// pakFile serves one entry's decompressed content, with random
// access for both raw and block-compressed records.
type pakFile struct {
	a    *Archive
	rec  *paktype.Record
	name string
	pos  int64
}

func (f *pakFile) Read(p []byte) (int, error) {
	if f.pos >= f.rec.UncompressedSize {
		return 0, io.EOF
	}
	b, err := f.a.ReadRecord(f.rec, f.pos, int64(len(p)))
	n := copy(p, b)
	f.pos += int64(n)
	if err != nil {
		return n, &fs.PathError{Op: "read", Path: f.name, Err: err}
	}
	return n, nil
}

func (f *pakFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, &fs.PathError{Op: "readat", Path: f.name, Err: fs.ErrInvalid}
	}
	if off >= f.rec.UncompressedSize {
		return 0, io.EOF
	}
	b, err := f.a.ReadRecord(f.rec, off, int64(len(p)))
	n := copy(p, b)
	if err != nil {
		return n, &fs.PathError{Op: "readat", Path: f.name, Err: err}
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *pakFile) Stat() (fs.FileInfo, error) {
	return &fileInfo{name: base(f.name), rec: f.rec}, nil
}

func (f *pakFile) Close() error { return nil }

// openDir implements fs.ReadDirFile for synthesized directories.
type openDir struct {
	a       *Archive
	name    string
	entries []fs.DirEntry
	pos     int
}

func (d *openDir) Read(_ []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name, Err: fs.ErrInvalid}
}

func (d *openDir) Stat() (fs.FileInfo, error) {
	return &dirInfo{name: base(d.name)}, nil
}

func (d *openDir) Close() error { return nil }

func (d *openDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if d.entries == nil {
		d.entries = d.a.children(d.name)
	}
	if n <= 0 {
		out := d.entries[d.pos:]
		d.pos = len(d.entries)
		return out, nil
	}
	if d.pos >= len(d.entries) {
		return nil, io.EOF
	}
	end := d.pos + n
	if end > len(d.entries) {
		end = len(d.entries)
	}
	out := d.entries[d.pos:end]
	d.pos = end
	return out, nil
}

type fileInfo struct {
	name string
	rec  *paktype.Record
}

func (i *fileInfo) Name() string       { return i.name }
func (i *fileInfo) Size() int64        { return i.rec.UncompressedSize }
func (i *fileInfo) Mode() fs.FileMode  { return 0o444 }
func (i *fileInfo) ModTime() time.Time { return time.Time{} }
func (i *fileInfo) IsDir() bool        { return false }
func (i *fileInfo) Sys() any           { return i.rec }

type dirInfo struct {
	name string
}

func (i *dirInfo) Name() string       { return i.name }
func (i *dirInfo) Size() int64        { return 0 }
func (i *dirInfo) Mode() fs.FileMode  { return fs.ModeDir | 0o555 }
func (i *dirInfo) ModTime() time.Time { return time.Time{} }
func (i *dirInfo) IsDir() bool        { return true }
func (i *dirInfo) Sys() any           { return nil }

type dirEntry struct {
	info fs.FileInfo
}

func (e dirEntry) Name() string               { return e.info.Name() }
func (e dirEntry) IsDir() bool                { return e.info.IsDir() }
func (e dirEntry) Type() fs.FileMode          { return e.info.Mode().Type() }
func (e dirEntry) Info() (fs.FileInfo, error) { return e.info, nil }

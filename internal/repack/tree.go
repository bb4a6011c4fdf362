// Package repack rebuilds an archive in place: it maps the record
// list into a directory tree, applies removals and insertions,
// computes a minimal-shift relayout, and commits it. The commit is
// destructive; everything that can fail is checked before the first
// byte is written.
package repack

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/meigma/pak/internal/paktype"
)

// File is one leaf of the rebuild tree. HostPath is set for staged
// insertions and names the local file the content comes from; it is
// empty for records carried over from the existing archive.
type File struct {
	Record   paktype.Record
	HostPath string
}

// Dir is one level of the rebuild tree. Directories own their
// children; nothing in the tree points back up.
type Dir struct {
	dirs  map[string]*Dir
	files map[string]*File
}

// NewTree returns an empty rebuild tree.
func NewTree() *Dir {
	return &Dir{
		dirs:  make(map[string]*Dir),
		files: make(map[string]*File),
	}
}

// split breaks an archive path into its parent segments and leaf
// name. Paths use the host separator in memory.
func split(path string) ([]string, string) {
	segs := strings.Split(path, string(filepath.Separator))
	return segs[:len(segs)-1], segs[len(segs)-1]
}

// resolve walks to the parent directory of path, creating missing
// levels when create is set. A segment already taken by a file fails
// with a conflict either way.
func (d *Dir) resolve(path string, segs []string, create bool) (*Dir, error) {
	cur := d
	for i, seg := range segs {
		if _, taken := cur.files[seg]; taken {
			return nil, fmt.Errorf("%w: %s is not a directory", paktype.ErrConflict, strings.Join(segs[:i+1], string(filepath.Separator)))
		}
		next, ok := cur.dirs[seg]
		if !ok {
			if !create {
				return nil, fmt.Errorf("%w: file not in archive: %s", paktype.ErrConflict, path)
			}
			next = NewTree()
			cur.dirs[seg] = next
		}
		cur = next
	}
	return cur, nil
}

// Add places a record into the tree. Used both when rebuilding the
// tree from an existing archive and when staging an insertion; in
// the latter case hostPath names the content source and the record
// carries the unassigned offset sentinel. Duplicate names and
// file-as-directory collisions fail with a conflict.
func (d *Dir) Add(rec paktype.Record, hostPath string) error {
	segs, name := split(rec.Filename)
	parent, err := d.resolve(rec.Filename, segs, true)
	if err != nil {
		return err
	}
	if _, ok := parent.files[name]; ok {
		return fmt.Errorf("%w: doubled name in archive: %s", paktype.ErrConflict, rec.Filename)
	}
	if _, ok := parent.dirs[name]; ok {
		return fmt.Errorf("%w: %s is a directory", paktype.ErrConflict, rec.Filename)
	}
	parent.files[name] = &File{Record: rec, HostPath: hostPath}
	return nil
}

// Remove deletes the named leaf. Absent paths and paths resolving
// through a file fail; removal never creates directories.
func (d *Dir) Remove(path string) error {
	segs, name := split(path)
	parent, err := d.resolve(path, segs, false)
	if err != nil {
		return err
	}
	if _, ok := parent.files[name]; !ok {
		return fmt.Errorf("%w: file not in archive: %s", paktype.ErrConflict, path)
	}
	delete(parent.files, name)
	return nil
}

// Files returns every leaf in sorted preorder: at each level the
// child names are visited in lexical order, directories and files
// interleaved. The order is deterministic for a given name set.
func (d *Dir) Files() []*File {
	var out []*File
	d.appendFiles(&out)
	return out
}

func (d *Dir) appendFiles(out *[]*File) {
	names := make([]string, 0, len(d.dirs)+len(d.files))
	for name := range d.dirs {
		names = append(names, name)
	}
	for name := range d.files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if sub, ok := d.dirs[name]; ok {
			sub.appendFiles(out)
			continue
		}
		*out = append(*out, d.files[name])
	}
}

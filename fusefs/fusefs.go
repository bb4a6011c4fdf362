// Package fusefs serves a loaded archive as a read-only FUSE
// filesystem. Entry content is read straight from the archive
// mapping, decompressing only the blocks each read touches, and the
// per-entry format metadata is exposed through extended attributes.
package fusefs

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/meigma/pak"
)

// Extended attributes exposed per file entry.
const (
	XattrChecksum  = "user.pak.sha1"
	XattrSize      = "user.pak.compressed_size"
	XattrMethod    = "user.pak.compression_method"
	XattrBlockSize = "user.pak.compression_block_size"
	XattrEncrypted = "user.pak.encrypted"
)

var xattrNames = []string{
	XattrChecksum,
	XattrSize,
	XattrMethod,
	XattrBlockSize,
	XattrEncrypted,
}

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted.
	Mountpoint string

	// Archive is the loaded archive to serve. It must stay open for
	// the lifetime of the mount, and no writer may touch the backing
	// file while the mount is live.
	Archive *pak.Archive

	// AllowOther permits other users to access the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Logger receives diagnostic messages. If nil, a no-op logger
	// is used.
	Logger *slog.Logger
}

// Mount mounts the archive filesystem at the configured mountpoint.
// The caller must call Unmount on the returned Server when done. The
// mountpoint directory is created if it does not exist.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.Archive == nil {
		return nil, fmt.Errorf("archive is required")
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	root := &rootNode{options: &options}

	// The archive is immutable while mounted, so cached attributes
	// and entries never go stale.
	entryTimeout := 1 * time.Hour
	attrTimeout := 1 * time.Hour

	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout: &entryTimeout,
		AttrTimeout:  &attrTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "pak",
			Name:       "pak",
			AllowOther: options.AllowOther,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	options.Logger.Info("archive mounted",
		"mountpoint", options.Mountpoint,
		"files", options.Archive.Len())
	return server, nil
}

// rootNode is the filesystem root. The whole tree is materialized up
// front; the record set is fixed for the life of the mount.
type rootNode struct {
	gofuse.Inode
	options *Options
}

var (
	_ gofuse.InodeEmbedder = (*rootNode)(nil)
	_ gofuse.NodeOnAdder   = (*rootNode)(nil)
)

func (r *rootNode) OnAdd(ctx context.Context) {
	records := r.options.Archive.Records()
	for i := range records {
		rec := &records[i]
		r.addRecord(ctx, rec)
	}
}

func (r *rootNode) addRecord(ctx context.Context, rec *pak.Record) {
	name := path.Clean(filepath.ToSlash(rec.Filename))
	dir, base := path.Split(name)

	parent := &r.Inode
	for _, seg := range strings.Split(strings.Trim(dir, "/"), "/") {
		if seg == "" {
			continue
		}
		child := parent.GetChild(seg)
		if child == nil {
			child = parent.NewPersistentInode(ctx, &gofuse.Inode{}, gofuse.StableAttr{Mode: syscall.S_IFDIR})
			parent.AddChild(seg, child, true)
		}
		parent = child
	}

	node := &fileNode{options: r.options, rec: rec}
	parent.AddChild(base, parent.NewPersistentInode(ctx, node, gofuse.StableAttr{Mode: syscall.S_IFREG}), true)
}

// fileNode serves one archive entry.
type fileNode struct {
	gofuse.Inode
	options *Options
	rec     *pak.Record
}

var (
	_ gofuse.InodeEmbedder   = (*fileNode)(nil)
	_ gofuse.NodeGetattrer   = (*fileNode)(nil)
	_ gofuse.NodeOpener      = (*fileNode)(nil)
	_ gofuse.NodeReader      = (*fileNode)(nil)
	_ gofuse.NodeGetxattrer  = (*fileNode)(nil)
	_ gofuse.NodeListxattrer = (*fileNode)(nil)
)

func (n *fileNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = syscall.S_IFREG | 0o444
	out.Size = uint64(n.rec.UncompressedSize)
	out.Blocks = (out.Size + 511) / 512
	if n.rec.BlockSize != 0 {
		out.Blksize = n.rec.BlockSize
	} else {
		out.Blksize = 65536
	}
	return 0
}

func (n *fileNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EROFS
	}
	if n.rec.Encrypted {
		return nil, 0, syscall.EOPNOTSUPP
	}
	// Entry content is immutable, so the kernel page cache is
	// always valid.
	return nil, fuse.FOPEN_KEEP_CACHE, 0
}

func (n *fileNode) Read(ctx context.Context, f gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	b, err := n.options.Archive.ReadRecord(n.rec, off, int64(len(dest)))
	if err != nil {
		if errors.Is(err, pak.ErrNotSupported) {
			return nil, syscall.EOPNOTSUPP
		}
		n.options.Logger.Error("read failed",
			"file", n.rec.Filename,
			"offset", off,
			"error", err)
		return nil, syscall.EIO
	}
	return fuse.ReadResultData(b), 0
}

func (n *fileNode) Getxattr(ctx context.Context, attr string, dest []byte) (uint32, syscall.Errno) {
	var value string
	switch attr {
	case XattrChecksum:
		value = hex.EncodeToString(n.rec.Checksum[:])
	case XattrSize:
		value = strconv.FormatInt(n.rec.CompressedSize, 10)
	case XattrMethod:
		value = n.rec.Method.String()
	case XattrBlockSize:
		value = strconv.FormatUint(uint64(n.rec.BlockSize), 10)
	case XattrEncrypted:
		if n.rec.Encrypted {
			value = "1"
		} else {
			value = "0"
		}
	default:
		return 0, syscall.ENODATA
	}
	if len(dest) < len(value) {
		return uint32(len(value)), syscall.ERANGE
	}
	return uint32(copy(dest, value)), 0
}

func (n *fileNode) Listxattr(ctx context.Context, dest []byte) (uint32, syscall.Errno) {
	var size int
	for _, name := range xattrNames {
		size += len(name) + 1
	}
	if len(dest) < size {
		return uint32(size), syscall.ERANGE
	}
	pos := 0
	for _, name := range xattrNames {
		pos += copy(dest[pos:], name)
		dest[pos] = 0
		pos++
	}
	return uint32(pos), 0
}

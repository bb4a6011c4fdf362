package pak

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/meigma/pak/internal/blockio"
	"github.com/meigma/pak/internal/pakindex"
	"github.com/meigma/pak/internal/paktype"
	"github.com/meigma/pak/internal/pakwire"
)

// DefaultMountPoint is written when no mount point is configured.
const DefaultMountPoint = "../../../"

type packConfig struct {
	version    Version
	mountPoint string
	method     Compression
	blockSize  uint32
	logger     *slog.Logger
}

// PackOption configures Pack.
type PackOption func(*packConfig)

// PackWithVersion selects the schema version to author. Versions 1,
// 2, and 3 can be written; the default is 3.
func PackWithVersion(v Version) PackOption {
	return func(c *packConfig) {
		c.version = v
	}
}

// PackWithMountPoint sets the stored mount point prefix.
func PackWithMountPoint(mountPoint string) PackOption {
	return func(c *packConfig) {
		c.mountPoint = mountPoint
	}
}

// PackWithCompression selects the compression method for all packed
// entries. Zlib requires version 3, which carries the block table.
func PackWithCompression(method Compression) PackOption {
	return func(c *packConfig) {
		c.method = method
	}
}

// PackWithBlockSize sets the compression block size. Zero selects
// the default of 64 KiB.
func PackWithBlockSize(size uint32) PackOption {
	return func(c *packConfig) {
		c.blockSize = size
	}
}

// PackWithLogger sets the logger for the pack run.
func PackWithLogger(logger *slog.Logger) PackOption {
	return func(c *packConfig) {
		c.logger = logger
	}
}

// Pack creates the archive at name from the given files and
// directories. Directories are expanded recursively; the archive
// names are the given paths, sorted. Content is streamed through a
// staged header write, so nothing is buffered beyond one block.
func Pack(name string, inputs []string, opts ...PackOption) error {
	cfg := packConfig{
		version:    3,
		mountPoint: DefaultMountPoint,
		method:     CompressionNone,
		blockSize:  blockio.DefaultBlockSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if !cfg.version.Writable() {
		return fmt.Errorf("%w: cannot write version %d", ErrNotSupported, cfg.version)
	}
	switch cfg.method {
	case CompressionNone:
	case CompressionZlib:
		if cfg.version != 3 {
			return fmt.Errorf("%w: zlib requires version 3, not %d", ErrNotSupported, cfg.version)
		}
	default:
		return fmt.Errorf("%w: cannot write compression method %s", ErrNotSupported, cfg.method)
	}
	if cfg.blockSize == 0 {
		cfg.blockSize = blockio.DefaultBlockSize
	}

	files, err := expandInputs(inputs)
	if err != nil {
		return err
	}
	sort.Strings(files)

	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()

	records := make([]paktype.Record, 0, len(files))
	for _, p := range files {
		rec, err := packFile(f, cfg, p)
		if err != nil {
			return fmt.Errorf("pack %s: %w", p, err)
		}
		logger.Debug("packed", "file", p, "size", rec.UncompressedSize, "stored", rec.CompressedSize)
		records = append(records, rec)
	}

	indexOffset, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if err := pakindex.Write(f, cfg.version, cfg.mountPoint, records, indexOffset); err != nil {
		return err
	}
	logger.Info("archive packed",
		"path", name,
		"version", uint32(cfg.version),
		"files", len(records),
		"index_offset", indexOffset)
	return f.Close()
}

// expandInputs flattens files and directory trees into one file
// list. The paths double as archive names.
func expandInputs(inputs []string) ([]string, error) {
	var files []string
	for _, input := range inputs {
		info, err := os.Stat(input)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, filepath.Clean(input))
			continue
		}
		err = filepath.WalkDir(input, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				files = append(files, filepath.Clean(p))
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

// packFile streams one file into the archive at the current cursor
// and returns its finished record.
func packFile(f *os.File, cfg packConfig, p string) (paktype.Record, error) {
	src, err := os.Open(p)
	if err != nil {
		return paktype.Record{}, err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return paktype.Record{}, err
	}

	rec := paktype.Record{
		Filename:         p,
		UncompressedSize: info.Size(),
		Method:           cfg.method,
	}
	if cfg.version == 1 {
		rec.Timestamp = uint64(info.ModTime().Unix())
	}
	if cfg.method == CompressionZlib {
		rec.BlockSize = cfg.blockSize
	}

	offset, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return paktype.Record{}, err
	}
	staged, err := pakwire.BeginRecord(f, cfg.version, &rec)
	if err != nil {
		return paktype.Record{}, err
	}

	if cfg.method == CompressionZlib {
		csize, sum, blocks, err := blockio.WriteBlocks(f, src, rec.UncompressedSize, cfg.blockSize)
		if err != nil {
			return paktype.Record{}, err
		}
		rec.CompressedSize = csize
		rec.Checksum = sum
		rec.Blocks = blocks
		if err := staged.Finish(f, csize, sum); err != nil {
			return paktype.Record{}, err
		}
	} else {
		sum, err := blockio.WritePlain(f, src, rec.UncompressedSize)
		if err != nil {
			return paktype.Record{}, err
		}
		rec.CompressedSize = rec.UncompressedSize
		rec.Checksum = sum
		if err := staged.Finish(f, rec.CompressedSize, sum); err != nil {
			return paktype.Record{}, err
		}
	}

	rec.Offset = offset
	return rec, nil
}

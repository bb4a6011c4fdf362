package pak

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/meigma/pak/internal/pakindex"
	"github.com/meigma/pak/internal/paktype"
	"github.com/meigma/pak/internal/repack"
)

type updateConfig struct {
	inserts      []string
	removes      []string
	mountPoint   *string
	ignoreMagic  bool
	forceVersion Version
	logger       *slog.Logger
}

// UpdateOption configures Update.
type UpdateOption func(*updateConfig)

// UpdateWithInsert adds files or directory trees to the archive. The
// paths double as archive names; inserting over an existing name
// fails, remove it first.
func UpdateWithInsert(paths ...string) UpdateOption {
	return func(c *updateConfig) {
		c.inserts = append(c.inserts, paths...)
	}
}

// UpdateWithRemove deletes the named entries from the archive.
func UpdateWithRemove(names ...string) UpdateOption {
	return func(c *updateConfig) {
		c.removes = append(c.removes, names...)
	}
}

// UpdateWithMountPoint replaces the stored mount point. The existing
// one is kept by default.
func UpdateWithMountPoint(mountPoint string) UpdateOption {
	return func(c *updateConfig) {
		c.mountPoint = &mountPoint
	}
}

// UpdateWithIgnoreMagic skips footer magic validation.
func UpdateWithIgnoreMagic() UpdateOption {
	return func(c *updateConfig) {
		c.ignoreMagic = true
	}
}

// UpdateWithForceVersion overrides the footer's schema version.
func UpdateWithForceVersion(v Version) UpdateOption {
	return func(c *updateConfig) {
		c.forceVersion = v
	}
}

// UpdateWithLogger sets the logger for the update run.
func UpdateWithLogger(logger *slog.Logger) UpdateOption {
	return func(c *updateConfig) {
		c.logger = logger
	}
}

// Update rewrites the archive at name in place: removals first, then
// insertions, relaid out with minimal shifting. Everything that can
// be validated happens before the first destructive write; an error
// after writing begins leaves the archive corrupted with no undo, so
// callers wanting a safety net must copy the file first.
//
// Inserted entries are stored uncompressed. Update must not run
// while any mapping of the archive is live.
func Update(name string, opts ...UpdateOption) error {
	var cfg updateConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	f, err := os.OpenFile(name, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()

	parsed, err := pakindex.ParseFile(f, size, pakindex.Options{
		IgnoreMagic:  cfg.ignoreMagic,
		ForceVersion: cfg.forceVersion,
	})
	if err != nil {
		return err
	}

	tree := repack.NewTree()
	for i := range parsed.Records {
		if err := tree.Add(parsed.Records[i], ""); err != nil {
			return err
		}
	}
	for _, r := range cfg.removes {
		if err := tree.Remove(filepath.Clean(r)); err != nil {
			return err
		}
	}

	files, err := expandInputs(cfg.inserts)
	if err != nil {
		return err
	}
	for _, p := range files {
		st, err := os.Stat(p)
		if err != nil {
			return err
		}
		rec := paktype.Record{
			Filename:         p,
			Offset:           paktype.UnassignedOffset,
			CompressedSize:   st.Size(),
			UncompressedSize: st.Size(),
			Method:           paktype.CompressionNone,
		}
		if parsed.Version == 1 {
			rec.Timestamp = uint64(st.ModTime().Unix())
		}
		if err := tree.Add(rec, p); err != nil {
			return err
		}
	}

	mountPoint := parsed.MountPoint
	if cfg.mountPoint != nil {
		mountPoint = *cfg.mountPoint
	}

	plan, err := repack.NewPlan(parsed.Version, mountPoint, tree)
	if err != nil {
		return err
	}
	if err := plan.CheckSpace(filepath.Dir(name), size); err != nil {
		return err
	}
	if err := plan.Commit(f); err != nil {
		return err
	}

	logger.Info("archive updated",
		"path", name,
		"files", len(plan.Records),
		"removed", len(cfg.removes),
		"inserted", len(files),
		"size", plan.FileSize)
	return f.Close()
}

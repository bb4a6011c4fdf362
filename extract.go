package pak

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/pak/internal/paktype"
	"github.com/meigma/pak/internal/platform"
)

type unpackConfig struct {
	paths    []string
	workers  int
	progress func(name string)
	logger   *slog.Logger
}

// UnpackOption configures Unpack.
type UnpackOption func(*unpackConfig)

// UnpackWithPaths restricts extraction to the named entries or
// directory prefixes.
func UnpackWithPaths(paths ...string) UnpackOption {
	return func(c *unpackConfig) {
		c.paths = append(c.paths, paths...)
	}
}

// UnpackWithWorkers sets the number of entries extracted in
// parallel. Values < 1 select one worker per CPU.
func UnpackWithWorkers(n int) UnpackOption {
	return func(c *unpackConfig) {
		c.workers = n
	}
}

// UnpackWithProgress calls fn with each entry name as it completes.
func UnpackWithProgress(fn func(name string)) UnpackOption {
	return func(c *unpackConfig) {
		c.progress = fn
	}
}

// UnpackWithLogger sets the logger for the extraction run.
func UnpackWithLogger(logger *slog.Logger) UnpackOption {
	return func(c *unpackConfig) {
		c.logger = logger
	}
}

// Unpack extracts entries to dest, recreating the directory layout.
// Raw entries are transferred with the platform copy primitive when
// one is available; compressed entries stream block by block.
func (a *Archive) Unpack(dest string, opts ...UnpackOption) error {
	cfg := unpackConfig{workers: 1}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.workers < 1 {
		cfg.workers = runtime.NumCPU()
	}
	logger := cfg.logger
	if logger == nil {
		logger = a.log()
	}

	filter := make(map[string]struct{}, len(cfg.paths))
	for _, p := range cfg.paths {
		filter[filepath.Clean(p)] = struct{}{}
	}

	var g errgroup.Group
	g.SetLimit(cfg.workers)
	for i := range a.parsed.Records {
		rec := &a.parsed.Records[i]
		if len(filter) > 0 && !matchesPrefix(filter, rec.Filename) {
			continue
		}
		g.Go(func() error {
			if err := a.unpackRecord(dest, rec); err != nil {
				return fmt.Errorf("unpack %s: %w", rec.Filename, err)
			}
			logger.Debug("unpacked", "file", rec.Filename, "size", rec.UncompressedSize)
			if cfg.progress != nil {
				cfg.progress(rec.Filename)
			}
			return nil
		})
	}
	return g.Wait()
}

// matchesPrefix reports whether any path component prefix of name is
// in the filter set, so selecting a directory selects everything
// under it.
func matchesPrefix(filter map[string]struct{}, name string) bool {
	segs := strings.Split(name, string(filepath.Separator))
	for i := 1; i <= len(segs); i++ {
		prefix := filepath.Join(segs[:i]...)
		if _, ok := filter[prefix]; ok {
			return true
		}
	}
	return false
}

func (a *Archive) unpackRecord(dest string, rec *Record) error {
	if !filepath.IsLocal(rec.Filename) {
		return fmt.Errorf("%w: entry name escapes destination", paktype.ErrFormat)
	}
	target := filepath.Join(dest, rec.Filename)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.Create(target)
	if err != nil {
		return err
	}

	err = a.extractTo(out, rec)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}

// extractTo writes the record's content to out. Raw entries go
// through the zero-copy path first; the fallback and all compressed
// entries are served from the mapping.
func (a *Archive) extractTo(out *os.File, rec *Record) error {
	if rec.Method == CompressionNone && !rec.Encrypted {
		handled, err := platform.CopyRange(out, a.f, rec.DataOffset(a.parsed.Version), rec.CompressedSize)
		if handled {
			return err
		}
	}
	return a.ExtractRecord(out, rec)
}

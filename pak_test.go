package pak

import (
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/pak/internal/pakwire"
)

// chdir changes the working directory to dir for the duration of the
// test, restoring the previous directory on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Errorf("restore working directory: %v", err)
		}
	})
}

// buildFixture packs a.txt and b/c.txt into name inside a fresh
// working directory and returns the content map keyed by slash path.
func buildFixture(t *testing.T, name string, opts ...PackOption) map[string][]byte {
	t.Helper()
	chdir(t, t.TempDir())

	content := map[string][]byte{
		"a.txt":   []byte("hello"),
		"b/c.txt": []byte("xyz"),
	}
	for p, data := range content {
		writeFile(t, filepath.FromSlash(p), data)
	}
	require.NoError(t, Pack(name, []string{"a.txt", "b"}, opts...))
	return content
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

// flipByte inverts the byte at off in the named file.
func flipByte(t *testing.T, name string, off int64) {
	t.Helper()
	f, err := os.OpenFile(name, os.O_RDWR, 0)
	require.NoError(t, err)
	defer f.Close()

	b := make([]byte, 1)
	_, err = f.ReadAt(b, off)
	require.NoError(t, err)
	b[0] ^= 0xFF
	_, err = f.WriteAt(b, off)
	require.NoError(t, err)
}

func TestPackOpenRoundTrip(t *testing.T) {
	content := buildFixture(t, "out.pak")

	a, err := Open("out.pak")
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, Version(3), a.Version())
	assert.Equal(t, DefaultMountPoint, a.MountPoint())
	assert.Equal(t, 2, a.Len())

	for p, want := range content {
		rec, ok := a.Record(p)
		require.True(t, ok, p)
		assert.Equal(t, int64(len(want)), rec.UncompressedSize)
		assert.Equal(t, rec.UncompressedSize, rec.CompressedSize)
		assert.Equal(t, [20]byte(sha1.Sum(want)), rec.Checksum)

		got, err := a.ReadRecord(rec, 0, rec.UncompressedSize)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, ok := a.Record("missing.txt")
	assert.False(t, ok)

	// A freshly packed archive has no gaps.
	frag, err := a.Fragments()
	require.NoError(t, err)
	assert.Zero(t, frag.Free())
}

func TestInfo(t *testing.T) {
	buildFixture(t, "out.pak")

	a, err := Open("out.pak")
	require.NoError(t, err)
	defer a.Close()

	info, err := a.Info()
	require.NoError(t, err)

	assert.Equal(t, a.Size(), info.FileSize)
	assert.Equal(t, 2, info.FileCount)
	assert.Equal(t, DefaultMountPoint, info.MountPoint)
	assert.Zero(t, info.FreeBytes)
	assert.Empty(t, info.FreeRanges)
	assert.Equal(t, info.FileSize, info.UsedBytes)
	assert.Greater(t, info.IndexOffset, int64(0))
	assert.Equal(t, info.IndexOffset+info.IndexSize, info.FooterOffset)
}

func TestVerify(t *testing.T) {
	t.Run("clean archive", func(t *testing.T) {
		buildFixture(t, "out.pak")
		a, err := Open("out.pak")
		require.NoError(t, err)
		defer a.Close()

		assert.Empty(t, a.Verify())
	})

	t.Run("slack between index and footer", func(t *testing.T) {
		buildFixture(t, "out.pak")

		a, err := Open("out.pak")
		require.NoError(t, err)
		info, err := a.Info()
		require.NoError(t, err)
		require.NoError(t, a.Close())

		// Splice zero padding between the end of the index and the
		// footer. The footer's index fields and checksum still hold;
		// the layout only requires the index to end at or before the
		// footer.
		data, err := os.ReadFile("out.pak")
		require.NoError(t, err)
		spliced := append([]byte(nil), data[:info.FooterOffset]...)
		spliced = append(spliced, make([]byte, 64)...)
		spliced = append(spliced, data[info.FooterOffset:]...)
		require.NoError(t, os.WriteFile("out.pak", spliced, 0o644))

		a, err = Open("out.pak")
		require.NoError(t, err)
		defer a.Close()

		// The index checksum covers exactly IndexSize bytes, so the
		// padding is not a finding.
		assert.Empty(t, a.Verify())

		// The padding is unallocated space, reported as one gap
		// between index end and footer.
		info, err = a.Info()
		require.NoError(t, err)
		assert.Equal(t, int64(64), info.FreeBytes)
		require.Len(t, info.FreeRanges, 1)
		assert.Equal(t, info.IndexOffset+info.IndexSize, info.FreeRanges[0].Start)
		assert.Equal(t, info.FooterOffset, info.FreeRanges[0].End)
	})

	t.Run("nonzero embedded offset", func(t *testing.T) {
		buildFixture(t, "out.pak")

		a, err := Open("out.pak")
		require.NoError(t, err)
		rec, ok := a.Record("b/c.txt")
		require.True(t, ok)
		recOffset := rec.Offset
		require.NoError(t, a.Close())

		// Data-local headers must store offset 0. Patch in the real
		// offset the way a broken packer would.
		f, err := os.OpenFile("out.pak", os.O_RDWR, 0)
		require.NoError(t, err)
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(recOffset))
		_, err = f.WriteAt(b[:], recOffset)
		require.NoError(t, err)
		require.NoError(t, f.Close())

		a, err = Open("out.pak")
		require.NoError(t, err)
		defer a.Close()

		findings := a.Verify()
		require.Len(t, findings, 1)
		assert.Equal(t, "b/c.txt", findings[0].Filename)
		assert.ErrorIs(t, findings[0].Err, ErrIntegrity)
		assert.Contains(t, findings[0].Err.Error(), "offset field")
	})

	t.Run("corrupt content", func(t *testing.T) {
		buildFixture(t, "out.pak")

		// Locate a.txt's content span before corrupting it.
		a, err := Open("out.pak")
		require.NoError(t, err)
		rec, ok := a.Record("a.txt")
		require.True(t, ok)
		dataOff := rec.DataOffset(a.Version())
		require.NoError(t, a.Close())

		flipByte(t, "out.pak", dataOff)

		a, err = Open("out.pak")
		require.NoError(t, err)
		defer a.Close()

		findings := a.Verify()
		require.Len(t, findings, 1)
		assert.Equal(t, "a.txt", findings[0].Filename)
		assert.ErrorIs(t, findings[0].Err, ErrIntegrity)
	})

	t.Run("corrupt index", func(t *testing.T) {
		buildFixture(t, "out.pak")

		a, err := Open("out.pak")
		require.NoError(t, err)
		indexOffset := func() int64 {
			info, err := a.Info()
			require.NoError(t, err)
			return info.IndexOffset
		}()
		require.NoError(t, a.Close())

		// The first mount point byte is covered by the index checksum
		// but compared against no record, so exactly the index finding
		// results.
		flipByte(t, "out.pak", indexOffset+4)

		a, err = Open("out.pak")
		require.NoError(t, err)
		defer a.Close()

		var streamed []Finding
		findings := a.Verify(VerifyWithSink(func(f Finding) {
			streamed = append(streamed, f)
		}))
		require.Len(t, findings, 1)
		assert.Empty(t, findings[0].Filename)
		assert.ErrorIs(t, findings[0].Err, ErrIntegrity)
		assert.Equal(t, findings, streamed)
	})

	t.Run("null checksum skipped", func(t *testing.T) {
		buildFixture(t, "out.pak")

		a, err := Open("out.pak")
		require.NoError(t, err)
		rec, ok := a.Record("a.txt")
		require.True(t, ok)
		recOffset := rec.Offset
		info, err := a.Info()
		require.NoError(t, err)
		require.NoError(t, a.Close())

		// Zero a.txt's checksum in the data-local header and the
		// index copy, then repair the index checksum in the footer so
		// the null content checksum is the only remaining problem.
		data, err := os.ReadFile("out.pak")
		require.NoError(t, err)
		zero := make([]byte, 20)
		copy(data[recOffset+28:], zero)
		pos := info.IndexOffset + pakwire.PathWireSize(info.MountPoint) + 4 + pakwire.PathWireSize("a.txt")
		copy(data[pos+28:], zero)
		sum := sha1.Sum(data[info.IndexOffset:info.FooterOffset])
		copy(data[info.FooterOffset+24:], sum[:])
		require.NoError(t, os.WriteFile("out.pak", data, 0o644))

		a, err = Open("out.pak")
		require.NoError(t, err)
		defer a.Close()

		findings := a.Verify()
		require.Len(t, findings, 1)
		assert.Equal(t, "a.txt", findings[0].Filename)
		assert.Empty(t, a.Verify(VerifyWithIgnoreNullChecksums()))
	})
}

func TestUnpack(t *testing.T) {
	content := buildFixture(t, "out.pak")

	a, err := Open("out.pak")
	require.NoError(t, err)
	defer a.Close()

	t.Run("all entries", func(t *testing.T) {
		dest := t.TempDir()
		var done []string
		require.NoError(t, a.Unpack(dest,
			UnpackWithWorkers(2),
			UnpackWithProgress(func(name string) { done = append(done, name) })))
		assert.Len(t, done, 2)

		for p, want := range content {
			got, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(p)))
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	})

	t.Run("directory filter", func(t *testing.T) {
		dest := t.TempDir()
		require.NoError(t, a.Unpack(dest, UnpackWithPaths("b")))

		_, err := os.Stat(filepath.Join(dest, "a.txt"))
		assert.True(t, os.IsNotExist(err))
		got, err := os.ReadFile(filepath.Join(dest, "b", "c.txt"))
		require.NoError(t, err)
		assert.Equal(t, content["b/c.txt"], got)
	})
}

func TestUpdateIdempotentReinsert(t *testing.T) {
	buildFixture(t, "out.pak")

	before, err := os.ReadFile("out.pak")
	require.NoError(t, err)

	// Removing an entry and re-inserting the identical file must
	// reproduce the archive byte for byte: the freed span is reused
	// exactly and the index order is unchanged.
	require.NoError(t, Update("out.pak",
		UpdateWithRemove("a.txt"),
		UpdateWithInsert("a.txt")))

	after, err := os.ReadFile("out.pak")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestUpdateInsertAndRemove(t *testing.T) {
	content := buildFixture(t, "out.pak")
	writeFile(t, "d.txt", []byte("fresh content"))

	require.NoError(t, Update("out.pak",
		UpdateWithRemove(filepath.FromSlash("b/c.txt")),
		UpdateWithInsert("d.txt")))

	a, err := Open("out.pak")
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, 2, a.Len())
	_, ok := a.Record("b/c.txt")
	assert.False(t, ok)

	rec, ok := a.Record("d.txt")
	require.True(t, ok)
	got, err := a.ReadRecord(rec, 0, rec.UncompressedSize)
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh content"), got)

	got, err = fs.ReadFile(a, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, content["a.txt"], got)

	assert.Empty(t, a.Verify())
}

func TestUpdateMountPoint(t *testing.T) {
	buildFixture(t, "out.pak")

	require.NoError(t, Update("out.pak", UpdateWithMountPoint("../content/")))

	a, err := Open("out.pak")
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "../content/", a.MountPoint())
	assert.Empty(t, a.Verify())
}

func TestUpdateConflicts(t *testing.T) {
	buildFixture(t, "out.pak")

	t.Run("remove absent", func(t *testing.T) {
		err := Update("out.pak", UpdateWithRemove("nope.txt"))
		assert.ErrorIs(t, err, ErrConflict)
	})
	t.Run("insert over existing", func(t *testing.T) {
		err := Update("out.pak", UpdateWithInsert("a.txt"))
		assert.ErrorIs(t, err, ErrConflict)
	})
}

func TestZlibRandomAccess(t *testing.T) {
	chdir(t, t.TempDir())

	rng := rand.New(rand.NewSource(3))
	content := make([]byte, 10000)
	rng.Read(content)
	writeFile(t, "big.bin", content)

	require.NoError(t, Pack("out.pak", []string{"big.bin"},
		PackWithCompression(CompressionZlib),
		PackWithBlockSize(512)))

	a, err := Open("out.pak")
	require.NoError(t, err)
	defer a.Close()

	rec, ok := a.Record("big.bin")
	require.True(t, ok)
	assert.Equal(t, CompressionZlib, rec.Method)
	assert.NotEmpty(t, rec.Blocks)

	got, err := fs.ReadFile(a, "big.bin")
	require.NoError(t, err)
	assert.Equal(t, content, got)

	windows := [][2]int64{
		{0, 100},
		{500, 24},   // straddles a block boundary
		{512, 512},  // exactly one block
		{7777, 2000},
		{9990, 100}, // clamped at end
	}
	for _, win := range windows {
		got, err := a.ReadRecord(rec, win[0], win[1])
		require.NoError(t, err)
		end := win[0] + win[1]
		if end > int64(len(content)) {
			end = int64(len(content))
		}
		assert.Equal(t, content[win[0]:end], got, "window [%d, +%d)", win[0], win[1])
	}

	assert.Empty(t, a.Verify())
}

func TestFSSurface(t *testing.T) {
	content := buildFixture(t, "out.pak")

	a, err := Open("out.pak")
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, fstest.TestFS(a, "a.txt", "b/c.txt"))

	t.Run("read file", func(t *testing.T) {
		got, err := fs.ReadFile(a, "b/c.txt")
		require.NoError(t, err)
		assert.Equal(t, content["b/c.txt"], got)
	})

	t.Run("stat modes", func(t *testing.T) {
		fi, err := a.Stat("a.txt")
		require.NoError(t, err)
		assert.Equal(t, fs.FileMode(0o444), fi.Mode())
		assert.Equal(t, int64(5), fi.Size())

		di, err := a.Stat("b")
		require.NoError(t, err)
		assert.True(t, di.IsDir())
	})

	t.Run("read dir", func(t *testing.T) {
		entries, err := a.ReadDir(".")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "a.txt", entries[0].Name())
		assert.False(t, entries[0].IsDir())
		assert.Equal(t, "b", entries[1].Name())
		assert.True(t, entries[1].IsDir())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := a.Open("nope.txt")
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})
}

func TestPackVersions(t *testing.T) {
	for _, version := range []Version{1, 2, 3} {
		t.Run(fmt.Sprintf("v%d", version), func(t *testing.T) {
			buildFixture(t, "out.pak", PackWithVersion(version))

			a, err := Open("out.pak")
			require.NoError(t, err)
			defer a.Close()

			assert.Equal(t, version, a.Version())
			assert.Equal(t, 2, a.Len())
			assert.Empty(t, a.Verify())

			got, err := fs.ReadFile(a, "a.txt")
			require.NoError(t, err)
			assert.Equal(t, []byte("hello"), got)
		})
	}
}

func TestPackRejections(t *testing.T) {
	chdir(t, t.TempDir())
	writeFile(t, "a.txt", []byte("x"))

	t.Run("unwritable version", func(t *testing.T) {
		err := Pack("out.pak", []string{"a.txt"}, PackWithVersion(7))
		assert.ErrorIs(t, err, ErrNotSupported)
	})
	t.Run("zlib needs v3", func(t *testing.T) {
		err := Pack("out.pak", []string{"a.txt"},
			PackWithVersion(2), PackWithCompression(CompressionZlib))
		assert.ErrorIs(t, err, ErrNotSupported)
	})
}

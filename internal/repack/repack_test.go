package repack

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/pak/internal/paktype"
)

func plainRecord(name string, offset, size int64) paktype.Record {
	return paktype.Record{
		Filename:         name,
		Offset:           offset,
		CompressedSize:   size,
		UncompressedSize: size,
		Method:           paktype.CompressionNone,
	}
}

func freshRecord(name string, size int64) paktype.Record {
	rec := plainRecord(name, paktype.UnassignedOffset, size)
	return rec
}

func TestTreeConflicts(t *testing.T) {
	join := func(parts ...string) string { return filepath.Join(parts...) }

	t.Run("doubled name", func(t *testing.T) {
		tree := NewTree()
		require.NoError(t, tree.Add(plainRecord("a.txt", 0, 1), ""))
		err := tree.Add(plainRecord("a.txt", 10, 1), "")
		assert.ErrorIs(t, err, paktype.ErrConflict)
	})

	t.Run("file used as directory", func(t *testing.T) {
		tree := NewTree()
		require.NoError(t, tree.Add(plainRecord("a", 0, 1), ""))
		err := tree.Add(plainRecord(join("a", "b.txt"), 10, 1), "")
		assert.ErrorIs(t, err, paktype.ErrConflict)
	})

	t.Run("directory used as file", func(t *testing.T) {
		tree := NewTree()
		require.NoError(t, tree.Add(plainRecord(join("a", "b.txt"), 0, 1), ""))
		err := tree.Add(plainRecord("a", 10, 1), "")
		assert.ErrorIs(t, err, paktype.ErrConflict)
	})

	t.Run("remove absent file", func(t *testing.T) {
		tree := NewTree()
		require.NoError(t, tree.Add(plainRecord("a.txt", 0, 1), ""))
		assert.ErrorIs(t, tree.Remove("b.txt"), paktype.ErrConflict)
		assert.ErrorIs(t, tree.Remove(join("missing", "x.txt")), paktype.ErrConflict)
	})

	t.Run("remove through file", func(t *testing.T) {
		tree := NewTree()
		require.NoError(t, tree.Add(plainRecord("a", 0, 1), ""))
		assert.ErrorIs(t, tree.Remove(join("a", "b.txt")), paktype.ErrConflict)
	})

	t.Run("remove then re-add", func(t *testing.T) {
		tree := NewTree()
		require.NoError(t, tree.Add(plainRecord("a.txt", 0, 1), ""))
		require.NoError(t, tree.Remove("a.txt"))
		assert.NoError(t, tree.Add(plainRecord("a.txt", 0, 1), ""))
	})
}

func TestTreeFilesSortedPreorder(t *testing.T) {
	tree := NewTree()
	for _, name := range []string{
		filepath.Join("z", "1.txt"),
		"a.txt",
		filepath.Join("b", "sub", "x.txt"),
		filepath.Join("b", "a.txt"),
	} {
		require.NoError(t, tree.Add(plainRecord(name, 0, 1), ""))
	}

	var got []string
	for _, f := range tree.Files() {
		got = append(got, f.Record.Filename)
	}
	assert.Equal(t, []string{
		"a.txt",
		filepath.Join("b", "a.txt"),
		filepath.Join("b", "sub", "x.txt"),
		filepath.Join("z", "1.txt"),
	}, got)
}

func TestPlanKeepsAnchorsInPlaceWithoutChanges(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.Add(plainRecord("a.txt", 0, 5), ""))
	require.NoError(t, tree.Add(plainRecord("b.txt", 58, 3), ""))

	plan, err := NewPlan(3, "m", tree)
	require.NoError(t, err)

	require.Len(t, plan.Records, 2)
	assert.Equal(t, int64(0), plan.Records[0].Offset)
	assert.Equal(t, int64(58), plan.Records[1].Offset)
	assert.Equal(t, int64(58+56), plan.IndexOffset)
	for _, a := range plan.allocs {
		assert.Equal(t, a.source, a.target)
	}
}

func TestPlanNeverMovesForward(t *testing.T) {
	// Gap at the front, one in the middle, new records of mixed
	// sizes. Every surviving record must land at or below its old
	// offset.
	tree := NewTree()
	require.NoError(t, tree.Add(plainRecord("keep1.bin", 200, 50), ""))
	require.NoError(t, tree.Add(plainRecord("keep2.bin", 500, 40), ""))
	require.NoError(t, tree.Add(freshRecord("new_small.bin", 10), "src1"))
	require.NoError(t, tree.Add(freshRecord("new_big.bin", 100000), "src2"))

	plan, err := NewPlan(3, "m", tree)
	require.NoError(t, err)

	for _, a := range plan.allocs {
		if a.source != paktype.UnassignedOffset {
			assert.LessOrEqual(t, a.target, a.source, "existing record pushed forward")
		}
	}

	// Targets are strictly ascending and non-overlapping, and the
	// index follows the last allocation.
	var cursor int64
	for _, a := range plan.allocs {
		assert.GreaterOrEqual(t, a.target, cursor)
		cursor = a.target + a.size
	}
	assert.Equal(t, cursor, plan.IndexOffset)
}

func TestPlanFillsGapOnlyWhenFullyBelowAnchor(t *testing.T) {
	// keep.bin sits at 200 leaving a 200-byte hole. The fresh record
	// whose span fits below 200 goes into the hole, the anchor slides
	// down behind it, and the one that does not fit is appended after
	// the anchor.
	tree := NewTree()
	require.NoError(t, tree.Add(plainRecord("keep.bin", 200, 30), ""))
	require.NoError(t, tree.Add(freshRecord("fits.bin", 100), "s1"))
	require.NoError(t, tree.Add(freshRecord("too_big.bin", 500), "s2"))

	plan, err := NewPlan(3, "m", tree)
	require.NoError(t, err)

	byName := make(map[string]int64)
	for i := range plan.Records {
		byName[plan.Records[i].Filename] = plan.Records[i].Offset
	}

	fitsSize := plan.Records[0].AllocSize(3) // fits.bin sorts first
	assert.Equal(t, int64(0), byName["fits.bin"])
	assert.Equal(t, fitsSize, byName["keep.bin"])
	keepRec := plainRecord("keep.bin", 0, 30)
	keepEnd := fitsSize + keepRec.AllocSize(3)
	assert.Equal(t, keepEnd, byName["too_big.bin"])
	assert.LessOrEqual(t, byName["keep.bin"], int64(200))
}

func TestPlanLeftoversSortedByFilename(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.Add(freshRecord("b.bin", 10), "s1"))
	require.NoError(t, tree.Add(freshRecord("a.bin", 10), "s2"))
	require.NoError(t, tree.Add(freshRecord("c.bin", 20), "s3"))

	plan, err := NewPlan(3, "m", tree)
	require.NoError(t, err)

	// No anchors, so all records are appended in filename order
	// regardless of size.
	var names []string
	for _, a := range plan.allocs {
		names = append(names, a.rec.Filename)
	}
	assert.Equal(t, []string{"a.bin", "b.bin", "c.bin"}, names)
}

func TestPlanRejectsUnwritableVersion(t *testing.T) {
	_, err := NewPlan(7, "m", NewTree())
	assert.ErrorIs(t, err, paktype.ErrNotSupported)
}

func TestPlanRejectsCompressedInsert(t *testing.T) {
	tree := NewTree()
	rec := freshRecord("x.bin", 10)
	rec.Method = paktype.CompressionZlib
	require.NoError(t, tree.Add(rec, "s"))

	_, err := NewPlan(3, "m", tree)
	assert.ErrorIs(t, err, paktype.ErrNotSupported)
}

func TestFshiftOverlappingMove(t *testing.T) {
	dir := t.TempDir()
	f, err := os.Create(filepath.Join(dir, "shift.bin"))
	require.NoError(t, err)
	defer f.Close()

	content := make([]byte, 200000)
	for i := range content {
		content[i] = byte(i * 31)
	}
	pad := make([]byte, 1000)
	_, err = f.Write(pad)
	require.NoError(t, err)
	_, err = f.Write(content)
	require.NoError(t, err)

	// Move the span down into its own tail: dst < src with heavy
	// overlap, crossing multiple copy chunks.
	require.NoError(t, fshift(f, 1000, 0, int64(len(content))))

	got := make([]byte, len(content))
	_, err = f.ReadAt(got, 0)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

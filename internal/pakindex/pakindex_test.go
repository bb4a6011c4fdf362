package pakindex

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/pak/internal/paktype"
	"github.com/meigma/pak/internal/pakwire"
)

func sampleRecords() []paktype.Record {
	return []paktype.Record{
		{
			Filename:         "a.txt",
			Offset:           0,
			CompressedSize:   5,
			UncompressedSize: 5,
			Method:           paktype.CompressionNone,
			Checksum:         [20]byte{1},
		},
		{
			Filename:         filepath.Join("b", "c.txt"),
			Offset:           58,
			CompressedSize:   3,
			UncompressedSize: 3,
			Method:           paktype.CompressionNone,
			Checksum:         [20]byte{2},
		},
	}
}

// buildArchive serializes an index and footer after size bytes of
// fake content, returning the full archive image.
func buildArchive(t *testing.T, version paktype.Version, mountPoint string, records []paktype.Record, contentSize int64) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(make([]byte, contentSize))
	require.NoError(t, Write(&buf, version, mountPoint, records, contentSize))
	return buf.Bytes()
}

func TestWriteParseRoundTrip(t *testing.T) {
	records := sampleRecords()
	data := buildArchive(t, 3, "../../../", records, 114)

	p, err := Parse(data, Options{})
	require.NoError(t, err)

	assert.Equal(t, paktype.Version(3), p.Version)
	assert.Equal(t, int64(114), p.IndexOffset)
	assert.Equal(t, "../../../", p.MountPoint)
	assert.Equal(t, int64(len(data))-pakwire.FooterSize, p.FooterOffset)
	assert.Equal(t, Size(3, "../../../", records), p.IndexSize)
	assert.Equal(t, records, p.Records)

	sum := sha1.Sum(data[p.IndexOffset:p.FooterOffset])
	assert.Equal(t, sum, p.Checksum)
}

func TestParseFileMatchesParse(t *testing.T) {
	data := buildArchive(t, 2, "mount", sampleRecords(), 50)

	a, err := Parse(data, Options{})
	require.NoError(t, err)
	b, err := ParseFile(bytes.NewReader(data), int64(len(data)), Options{})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestParseBadMagic(t *testing.T) {
	data := buildArchive(t, 3, "m", nil, 0)
	data[len(data)-pakwire.FooterSize] ^= 0xFF

	_, err := Parse(data, Options{})
	assert.ErrorIs(t, err, paktype.ErrFormat)

	p, err := Parse(data, Options{IgnoreMagic: true})
	require.NoError(t, err)
	assert.Empty(t, p.Records)
}

func TestParseForceVersion(t *testing.T) {
	data := buildArchive(t, 3, "m", nil, 0)
	// Mislabel the footer with an unsupported version.
	binary.LittleEndian.PutUint32(data[len(data)-40:], 5)

	_, err := Parse(data, Options{})
	assert.ErrorIs(t, err, paktype.ErrFormat)

	p, err := Parse(data, Options{ForceVersion: 3})
	require.NoError(t, err)
	assert.Equal(t, paktype.Version(3), p.Version)
}

func TestParseIllegalIndexBounds(t *testing.T) {
	data := buildArchive(t, 3, "m", nil, 0)
	// Point the index past the footer.
	binary.LittleEndian.PutUint64(data[len(data)-36:], uint64(len(data)))

	_, err := Parse(data, Options{})
	assert.ErrorIs(t, err, paktype.ErrFormat)
}

func TestParseIndexBleedsIntoFooter(t *testing.T) {
	records := sampleRecords()
	data := buildArchive(t, 3, "m", records, 114)

	// Inflate the entry count so decoding runs off the end of the
	// index region.
	indexOffset := int64(114)
	countOffset := indexOffset + pakwire.PathWireSize("m")
	binary.LittleEndian.PutUint32(data[countOffset:], 100)

	_, err := Parse(data, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, paktype.ErrFormat)
	assert.Contains(t, err.Error(), "index bleeds into footer")
}

func TestParseTooSmall(t *testing.T) {
	_, err := Parse(make([]byte, 10), Options{})
	assert.ErrorIs(t, err, paktype.ErrFormat)
}

func TestSizeMatchesWrite(t *testing.T) {
	records := sampleRecords()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, 3, "../../../", records, 0))
	assert.Equal(t, Size(3, "../../../", records)+pakwire.FooterSize, int64(buf.Len()))
}

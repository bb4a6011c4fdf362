package pak

import (
	"crypto/sha1"
	"fmt"

	"github.com/meigma/pak/internal/pakwire"
)

// Finding is one integrity problem located during verification.
// Filename is empty for findings against the archive index itself.
type Finding struct {
	Filename string
	Err      error
}

type verifyConfig struct {
	ignoreNull bool
	sink       func(Finding)
}

// VerifyOption configures Verify.
type VerifyOption func(*verifyConfig)

// VerifyWithIgnoreNullChecksums skips content hashing for records
// whose stored checksum is all zero bytes. Some packers write those
// intentionally.
func VerifyWithIgnoreNullChecksums() VerifyOption {
	return func(c *verifyConfig) {
		c.ignoreNull = true
	}
}

// VerifyWithSink streams each finding to fn as it is located, in
// addition to the returned slice.
func VerifyWithSink(fn func(Finding)) VerifyOption {
	return func(c *verifyConfig) {
		c.sink = fn
	}
}

// Verify runs every integrity check over the archive and returns all
// findings. Findings never abort the pass, so one call enumerates
// every problem: the index checksum, then per record the data-local
// header against the index copy, the size and bounds invariants, and
// the content checksum over the stored bytes.
func (a *Archive) Verify(opts ...VerifyOption) []Finding {
	var cfg verifyConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	var findings []Finding
	report := func(filename string, err error) {
		f := Finding{Filename: filename, Err: err}
		findings = append(findings, f)
		if cfg.sink != nil {
			cfg.sink(f)
		}
		a.log().Debug("integrity finding", "file", filename, "err", err)
	}

	sum := sha1.Sum(a.data[a.parsed.IndexOffset : a.parsed.IndexOffset+a.parsed.IndexSize])
	if sum != a.parsed.Checksum {
		report("", fmt.Errorf("%w: index checksum mismatch", ErrIntegrity))
	}

	for i := range a.parsed.Records {
		a.verifyRecord(&a.parsed.Records[i], cfg.ignoreNull, report)
	}
	return findings
}

func (a *Archive) verifyRecord(rec *Record, ignoreNull bool, report func(string, error)) {
	v := a.parsed.Version

	if rec.Offset < 0 || rec.Offset > int64(len(a.data)) {
		report(rec.Filename, fmt.Errorf("%w: record offset %d outside archive", ErrIntegrity, rec.Offset))
		return
	}
	local, _, err := pakwire.DecodeRecord(a.data[rec.Offset:], v, rec.Filename)
	if err != nil {
		report(rec.Filename, err)
		return
	}
	if local.Offset != 0 {
		report(rec.Filename, fmt.Errorf("%w: data header offset field is %d, not 0", ErrIntegrity, local.Offset))
	}
	if !rec.SameMetadata(&local) {
		report(rec.Filename, fmt.Errorf("%w: data header differs from index", ErrIntegrity))
	}
	if !rec.Method.Known() {
		report(rec.Filename, fmt.Errorf("%w: unknown compression method 0x%02x", ErrNotSupported, uint32(rec.Method)))
	}
	if rec.Method == CompressionNone && rec.CompressedSize != rec.UncompressedSize {
		report(rec.Filename, fmt.Errorf("%w: stored size %d differs from content size %d for uncompressed entry",
			ErrIntegrity, rec.CompressedSize, rec.UncompressedSize))
	}
	if rec.DataOffset(v)+rec.CompressedSize > a.parsed.IndexOffset {
		report(rec.Filename, fmt.Errorf("%w: content bleeds into index", ErrIntegrity))
	}

	if ignoreNull && rec.NullChecksum() {
		return
	}
	sum, err := a.contentChecksum(rec)
	if err != nil {
		report(rec.Filename, err)
		return
	}
	if sum != rec.Checksum {
		report(rec.Filename, fmt.Errorf("%w: content checksum mismatch", ErrIntegrity))
	}
}

// contentChecksum hashes the record's stored bytes: the raw block
// spans for block-compressed entries, the plain content span
// otherwise. Content is hashed as written, not as decompressed.
func (a *Archive) contentChecksum(rec *Record) ([20]byte, error) {
	v := a.parsed.Version
	hasher := sha1.New()

	if len(rec.Blocks) > 0 {
		base := v.BlockBase(rec.Offset)
		for _, blk := range rec.Blocks {
			start, end := base+int64(blk.Start), base+int64(blk.End)
			if start < 0 || end < start || end > int64(len(a.data)) {
				return [20]byte{}, fmt.Errorf("%w: block [%d, %d) outside archive", ErrIntegrity, start, end)
			}
			hasher.Write(a.data[start:end])
		}
	} else {
		start := rec.DataOffset(v)
		end := start + rec.CompressedSize
		if start < 0 || end < start || end > int64(len(a.data)) {
			return [20]byte{}, fmt.Errorf("%w: content [%d, %d) outside archive", ErrIntegrity, start, end)
		}
		hasher.Write(a.data[start:end])
	}

	var sum [20]byte
	copy(sum[:], hasher.Sum(nil))
	return sum, nil
}

// Package pak reads, writes, verifies, and rewrites pak game archives:
// a container of named entries with a trailing checksummed index.
//
// Entries may be stored raw or as independently deflated fixed-size
// blocks, which makes random access into compressed content cheap. A
// loaded archive is served from a read-only whole-file mapping and is
// safe for concurrent reads; mutation goes through Update, which
// rewrites the file in place and must never run while a mapping of
// the same file is live.
//
// The package implements fs.FS and related interfaces for stdlib
// compatibility.
package pak

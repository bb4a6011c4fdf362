package paktype

import "errors"

// Sentinel errors for the pak error taxonomy. The root package
// re-exports these for callers.
var (
	// ErrFormat is returned when the archive structure is invalid:
	// bad magic, unsupported version, or an index that bleeds into
	// the footer. Always fatal to the parse call.
	ErrFormat = errors.New("pak: invalid archive format")

	// ErrIntegrity marks a checksum or metadata mismatch found
	// during verification. Findings are collected, not fatal.
	ErrIntegrity = errors.New("pak: integrity check failed")

	// ErrConflict is returned when a path collides while building
	// the directory tree: a file used as a directory, or a
	// duplicated name.
	ErrConflict = errors.New("pak: name conflict")

	// ErrNotSupported is returned for encrypted entries and unknown
	// compression methods. Decryption is not implemented.
	ErrNotSupported = errors.New("pak: not supported")

	// ErrTruncated is returned when a source stream yields fewer
	// bytes than its metadata promised.
	ErrTruncated = errors.New("pak: unexpected end of input")

	// ErrInsufficientSpace is returned when a repack would grow the
	// archive beyond the available free space. The check is advisory
	// corruption avoidance, not a guarantee.
	ErrInsufficientSpace = errors.New("pak: not enough free space")

	// ErrRange is returned when a fragment-map range lies outside
	// the archive bounds.
	ErrRange = errors.New("pak: range out of bounds")
)

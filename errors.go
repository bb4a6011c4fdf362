package pak

import "github.com/meigma/pak/internal/paktype"

// Sentinel errors re-exported from internal/paktype. Match with
// errors.Is; wrapped errors carry the offending path or value.
var (
	// ErrFormat is returned for structurally invalid archives.
	ErrFormat = paktype.ErrFormat

	// ErrIntegrity marks a verification finding.
	ErrIntegrity = paktype.ErrIntegrity

	// ErrConflict is returned for name collisions during a repack.
	ErrConflict = paktype.ErrConflict

	// ErrNotSupported is returned for encrypted entries, unknown
	// compression methods, and unwritable schema versions.
	ErrNotSupported = paktype.ErrNotSupported

	// ErrTruncated is returned when a source stream ends early.
	ErrTruncated = paktype.ErrTruncated

	// ErrInsufficientSpace is returned when a repack would outgrow
	// the backing filesystem.
	ErrInsufficientSpace = paktype.ErrInsufficientSpace

	// ErrRange is returned for fragment ranges outside the archive.
	ErrRange = paktype.ErrRange
)

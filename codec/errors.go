// Error kinds for the versioned binary codec.
//
// Every on-disk artifact in the store — shard files, tree nodes, the
// root-block file — is written and read through this package, so its
// error kinds are the vocabulary the rest of the module wraps.
package codec

import "errors"

// Sentinel errors returned by codec operations. Callers compare with
// errors.Is; wrapped context is added by the caller's own %w chain.
var (
	// ErrOutOfBounds is returned when a read would cross the buffer end,
	// or SetPosition is given a position outside [0, len(buf)].
	ErrOutOfBounds = errors.New("codec: read out of bounds")

	// ErrNotFound is returned by Load when the target file does not exist.
	ErrNotFound = errors.New("codec: file not found")

	// ErrCorruption is returned when a framed file is too short or its
	// checksum footer does not match the prefix it covers.
	ErrCorruption = errors.New("codec: corrupt frame")

	// ErrUnsupportedVersion is returned when no decoder is registered for
	// the version stored in a frame's header.
	ErrUnsupportedVersion = errors.New("codec: unsupported version")

	// ErrMigration is returned when no migration path exists between two
	// versions, or an edge along the chosen path is missing.
	ErrMigration = errors.New("codec: migration failed")

	// ErrInternal names the invariant-violation error kind. No function
	// in this package returns it.
	ErrInternal = errors.New("codec: internal error")
)

// UnsupportedVersionError carries the requested version and the list of
// versions that do have a registered decoder, for UnsupportedVersion.
type UnsupportedVersionError struct {
	Version   uint32
	Available []uint32
}

func (e *UnsupportedVersionError) Error() string {
	return "codec: unsupported version"
}

func (e *UnsupportedVersionError) Unwrap() error { return ErrUnsupportedVersion }

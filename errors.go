// Package strata is an embedded, file-backed document store: a sharded
// record engine for schemaless BSON documents keyed by UUID, with
// secondary sort indexes implemented as on-disk B-trees supporting
// cursor pagination, exact-value lookup, and range scans.
package strata

import "errors"

// Sentinel errors returned by store operations. Callers check kinds;
// callers compare with errors.Is, and operations wrap these with
// fmt.Errorf("%w: ...") for context.
var (
	// ErrNotFound is returned when a requested record or index entry does
	// not exist.
	ErrNotFound = errors.New("strata: not found")

	// ErrCorruption is returned when a stored artifact fails checksum or
	// structural verification.
	ErrCorruption = errors.New("strata: corruption")

	// ErrMigration names the migration failure kind at package level.
	// No strata operation returns it: migration failures surface as
	// codec.ErrMigration from the codec layer.
	ErrMigration = errors.New("strata: migration failed")

	// ErrInvalidID is returned when a record id is not a canonical
	// 36-character UUID.
	ErrInvalidID = errors.New("strata: invalid id")

	// ErrIndexTypeMismatch is returned when ensureSortIndex is called
	// with a type disagreeing with an already-open index of the same
	// (field, direction).
	ErrIndexTypeMismatch = errors.New("strata: sort index type mismatch")

	// ErrReadonly is returned when a mutating operation is attempted
	// against a read-only sort index handle.
	ErrReadonly = errors.New("strata: read-only")

	// ErrClosed names the closed-handle error kind. No operation in this
	// package returns it; calls on a shut-down collection, index, or
	// database are not rejected.
	ErrClosed = errors.New("strata: closed")

	// ErrInternal marks invariant violations, e.g. a record count
	// mismatch discovered while decoding a node.
	ErrInternal = errors.New("strata: internal error")
)

// Framed save/load/verify: the [version][payload][checksum] envelope used
// by every on-disk artifact — shard files, tree nodes, the root-block file.
package codec

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/cenkalti/backoff/v4"
)

// ChecksumSize is the length in bytes of the trailing SHA-256 footer.
const ChecksumSize = sha256.Size

// BlobStore is the minimal write surface the codec needs from a blob
// storage backend. storage.Storage satisfies this structurally.
type BlobStore interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, contentType string, data []byte) error
}

// Encoder writes a payload's body into w. Implementations do not write
// the version header or checksum footer — Save handles framing.
type Encoder[T any] func(w *Writer, payload T) error

// Decoder reads a payload body from r, for one specific on-disk version.
type Decoder[T any] func(r *Reader) (T, error)

// Migration transforms a decoded value from one version to the next.
// Registered against the directed edge "from:to" in a VersionTable.
type Migration[T any] func(T) (T, error)

// VersionTable maps a version number to its decoder and holds the
// migration graph used to bridge mismatched versions on load.
type VersionTable[T any] struct {
	decoders   map[uint32]Decoder[T]
	migrations map[edge]Migration[T]
}

type edge struct{ from, to uint32 }

// NewVersionTable returns an empty table ready for RegisterDecoder and
// RegisterMigration calls.
func NewVersionTable[T any]() *VersionTable[T] {
	return &VersionTable[T]{
		decoders:   map[uint32]Decoder[T]{},
		migrations: map[edge]Migration[T]{},
	}
}

func (vt *VersionTable[T]) RegisterDecoder(version uint32, d Decoder[T]) {
	vt.decoders[version] = d
}

func (vt *VersionTable[T]) RegisterMigration(from, to uint32, m Migration[T]) {
	vt.migrations[edge{from, to}] = m
}

func (vt *VersionTable[T]) available() []uint32 {
	out := make([]uint32, 0, len(vt.decoders))
	for v := range vt.decoders {
		out = append(out, v)
	}
	return out
}

// highestVersion returns the largest registered decoder version, used as
// the implicit migration target when the caller doesn't name one.
func (vt *VersionTable[T]) highestVersion() uint32 {
	var max uint32
	for v := range vt.decoders {
		if v > max {
			max = v
		}
	}
	return max
}

// SaveOptions configures Save's framing behaviour.
type SaveOptions struct {
	// DisableChecksum omits the trailing SHA-256 footer entirely.
	DisableChecksum bool
	// MaxRetries bounds the retry attempts around the underlying
	// storage.Write call. Zero means one attempt, no retry.
	MaxRetries uint64
}

// Save writes version, then the serialized body produced by enc, then
// (unless disabled) a SHA-256 checksum over everything written so far,
// to path via store, retrying storage.Write with bounded backoff.
func Save[T any](ctx context.Context, store BlobStore, path string, version uint32, payload T, enc Encoder[T], opts SaveOptions) error {
	w := NewWriter(256)
	w.WriteU32(version)
	if err := enc(w, payload); err != nil {
		return fmt.Errorf("codec: encode: %w", err)
	}

	body := w.Bytes()
	var out []byte
	if opts.DisableChecksum {
		out = body
	} else {
		sum := sha256.Sum256(body)
		out = make([]byte, 0, len(body)+ChecksumSize)
		out = append(out, body...)
		out = append(out, sum[:]...)
	}

	op := func() error { return store.Write(ctx, path, "application/octet-stream", out) }
	if opts.MaxRetries == 0 {
		return op()
	}
	return backoff.Retry(op, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), opts.MaxRetries))
}

// LoadOptions configures Load's verification and migration behaviour.
type LoadOptions struct {
	DisableChecksum bool
	// TargetVersion, if nonzero, is the version the caller wants back;
	// Load migrates forward/backward via the shortest BFS path. Zero
	// means "the highest registered decoder version".
	TargetVersion uint32
}

// Load reads path, verifies its checksum (unless disabled), decodes the
// body with the decoder registered for its stored version, and migrates
// to the target version if the stored version differs.
func Load[T any](ctx context.Context, store BlobStore, path string, vt *VersionTable[T], opts LoadOptions) (T, error) {
	var zero T

	data, err := store.Read(ctx, path)
	if err != nil {
		return zero, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	body, err := verifyAndStrip(data, opts.DisableChecksum)
	if err != nil {
		return zero, err
	}

	r := NewReader(body)
	version, err := r.ReadU32()
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrCorruption, err)
	}

	dec, ok := vt.decoders[version]
	if !ok {
		return zero, &UnsupportedVersionError{Version: version, Available: vt.available()}
	}

	value, err := dec(r)
	if err != nil {
		return zero, fmt.Errorf("codec: decode: %w", err)
	}

	target := opts.TargetVersion
	if target == 0 {
		target = vt.highestVersion()
	}
	if target != version {
		value, err = migrate(value, version, target, vt.migrations)
		if err != nil {
			return zero, err
		}
	}

	return value, nil
}

// VerifyResult is the outcome of Verify.
type VerifyResult struct {
	Valid bool
	Size  int64
	Err   error
}

// Verify checks a frame's checksum and that its version header is
// plausible, without fully decoding the body.
func Verify(ctx context.Context, store BlobStore, path string) (VerifyResult, error) {
	data, err := store.Read(ctx, path)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	body, err := verifyAndStrip(data, false)
	if err != nil {
		return VerifyResult{Valid: false, Size: int64(len(data)), Err: err}, nil
	}

	r := NewReader(body)
	if _, err := r.ReadU32(); err != nil {
		return VerifyResult{Valid: false, Size: int64(len(data)), Err: err}, nil
	}

	return VerifyResult{Valid: true, Size: int64(len(data))}, nil
}

// verifyAndStrip checks the trailing SHA-256 footer (unless disabled)
// and returns the prefix it covers.
func verifyAndStrip(data []byte, disableChecksum bool) ([]byte, error) {
	if disableChecksum {
		return data, nil
	}
	if len(data) < ChecksumSize+4 {
		return nil, fmt.Errorf("%w: frame too short", ErrCorruption)
	}
	split := len(data) - ChecksumSize
	prefix, footer := data[:split], data[split:]
	sum := sha256.Sum256(prefix)
	if string(sum[:]) != string(footer) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruption)
	}
	return prefix, nil
}

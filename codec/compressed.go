// Compressed codec: a writer that buffers typed writes and flushes them
// gzip-compressed behind a u32 length prefix, and a reader that inflates
// the same block transparently. Multiple compressed blocks can follow
// each other in one stream — each is self-delimiting via its length
// prefix, so a reader positioned right after one block's payload can
// read the next block immediately.
package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// CompressedWriter wraps a parent Writer. Typed writes accumulate in an
// internal scratch Writer; Finish compresses the scratch buffer and
// appends [u32 compressed_len][gzip bytes] to the parent.
type CompressedWriter struct {
	parent  *Writer
	scratch *Writer
}

// NewCompressedWriter returns a CompressedWriter that will append its
// compressed block to parent once Finish is called.
func NewCompressedWriter(parent *Writer) *CompressedWriter {
	return &CompressedWriter{parent: parent, scratch: NewWriter(256)}
}

// Scratch exposes the inner Writer for typed primitive writes.
func (cw *CompressedWriter) Scratch() *Writer { return cw.scratch }

// Finish gzip-compresses the scratch buffer and appends it to the
// parent Writer as [u32 compressed_len][gzip bytes].
func (cw *CompressedWriter) Finish() error {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(cw.scratch.Bytes()); err != nil {
		return fmt.Errorf("codec: gzip write: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("codec: gzip close: %w", err)
	}

	cw.parent.WriteU32(uint32(buf.Len()))
	cw.parent.WriteRaw(buf.Bytes())
	return nil
}

// CompressedReader holds an inner Reader over a block's inflated bytes.
// It has no methods; ReadCompressedBlock does the reading and returns
// the inner *Reader directly, without constructing a CompressedReader.
type CompressedReader struct {
	inner *Reader
}

// ReadCompressedBlock reads one compressed block from r and returns a
// Reader over its decompressed contents, positioned at r just past the
// block so the caller can read further sibling blocks from the same
// stream.
func ReadCompressedBlock(r *Reader) (*Reader, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	compressed, err := r.ReadRaw(int(n))
	if err != nil {
		return nil, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("%w: gzip: %v", ErrCorruption, err)
	}
	defer gz.Close()

	inflated, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("%w: gzip: %v", ErrCorruption, err)
	}
	return NewReader(inflated), nil
}

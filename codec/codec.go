// Byte-cursor reader and writer for the store's binary formats.
//
// Every primitive is little-endian. Strings and buffers are u32-length
// prefixed; raw_bytes is unprefixed (the caller already knows the length
// from surrounding framing); bson<T> is a u32-prefixed BSON document,
// letting a heterogeneous record body or sort-index value live inside an
// otherwise fixed-layout frame.
package codec

import (
	"encoding/binary"
	"math"

	"go.mongodb.org/mongo-driver/bson"
)

// Writer accumulates bytes for a single framed artifact. The zero value
// is ready to use.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with cap preallocated to reduce reallocation
// for callers who know roughly how large the payload will be.
func NewWriter(cap int) *Writer {
	return &Writer{buf: make([]byte, 0, cap)}
}

// Bytes returns the accumulated buffer. The slice aliases the Writer's
// internal storage; callers must not retain it across further writes.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) WriteU8(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteU8(1)
	} else {
		w.WriteU8(0)
	}
}

func (w *Writer) WriteU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteI32(v int32) { w.WriteU32(uint32(v)) }

func (w *Writer) WriteU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteI64(v int64) { w.WriteU64(uint64(v)) }

func (w *Writer) WriteF32(v float32) { w.WriteU32(math.Float32bits(v)) }

func (w *Writer) WriteF64(v float64) { w.WriteU64(math.Float64bits(v)) }

// WriteString writes a u32-prefixed UTF-8 string.
func (w *Writer) WriteString(s string) {
	w.WriteU32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteBuffer writes a u32-prefixed opaque byte slice.
func (w *Writer) WriteBuffer(b []byte) {
	w.WriteU32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteRaw appends bytes with no length prefix. Used when the caller
// tracks length separately (e.g. a fixed-size UUID slot).
func (w *Writer) WriteRaw(b []byte) { w.buf = append(w.buf, b...) }

// WriteBSON marshals v to BSON and writes it u32-prefixed.
func WriteBSON(w *Writer, v any) error {
	doc, err := bson.Marshal(v)
	if err != nil {
		return err
	}
	w.WriteBuffer(doc)
	return nil
}

// Reader is a cursor over a fixed byte slice.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential typed reads starting at position 0.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Position returns the current read offset.
func (r *Reader) Position() int { return r.pos }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// SetPosition moves the cursor. Any position outside [0, len(buf)] fails.
func (r *Reader) SetPosition(pos int) error {
	if pos < 0 || pos > len(r.buf) {
		return ErrOutOfBounds
	}
	r.pos = pos
	return nil
}

func (r *Reader) need(n int) error {
	if n < 0 || r.pos+n > len(r.buf) {
		return ErrOutOfBounds
	}
	return nil
}

func (r *Reader) ReadU8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadU8()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func (r *Reader) ReadU32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

func (r *Reader) ReadU64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *Reader) ReadI64() (int64, error) {
	v, err := r.ReadU64()
	return int64(v), err
}

func (r *Reader) ReadF32() (float32, error) {
	v, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (r *Reader) ReadF64() (float64, error) {
	v, err := r.ReadU64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// ReadString reads a u32-prefixed UTF-8 string.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadU32()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

// ReadBuffer reads a u32-prefixed opaque byte slice. The returned slice
// is a copy; it does not alias the Reader's backing array.
func (r *Reader) ReadBuffer() ([]byte, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return out, nil
}

// ReadRaw reads exactly n unprefixed bytes.
func (r *Reader) ReadRaw(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

// ReadBSON reads a u32-prefixed BSON document into v.
func ReadBSON(r *Reader, v any) error {
	doc, err := r.ReadBuffer()
	if err != nil {
		return err
	}
	return bson.Unmarshal(doc, v)
}

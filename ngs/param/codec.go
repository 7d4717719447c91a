package param

import (
	"encoding/binary"
	"math"
)

// Writer builds a little-endian parameter blob field by field.
type Writer struct {
	buf []byte
}

// NewWriter starts a blob for structID. The header size field is filled in
// by Bytes.
func NewWriter(structID uint32) *Writer {
	w := &Writer{buf: make([]byte, HeaderSize, 64)}
	binary.LittleEndian.PutUint32(w.buf[0:4], structID)

	return w
}

// Uint32 appends a u32 field.
func (w *Writer) Uint32(v uint32) *Writer {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
	return w
}

// Int32 appends an i32 field.
func (w *Writer) Int32(v int32) *Writer {
	return w.Uint32(uint32(v))
}

// Float32 appends an IEEE-754 f32 field.
func (w *Writer) Float32(v float32) *Writer {
	return w.Uint32(math.Float32bits(v))
}

// Bytes returns the finished blob with the header size field set.
func (w *Writer) Bytes() []byte {
	out := make([]byte, len(w.buf))
	copy(out, w.buf)
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(out)))

	return out
}

// Reader decodes little-endian fields following the header. Fields beyond
// the end of the blob read as zero, so blobs written by older guests with
// fewer trailing fields stay decodable.
type Reader struct {
	buf []byte
	off int
}

// NewReader positions a reader on the first field after the header. When
// the header declares fewer bytes than blob holds, the declared size wins.
func NewReader(blob []byte) *Reader {
	if _, size, ok := Header(blob); ok && int(size) < len(blob) {
		blob = blob[:max(int(size), HeaderSize)]
	}

	return &Reader{buf: blob, off: HeaderSize}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return max(len(r.buf)-r.off, 0)
}

// Uint32 reads the next u32 field.
func (r *Reader) Uint32() uint32 {
	if r.off+4 > len(r.buf) {
		r.off += 4
		return 0
	}

	v := binary.LittleEndian.Uint32(r.buf[r.off : r.off+4])
	r.off += 4

	return v
}

// Int32 reads the next i32 field.
func (r *Reader) Int32() int32 {
	return int32(r.Uint32())
}

// Float32 reads the next f32 field.
func (r *Reader) Float32() float32 {
	return math.Float32frombits(r.Uint32())
}

// Float32Or reads the next f32 field, or returns def if the blob ends first.
func (r *Reader) Float32Or(def float32) float32 {
	if r.Remaining() < 4 {
		r.off += 4
		return def
	}

	return r.Float32()
}

// Int32Or reads the next i32 field, or returns def if the blob ends first.
func (r *Reader) Int32Or(def int32) int32 {
	if r.Remaining() < 4 {
		r.off += 4
		return def
	}

	return r.Int32()
}

// Uint32Or reads the next u32 field, or returns def if the blob ends first.
func (r *Reader) Uint32Or(def uint32) uint32 {
	if r.Remaining() < 4 {
		r.off += 4
		return def
	}

	return r.Uint32()
}

// Offset returns the byte offset of the next field.
func (r *Reader) Offset() int { return r.off }

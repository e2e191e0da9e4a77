package protocol

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/text/encoding/charmap"
)

// Moduli applied by the unsigned writers. The server expects value % (2^n - 1),
// not a plain truncation.
const (
	maxUint8  = 1<<8 - 1
	maxUint16 = 1<<16 - 1
	maxUint32 = 1<<32 - 1
)

// MaxStringLength is the maximum number of characters WriteString keeps.
const MaxStringLength = 65535

// Writer builds a frame in a growable buffer. It is not safe for concurrent use;
// the sender owns exactly one.
type Writer struct {
	buf []byte
}

// NewWriter creates a writer with the given initial capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Reset clears the writer for reuse.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Bytes returns the written bytes. The slice is only valid until the next write.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// WriteInt8 writes a signed byte.
func (w *Writer) WriteInt8(v int8) {
	w.buf = append(w.buf, byte(v))
}

// WriteUint8 writes v % 255 as one byte.
func (w *Writer) WriteUint8(v int) {
	w.buf = append(w.buf, byte(v%maxUint8))
}

// WriteInt16 writes a signed big-endian short.
func (w *Writer) WriteInt16(v int16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(v))
}

// WriteUint16 writes v % 65535 as a big-endian short.
func (w *Writer) WriteUint16(v int) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(v%maxUint16))
}

// WriteInt32 writes a signed big-endian int.
func (w *Writer) WriteInt32(v int32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
}

// WriteUint32 writes v % (2^32-1) as a big-endian int.
func (w *Writer) WriteUint32(v int64) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v%maxUint32))
}

// WriteBytes writes raw bytes.
func (w *Writer) WriteBytes(p []byte) {
	w.buf = append(w.buf, p...)
}

// WriteLocation writes x, y and z as signed shorts.
func (w *Writer) WriteLocation(l Location) {
	w.WriteInt16(l.X)
	w.WriteInt16(l.Y)
	w.WriteInt16(l.Z)
}

// WriteString writes a length-prefixed ISO-8859-1 string.
// Format: [length:2][bytes...]
//
// The text is cut to MaxStringLength characters. Characters outside
// ISO-8859-1 are written as '?'.
func (w *Writer) WriteString(s string) {
	lengthPos := len(w.buf)
	w.buf = append(w.buf, 0, 0)

	count := 0
	for _, r := range s {
		if count == MaxStringLength {
			break
		}
		b, ok := charmap.ISO8859_1.EncodeRune(r)
		if !ok {
			b = '?'
		}
		w.buf = append(w.buf, b)
		count++
	}

	w.PutUint16At(lengthPos, uint16(len(w.buf)-lengthPos-2))
}

// PutUint16At overwrites two bytes at pos with v in big-endian order.
func (w *Writer) PutUint16At(pos int, v uint16) {
	binary.BigEndian.PutUint16(w.buf[pos:pos+2], v)
}

// String returns a short hex summary of the buffer for debugging.
func (w *Writer) String() string {
	return fmt.Sprintf("Writer[%d bytes]: %x", len(w.buf), w.buf)
}

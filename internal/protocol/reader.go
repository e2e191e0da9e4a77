package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/text/encoding/charmap"
)

// ErrShortBuffer is returned when a read needs more bytes than the payload holds.
var ErrShortBuffer = errors.New("read beyond end of payload")

// Reader decodes primitive values from a frame payload.
//
// The first failed read is remembered and returned by Err; every later read
// yields a zero value. Decoders can therefore read all fields and check the
// error once at the end.
type Reader struct {
	buf []byte
	pos int
	err error
}

// NewReader creates a reader over b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Reset points the reader at a new payload.
func (r *Reader) Reset(b []byte) {
	r.buf = b
	r.pos = 0
	r.err = nil
}

// Err returns the first read error, if any.
func (r *Reader) Err() error {
	return r.err
}

// Pos returns the read cursor.
func (r *Reader) Pos() int {
	return r.pos
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

func (r *Reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n > r.Remaining() {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, %d left", ErrShortBuffer, n, r.pos, r.Remaining())
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

// ReadInt8 reads a signed byte.
func (r *Reader) ReadInt8() int8 {
	b := r.next(1)
	if b == nil {
		return 0
	}
	return int8(b[0])
}

// ReadUint8 reads a byte as an unsigned value (0..255).
func (r *Reader) ReadUint8() uint8 {
	v := int(r.ReadInt8())
	if v < 0 {
		v += 1 << 8
	}
	return uint8(v)
}

// ReadInt16 reads a signed big-endian short.
func (r *Reader) ReadInt16() int16 {
	b := r.next(2)
	if b == nil {
		return 0
	}
	return int16(binary.BigEndian.Uint16(b))
}

// ReadUint16 reads a big-endian short as an unsigned value (0..65535).
func (r *Reader) ReadUint16() uint16 {
	v := int(r.ReadInt16())
	if v < 0 {
		v += 1 << 16
	}
	return uint16(v)
}

// ReadInt32 reads a signed big-endian int.
func (r *Reader) ReadInt32() int32 {
	b := r.next(4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

// ReadUint32 reads a big-endian int as an unsigned value.
func (r *Reader) ReadUint32() uint32 {
	v := int64(r.ReadInt32())
	if v < 0 {
		v += 1 << 32
	}
	return uint32(v)
}

// ReadLocation reads three signed shorts: x, y and z.
func (r *Reader) ReadLocation() Location {
	return Location{
		X: r.ReadInt16(),
		Y: r.ReadInt16(),
		Z: r.ReadInt16(),
	}
}

// ReadString reads a string with a 2-byte byte-count prefix.
// Format: [length:2][ISO-8859-1 bytes...]
func (r *Reader) ReadString() string {
	n := int(r.ReadUint16())
	data := r.next(n)
	if len(data) == 0 {
		return ""
	}

	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = charmap.ISO8859_1.DecodeByte(b)
	}
	return string(runes)
}

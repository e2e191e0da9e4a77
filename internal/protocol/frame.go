package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	// ErrFrameTooLarge is returned when a payload does not fit the length field.
	ErrFrameTooLarge = errors.New("frame payload too large")
	// ErrBadHeader is returned when the second header byte is not id ^ 0xFF.
	ErrBadHeader = errors.New("header check byte mismatch")
)

// Header is the fixed part of a frame.
type Header struct {
	ID       int
	Length   int
	Checksum uint16
}

// Checksum sums the payload bytes as unsigned values, modulo 65535.
func Checksum(p []byte) uint16 {
	sum := 0
	for _, b := range p {
		sum += int(b)
	}
	return uint16(sum % 0xFFFF)
}

// ValidHead reports whether the first two bytes form a valid id/check pair.
func ValidHead(id, check byte) bool {
	return id == check^CheckMask
}

// ParseHeader decodes the 6-byte header at the start of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header needs %d bytes, have %d", ErrShortBuffer, HeaderSize, len(b))
	}
	if !ValidHead(b[0], b[1]) {
		return Header{}, fmt.Errorf("%w: id 0x%02X, check 0x%02X", ErrBadHeader, b[0], b[1])
	}
	return Header{
		ID:       int(b[0]),
		Length:   int(binary.BigEndian.Uint16(b[LengthPos:])),
		Checksum: binary.BigEndian.Uint16(b[ChecksumPos:]),
	}, nil
}

// AppendFrame resets w and writes cmd as a complete frame: header, payload
// and the backpatched length and checksum.
func AppendFrame(w *Writer, cmd Command) error {
	w.Reset()

	id := byte(cmd.ID())
	w.WriteBytes([]byte{id, id ^ CheckMask, 0, 0, 0, 0})

	if err := cmd.Encode(w); err != nil {
		return fmt.Errorf("failed to encode %s: %w", CommandName(cmd.ID()), err)
	}

	length := w.Len() - HeaderSize
	if length > MaxPayload {
		return fmt.Errorf("%w: %s has %d bytes (max %d)", ErrFrameTooLarge, CommandName(cmd.ID()), length, MaxPayload)
	}

	w.PutUint16At(LengthPos, uint16(length))
	w.PutUint16At(ChecksumPos, Checksum(w.Bytes()[HeaderSize:]))
	return nil
}

// HexDump returns a multi-line hex dump of data for debugging.
func HexDump(data []byte) string {
	return hex.Dump(data)
}

package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// PacketBuilder constructs big-endian AMF byte sequences.
type PacketBuilder struct {
	buf bytes.Buffer
}

// NewPacketBuilder creates a new PacketBuilder.
func NewPacketBuilder() *PacketBuilder {
	return &PacketBuilder{}
}

// Reset clears the builder for reuse.
func (b *PacketBuilder) Reset() {
	b.buf.Reset()
}

// WriteByte writes a single byte.
func (b *PacketBuilder) WriteByte(v byte) *PacketBuilder {
	b.buf.WriteByte(v)
	return b
}

// WriteUint16 writes a uint16 in big-endian order.
func (b *PacketBuilder) WriteUint16(v uint16) *PacketBuilder {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	b.buf.Write(tmp[:])
	return b
}

// WriteUint32 writes a uint32 in big-endian order.
func (b *PacketBuilder) WriteUint32(v uint32) *PacketBuilder {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	b.buf.Write(tmp[:])
	return b
}

// WriteInt16 writes an int16 in big-endian order.
func (b *PacketBuilder) WriteInt16(v int16) *PacketBuilder {
	return b.WriteUint16(uint16(v))
}

// WriteFloat64 writes an IEEE-754 double in big-endian order.
func (b *PacketBuilder) WriteFloat64(v float64) *PacketBuilder {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], math.Float64bits(v))
	b.buf.Write(tmp[:])
	return b
}

// WriteU29 writes an AMF3 variable-length 29-bit unsigned integer.
// Format: 1-4 bytes, high bit of the first three marks continuation,
// the fourth byte carries a full 8 bits.
func (b *PacketBuilder) WriteU29(v uint32) *PacketBuilder {
	v &= 0x1FFFFFFF
	switch {
	case v < 0x80:
		b.buf.WriteByte(byte(v))
	case v < 0x4000:
		b.buf.WriteByte(byte(v>>7 | 0x80))
		b.buf.WriteByte(byte(v & 0x7F))
	case v < 0x200000:
		b.buf.WriteByte(byte(v>>14 | 0x80))
		b.buf.WriteByte(byte(v>>7&0x7F | 0x80))
		b.buf.WriteByte(byte(v & 0x7F))
	default:
		b.buf.WriteByte(byte(v>>22 | 0x80))
		b.buf.WriteByte(byte(v>>15&0x7F | 0x80))
		b.buf.WriteByte(byte(v>>8&0x7F | 0x80))
		b.buf.WriteByte(byte(v))
	}
	return b
}

// WriteUTF writes a u16 length-prefixed UTF-8 string.
// Format: [length:2][string bytes...]
func (b *PacketBuilder) WriteUTF(s string) error {
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("string of %d bytes exceeds u16 length prefix", len(s))
	}
	b.WriteUint16(uint16(len(s)))
	b.buf.WriteString(s)
	return nil
}

// WriteBytes writes raw bytes.
func (b *PacketBuilder) WriteBytes(data []byte) *PacketBuilder {
	b.buf.Write(data)
	return b
}

// Build returns the constructed bytes.
func (b *PacketBuilder) Build() []byte {
	return b.buf.Bytes()
}

// BuildWithLength returns the bytes with a 4-byte BE length prefix, the
// framing AMF uses for header and body values.
func (b *PacketBuilder) BuildWithLength() []byte {
	data := b.buf.Bytes()
	result := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(result[:4], uint32(len(data)))
	copy(result[4:], data)
	return result
}

// Len returns the current size of the buffer.
func (b *PacketBuilder) Len() int {
	return b.buf.Len()
}

// String returns a hex dump of the current buffer for debugging.
func (b *PacketBuilder) String() string {
	data := b.buf.Bytes()
	return fmt.Sprintf("PacketBuilder[%d bytes]: %x", len(data), data)
}

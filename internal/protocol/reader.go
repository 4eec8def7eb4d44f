package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

// maxDepth bounds value nesting while decoding.
const maxDepth = 256

// wireReader walks a byte slice and reports failures as CodecError with
// the offset where the read started.
type wireReader struct {
	data []byte
	pos  int
}

func newWireReader(data []byte) *wireReader {
	return &wireReader{data: data}
}

func (r *wireReader) fail(op string, err error) error {
	return &CodecError{Offset: r.pos, Op: op, Err: err}
}

func (r *wireReader) failf(op, format string, args ...any) error {
	return r.fail(op, fmt.Errorf(format, args...))
}

func (r *wireReader) remaining() int {
	return len(r.data) - r.pos
}

func (r *wireReader) need(n int, op string) error {
	if n < 0 || r.remaining() < n {
		return r.fail(op, ErrTruncated)
	}
	return nil
}

func (r *wireReader) readByte(op string) (byte, error) {
	if err := r.need(1, op); err != nil {
		return 0, err
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *wireReader) readUint16(op string) (uint16, error) {
	if err := r.need(2, op); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *wireReader) readUint32(op string) (uint32, error) {
	if err := r.need(4, op); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *wireReader) readFloat64(op string) (float64, error) {
	if err := r.need(8, op); err != nil {
		return 0, err
	}
	v := math.Float64frombits(binary.BigEndian.Uint64(r.data[r.pos:]))
	r.pos += 8
	return v, nil
}

func (r *wireReader) readBytes(n int, op string) ([]byte, error) {
	if err := r.need(n, op); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.data[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

func (r *wireReader) readString(n int, op string) (string, error) {
	if err := r.need(n, op); err != nil {
		return "", err
	}
	raw := r.data[r.pos : r.pos+n]
	if !utf8.Valid(raw) {
		return "", r.failf(op, "invalid utf-8 in %d byte string", n)
	}
	r.pos += n
	return string(raw), nil
}

// readUTF reads a u16 length-prefixed string.
func (r *wireReader) readUTF(op string) (string, error) {
	n, err := r.readUint16(op)
	if err != nil {
		return "", err
	}
	return r.readString(int(n), op)
}

// readLongUTF reads a u32 length-prefixed string.
func (r *wireReader) readLongUTF(op string) (string, error) {
	n, err := r.readUint32(op)
	if err != nil {
		return "", err
	}
	if uint64(n) > uint64(r.remaining()) {
		return "", r.fail(op, ErrTruncated)
	}
	return r.readString(int(n), op)
}

// readU29 reads an AMF3 variable-length unsigned 29-bit integer.
func (r *wireReader) readU29(op string) (uint32, error) {
	var result uint32
	for i := 0; i < 4; i++ {
		b, err := r.readByte(op)
		if err != nil {
			return 0, err
		}
		if i == 3 {
			return result<<8 | uint32(b), nil
		}
		result = result<<7 | uint32(b&0x7F)
		if b&0x80 == 0 {
			return result, nil
		}
	}
	return result, nil
}

package decoder

import (
	"encoding/binary"
	"fmt"
)

// reader is a bounds-checked cursor over one element body. Every accessor
// fails with ErrTruncated instead of panicking when the buffer runs short,
// which is the only guarantee the element parsers rely on.
type reader struct {
	buf []byte
	off int
}

func newReader(b []byte) *reader {
	return &reader{buf: b}
}

func (r *reader) remaining() int { return len(r.buf) - r.off }

func (r *reader) empty() bool { return r.off >= len(r.buf) }

func (r *reader) need(n int) error {
	if n < 0 || r.remaining() < n {
		return fmt.Errorf("%w: need %d byte(s) at offset %d, have %d",
			ErrTruncated, n, r.off, r.remaining())
	}
	return nil
}

func (r *reader) u8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

// u16 reads a little-endian uint16.
func (r *reader) u16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

// u32 reads a little-endian uint32.
func (r *reader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

// beUint reads an n-byte (n ≤ 4) big-endian unsigned integer.
func (r *reader) beUint(n int) (uint32, error) {
	b, err := r.bytes(n)
	if err != nil {
		return 0, err
	}
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return v, nil
}

// bytes returns the next n bytes without copying. Callers that keep the
// result beyond the parse must copy it (string conversion does).
func (r *reader) bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) skip(n int) error {
	_, err := r.bytes(n)
	return err
}

// sub carves the next n bytes into an independent reader and advances past
// them.
func (r *reader) sub(n int) (*reader, error) {
	b, err := r.bytes(n)
	if err != nil {
		return nil, err
	}
	return newReader(b), nil
}

// str reads n bytes as a string.
func (r *reader) str(n int) (string, error) {
	b, err := r.bytes(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// rest consumes and returns everything left.
func (r *reader) rest() []byte {
	b := r.buf[r.off:]
	r.off = len(r.buf)
	return b
}

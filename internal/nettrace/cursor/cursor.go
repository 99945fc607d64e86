// Package cursor provides a bounds-checked reader over an immutable byte
// slice, generalizing the teacher's BinaryReader (internal/heap/parser/reader.go)
// from HPROF's big-endian fixed encoding to EventPipe's little-endian,
// LEB128-varint, UTF-16 encoding (spec §4.1).
package cursor

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"github.com/dennwc/varint"

	"github.com/austenc/nettrace/internal/nettrace/model"
)

// ErrUnexpectedEnd is the sentinel message for a read past the end of the
// buffer. The cursor reports such reads as a *model.DecodeError with Kind
// model.ErrUnexpectedEnd; that error does not wrap this value. The
// cursor's offset is never advanced past what was already consumed.
var ErrUnexpectedEnd = fmt.Errorf("unexpected end of buffer")

// Cursor is a bounds-checked reader over an immutable byte slice.
type Cursor struct {
	buf []byte
	off int
}

// New wraps buf for reading from offset 0.
func New(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Offset returns the current read position.
func (c *Cursor) Offset() int64 { return int64(c.off) }

// Len returns the number of unread bytes.
func (c *Cursor) Len() int { return len(c.buf) - c.off }

// Remaining returns the unread tail of the buffer without advancing.
func (c *Cursor) Remaining() []byte { return c.buf[c.off:] }

func (c *Cursor) fail(detail string) error {
	return &model.DecodeError{Kind: model.ErrUnexpectedEnd, Component: "cursor", Offset: int64(c.off), Detail: detail}
}

// ReadBytes consumes and returns the next n bytes without copying.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if n < 0 || c.off+n > len(c.buf) {
		return nil, c.fail(fmt.Sprintf("need %d bytes, have %d", n, c.Len()))
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b, nil
}

// Peek returns the next byte without advancing the cursor.
func (c *Cursor) Peek() (byte, error) {
	if c.off >= len(c.buf) {
		return 0, c.fail("peek past end")
	}
	return c.buf[c.off], nil
}

// Skip advances by n bytes, saturating to the end of the buffer rather
// than failing — used for forward-compatible "skip the rest of the
// header/field" cases (spec §4.3).
func (c *Cursor) Skip(n int) {
	c.off += n
	if c.off > len(c.buf) {
		c.off = len(c.buf)
	}
	if c.off < 0 {
		c.off = 0
	}
}

// Align4 advances the cursor up to the next 4-byte boundary, measured from
// the start of the buffer (spec §4.2, block-payload alignment).
func (c *Cursor) Align4() {
	if rem := c.off % 4; rem != 0 {
		c.Skip(4 - rem)
	}
}

// Sub carves out the next n bytes as an independent cursor, for decoding
// a nested, length-delimited region (a block's payload, an event's
// payload) without risking the inner decoder reading past its bounds.
func (c *Cursor) Sub(n int) (*Cursor, error) {
	b, err := c.ReadBytes(n)
	if err != nil {
		return nil, err
	}
	return New(b), nil
}

func (c *Cursor) ReadU8() (uint8, error) {
	b, err := c.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *Cursor) ReadU16() (uint16, error) {
	b, err := c.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *Cursor) ReadU32() (uint32, error) {
	b, err := c.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *Cursor) ReadU64() (uint64, error) {
	b, err := c.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (c *Cursor) ReadI16() (int16, error) {
	v, err := c.ReadU16()
	return int16(v), err
}

func (c *Cursor) ReadI32() (int32, error) {
	v, err := c.ReadU32()
	return int32(v), err
}

func (c *Cursor) ReadI64() (int64, error) {
	v, err := c.ReadU64()
	return int64(v), err
}

// ReadASCIIString reads a 4-byte length prefix followed by that many
// ASCII bytes — the container's type-name / serialization-header string
// encoding (spec §4.2, §6).
func (c *Cursor) ReadASCIIString() (string, error) {
	n, err := c.ReadU32()
	if err != nil {
		return "", err
	}
	b, err := c.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadUTF16String reads a null-terminated UTF-16LE string: two-byte code
// units, terminator a zero 16-bit unit (spec §4.1, §4.4, §4.6).
func (c *Cursor) ReadUTF16String() (string, error) {
	var units []uint16
	for {
		u, err := c.ReadU16()
		if err != nil {
			return "", err
		}
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units)), nil
}

// ReadULEB128 reads an unsigned LEB128 value up to 35 encoded bits into a
// 32-bit result (spec §4.1).
func (c *Cursor) ReadULEB128() (uint32, error) {
	v, n := varint.Uvarint(c.buf[c.off:])
	if n <= 0 {
		return 0, c.fail("malformed uleb128")
	}
	c.off += n
	return uint32(v), nil
}

// ReadULEB128_64 reads an unsigned LEB128 value up to 70 encoded bits into
// a 64-bit result (spec §4.1, used for 64-bit varint-compressed header
// fields in the compressed event encoding).
func (c *Cursor) ReadULEB128_64() (uint64, error) {
	v, n := varint.Uvarint(c.buf[c.off:])
	if n <= 0 {
		return 0, c.fail("malformed uleb128-64")
	}
	c.off += n
	return v, nil
}

// ReadSLEB128 reads a zig-zag-free, sign-extended signed LEB128 (the
// compressed encoding's captureThreadId/threadId fields, spec §4.5).
func (c *Cursor) ReadSLEB128() (int64, error) {
	var v int64
	var shift uint
	for i := c.off; i < len(c.buf) && shift < 70; i++ {
		b := c.buf[i]
		v |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				v |= -1 << shift
			}
			c.off = i + 1
			return v, nil
		}
	}
	return 0, c.fail("malformed sleb128")
}

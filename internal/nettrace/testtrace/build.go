// Package testtrace hand-assembles valid (and deliberately broken)
// nettrace byte streams for table-driven tests, so package tests never
// need a real captured trace file on disk. Grounded on the shape of the
// wire format this module's own decoder expects (spec §4, §6, §8).
package testtrace

import (
	"bytes"
	"encoding/binary"
	"unicode/utf16"
)

const (
	tagNullReference     = 1
	tagBeginPrivateObject = 5
	tagEndObject          = 2 // legacy dialect: locked by the first object this builder writes
)

// Builder assembles a complete trace byte stream incrementally, so block
// alignment padding can be computed against the real running file offset
// (spec §4.2: "counted from the start of the block's payload region").
type Builder struct {
	buf bytes.Buffer
}

func New() *Builder {
	b := &Builder{}
	b.buf.WriteString("Nettrace")
	writeASCII(&b.buf, "!FastSerialization.1")
	return b
}

func (b *Builder) Bytes() []byte { return b.buf.Bytes() }

// WriteTrace appends a Trace object. payload must be the 48-byte fixed
// record from EncodeTracePayload.
func (b *Builder) WriteTrace(payload []byte) {
	b.beginObject("Trace", true, 0)
	b.buf.Write(payload)
	b.buf.WriteByte(tagEndObject)
}

// WriteBlock appends one of the four block-kind objects: int32 size,
// 4-byte alignment padding measured from this builder's absolute length,
// then content verbatim.
func (b *Builder) WriteBlock(typeName string, content []byte, newType bool, backrefIndex uint32) {
	b.beginObject(typeName, newType, backrefIndex)
	writeI32(&b.buf, int32(len(content)))
	b.align4()
	b.buf.Write(content)
	b.buf.WriteByte(tagEndObject)
}

func (b *Builder) beginObject(typeName string, newType bool, backrefIndex uint32) {
	b.buf.WriteByte(tagBeginPrivateObject)
	if newType {
		b.buf.WriteByte(tagNullReference)
		writeI32(&b.buf, 1) // version
		writeI32(&b.buf, 1) // minReaderVersion
		writeASCII(&b.buf, typeName)
	} else {
		b.buf.Write(uleb128(uint64(backrefIndex)))
	}
}

func (b *Builder) align4() {
	for b.buf.Len()%4 != 0 {
		b.buf.WriteByte(0)
	}
}

// EncodeTracePayload builds the Trace object's fixed 48-byte payload
// (spec §3, §6).
func EncodeTracePayload(year, month, day, hour, minute, second, millisecond int16, syncTimeQPC, qpcFrequency uint64, pointerSize, processID, processorCount, samplingRateHz uint32) []byte {
	var buf bytes.Buffer
	writeI16(&buf, year)
	writeI16(&buf, month)
	writeI16(&buf, 0) // day of week, ignored
	writeI16(&buf, day)
	writeI16(&buf, hour)
	writeI16(&buf, minute)
	writeI16(&buf, second)
	writeI16(&buf, millisecond)
	writeU64(&buf, syncTimeQPC)
	writeU64(&buf, qpcFrequency)
	writeU32(&buf, pointerSize)
	writeU32(&buf, processID)
	writeU32(&buf, processorCount)
	writeU32(&buf, samplingRateHz)
	return buf.Bytes()
}

// FieldSpec is one metadata-descriptor field (spec §4.4).
type FieldSpec struct {
	Name            string
	TypeCode        int32
	ElementTypeCode int32 // only meaningful when TypeCode == 19
}

// EncodeSchemaDescriptor builds one metadata pseudo-event's payload (spec
// §4.4).
func EncodeSchemaDescriptor(metadataID uint32, provider string, eventID int32, eventName string, keywords int64, version, level int32, fields []FieldSpec) []byte {
	var buf bytes.Buffer
	writeU32(&buf, metadataID)
	writeUTF16(&buf, provider)
	writeI32(&buf, eventID)
	writeUTF16(&buf, eventName)
	writeI64(&buf, keywords)
	writeI32(&buf, version)
	writeI32(&buf, level)
	writeI32(&buf, int32(len(fields)))
	for _, f := range fields {
		writeI32(&buf, f.TypeCode)
		if f.TypeCode == 19 {
			writeI32(&buf, f.ElementTypeCode)
		}
		writeUTF16(&buf, f.Name)
	}
	return buf.Bytes()
}

// EventSpec configures one compressed-encoding event or metadata
// pseudo-event (spec §4.5). A nil field means "carry the previous
// event's value" — set every field explicitly for the first event in a
// block, since carry starts zeroed.
type EventSpec struct {
	MetadataID      *uint32
	CaptureThreadID *int64 // setting it sets flag bit 0x02 and also writes ProcessorNumber
	ProcessorNumber uint32
	ThreadID        *int64
	StackID         *uint64
	ExplicitSize    bool
	TimestampDelta  uint64
	Payload         []byte
}

// EncodeCompressedEvent renders one event per the flag-bit table in spec
// §4.5.
func EncodeCompressedEvent(s EventSpec) []byte {
	var flags byte
	var body bytes.Buffer

	if s.MetadataID != nil {
		flags |= 0x01
		body.Write(uleb128(uint64(*s.MetadataID)))
	}
	if s.CaptureThreadID != nil {
		flags |= 0x02
		body.Write(uleb128(0)) // sequenceDelta
		body.Write(sleb128(*s.CaptureThreadID))
		body.Write(uleb128(uint64(s.ProcessorNumber)))
	}
	if s.ThreadID != nil {
		flags |= 0x04
		body.Write(sleb128(*s.ThreadID))
	}
	if s.StackID != nil {
		flags |= 0x08
		body.Write(uleb128(*s.StackID))
	}
	if s.ExplicitSize {
		flags |= 0x80
		body.Write(uleb128(uint64(len(s.Payload))))
	}
	body.Write(uleb128(s.TimestampDelta)) // always read

	out := make([]byte, 0, 1+body.Len()+len(s.Payload))
	out = append(out, flags)
	out = append(out, body.Bytes()...)
	out = append(out, s.Payload...)
	return out
}

// BuildEventStreamContent concatenates a block prologue (headerSize=4,
// flags=1 for the compressed encoding) with already-encoded events —
// usable for both MetadataBlock and EventBlock content.
func BuildEventStreamContent(events ...[]byte) []byte {
	var buf bytes.Buffer
	writeI16(&buf, 4)
	writeI16(&buf, 1)
	for _, e := range events {
		buf.Write(e)
	}
	return buf.Bytes()
}

// BuildStackBlockContent builds a StackBlock payload (spec §4.7).
func BuildStackBlockContent(firstID uint32, stacks [][]uint64, pointerSize uint32) []byte {
	var buf bytes.Buffer
	writeI16(&buf, 4)
	writeI16(&buf, 0)
	writeU32(&buf, firstID)
	writeU32(&buf, uint32(len(stacks)))
	for _, addrs := range stacks {
		var entry bytes.Buffer
		for _, a := range addrs {
			if pointerSize == 8 {
				writeU64(&entry, a)
			} else {
				writeU32(&entry, uint32(a))
			}
		}
		writeU32(&buf, uint32(entry.Len()))
		buf.Write(entry.Bytes())
	}
	return buf.Bytes()
}

func writeI16(buf *bytes.Buffer, v int16) { writeU16(buf, uint16(v)) }
func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}
func writeI32(buf *bytes.Buffer, v int32) { writeU32(buf, uint32(v)) }
func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
func writeI64(buf *bytes.Buffer, v int64) { writeU64(buf, uint64(v)) }
func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeASCII(buf *bytes.Buffer, s string) {
	writeU32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func writeUTF16(buf *bytes.Buffer, s string) {
	for _, u := range utf16.Encode([]rune(s)) {
		writeU16(buf, u)
	}
	writeU16(buf, 0)
}

func uleb128(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			break
		}
	}
	return out
}

func sleb128(v int64) []byte {
	var out []byte
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

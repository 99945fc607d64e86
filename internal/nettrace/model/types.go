// Package model holds the plain data types shared by every decoding stage:
// tag enums for the FastSerialization container and EventPipe block/event
// wire format, and the aggregate records produced by the decoder.
package model

import "fmt"

// ObjectTag is a single byte preceding each object in the FastSerialization
// tagged stream. Two historical numbering dialects exist; see Dialect.
type ObjectTag byte

const (
	TagNullReference     ObjectTag = 1
	TagBeginObject       ObjectTag = 4
	TagBeginPrivateObject ObjectTag = 5

	// Dialect-dependent tags. Legacy: EndObject=2, Blob=6.
	// Modern: ObjectReference=2, EndObject=6, Blob=14.
	TagEndObjectLegacy    ObjectTag = 2
	TagBlobLegacy         ObjectTag = 6
	TagObjectReference    ObjectTag = 2
	TagEndObjectModern    ObjectTag = 6
	TagBlobModern         ObjectTag = 14
)

// Dialect distinguishes the two historical tag numbering schemes a
// FastSerialization stream may use.
type Dialect int

const (
	DialectUnknown Dialect = iota
	DialectLegacy          // 2=EndObject, 6=Blob
	DialectModern          // 2=ObjectReference, 6=EndObject, 14=Blob
)

func (d Dialect) EndObjectTag() ObjectTag {
	if d == DialectModern {
		return TagEndObjectModern
	}
	return TagEndObjectLegacy
}

// BlockKind names the five recognized top-level object payload types.
type BlockKind string

const (
	BlockTrace    BlockKind = "Trace"
	BlockMetadata BlockKind = "MetadataBlock"
	BlockEvent    BlockKind = "EventBlock"
	BlockStack    BlockKind = "StackBlock"
	BlockSP       BlockKind = "SPBlock"
)

// FieldTypeCode is the wire type code for a metadata field descriptor.
// Only ArrayTypeCode carries special handling: its element type code must
// be consumed but is not retained (spec §3, EventSchema).
type FieldTypeCode int32

const ArrayTypeCode FieldTypeCode = 19

// ErrorKind is the fixed taxonomy from spec §7. Every non-fatal error the
// decoder produces carries one of these to keep diagnostics greppable.
type ErrorKind string

const (
	ErrInvalidMagic              ErrorKind = "InvalidMagic"
	ErrInvalidSerializationHeader ErrorKind = "InvalidSerializationHeader"
	ErrUnexpectedEnd             ErrorKind = "UnexpectedEnd"
	ErrUnknownTypeIndex          ErrorKind = "UnknownTypeIndex"
	ErrMalformedBlock            ErrorKind = "MalformedBlock"
	ErrMalformedEvent            ErrorKind = "MalformedEvent"
	ErrMalformedPayload          ErrorKind = "MalformedPayload"
)

// DecodeError is a local (non-fatal) decode error tagged with its kind and
// the byte offset it was detected at, for both ParseResult.Errors strings
// and the structured logging described in SPEC_FULL §7.
type DecodeError struct {
	Kind      ErrorKind
	Component string
	Offset    int64
	Detail    string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s at offset %d in %s: %s", e.Kind, e.Offset, e.Component, e.Detail)
}

// Known provider/event identifiers, bit-exact per spec §6.
const (
	ProviderCLR         = "Microsoft-Windows-DotNETRuntime"
	ProviderCLRRundown  = "Microsoft-Windows-DotNETRuntimeRundown"
	ProviderSampleProf  = "Microsoft-DotNETCore-SampleProfiler"

	EventGCAllocTick        = 10
	EventMethodLoadVerbose  = 143
	EventMethodDCEndVerbose = 144
	EventMethodJitStart     = 145
)

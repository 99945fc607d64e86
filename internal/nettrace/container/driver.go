// Package container implements the FastSerialization tagged-object walk:
// magic/banner validation, the append-only type registry, and per-type
// payload framing and dispatch (spec §4.2). It mirrors the teacher's
// top-level Parser.parseRecords loop (internal/heap/parser/parser.go) —
// read a tag, dispatch on it, recover and continue on error — generalized
// from HPROF's flat record stream to EventPipe's recursive type-ref
// object stream.
package container

import (
	"fmt"

	"github.com/austenc/nettrace/internal/nettrace/cursor"
	"github.com/austenc/nettrace/internal/nettrace/model"
)

const (
	magic          = "Nettrace"
	bannerPrefix   = "!FastSerialization.1"
	objectBudget   = 10_000_000
)

// knownBlockTypes are the block-shaped payloads: int32 size, alignment
// padding, then that many bytes of content (spec §4.2).
var knownBlockTypes = map[string]bool{
	string(model.BlockMetadata): true,
	string(model.BlockEvent):    true,
	string(model.BlockStack):    true,
	string(model.BlockSP):       true,
}

// Dispatch is called once per resolved top-level object with a cursor
// scoped to exactly that object's payload bytes. Errors returned here are
// local to the object (recorded, then the walk continues).
type Dispatch func(typeName string, payload *cursor.Cursor) error

// Driver walks the tagged object stream.
type Driver struct {
	cur      *cursor.Cursor
	registry *TypeRegistry
	dialect  model.Dialect
	budget   int
	Errors   []string
}

// NewDriver validates the magic and serialization banner and returns a
// driver positioned at the start of the tagged object stream, or an error
// if either check fails (spec §7: InvalidMagic / InvalidSerializationHeader
// are the only two fatal error kinds).
func NewDriver(data []byte) (*Driver, error) {
	c := cursor.New(data)

	magicBytes, err := c.ReadBytes(len(magic))
	if err != nil || string(magicBytes) != magic {
		return nil, &model.DecodeError{Kind: model.ErrInvalidMagic, Component: "container", Offset: 0, Detail: "missing 'Nettrace' magic"}
	}

	banner, err := c.ReadASCIIString()
	if err != nil || len(banner) < len(bannerPrefix) || banner[:len(bannerPrefix)] != bannerPrefix {
		return nil, &model.DecodeError{Kind: model.ErrInvalidSerializationHeader, Component: "container", Offset: c.Offset(), Detail: fmt.Sprintf("unexpected serialization banner %q", banner)}
	}

	return &Driver{cur: c, registry: NewTypeRegistry()}, nil
}

// Run walks every top-level object, invoking dispatch for each resolved,
// recognized payload.
func (d *Driver) Run(dispatch Dispatch) {
	for {
		if d.budget++; d.budget > objectBudget {
			d.recordf("object budget of %d exceeded; stopping walk", objectBudget)
			return
		}

		tagByte, err := d.cur.ReadU8()
		if err != nil {
			return // clean EOF at a tag boundary
		}
		tag := model.ObjectTag(tagByte)

		switch {
		case tag == model.TagNullReference:
			continue
		case d.isEndObjectTag(tag):
			continue
		case tag == model.TagBeginPrivateObject:
			d.handleObject(dispatch)
		default:
			d.recoverUnknownTag()
		}
	}
}

// isEndObjectTag reports whether tag is the EndObject tag for whichever
// dialect has been locked so far; before any dialect is locked, both 2
// and 6 are tolerated as a stray top-level EndObject (spec §4.2: "the
// driver consumes NullReference and EndObject as no-ops").
func (d *Driver) isEndObjectTag(tag model.ObjectTag) bool {
	switch d.dialect {
	case model.DialectModern:
		return tag == model.TagEndObjectModern
	case model.DialectLegacy:
		return tag == model.TagEndObjectLegacy
	default:
		return tag == model.TagEndObjectLegacy || tag == model.TagEndObjectModern
	}
}

// lockDialect records which numbering scheme is in effect, the first time
// a type-reference closing tag is observed (spec §9).
func (d *Driver) lockDialect(tag model.ObjectTag) {
	if d.dialect != model.DialectUnknown {
		return
	}
	switch tag {
	case model.TagEndObjectLegacy: // == TagObjectReference == 2
		d.dialect = model.DialectLegacy
	case model.TagEndObjectModern: // == TagBlobLegacy == 6
		d.dialect = model.DialectModern
	}
}

func (d *Driver) handleObject(dispatch Dispatch) {
	typeDef, err := d.readTypeReference()
	if err != nil {
		d.recordf("container: %v", err)
		d.recoverUnknownTag()
		return
	}

	payload, err := d.framePayload(typeDef.Name)
	if err != nil {
		d.recordf("container: failed to frame payload for %s: %v", typeDef.Name, err)
		d.recoverUnknownTag()
		return
	}
	if payload == nil {
		// Unrecognized type: driver already scanned forward inside framePayload.
		return
	}

	if err := dispatch(typeDef.Name, payload); err != nil {
		d.recordf("container: %s: %v", typeDef.Name, err)
	}

	// Consume the EndObject tag closing this top-level object.
	if tagByte, err := d.cur.ReadU8(); err == nil {
		d.lockDialect(model.ObjectTag(tagByte))
	}
}

// readTypeReference implements spec §4.2 steps 1-3: resolve the type of
// the object that follows, which may be encoded as a nested
// BeginPrivateObject-wrapped definition/back-reference, or inline.
func (d *Driver) readTypeReference() (*TypeDef, error) {
	b, err := d.cur.Peek()
	if err != nil {
		return nil, err
	}

	switch model.ObjectTag(b) {
	case model.TagBeginPrivateObject:
		d.cur.Skip(1)
		return d.readWrappedTypeReference()
	case model.TagNullReference:
		d.cur.Skip(1)
		return d.readTypeDefinition()
	default:
		idx, err := d.cur.ReadULEB128()
		if err != nil {
			return nil, err
		}
		td, ok := d.registry.Resolve(int(idx))
		if !ok {
			return nil, &model.DecodeError{Kind: model.ErrUnknownTypeIndex, Component: "container", Offset: d.cur.Offset(), Detail: fmt.Sprintf("back-reference to unknown type index %d", idx)}
		}
		return td, nil
	}
}

func (d *Driver) readWrappedTypeReference() (*TypeDef, error) {
	b, err := d.cur.Peek()
	if err != nil {
		return nil, err
	}

	var td *TypeDef
	if model.ObjectTag(b) == model.TagNullReference {
		d.cur.Skip(1)
		td, err = d.readTypeDefinition()
	} else {
		var idx uint32
		idx, err = d.cur.ReadULEB128()
		if err == nil {
			var ok bool
			td, ok = d.registry.Resolve(int(idx))
			if !ok {
				return nil, &model.DecodeError{Kind: model.ErrUnknownTypeIndex, Component: "container", Offset: d.cur.Offset(), Detail: fmt.Sprintf("back-reference to unknown type index %d", idx)}
			}
		}
	}
	if err != nil {
		return nil, err
	}

	closeTag, err := d.cur.ReadU8()
	if err != nil {
		return nil, err
	}
	d.lockDialect(model.ObjectTag(closeTag))

	return td, nil
}

func (d *Driver) readTypeDefinition() (*TypeDef, error) {
	version, err := d.cur.ReadI32()
	if err != nil {
		return nil, err
	}
	minReaderVersion, err := d.cur.ReadI32()
	if err != nil {
		return nil, err
	}
	name, err := d.cur.ReadASCIIString()
	if err != nil {
		return nil, err
	}
	return d.registry.Define(version, minReaderVersion, name), nil
}

// framePayload positions a payload-scoped cursor for typeName. For the
// known block kinds it reads the int32 size, aligns to the file's 4-byte
// grid, then carves out exactly that many bytes. For "Trace" it carves
// out the fixed 48-byte record. For anything else it performs the
// unrecognized-type forward scan and returns (nil, nil).
func (d *Driver) framePayload(typeName string) (*cursor.Cursor, error) {
	switch {
	case typeName == string(model.BlockTrace):
		return d.cur.Sub(48)
	case knownBlockTypes[typeName]:
		size, err := d.cur.ReadI32()
		if err != nil {
			return nil, err
		}
		d.cur.Align4()
		return d.cur.Sub(int(size))
	default:
		d.recoverUnknownTag()
		return nil, nil
	}
}

// recoverUnknownTag scans forward to the next EndObject/BeginPrivateObject
// byte value without consuming it, so the top-level walk can resume there
// (spec §4.2, §9).
func (d *Driver) recoverUnknownTag() {
	for {
		b, err := d.cur.Peek()
		if err != nil {
			return
		}
		tag := model.ObjectTag(b)
		if tag == model.TagBeginPrivateObject || d.isEndObjectTag(tag) {
			return
		}
		d.cur.Skip(1)
	}
}

func (d *Driver) recordf(format string, args ...interface{}) {
	d.Errors = append(d.Errors, fmt.Sprintf(format, args...))
}
